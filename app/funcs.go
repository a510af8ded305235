package app

import (
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"volunteerops/db"
	"volunteerops/inventory"
	"volunteerops/models"
	"volunteerops/training"
)

func formatTime(v any, layout string) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Local().Format(layout)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Local().Format(layout)
	}
	return ""
}

// statusClass maps item, booking, note and participation states to badge colors.
// Participation "pending" shares the note value.
func statusClass(status string) string {
	switch status {
	case models.ItemAvailable, models.BookingReturned, models.NoteResolved, models.ParticipationApproved,
		models.TaskDone, models.CertificateValid:
		return "success"
	case models.ItemBooked, models.BookingActive, models.NoteInProgress:
		return "primary"
	case models.ItemMaintenance, models.NotePending, models.NoteAcknowledged, models.CertificateExpiring:
		return "warning"
	case models.ItemDamaged, models.BookingOverdue, models.BookingLost, models.ParticipationRejected,
		models.CertificateExpired, models.CertificateRevoked:
		return "danger"
	}
	return "secondary"
}

func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"t":           T,
		"date":        func(v any) string { return formatTime(v, "2006-01-02") },
		"datetime":    func(v any) string { return formatTime(v, "2006-01-02 15:04") },
		"statusClass": statusClass,
		"roleAtLeast": models.RoleAtLeast,
		"list":        func(v ...string) []string { return v },
		"nextStates":  inventory.NextStates,
		"taskStates":  db.TaskTransitions,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"hours": func(d decimal.NullDecimal) string {
			if !d.Valid {
				return "-"
			}
			return d.Decimal.StringFixed(2)
		},
		"certStatus": func(c models.VolunteerCertificate) string {
			return training.CertificateStatus(&c, time.Now())
		},
		"history": func(raw string) []inventory.HistoryEntry {
			h, _ := inventory.ParseHistory(raw)
			return h
		},
	}
}

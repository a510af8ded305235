package db

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteerops/models"
)

var missionTransitions = map[string][]string{
	models.MissionDraft:  {models.MissionOpen, models.MissionCanceled},
	models.MissionOpen:   {models.MissionClosed, models.MissionCanceled},
	models.MissionClosed: {models.MissionOpen, models.MissionCompleted, models.MissionCanceled},
}

// MissionTransitions lists the states a mission may move to from status.
func MissionTransitions(status string) []string { return missionTransitions[status] }

func (r *Repo) CreateMission(ctx context.Context, m *models.Mission) error {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" || m.StartsAt.IsZero() || !m.EndsAt.After(m.StartsAt) {
		return ErrInvalidInput
	}
	if m.Status == "" {
		m.Status = models.MissionDraft
	}
	return r.DB.WithContext(ctx).Omit("Shifts").Create(m).Error
}

func (r *Repo) GetMission(ctx context.Context, id string) (*models.Mission, error) {
	var m models.Mission
	err := r.DB.WithContext(ctx).
		Preload("Shifts", func(tx *gorm.DB) *gorm.DB { return tx.Order("starts_at") }).
		First(&m, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

type MissionsQuery struct {
	Status       string
	DepartmentID string
	Upcoming     bool
}

func (r *Repo) ListMissions(ctx context.Context, q MissionsQuery) ([]models.Mission, error) {
	tx := r.DB.WithContext(ctx).Preload("Shifts")
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.DepartmentID != "" {
		tx = tx.Where("department_id = ?", q.DepartmentID)
	}
	if q.Upcoming {
		tx = tx.Where("ends_at >= ?", r.now())
	}
	var ms []models.Mission
	err := tx.Order("starts_at").Find(&ms).Error
	return ms, err
}

func (r *Repo) UpdateMissionStatus(ctx context.Context, id, status string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Mission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if !lo.Contains(missionTransitions[m.Status], status) {
			return ErrInvalidState
		}
		return tx.Model(&models.Mission{}).Where("id = ?", id).
			Updates(map[string]any{"status": status, "updated_at": r.now()}).Error
	})
}

func (r *Repo) CreateShift(ctx context.Context, s *models.Shift) error {
	if s.StartsAt.IsZero() || !s.EndsAt.After(s.StartsAt) ||
		s.MinVolunteers < 0 || s.MaxVolunteers < 0 ||
		(s.MaxVolunteers > 0 && s.MinVolunteers > s.MaxVolunteers) {
		return ErrInvalidInput
	}
	m, err := r.GetMission(ctx, s.MissionID)
	if err != nil {
		return err
	}
	if m.Status == models.MissionCompleted || m.Status == models.MissionCanceled {
		return ErrMissionNotOpen
	}
	return r.DB.WithContext(ctx).Omit("Mission").Create(s).Error
}

func (r *Repo) FindShiftByID(ctx context.Context, id string) (*models.Shift, error) {
	var s models.Shift
	if err := r.DB.WithContext(ctx).Preload("Mission").First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// ApplyToShift creates a pending request. A volunteer may hold one request per shift.
func (r *Repo) ApplyToShift(ctx context.Context, shiftID, volunteerID, notes string) (*models.ParticipationRequest, error) {
	s, err := r.FindShiftByID(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if s.Mission == nil || s.Mission.Status != models.MissionOpen {
		return nil, ErrMissionNotOpen
	}
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.ParticipationRequest{}).
		Where("shift_id = ? AND volunteer_id = ?", shiftID, volunteerID).
		Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrAlreadyApplied
	}
	p := &models.ParticipationRequest{
		ShiftID:     shiftID,
		VolunteerID: volunteerID,
		Status:      models.ParticipationPending,
		Notes:       strings.TrimSpace(notes),
	}
	if err := r.DB.WithContext(ctx).Omit(clause.Associations).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyApplied
		}
		return nil, err
	}
	return p, nil
}

// DecideParticipation approves or rejects a pending request.
// Approving checks the shift capacity inside the same transaction.
func (r *Repo) DecideParticipation(ctx context.Context, requestID, decision, actorID string) error {
	if decision != models.ParticipationApproved && decision != models.ParticipationRejected {
		return ErrInvalidInput
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.ParticipationRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", requestID).Error; err != nil {
			return notFound(err)
		}
		if p.Status != models.ParticipationPending {
			return ErrInvalidState
		}
		if decision == models.ParticipationApproved {
			var s models.Shift
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, "id = ?", p.ShiftID).Error; err != nil {
				return notFound(err)
			}
			if s.MaxVolunteers > 0 {
				var approved int64
				if err := tx.Model(&models.ParticipationRequest{}).
					Where("shift_id = ? AND status = ?", s.ID, models.ParticipationApproved).
					Count(&approved).Error; err != nil {
					return err
				}
				if approved >= int64(s.MaxVolunteers) {
					return ErrShiftFull
				}
			}
		}
		now := r.now()
		return tx.Model(&models.ParticipationRequest{}).Where("id = ?", p.ID).Updates(map[string]any{
			"status":     decision,
			"decided_by": actorID,
			"decided_at": now,
			"updated_at": now,
		}).Error
	})
}

// RecordAttendance marks an approved request as attended. A nil hours value
// credits the full shift duration.
func (r *Repo) RecordAttendance(ctx context.Context, requestID string, attended bool, hours *decimal.Decimal) error {
	if hours != nil && hours.IsNegative() {
		return ErrInvalidInput
	}
	var p models.ParticipationRequest
	if err := r.DB.WithContext(ctx).Preload("Shift").First(&p, "id = ?", requestID).Error; err != nil {
		return notFound(err)
	}
	if p.Status != models.ParticipationApproved {
		return ErrInvalidState
	}
	credit := decimal.NullDecimal{}
	if attended {
		if hours != nil {
			credit = decimal.NewNullDecimal(hours.Round(2))
		} else if p.Shift != nil {
			credit = decimal.NewNullDecimal(p.Shift.Hours())
		}
	}
	return r.DB.WithContext(ctx).Model(&models.ParticipationRequest{}).Where("id = ?", p.ID).Updates(map[string]any{
		"attended":     attended,
		"actual_hours": credit,
		"updated_at":   r.now(),
	}).Error
}

func (r *Repo) ListParticipation(ctx context.Context, shiftID string) ([]models.ParticipationRequest, error) {
	var ps []models.ParticipationRequest
	err := r.DB.WithContext(ctx).Preload("Volunteer").
		Where("shift_id = ?", shiftID).
		Order("created_at").
		Find(&ps).Error
	return ps, err
}

func (r *Repo) ListMyParticipation(ctx context.Context, volunteerID string) ([]models.ParticipationRequest, error) {
	var ps []models.ParticipationRequest
	err := r.DB.WithContext(ctx).Preload("Shift.Mission").
		Where("volunteer_id = ?", volunteerID).
		Order("created_at DESC").
		Find(&ps).Error
	return ps, err
}

type LeaderboardEntry struct {
	Rank        int             `json:"rank"`
	UserID      string          `json:"userId"`
	Username    string          `json:"username"`
	DisplayName string          `json:"displayName"`
	Shifts      int             `json:"shifts"`
	Hours       decimal.Decimal `json:"hours"`
	Points      int64           `json:"points"`
}

// Leaderboard ranks volunteers by attended hours. Points are 10 per hour plus 5 per shift.
// The sum is done in Go so the decimal column behaves the same on every driver.
func (r *Repo) Leaderboard(ctx context.Context, since *time.Time, limit int) ([]LeaderboardEntry, error) {
	type row struct {
		VolunteerID string
		ActualHours decimal.NullDecimal
	}
	tx := r.DB.WithContext(ctx).Model(&models.ParticipationRequest{}).
		Select("volunteer_id, actual_hours").
		Where("attended = ?", true)
	if since != nil {
		tx = tx.Where("updated_at >= ?", *since)
	}
	var rows []row
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, err
	}

	byUser := lo.GroupBy(rows, func(x row) string { return x.VolunteerID })
	entries := make([]LeaderboardEntry, 0, len(byUser))
	for uid, rs := range byUser {
		hours := lo.Reduce(rs, func(acc decimal.Decimal, x row, _ int) decimal.Decimal {
			if x.ActualHours.Valid {
				return acc.Add(x.ActualHours.Decimal)
			}
			return acc
		}, decimal.Zero)
		entries = append(entries, LeaderboardEntry{UserID: uid, Shifts: len(rs), Hours: hours})
	}

	var users []models.User
	if len(entries) > 0 {
		ids := lo.Map(entries, func(e LeaderboardEntry, _ int) string { return e.UserID })
		if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, err
		}
	}
	names := lo.KeyBy(users, func(u models.User) string { return u.ID })

	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].Hours.Cmp(entries[j].Hours); c != 0 {
			return c > 0
		}
		if entries[i].Shifts != entries[j].Shifts {
			return entries[i].Shifts > entries[j].Shifts
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return lo.Map(entries, func(e LeaderboardEntry, i int) LeaderboardEntry {
		e.Rank = i + 1
		e.Points = e.Hours.Mul(decimal.NewFromInt(10)).IntPart() + int64(e.Shifts)*5
		if u, ok := names[e.UserID]; ok {
			e.Username, e.DisplayName = u.Username, u.DisplayName
		}
		return e
	}), nil
}

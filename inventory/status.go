// Package inventory holds the rules of the booking ledger that do not touch the database.
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

type OverdueStatus string

const (
	OnTime  OverdueStatus = "on_time"
	DueSoon OverdueStatus = "due_soon"
	Overdue OverdueStatus = "overdue"
)

const (
	// DueSoonWindow is how close to the expected return a booking turns due-soon.
	DueSoonWindow = 24 * time.Hour
	// Without an expected return date the booking age decides.
	openEndedDueSoon = 5 * 24 * time.Hour
	openEndedOverdue = 7 * 24 * time.Hour
)

// Classify derives the badge of an open booking. It is never persisted.
func Classify(createdAt time.Time, expectedReturn *time.Time, now time.Time) OverdueStatus {
	if expectedReturn != nil {
		switch {
		case now.After(*expectedReturn):
			return Overdue
		case expectedReturn.Sub(now) <= DueSoonWindow:
			return DueSoon
		default:
			return OnTime
		}
	}
	age := now.Sub(createdAt)
	switch {
	case age > openEndedOverdue:
		return Overdue
	case age > openEndedDueSoon:
		return DueSoon
	default:
		return OnTime
	}
}

// Badge maps a status to the bootstrap contextual class used by the templates.
func (s OverdueStatus) Badge() string {
	switch s {
	case Overdue:
		return "danger"
	case DueSoon:
		return "warning"
	default:
		return "success"
	}
}

// ElapsedHours is the plain wall-clock difference in hours, 2 decimals, never negative.
func ElapsedHours(from, to time.Time) decimal.Decimal {
	d := to.Sub(from)
	if d < 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d / time.Second)).Div(decimal.NewFromInt(3600)).Round(2)
}

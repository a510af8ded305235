package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Mission status
const (
	MissionDraft     = "draft"
	MissionOpen      = "open"
	MissionClosed    = "closed"
	MissionCompleted = "completed"
	MissionCanceled  = "canceled"
)

// Participation status
const (
	ParticipationPending  = "pending"
	ParticipationApproved = "approved"
	ParticipationRejected = "rejected"
	ParticipationCanceled = "canceled"
)

type Mission struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string    `gorm:"size:200;not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description,omitempty"`
	Location     string    `gorm:"size:255" json:"location,omitempty"`
	DepartmentID *string   `gorm:"type:uuid;index" json:"departmentId,omitempty"`
	StartsAt     time.Time `gorm:"index;not null" json:"startsAt"`
	EndsAt       time.Time `gorm:"not null" json:"endsAt"`
	Status       string    `gorm:"size:20;not null;default:'draft';index" json:"status"`
	CreatedBy    string    `gorm:"type:uuid" json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	Shifts []Shift `gorm:"foreignKey:MissionID" json:"shifts,omitempty"`
}

func (Mission) TableName() string { return "missions" }

func (m *Mission) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type Shift struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	MissionID     string    `gorm:"type:uuid;index;not null" json:"missionId"`
	StartsAt      time.Time `gorm:"not null" json:"startsAt"`
	EndsAt        time.Time `gorm:"not null" json:"endsAt"`
	MinVolunteers int       `gorm:"not null;default:0" json:"minVolunteers"`
	MaxVolunteers int       `gorm:"not null;default:0" json:"maxVolunteers"` // 0 = 不限
	Notes         string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Mission *Mission `gorm:"foreignKey:MissionID" json:"mission,omitempty"`
}

func (Shift) TableName() string { return "shifts" }

func (s *Shift) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Duration of the shift in hours, the default credit for attendance.
func (s *Shift) Hours() decimal.Decimal {
	return decimal.NewFromFloat(s.EndsAt.Sub(s.StartsAt).Hours()).Round(2)
}

type ParticipationRequest struct {
	ID          string              `gorm:"type:uuid;primaryKey" json:"id"`
	ShiftID     string              `gorm:"type:uuid;not null;uniqueIndex:ux_participation_shift_volunteer" json:"shiftId"`
	VolunteerID string              `gorm:"type:uuid;not null;uniqueIndex:ux_participation_shift_volunteer;index" json:"volunteerId"`
	Status      string              `gorm:"size:20;not null;index" json:"status"`
	Notes       string              `gorm:"type:text" json:"notes,omitempty"`
	DecidedBy   *string             `gorm:"type:uuid" json:"decidedBy,omitempty"`
	DecidedAt   *time.Time          `json:"decidedAt,omitempty"`
	Attended    bool                `gorm:"not null;default:false" json:"attended"`
	ActualHours decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"actualHours"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`

	Shift     *Shift `gorm:"foreignKey:ShiftID" json:"shift,omitempty"`
	Volunteer *User  `gorm:"foreignKey:VolunteerID" json:"volunteer,omitempty"`
}

func (ParticipationRequest) TableName() string { return "participation_requests" }

func (p *ParticipationRequest) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = ParticipationPending
	}
	return nil
}

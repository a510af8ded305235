package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EmailSent   = "sent"
	EmailFailed = "failed"

	NewsletterDraft   = "draft"
	NewsletterSending = "sending"
	NewsletterSent    = "sent"
)

type EmailLog struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Recipient    string    `gorm:"size:255;not null;index" json:"recipient"`
	Subject      string    `gorm:"size:255;not null" json:"subject"`
	Body         string    `gorm:"type:text" json:"-"`
	Status       string    `gorm:"size:10;not null;index" json:"status"`
	Error        string    `gorm:"type:text" json:"error,omitempty"`
	Attempts     int       `gorm:"not null;default:1" json:"attempts"`
	NewsletterID *string   `gorm:"type:uuid;index" json:"newsletterId,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (EmailLog) TableName() string { return "email_logs" }

func (l *EmailLog) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

type Newsletter struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	Subject     string     `gorm:"size:255;not null" json:"subject"`
	Body        string     `gorm:"type:text;not null" json:"body"`
	Status      string     `gorm:"size:20;not null;default:'draft'" json:"status"`
	SentCount   int        `gorm:"not null;default:0" json:"sentCount"`
	FailedCount int        `gorm:"not null;default:0" json:"failedCount"`
	CreatedBy   string     `gorm:"type:uuid" json:"createdBy"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (Newsletter) TableName() string { return "newsletters" }

func (n *Newsletter) BeforeCreate(*gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

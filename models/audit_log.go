package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog 记录每次写操作
type AuditLog struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID       *string   `gorm:"type:uuid;index" json:"actorId,omitempty"`
	ActorUsername string    `gorm:"size:255" json:"actorUsername"`
	Action        string    `gorm:"size:64;not null;index" json:"action"`
	EntityType    string    `gorm:"size:64;index" json:"entityType"`
	EntityID      string    `gorm:"size:64" json:"entityId,omitempty"`
	Details       string    `gorm:"type:text" json:"details,omitempty"`
	IP            string    `gorm:"size:45" json:"ip,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_log" }

func (l *AuditLog) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

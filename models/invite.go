package models

import "time"

type Invite struct {
	ID        uint      `gorm:"primaryKey"`
	Email     string    `gorm:"index;size:255;not null"`
	Token     string    `gorm:"uniqueIndex;size:64;not null"`
	Role      string    `gorm:"size:32;not null;default:'volunteer'"`
	ExpiresAt time.Time `gorm:"index;not null"`
	UsedAt    *time.Time
	CreatedBy string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Invite) TableName() string { return "vo_invites" }

func (i *Invite) Usable(now time.Time) bool { return i.UsedAt == nil && now.Before(i.ExpiresAt) }

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task status
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
	TaskCanceled   = "canceled"
)

// Task priority
const (
	TaskLow    = "low"
	TaskNormal = "normal"
	TaskHigh   = "high"
)

var TaskPriorities = []string{TaskLow, TaskNormal, TaskHigh}

type Task struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string     `gorm:"size:200;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	MissionID   *string    `gorm:"type:uuid;index" json:"missionId,omitempty"`
	AssigneeID  *string    `gorm:"type:uuid;index" json:"assigneeId,omitempty"`
	Status      string     `gorm:"size:20;not null;default:'todo';index" json:"status"`
	Priority    string     `gorm:"size:10;not null;default:'normal'" json:"priority"`
	DueAt       *time.Time `gorm:"index" json:"dueAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedBy   string     `gorm:"type:uuid" json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Assignee *User    `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
	Mission  *Mission `gorm:"foreignKey:MissionID" json:"mission,omitempty"`
}

func (Task) TableName() string { return "tasks" }

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

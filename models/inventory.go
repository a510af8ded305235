// models/inventory.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ItemTable    = "inventory_items"
	BookingTable = "inventory_bookings"
	KitTable     = "inventory_kits"
	KitItemTable = "inventory_kit_items"
	NoteTable    = "inventory_notes"
)

// Item status
const (
	ItemAvailable   = "available"
	ItemBooked      = "booked"
	ItemMaintenance = "maintenance"
	ItemDamaged     = "damaged"
)

// Booking status
const (
	BookingActive   = "active"
	BookingOverdue  = "overdue"
	BookingReturned = "returned"
	BookingLost     = "lost"
)

// OpenBookingStatuses are the booking states that keep an item booked.
var OpenBookingStatuses = []string{BookingActive, BookingOverdue}

type InventoryItem struct {
	ID           string  `gorm:"type:uuid;primaryKey" json:"id"`
	Barcode      string  `gorm:"size:120;uniqueIndex;not null" json:"barcode"`
	Name         string  `gorm:"size:200;not null" json:"name"`
	Description  string  `gorm:"type:text" json:"description,omitempty"`
	Category     string  `gorm:"size:100;index" json:"category"`
	DepartmentID *string `gorm:"type:uuid;index" json:"departmentId,omitempty"`
	Location     string  `gorm:"size:200" json:"location,omitempty"`
	Quantity     int     `gorm:"not null;default:1" json:"quantity"`
	Status       string  `gorm:"size:20;not null;default:'available';index" json:"status"`

	// 冗余列：借用时写入，归还时清空
	BookedByUserID *string    `gorm:"type:uuid" json:"bookedByUserId,omitempty"`
	BookedByName   *string    `gorm:"size:255" json:"bookedByName,omitempty"`
	BookedByPhone  *string    `gorm:"size:40" json:"bookedByPhone,omitempty"`
	BookedAt       *time.Time `json:"bookedAt,omitempty"`
	ExpectedReturn *time.Time `json:"expectedReturn,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (InventoryItem) TableName() string { return ItemTable }

func (it *InventoryItem) BeforeCreate(*gorm.DB) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.Status == "" {
		it.Status = ItemAvailable
	}
	return nil
}

type InventoryBooking struct {
	ID           string  `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID       string  `gorm:"type:uuid;index;not null" json:"itemId"`
	UserID       string  `gorm:"type:uuid;index;not null" json:"userId"`
	KitID        *string `gorm:"type:uuid;index" json:"kitId,omitempty"`
	MissionID    *string `gorm:"type:uuid;index" json:"missionId,omitempty"`
	LocationText string  `gorm:"size:255" json:"location,omitempty"`
	Notes        string  `gorm:"type:text" json:"notes,omitempty"`
	Status       string  `gorm:"size:20;not null;index" json:"status"`
	CreatedByID  string  `gorm:"type:uuid" json:"createdBy"`

	ExpectedReturnDate *time.Time `json:"expectedReturnDate,omitempty"`

	ReturnedAt  *time.Time          `gorm:"index" json:"returnedAt,omitempty"`
	ReturnedBy  *string             `gorm:"type:uuid" json:"returnedBy,omitempty"`
	ReturnNotes string              `gorm:"type:text" json:"returnNotes,omitempty"`
	ActualHours decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"actualHours"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Item *InventoryItem `gorm:"foreignKey:ItemID" json:"item,omitempty"`
	User *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (InventoryBooking) TableName() string { return BookingTable }

func (b *InventoryBooking) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

func (b *InventoryBooking) IsOpen() bool {
	return b.Status == BookingActive || b.Status == BookingOverdue
}

type InventoryKit struct {
	ID           string             `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string             `gorm:"size:200;uniqueIndex;not null" json:"name"`
	Description  string             `gorm:"type:text" json:"description,omitempty"`
	DepartmentID *string            `gorm:"type:uuid;index" json:"departmentId,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
	Members      []InventoryKitItem `gorm:"foreignKey:KitID" json:"members,omitempty"`
}

func (InventoryKit) TableName() string { return KitTable }

func (k *InventoryKit) BeforeCreate(*gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

type InventoryKitItem struct {
	KitID     string         `gorm:"type:uuid;primaryKey" json:"kitId"`
	ItemID    string         `gorm:"type:uuid;primaryKey" json:"itemId"`
	CreatedAt time.Time      `json:"createdAt"`
	Item      *InventoryItem `gorm:"foreignKey:ItemID" json:"item,omitempty"`
}

func (InventoryKitItem) TableName() string { return KitItemTable }

// Note workflow
const (
	NotePending      = "pending"
	NoteAcknowledged = "acknowledged"
	NoteInProgress   = "in_progress"
	NoteResolved     = "resolved"
	NoteArchived     = "archived"
)

type InventoryNote struct {
	ID       string `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID   string `gorm:"type:uuid;index;not null" json:"itemId"`
	AuthorID string `gorm:"type:uuid;not null" json:"authorId"`
	NoteType string `gorm:"size:20;not null;default:'general'" json:"noteType"` // general/issue/maintenance/damage
	Priority string `gorm:"size:10;not null;default:'medium'" json:"priority"`  // low/medium/high/urgent
	Content  string `gorm:"type:text;not null" json:"content"`
	Status   string `gorm:"size:20;not null;index" json:"status"`
	// JSON array of transitions
	StatusHistory string     `gorm:"type:text;not null;default:'[]'" json:"statusHistory"`
	ResolvedAt    *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	Item *InventoryItem `gorm:"foreignKey:ItemID" json:"item,omitempty"`
}

func (InventoryNote) TableName() string { return NoteTable }

func (n *InventoryNote) BeforeCreate(*gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = NotePending
	}
	if n.StatusHistory == "" {
		n.StatusHistory = "[]"
	}
	return nil
}

// InventoryDepartmentAccess grants a user access to the inventory of a department.
type InventoryDepartmentAccess struct {
	UserID       string    `gorm:"type:uuid;primaryKey" json:"userId"`
	DepartmentID string    `gorm:"type:uuid;primaryKey" json:"departmentId"`
	GrantedBy    string    `gorm:"type:uuid" json:"grantedBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (InventoryDepartmentAccess) TableName() string { return "inventory_department_access" }

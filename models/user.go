package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const UserTable = "vo_users"

// Roles, most privileged first.
const (
	RoleSystemAdmin     = "system_admin"
	RoleDepartmentAdmin = "department_admin"
	RoleShiftLeader     = "shift_leader"
	RoleVolunteer       = "volunteer"
)

var roleRank = map[string]int{
	RoleSystemAdmin:     4,
	RoleDepartmentAdmin: 3,
	RoleShiftLeader:     2,
	RoleVolunteer:       1,
}

// RoleAtLeast reports whether role grants at least the privileges of min.
func RoleAtLeast(role, min string) bool { return roleRank[role] >= roleRank[min] && roleRank[min] > 0 }

func ValidRole(role string) bool { _, ok := roleRank[role]; return ok }

// User 的 ID 同时作为 WebAuthn userHandle（存字符串，用时转 []byte）
type User struct {
	ID           string  `gorm:"primaryKey;type:uuid" json:"id"`
	Username     string  `gorm:"uniqueIndex;size:255;not null" json:"username"` // email
	DisplayName  string  `gorm:"size:255;not null" json:"displayName"`
	Phone        string  `gorm:"size:40" json:"phone,omitempty"`
	PasswordHash *string `gorm:"size:255" json:"-"`
	Role         string  `gorm:"size:32;not null;default:'volunteer'" json:"role"`
	DepartmentID *string `gorm:"type:uuid;index" json:"departmentId,omitempty"`
	IsActive     bool    `gorm:"not null;default:true" json:"isActive"`

	LastLoginAt *time.Time `gorm:"index" json:"lastLoginAt,omitempty"`
	LastSeenAt  *time.Time `gorm:"index" json:"lastSeenAt,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`
	LastLoginIP string     `gorm:"size:45" json:"-"`
	LastLoginUA string     `gorm:"size:255" json:"-"`

	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Credentials []Credential `json:"-"`
}

func (User) TableName() string { return UserTable }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (u *User) IsAdmin() bool { return u.Role == RoleSystemAdmin }

// Credential 为每个注册的 Passkey 存档
type Credential struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          string    `gorm:"type:uuid;index" json:"userId"`
	CredentialID    []byte    `gorm:"uniqueIndex" json:"credentialId"`
	PublicKey       []byte    `json:"publicKey"`
	AttestationType string    `gorm:"size:64" json:"attestationType"`
	AAGUID          []byte    `json:"aaguid"`
	SignCount       uint32    `json:"signCount"`
	CloneWarning    bool      `json:"cloneWarning"`
	BackupEligible  bool      `json:"backupEligible"`
	BackupState     bool      `json:"backupState"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	LastUsedAt *time.Time `gorm:"index" json:"lastUsedAt,omitempty"`
}

func (Credential) TableName() string { return "vo_credentials" }

type Department struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:120;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Department) TableName() string { return "vo_departments" }

func (d *Department) BeforeCreate(*gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Certificate status, derived from the dates and never stored
const (
	CertificateValid    = "valid"
	CertificateExpiring = "expiring"
	CertificateExpired  = "expired"
	CertificateRevoked  = "revoked"
)

// Exam kind: exams gate certificates, quizzes only score points
const (
	ExamKindExam = "exam"
	ExamKindQuiz = "quiz"
)

var ExamKinds = []string{ExamKindExam, ExamKindQuiz}

type CertificateType struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string    `gorm:"size:120;not null;uniqueIndex" json:"name"`
	Description    string    `gorm:"type:text" json:"description,omitempty"`
	ValidityMonths int       `gorm:"not null;default:0" json:"validityMonths"` // 0 = 永久有效
	CreatedAt      time.Time `json:"createdAt"`
}

func (CertificateType) TableName() string { return "certificate_types" }

func (t *CertificateType) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

type VolunteerCertificate struct {
	ID                string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            string     `gorm:"type:uuid;not null;index" json:"userId"`
	CertificateTypeID string     `gorm:"type:uuid;not null;index" json:"certificateTypeId"`
	IssuedAt          time.Time  `gorm:"not null" json:"issuedAt"`
	ExpiresAt         *time.Time `gorm:"index" json:"expiresAt,omitempty"`
	IssuedBy          *string    `gorm:"type:uuid" json:"issuedBy,omitempty"`
	ExamAttemptID     *string    `gorm:"type:uuid" json:"examAttemptId,omitempty"`
	RevokedAt         *time.Time `json:"revokedAt,omitempty"`
	Notes             string     `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`

	CertificateType *CertificateType `gorm:"foreignKey:CertificateTypeID" json:"certificateType,omitempty"`
	User            *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (VolunteerCertificate) TableName() string { return "volunteer_certificates" }

func (c *VolunteerCertificate) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type Exam struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title             string    `gorm:"size:200;not null" json:"title"`
	Description       string    `gorm:"type:text" json:"description,omitempty"`
	Kind              string    `gorm:"size:10;not null;default:'exam';index" json:"kind"`
	PassPercent       int       `gorm:"not null;default:70" json:"passPercent"`
	CertificateTypeID *string   `gorm:"type:uuid" json:"certificateTypeId,omitempty"` // 通过后自动颁发
	Published         bool      `gorm:"not null;default:false" json:"published"`
	CreatedBy         string    `gorm:"type:uuid" json:"createdBy"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	Questions       []ExamQuestion   `gorm:"foreignKey:ExamID" json:"questions,omitempty"`
	CertificateType *CertificateType `gorm:"foreignKey:CertificateTypeID" json:"certificateType,omitempty"`
}

func (Exam) TableName() string { return "exams" }

func (e *Exam) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// ExamQuestion is single choice; Options holds one choice per line.
type ExamQuestion struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	ExamID    string    `gorm:"type:uuid;not null;index" json:"examId"`
	Position  int       `gorm:"not null" json:"position"`
	Prompt    string    `gorm:"type:text;not null" json:"prompt"`
	Options   string    `gorm:"type:text;not null" json:"options"`
	Correct   int       `gorm:"not null" json:"-"` // Choices() 下标
	CreatedAt time.Time `json:"createdAt"`
}

func (ExamQuestion) TableName() string { return "exam_questions" }

func (q *ExamQuestion) BeforeCreate(*gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

func (q *ExamQuestion) Choices() []string {
	var out []string
	for _, line := range strings.Split(q.Options, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

type ExamAttempt struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	ExamID    string    `gorm:"type:uuid;not null;index" json:"examId"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"userId"`
	Correct   int       `gorm:"not null" json:"correct"`
	Total     int       `gorm:"not null" json:"total"`
	Percent   int       `gorm:"not null" json:"percent"`
	Passed    bool      `gorm:"not null;index" json:"passed"`
	Answers   string    `gorm:"type:text" json:"answers,omitempty"` // JSON: questionID -> choice
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	Exam *Exam `gorm:"foreignKey:ExamID" json:"exam,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ExamAttempt) TableName() string { return "exam_attempts" }

func (a *ExamAttempt) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"volunteerops/models"
)

func (r *Repo) LogAction(ctx context.Context, entry *models.AuditLog) error {
	if err := r.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

type AuditQuery struct {
	Action     string
	EntityType string
	ActorID    string
	Page       int
	PerPage    int
}

type PagedAudit struct {
	Total   int64             `json:"total"`
	Entries []models.AuditLog `json:"entries"`
}

func (r *Repo) ListAudit(ctx context.Context, q AuditQuery) (*PagedAudit, error) {
	q.Page, q.PerPage = paginate(q.Page, q.PerPage, 200)

	tx := r.DB.WithContext(ctx).Model(&models.AuditLog{})
	if q.Action != "" {
		tx = tx.Where("action = ?", q.Action)
	}
	if q.EntityType != "" {
		tx = tx.Where("entity_type = ?", q.EntityType)
	}
	if q.ActorID != "" {
		tx = tx.Where("actor_id = ?", q.ActorID)
	}
	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}
	var entries []models.AuditLog
	if err := tx.Order("created_at DESC").
		Offset((q.Page - 1) * q.PerPage).
		Limit(q.PerPage).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return &PagedAudit{Total: total, Entries: entries}, nil
}

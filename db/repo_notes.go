package db

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteerops/inventory"
	"volunteerops/models"
)

func (r *Repo) CreateNote(ctx context.Context, n *models.InventoryNote) error {
	n.Content = strings.TrimSpace(n.Content)
	if n.Content == "" {
		return ErrInvalidInput
	}
	if n.NoteType == "" {
		n.NoteType = "general"
	}
	if n.Priority == "" {
		n.Priority = "medium"
	}
	if !inventory.ValidNoteType(n.NoteType) || !inventory.ValidPriority(n.Priority) {
		return ErrInvalidInput
	}
	if _, err := r.FindItemByID(ctx, n.ItemID); err != nil {
		return err
	}
	now := r.now()
	n.Status = models.NotePending
	h, err := inventory.AppendHistory("", inventory.HistoryEntry{To: models.NotePending, By: n.AuthorID, At: now})
	if err != nil {
		return err
	}
	n.StatusHistory = h
	n.CreatedAt, n.UpdatedAt = now, now
	return r.DB.WithContext(ctx).Create(n).Error
}

type NoteTransitionInput struct {
	NoteID  string
	To      string
	ActorID string
	Comment string
}

// TransitionNote moves a note along the workflow and appends the change to its history.
func (r *Repo) TransitionNote(ctx context.Context, in NoteTransitionInput) (*models.InventoryNote, error) {
	var n models.InventoryNote
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&n, "id = ?", in.NoteID).Error; err != nil {
			return notFound(err)
		}
		if !inventory.CanTransition(n.Status, in.To) {
			return fmt.Errorf("%s -> %s: %w", n.Status, in.To, inventory.ErrInvalidTransition)
		}
		now := r.now()
		h, err := inventory.AppendHistory(n.StatusHistory, inventory.HistoryEntry{
			From:    n.Status,
			To:      in.To,
			By:      in.ActorID,
			At:      now,
			Comment: strings.TrimSpace(in.Comment),
		})
		if err != nil {
			return err
		}
		upd := map[string]any{"status": in.To, "status_history": h, "updated_at": now}
		switch in.To {
		case models.NoteResolved:
			upd["resolved_at"] = now
			n.ResolvedAt = &now
		case models.NoteInProgress:
			upd["resolved_at"] = nil
			n.ResolvedAt = nil
		}
		if err := tx.Model(&models.InventoryNote{}).Where("id = ?", n.ID).Updates(upd).Error; err != nil {
			return err
		}
		n.Status, n.StatusHistory, n.UpdatedAt = in.To, h, now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

type NotesQuery struct {
	ItemID   string
	Status   string // "" = 未归档的全部
	Priority string
}

func (r *Repo) ListNotes(ctx context.Context, q NotesQuery) ([]models.InventoryNote, error) {
	tx := r.DB.WithContext(ctx).Preload("Item")
	if q.ItemID != "" {
		tx = tx.Where("item_id = ?", q.ItemID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	} else {
		tx = tx.Where("status <> ?", models.NoteArchived)
	}
	if q.Priority != "" {
		tx = tx.Where("priority = ?", q.Priority)
	}
	var ns []models.InventoryNote
	err := tx.Order(`CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END`).
		Order("created_at DESC").
		Find(&ns).Error
	return ns, err
}

func (r *Repo) FindNoteByID(ctx context.Context, id string) (*models.InventoryNote, error) {
	var n models.InventoryNote
	if err := r.DB.WithContext(ctx).Preload("Item").First(&n, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

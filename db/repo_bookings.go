package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteerops/inventory"
	"volunteerops/models"
)

type BookItemInput struct {
	ItemID         string
	UserID         string // borrower
	ActorID        string // who pressed the button
	KitID          *string
	MissionID      *string
	Location       string
	Notes          string
	ExpectedReturn *time.Time
}

// BookItem 借出：锁住 item → 校验 available → 新建 booking → 同步 item 状态与借用人
func (r *Repo) BookItem(ctx context.Context, in BookItemInput) (*models.InventoryBooking, error) {
	var booking *models.InventoryBooking
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var it models.InventoryItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&it, "id = ?", in.ItemID).Error; err != nil {
			return notFound(err)
		}
		if it.Status != models.ItemAvailable {
			return ErrItemNotAvailable
		}

		var borrower models.User
		if err := tx.First(&borrower, "id = ?", in.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("borrower: %w", ErrNotFound)
			}
			return err
		}

		// 防漂移：item 显示可用但账上仍有未归还记录
		var open int64
		if err := tx.Model(&models.InventoryBooking{}).
			Where("item_id = ? AND status IN ?", it.ID, models.OpenBookingStatuses).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrItemNotAvailable
		}

		now := r.now()
		b := &models.InventoryBooking{
			ItemID:             it.ID,
			UserID:             borrower.ID,
			KitID:              in.KitID,
			MissionID:          in.MissionID,
			LocationText:       strings.TrimSpace(in.Location),
			Notes:              strings.TrimSpace(in.Notes),
			Status:             models.BookingActive,
			CreatedByID:        in.ActorID,
			ExpectedReturnDate: in.ExpectedReturn,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.Create(b).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.InventoryItem{}).
			Where("id = ?", it.ID).
			Updates(map[string]any{
				"status":            models.ItemBooked,
				"booked_by_user_id": borrower.ID,
				"booked_by_name":    borrower.DisplayName,
				"booked_by_phone":   borrower.Phone,
				"booked_at":         now,
				"expected_return":   in.ExpectedReturn,
				"updated_at":        now,
			}).Error; err != nil {
			return err
		}
		booking = b
		return nil
	})
	return booking, err
}

type ReturnBookingInput struct {
	BookingID string
	ActorID   string
	Notes     string
}

// ReturnBooking 归还：锁住 booking → 计算实际时长 → 标记 returned → 释放 item
func (r *Repo) ReturnBooking(ctx context.Context, in ReturnBookingInput) (*models.InventoryBooking, error) {
	var b models.InventoryBooking
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&b, "id = ?", in.BookingID).Error; err != nil {
			return notFound(err)
		}
		if !b.IsOpen() {
			return ErrBookingNotActive
		}

		now := r.now()
		hours := inventory.ElapsedHours(b.CreatedAt, now)
		actor := in.ActorID
		b.Status = models.BookingReturned
		b.ReturnedAt = &now
		b.ReturnedBy = &actor
		b.ReturnNotes = strings.TrimSpace(in.Notes)
		b.ActualHours = decimal.NullDecimal{Decimal: hours, Valid: true}
		b.UpdatedAt = now

		if err := tx.Model(&models.InventoryBooking{}).
			Where("id = ?", b.ID).
			Updates(map[string]any{
				"status":       b.Status,
				"returned_at":  now,
				"returned_by":  actor,
				"return_notes": b.ReturnNotes,
				"actual_hours": b.ActualHours,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		return releaseItem(tx, b.ItemID, models.ItemAvailable, now)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// MarkBookingLost closes an open booking as lost; the item is flagged damaged
// so it cannot be booked until someone inspects it.
func (r *Repo) MarkBookingLost(ctx context.Context, bookingID, actorID, notes string) (*models.InventoryBooking, error) {
	var b models.InventoryBooking
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&b, "id = ?", bookingID).Error; err != nil {
			return notFound(err)
		}
		if !b.IsOpen() {
			return ErrBookingNotActive
		}
		now := r.now()
		b.Status = models.BookingLost
		b.ReturnNotes = strings.TrimSpace(notes)
		if err := tx.Model(&models.InventoryBooking{}).
			Where("id = ?", b.ID).
			Updates(map[string]any{
				"status":       models.BookingLost,
				"returned_by":  actorID,
				"return_notes": b.ReturnNotes,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		return releaseItem(tx, b.ItemID, models.ItemDamaged, now)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// releaseItem clears the booker columns. The status only changes when the
// item is still booked, so an item moved to maintenance meanwhile stays there.
func releaseItem(tx *gorm.DB, itemID, status string, now time.Time) error {
	if err := tx.Model(&models.InventoryItem{}).
		Where("id = ? AND status = ?", itemID, models.ItemBooked).
		Update("status", status).Error; err != nil {
		return err
	}
	return tx.Model(&models.InventoryItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"booked_by_user_id": nil,
			"booked_by_name":    nil,
			"booked_by_phone":   nil,
			"booked_at":         nil,
			"expected_return":   nil,
			"updated_at":        now,
		}).Error
}

func (r *Repo) FindBookingByID(ctx context.Context, id string) (*models.InventoryBooking, error) {
	var b models.InventoryBooking
	if err := r.DB.WithContext(ctx).Preload("Item").Preload("User").First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *Repo) OpenBookingForItem(ctx context.Context, itemID string) (*models.InventoryBooking, error) {
	var b models.InventoryBooking
	if err := r.DB.WithContext(ctx).
		Where("item_id = ? AND status IN ?", itemID, models.OpenBookingStatuses).
		Order("created_at DESC").
		First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

type BookingsQuery struct {
	Status        string // "", active, overdue, returned, lost, open
	UserID        string
	ItemID        string
	Search        string
	DepartmentIDs []string // nil = no restriction
	Page          int
	PerPage       int
}

type BookingRow struct {
	models.InventoryBooking
	Timeliness inventory.OverdueStatus `json:"timeliness,omitempty"`
}

type PagedBookings struct {
	Total    int64        `json:"total"`
	Bookings []BookingRow `json:"bookings"`
}

func (r *Repo) ListBookings(ctx context.Context, q BookingsQuery) (*PagedBookings, error) {
	q.Page, q.PerPage = paginate(q.Page, q.PerPage, 200)

	tx := r.DB.WithContext(ctx).Model(&models.InventoryBooking{}).
		Joins("JOIN " + models.ItemTable + " i ON i.id = " + models.BookingTable + ".item_id")
	switch q.Status {
	case "":
	case "open":
		tx = tx.Where(models.BookingTable+".status IN ?", models.OpenBookingStatuses)
	default:
		tx = tx.Where(models.BookingTable+".status = ?", q.Status)
	}
	if q.UserID != "" {
		tx = tx.Where(models.BookingTable+".user_id = ?", q.UserID)
	}
	if q.ItemID != "" {
		tx = tx.Where(models.BookingTable+".item_id = ?", q.ItemID)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		pat := "%" + strings.ToLower(s) + "%"
		tx = tx.Where("LOWER(i.name) LIKE ? OR LOWER(i.barcode) LIKE ?", pat, pat)
	}
	if q.DepartmentIDs != nil {
		tx = tx.Where("i.department_id IS NULL OR i.department_id IN ?", q.DepartmentIDs)
	}
	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	var bs []models.InventoryBooking
	if err := tx.Preload("Item").Preload("User").
		Order(models.BookingTable + ".created_at DESC").
		Offset((q.Page - 1) * q.PerPage).
		Limit(q.PerPage).
		Find(&bs).Error; err != nil {
		return nil, err
	}

	now := r.now()
	rows := make([]BookingRow, 0, len(bs))
	for _, b := range bs {
		row := BookingRow{InventoryBooking: b}
		if b.IsOpen() {
			row.Timeliness = inventory.Classify(b.CreatedAt, b.ExpectedReturnDate, now)
		}
		rows = append(rows, row)
	}
	return &PagedBookings{Total: total, Bookings: rows}, nil
}

// RefreshOverdue flags active bookings whose expected return date has passed.
func (r *Repo) RefreshOverdue(ctx context.Context) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.InventoryBooking{}).
		Where("status = ? AND expected_return_date IS NOT NULL AND expected_return_date < ?", models.BookingActive, r.now()).
		Update("status", models.BookingOverdue)
	return res.RowsAffected, res.Error
}

type ConsistencyIssue struct {
	ItemID       string `json:"itemId"`
	Barcode      string `json:"barcode"`
	Status       string `json:"status"`
	OpenBookings int64  `json:"openBookings"`
}

// CheckItemConsistency lists items whose status disagrees with the ledger:
// booked iff exactly one open booking.
func (r *Repo) CheckItemConsistency(ctx context.Context) ([]ConsistencyIssue, error) {
	var rows []ConsistencyIssue
	err := r.DB.WithContext(ctx).
		Table(models.ItemTable+" i").
		Select("i.id AS item_id, i.barcode, i.status, COUNT(b.id) AS open_bookings").
		Joins("LEFT JOIN "+models.BookingTable+" b ON b.item_id = i.id AND b.status IN ?", models.OpenBookingStatuses).
		Group("i.id, i.barcode, i.status").
		Having("(i.status = ? AND COUNT(b.id) <> 1) OR (i.status <> ? AND COUNT(b.id) > 0)", models.ItemBooked, models.ItemBooked).
		Order("i.barcode").
		Scan(&rows).Error
	return rows, err
}

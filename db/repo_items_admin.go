// db/repo_items_admin.go
package db

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteerops/inventory"
	"volunteerops/models"
)

// CreateItem 新建物品；条码重复时提前拒绝
func (r *Repo) CreateItem(ctx context.Context, it *models.InventoryItem) error {
	it.Barcode = strings.TrimSpace(it.Barcode)
	it.Name = strings.TrimSpace(it.Name)
	if it.Barcode == "" || it.Name == "" {
		return ErrInvalidInput
	}
	if it.Status == "" {
		it.Status = models.ItemAvailable
	}
	// booked 只能通过借出流程产生
	if !inventory.ValidItemStatus(it.Status) || it.Status == models.ItemBooked {
		return ErrInvalidInput
	}
	if it.Quantity <= 0 {
		it.Quantity = 1
	}
	if err := r.ensureBarcodeFree(ctx, it.Barcode, ""); err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Create(it).Error
}

func (r *Repo) ensureBarcodeFree(ctx context.Context, barcode, exceptID string) error {
	q := r.DB.WithContext(ctx).Model(&models.InventoryItem{}).Where("barcode = ?", barcode)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrDuplicate
	}
	return nil
}

type UpdateItemInput struct {
	ID           string
	Barcode      string
	Name         string
	Description  string
	Category     string
	DepartmentID *string
	Location     string
	Quantity     int
	Status       string
}

// UpdateItem edits the registry fields. Moving an item in or out of "booked"
// is reserved to the booking workflow.
func (r *Repo) UpdateItem(ctx context.Context, in UpdateItemInput) (*models.InventoryItem, error) {
	it, err := r.FindItemByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	in.Barcode, in.Name = strings.TrimSpace(in.Barcode), strings.TrimSpace(in.Name)
	if in.Barcode == "" || in.Name == "" || !inventory.ValidItemStatus(in.Status) {
		return nil, ErrInvalidInput
	}
	if (in.Status == models.ItemBooked) != (it.Status == models.ItemBooked) {
		return nil, ErrItemBooked
	}
	if err := r.ensureBarcodeFree(ctx, in.Barcode, in.ID); err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		in.Quantity = 1
	}
	if err := r.DB.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("id = ?", in.ID).
		Updates(map[string]any{
			"barcode":       in.Barcode,
			"name":          in.Name,
			"description":   in.Description,
			"category":      strings.TrimSpace(in.Category),
			"department_id": in.DepartmentID,
			"location":      in.Location,
			"quantity":      in.Quantity,
			"status":        in.Status,
			"updated_at":    r.now(),
		}).Error; err != nil {
		return nil, err
	}
	return r.FindItemByID(ctx, in.ID)
}

// DeleteItem removes an item that was never booked or noted; bookings are never deleted.
// Kit memberships go with it.
func (r *Repo) DeleteItem(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var it models.InventoryItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&it, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if it.Status == models.ItemBooked {
			return ErrItemBooked
		}
		for _, m := range []any{&models.InventoryBooking{}, &models.InventoryNote{}} {
			var n int64
			if err := tx.Model(m).Where("item_id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return ErrItemHasHistory
			}
		}
		if err := tx.Where("item_id = ?", id).Delete(&models.InventoryKitItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&it).Error
	})
}

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.InventoryItem, error) {
	var it models.InventoryItem
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

func (r *Repo) FindItemByBarcode(ctx context.Context, barcode string) (*models.InventoryItem, error) {
	var it models.InventoryItem
	if err := r.DB.WithContext(ctx).First(&it, "barcode = ?", strings.TrimSpace(barcode)).Error; err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

type ItemsQuery struct {
	Search        string // 模糊搜索：barcode/name
	Status        string
	Category      string
	DepartmentID  string
	DepartmentIDs []string // 访问范围；nil = 不限
	Page          int
	PerPage       int
}

type PagedItems struct {
	Total int64                  `json:"total"`
	Items []models.InventoryItem `json:"items"`
}

func (r *Repo) ListItems(ctx context.Context, q ItemsQuery) (*PagedItems, error) {
	q.Page, q.PerPage = paginate(q.Page, q.PerPage, 200)

	tx := r.DB.WithContext(ctx).Model(&models.InventoryItem{})
	if s := strings.TrimSpace(q.Search); s != "" {
		pat := "%" + strings.ToLower(s) + "%"
		tx = tx.Where("LOWER(barcode) LIKE ? OR LOWER(name) LIKE ?", pat, pat)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Category != "" {
		tx = tx.Where("category = ?", q.Category)
	}
	if q.DepartmentID != "" {
		tx = tx.Where("department_id = ?", q.DepartmentID)
	}
	if q.DepartmentIDs != nil {
		tx = tx.Where("department_id IS NULL OR department_id IN ?", q.DepartmentIDs)
	}
	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.InventoryItem
	if err := tx.Order("name, barcode").
		Offset((q.Page - 1) * q.PerPage).
		Limit(q.PerPage).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return &PagedItems{Total: total, Items: items}, nil
}

func (r *Repo) ListCategories(ctx context.Context) ([]string, error) {
	var cs []string
	err := r.DB.WithContext(ctx).Model(&models.InventoryItem{}).
		Where("category <> ''").
		Distinct().
		Order("category").
		Pluck("category", &cs).Error
	return cs, err
}

type InventoryStats struct {
	Total       int64 `json:"total"`
	Available   int64 `json:"available"`
	Booked      int64 `json:"booked"`
	Maintenance int64 `json:"maintenance"`
	Damaged     int64 `json:"damaged"`
	Overdue     int64 `json:"overdue"`
}

func (r *Repo) InventoryStats(ctx context.Context) (*InventoryStats, error) {
	var rows []struct {
		Status string
		N      int64
	}
	if err := r.DB.WithContext(ctx).Model(&models.InventoryItem{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	s := &InventoryStats{}
	for _, row := range rows {
		s.Total += row.N
		switch row.Status {
		case models.ItemAvailable:
			s.Available = row.N
		case models.ItemBooked:
			s.Booked = row.N
		case models.ItemMaintenance:
			s.Maintenance = row.N
		case models.ItemDamaged:
			s.Damaged = row.N
		}
	}
	if err := r.DB.WithContext(ctx).Model(&models.InventoryBooking{}).
		Where("status = ?", models.BookingOverdue).
		Count(&s.Overdue).Error; err != nil {
		return nil, err
	}
	return s, nil
}

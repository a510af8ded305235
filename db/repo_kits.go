package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"volunteerops/models"
)

func (r *Repo) CreateKit(ctx context.Context, k *models.InventoryKit) error {
	k.Name = strings.TrimSpace(k.Name)
	if k.Name == "" {
		return ErrInvalidInput
	}
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.InventoryKit{}).Where("name = ?", k.Name).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrDuplicate
	}
	return r.DB.WithContext(ctx).Omit("Members").Create(k).Error
}

func (r *Repo) GetKit(ctx context.Context, id string) (*models.InventoryKit, error) {
	var k models.InventoryKit
	if err := r.DB.WithContext(ctx).
		Preload("Members.Item").
		First(&k, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &k, nil
}

// ListKits: departmentIDs limits the result like ItemsQuery.DepartmentIDs; nil = all.
func (r *Repo) ListKits(ctx context.Context, departmentIDs []string) ([]models.InventoryKit, error) {
	tx := r.DB.WithContext(ctx).Preload("Members.Item")
	if departmentIDs != nil {
		tx = tx.Where("department_id IS NULL OR department_id IN ?", departmentIDs)
	}
	var ks []models.InventoryKit
	err := tx.Order("name").Find(&ks).Error
	return ks, err
}

// inScope: items without a department are shared; nil scope = everything.
func inScope(departmentID *string, scope []string) bool {
	if departmentID == nil || scope == nil {
		return true
	}
	return lo.Contains(scope, *departmentID)
}

func (r *Repo) AddKitMember(ctx context.Context, kitID, itemID string) error {
	if _, err := r.FindItemByID(ctx, itemID); err != nil {
		return err
	}
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.InventoryKit{}).Where("id = ?", kitID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := r.DB.WithContext(ctx).Model(&models.InventoryKitItem{}).
		Where("kit_id = ? AND item_id = ?", kitID, itemID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrDuplicate
	}
	return r.DB.WithContext(ctx).Create(&models.InventoryKitItem{KitID: kitID, ItemID: itemID}).Error
}

func (r *Repo) RemoveKitMember(ctx context.Context, kitID, itemID string) error {
	res := r.DB.WithContext(ctx).
		Where("kit_id = ? AND item_id = ?", kitID, itemID).
		Delete(&models.InventoryKitItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteKit refuses while any member is still booked through this kit.
func (r *Repo) DeleteKit(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.InventoryBooking{}).
			Where("kit_id = ? AND status IN ?", id, models.OpenBookingStatuses).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrKitInUse
		}
		if err := tx.Where("kit_id = ?", id).Delete(&models.InventoryKitItem{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.InventoryKit{ID: id})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// KitResult lists the barcodes each bulk operation touched.
type KitResult struct {
	Processed []string `json:"processed"`
	Failed    []string `json:"failed"`
}

type BookKitInput struct {
	KitID          string
	UserID         string
	ActorID        string
	MissionID      *string
	Location       string
	Notes          string
	ExpectedReturn *time.Time
	DepartmentIDs  []string // 操作者可访问的部门；nil = 不限
}

// BookKit books every available member with one BookItem call each.
// The loop is not atomic: items booked before a failure stay booked and the
// per-item errors are returned together. Members outside DepartmentIDs fail
// with ErrForbiddenDepartment.
func (r *Repo) BookKit(ctx context.Context, in BookKitInput) (*KitResult, error) {
	k, err := r.GetKit(ctx, in.KitID)
	if err != nil {
		return nil, err
	}
	members := lo.Filter(k.Members, func(m models.InventoryKitItem, _ int) bool {
		return m.Item != nil && m.Item.Status == models.ItemAvailable
	})
	if len(members) == 0 {
		return nil, ErrNothingToBook
	}

	res := &KitResult{}
	var errs *multierror.Error
	for _, m := range members {
		if !inScope(m.Item.DepartmentID, in.DepartmentIDs) {
			res.Failed = append(res.Failed, m.Item.Barcode)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", m.Item.Barcode, ErrForbiddenDepartment))
			continue
		}
		_, err := r.BookItem(ctx, BookItemInput{
			ItemID:         m.ItemID,
			UserID:         in.UserID,
			ActorID:        in.ActorID,
			KitID:          &k.ID,
			MissionID:      in.MissionID,
			Location:       in.Location,
			Notes:          in.Notes,
			ExpectedReturn: in.ExpectedReturn,
		})
		if err != nil {
			res.Failed = append(res.Failed, m.Item.Barcode)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", m.Item.Barcode, err))
			continue
		}
		res.Processed = append(res.Processed, m.Item.Barcode)
	}
	return res, errs.ErrorOrNil()
}

type ReturnKitInput struct {
	KitID         string
	ActorID       string
	Notes         string
	DepartmentIDs []string
}

// ReturnKit returns the open booking of every booked member, one at a time.
func (r *Repo) ReturnKit(ctx context.Context, in ReturnKitInput) (*KitResult, error) {
	k, err := r.GetKit(ctx, in.KitID)
	if err != nil {
		return nil, err
	}
	members := lo.Filter(k.Members, func(m models.InventoryKitItem, _ int) bool {
		return m.Item != nil && m.Item.Status == models.ItemBooked
	})
	if len(members) == 0 {
		return nil, ErrNothingToReturn
	}

	res := &KitResult{}
	var errs *multierror.Error
	for _, m := range members {
		if !inScope(m.Item.DepartmentID, in.DepartmentIDs) {
			res.Failed = append(res.Failed, m.Item.Barcode)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", m.Item.Barcode, ErrForbiddenDepartment))
			continue
		}
		b, err := r.OpenBookingForItem(ctx, m.ItemID)
		if err == nil {
			_, err = r.ReturnBooking(ctx, ReturnBookingInput{BookingID: b.ID, ActorID: in.ActorID, Notes: in.Notes})
		}
		if err != nil {
			res.Failed = append(res.Failed, m.Item.Barcode)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", m.Item.Barcode, err))
			continue
		}
		res.Processed = append(res.Processed, m.Item.Barcode)
	}
	return res, errs.ErrorOrNil()
}

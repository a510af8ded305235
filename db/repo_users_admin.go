// db/repo_users_admin.go
package db

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"volunteerops/models"
)

func (r *Repo) SetUserRole(ctx context.Context, userID, role string) error {
	if !models.ValidRole(role) {
		return ErrInvalidInput
	}
	res := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) SetUserDepartment(ctx context.Context, userID string, departmentID *string) error {
	return r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("department_id", departmentID).Error
}

func (r *Repo) SetUserActive(ctx context.Context, userID string, active bool) error {
	return r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("is_active", active).Error
}

func (r *Repo) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ?", models.RoleSystemAdmin).
		Count(&n).Error
	return n, err
}

// Departments

func (r *Repo) CreateDepartment(ctx context.Context, d *models.Department) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return ErrInvalidInput
	}
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Department{}).Where("LOWER(name) = ?", strings.ToLower(d.Name)).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrDuplicate
	}
	return r.DB.WithContext(ctx).Create(d).Error
}

func (r *Repo) ListDepartments(ctx context.Context) ([]models.Department, error) {
	var ds []models.Department
	err := r.DB.WithContext(ctx).Order("name").Find(&ds).Error
	return ds, err
}

// DeleteDepartment refuses to delete a department that still has users.
func (r *Repo) DeleteDepartment(ctx context.Context, id string) error {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Where("department_id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrDepartmentInUse
	}
	res := r.DB.WithContext(ctx).Delete(&models.Department{ID: id})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return r.DB.WithContext(ctx).Where("department_id = ?", id).Delete(&models.InventoryDepartmentAccess{}).Error
}

// Department access

func (r *Repo) GrantDepartmentAccess(ctx context.Context, userID, departmentID, grantedBy string) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.InventoryDepartmentAccess{UserID: userID, DepartmentID: departmentID, GrantedBy: grantedBy}).Error
}

func (r *Repo) RevokeDepartmentAccess(ctx context.Context, userID, departmentID string) error {
	return r.DB.WithContext(ctx).
		Where("user_id = ? AND department_id = ?", userID, departmentID).
		Delete(&models.InventoryDepartmentAccess{}).Error
}

func (r *Repo) ListDepartmentAccess(ctx context.Context) ([]models.InventoryDepartmentAccess, error) {
	var as []models.InventoryDepartmentAccess
	err := r.DB.WithContext(ctx).Order("user_id, department_id").Find(&as).Error
	return as, err
}

// AccessibleDepartments returns the departments whose inventory u may manage.
// all is true for system admins, who are not restricted.
func (r *Repo) AccessibleDepartments(ctx context.Context, u *models.User) (ids []string, all bool, err error) {
	if u.IsAdmin() {
		return nil, true, nil
	}
	if err := r.DB.WithContext(ctx).
		Model(&models.InventoryDepartmentAccess{}).
		Where("user_id = ?", u.ID).
		Pluck("department_id", &ids).Error; err != nil {
		return nil, false, err
	}
	if u.DepartmentID != nil {
		ids = append(ids, *u.DepartmentID)
	}
	return ids, false, nil
}

// CanAccessItem: items without a department are shared by everyone.
func (r *Repo) CanAccessItem(ctx context.Context, u *models.User, it *models.InventoryItem) (bool, error) {
	if it.DepartmentID == nil {
		return true, nil
	}
	ids, all, err := r.AccessibleDepartments(ctx, u)
	if err != nil || all {
		return all, err
	}
	for _, id := range ids {
		if id == *it.DepartmentID {
			return true, nil
		}
	}
	return false, nil
}

package db

import (
	"context"
	"strings"
	"time"

	"volunteerops/models"
)

func (r *Repo) CreateInvite(ctx context.Context, email, token, role string, expiresAt time.Time, createdBy string) (*models.Invite, error) {
	if role == "" {
		role = models.RoleVolunteer
	}
	if !models.ValidRole(role) {
		return nil, ErrInvalidInput
	}
	inv := &models.Invite{
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Token:     token,
		Role:      role,
		ExpiresAt: expiresAt,
		CreatedBy: createdBy,
	}
	return inv, r.DB.WithContext(ctx).Create(inv).Error
}

func (r *Repo) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	var inv models.Invite
	if err := r.DB.WithContext(ctx).Where("token = ?", token).First(&inv).Error; err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

func (r *Repo) MarkInviteUsed(ctx context.Context, token string) error {
	res := r.DB.WithContext(ctx).Model(&models.Invite{}).
		Where("token = ? AND used_at IS NULL", token).
		Update("used_at", r.now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInviteAlreadyUsed
	}
	return nil
}

package db

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"volunteerops/models"
)

func (r *Repo) LogEmail(ctx context.Context, l *models.EmailLog) error {
	if l.Attempts == 0 {
		l.Attempts = 1
	}
	return r.DB.WithContext(ctx).Create(l).Error
}

func (r *Repo) FindEmailLog(ctx context.Context, id string) (*models.EmailLog, error) {
	var l models.EmailLog
	if err := r.DB.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// MarkEmailRetried stores the outcome of a manual resend on the original row.
func (r *Repo) MarkEmailRetried(ctx context.Context, id string, sendErr error) error {
	upd := map[string]any{
		"attempts":   gorm.Expr("attempts + 1"),
		"updated_at": r.now(),
		"status":     models.EmailSent,
		"error":      "",
	}
	if sendErr != nil {
		upd["status"] = models.EmailFailed
		upd["error"] = sendErr.Error()
	}
	return r.DB.WithContext(ctx).Model(&models.EmailLog{}).Where("id = ?", id).Updates(upd).Error
}

type EmailLogQuery struct {
	Status  string
	Search  string
	Page    int
	PerPage int
}

type PagedEmailLogs struct {
	Total int64             `json:"total"`
	Logs  []models.EmailLog `json:"logs"`
}

func (r *Repo) ListEmailLogs(ctx context.Context, q EmailLogQuery) (*PagedEmailLogs, error) {
	q.Page, q.PerPage = paginate(q.Page, q.PerPage, 200)
	tx := r.DB.WithContext(ctx).Model(&models.EmailLog{})
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		tx = tx.Where("LOWER(recipient) LIKE ? OR LOWER(subject) LIKE ?", like, like)
	}
	tx = tx.Session(&gorm.Session{})

	out := &PagedEmailLogs{}
	if err := tx.Count(&out.Total).Error; err != nil {
		return nil, err
	}
	err := tx.Order("created_at DESC").
		Offset((q.Page - 1) * q.PerPage).
		Limit(q.PerPage).
		Find(&out.Logs).Error
	return out, err
}

func (r *Repo) CreateNewsletter(ctx context.Context, n *models.Newsletter) error {
	n.Subject = strings.TrimSpace(n.Subject)
	if n.Subject == "" || strings.TrimSpace(n.Body) == "" {
		return ErrInvalidInput
	}
	n.Status = models.NewsletterDraft
	return r.DB.WithContext(ctx).Create(n).Error
}

func (r *Repo) FindNewsletter(ctx context.Context, id string) (*models.Newsletter, error) {
	var n models.Newsletter
	if err := r.DB.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (r *Repo) ListNewsletters(ctx context.Context) ([]models.Newsletter, error) {
	var ns []models.Newsletter
	err := r.DB.WithContext(ctx).Order("created_at DESC").Find(&ns).Error
	return ns, err
}

// ClaimNewsletter flips a draft to sending. Only one sender wins.
func (r *Repo) ClaimNewsletter(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Model(&models.Newsletter{}).
		Where("id = ? AND status = ?", id, models.NewsletterDraft).
		Updates(map[string]any{"status": models.NewsletterSending, "updated_at": r.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindNewsletter(ctx, id); err != nil {
			return err
		}
		return ErrInvalidState
	}
	return nil
}

// ReleaseNewsletter puts a claimed newsletter back to draft when nothing was sent.
func (r *Repo) ReleaseNewsletter(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Model(&models.Newsletter{}).
		Where("id = ? AND status = ?", id, models.NewsletterSending).
		Updates(map[string]any{"status": models.NewsletterDraft, "updated_at": r.now()}).Error
}

func (r *Repo) FinishNewsletter(ctx context.Context, id string, sent, failed int) error {
	now := r.now()
	return r.DB.WithContext(ctx).Model(&models.Newsletter{}).Where("id = ?", id).Updates(map[string]any{
		"status":       models.NewsletterSent,
		"sent_count":   sent,
		"failed_count": failed,
		"sent_at":      now,
		"updated_at":   now,
	}).Error
}

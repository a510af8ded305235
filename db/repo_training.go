package db

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteerops/models"
	"volunteerops/training"
)

// ---------- 证书 ----------

func (r *Repo) CreateCertificateType(ctx context.Context, t *models.CertificateType) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" || t.ValidityMonths < 0 {
		return ErrInvalidInput
	}
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.CertificateType{}).Where("name = ?", t.Name).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrDuplicate
	}
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *Repo) ListCertificateTypes(ctx context.Context) ([]models.CertificateType, error) {
	var ts []models.CertificateType
	err := r.DB.WithContext(ctx).Order("name").Find(&ts).Error
	return ts, err
}

type IssueCertificateInput struct {
	UserID        string
	TypeID        string
	ActorID       *string
	IssuedAt      *time.Time // nil = now
	ExamAttemptID *string
	Notes         string
}

func (r *Repo) IssueCertificate(ctx context.Context, in IssueCertificateInput) (*models.VolunteerCertificate, error) {
	var c *models.VolunteerCertificate
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = r.issueCertificate(tx, in)
		return err
	})
	return c, err
}

func (r *Repo) issueCertificate(tx *gorm.DB, in IssueCertificateInput) (*models.VolunteerCertificate, error) {
	var t models.CertificateType
	if err := tx.First(&t, "id = ?", in.TypeID).Error; err != nil {
		return nil, notFound(err)
	}
	var u models.User
	if err := tx.First(&u, "id = ?", in.UserID).Error; err != nil {
		return nil, notFound(err)
	}
	issued := r.now()
	if in.IssuedAt != nil {
		issued = *in.IssuedAt
	}
	c := &models.VolunteerCertificate{
		UserID:            u.ID,
		CertificateTypeID: t.ID,
		IssuedAt:          issued,
		ExpiresAt:         training.ExpiresAt(&t, issued),
		IssuedBy:          in.ActorID,
		ExamAttemptID:     in.ExamAttemptID,
		Notes:             strings.TrimSpace(in.Notes),
	}
	if err := tx.Omit(clause.Associations).Create(c).Error; err != nil {
		return nil, err
	}
	c.CertificateType = &t
	return c, nil
}

func (r *Repo) RevokeCertificate(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.VolunteerCertificate
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if c.RevokedAt != nil {
			return ErrInvalidState
		}
		return tx.Model(&models.VolunteerCertificate{}).Where("id = ?", id).Update("revoked_at", r.now()).Error
	})
}

type CertificatesQuery struct {
	UserID         string
	TypeID         string
	ExpiringWithin int // 天；>0 时只列出此期间内到期的有效证书
	IncludeRevoked bool
}

func (r *Repo) ListCertificates(ctx context.Context, q CertificatesQuery) ([]models.VolunteerCertificate, error) {
	tx := r.DB.WithContext(ctx).Preload("CertificateType").Preload("User")
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.TypeID != "" {
		tx = tx.Where("certificate_type_id = ?", q.TypeID)
	}
	if !q.IncludeRevoked || q.ExpiringWithin > 0 {
		tx = tx.Where("revoked_at IS NULL")
	}
	if q.ExpiringWithin > 0 {
		now := r.now()
		tx = tx.Where("expires_at > ? AND expires_at <= ?", now, now.AddDate(0, 0, q.ExpiringWithin))
	}
	var cs []models.VolunteerCertificate
	err := tx.Order("issued_at DESC").Find(&cs).Error
	return cs, err
}

// hasValidCertificate: an unrevoked certificate of the type that has not expired at now.
func hasValidCertificate(tx *gorm.DB, userID, typeID string, now time.Time) (bool, error) {
	var n int64
	err := tx.Model(&models.VolunteerCertificate{}).
		Where("user_id = ? AND certificate_type_id = ? AND revoked_at IS NULL", userID, typeID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Count(&n).Error
	return n > 0, err
}

// ---------- 考试 / 测验 ----------

func (r *Repo) CreateExam(ctx context.Context, e *models.Exam) error {
	e.Title = strings.TrimSpace(e.Title)
	if e.Kind == "" {
		e.Kind = models.ExamKindExam
	}
	if e.Title == "" || !lo.Contains(models.ExamKinds, e.Kind) || e.PassPercent < 1 || e.PassPercent > 100 {
		return ErrInvalidInput
	}
	if e.CertificateTypeID != nil {
		if e.Kind != models.ExamKindExam {
			return ErrInvalidInput
		}
		var n int64
		if err := r.DB.WithContext(ctx).Model(&models.CertificateType{}).Where("id = ?", *e.CertificateTypeID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(e).Error
}

func (r *Repo) GetExam(ctx context.Context, id string) (*models.Exam, error) {
	var e models.Exam
	err := r.DB.WithContext(ctx).
		Preload("Questions", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		Preload("CertificateType").
		First(&e, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *Repo) ListExams(ctx context.Context, publishedOnly bool) ([]models.Exam, error) {
	tx := r.DB.WithContext(ctx).Preload("Questions").Preload("CertificateType")
	if publishedOnly {
		tx = tx.Where("published = ?", true)
	}
	var es []models.Exam
	err := tx.Order("kind, title").Find(&es).Error
	return es, err
}

// AddExamQuestion appends a question. Published exams are frozen so that
// earlier attempts stay comparable.
func (r *Repo) AddExamQuestion(ctx context.Context, q *models.ExamQuestion) error {
	q.Prompt = strings.TrimSpace(q.Prompt)
	if q.Prompt == "" || len(q.Choices()) < 2 || q.Correct < 0 || q.Correct >= len(q.Choices()) {
		return ErrInvalidInput
	}
	q.Options = strings.Join(q.Choices(), "\n")
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var e models.Exam
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&e, "id = ?", q.ExamID).Error; err != nil {
			return notFound(err)
		}
		if e.Published {
			return ErrInvalidState
		}
		var n int64
		if err := tx.Model(&models.ExamQuestion{}).Where("exam_id = ?", e.ID).Count(&n).Error; err != nil {
			return err
		}
		q.Position = int(n) + 1
		return tx.Create(q).Error
	})
}

// SetExamPublished: an exam without questions cannot be published.
func (r *Repo) SetExamPublished(ctx context.Context, id string, published bool) error {
	e, err := r.GetExam(ctx, id)
	if err != nil {
		return err
	}
	if published && len(e.Questions) == 0 {
		return ErrInvalidState
	}
	return r.DB.WithContext(ctx).Model(&models.Exam{}).Where("id = ?", id).
		Updates(map[string]any{"published": published, "updated_at": r.now()}).Error
}

// SubmitExamAttempt grades and stores one attempt. Passing an exam that is
// linked to a certificate type issues it, unless the volunteer already holds
// a valid one. The returned certificate is nil when nothing was issued.
func (r *Repo) SubmitExamAttempt(ctx context.Context, examID, userID string, answers map[string]int) (*models.ExamAttempt, *models.VolunteerCertificate, error) {
	e, err := r.GetExam(ctx, examID)
	if err != nil {
		return nil, nil, err
	}
	if !e.Published || len(e.Questions) == 0 {
		return nil, nil, ErrInvalidState
	}
	res := training.Score(e.Questions, answers, e.PassPercent)
	raw, err := sonic.MarshalString(answers)
	if err != nil {
		return nil, nil, err
	}
	a := &models.ExamAttempt{
		ExamID:    e.ID,
		UserID:    userID,
		Correct:   res.Correct,
		Total:     res.Total,
		Percent:   res.Percent,
		Passed:    res.Passed,
		Answers:   raw,
		CreatedAt: r.now(),
	}

	var cert *models.VolunteerCertificate
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(a).Error; err != nil {
			return err
		}
		if !a.Passed || e.CertificateTypeID == nil {
			return nil
		}
		held, err := hasValidCertificate(tx, userID, *e.CertificateTypeID, a.CreatedAt)
		if err != nil || held {
			return err
		}
		cert, err = r.issueCertificate(tx, IssueCertificateInput{
			UserID:        userID,
			TypeID:        *e.CertificateTypeID,
			IssuedAt:      &a.CreatedAt,
			ExamAttemptID: &a.ID,
			Notes:         e.Title,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return a, cert, nil
}

type AttemptsQuery struct {
	ExamID string
	UserID string
	Limit  int
}

func (r *Repo) ListAttempts(ctx context.Context, q AttemptsQuery) ([]models.ExamAttempt, error) {
	tx := r.DB.WithContext(ctx).Preload("Exam").Preload("User")
	if q.ExamID != "" {
		tx = tx.Where("exam_id = ?", q.ExamID)
	}
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var as []models.ExamAttempt
	err := tx.Order("created_at DESC").Find(&as).Error
	return as, err
}

// ---------- 培训排行榜 ----------

type TrainingEntry struct {
	Rank         int    `json:"rank"`
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	DisplayName  string `json:"displayName"`
	ExamsPassed  int    `json:"examsPassed"`
	Quizzes      int    `json:"quizzes"`
	Certificates int    `json:"certificates"`
	Points       int    `json:"points"`
}

// 三个来源合并为一张表：考试、测验、有效证书
const trainingSourcesSQL = `
SELECT a.user_id AS user_id, e.kind AS source, a.exam_id AS ref_id, a.percent AS percent, a.passed AS passed
  FROM exam_attempts a JOIN exams e ON e.id = a.exam_id
 WHERE e.kind = ? AND a.passed = ?
UNION ALL
SELECT a.user_id, e.kind, a.exam_id, a.percent, a.passed
  FROM exam_attempts a JOIN exams e ON e.id = a.exam_id
 WHERE e.kind = ?
UNION ALL
SELECT c.user_id, 'certificate', c.certificate_type_id, 100, c.revoked_at IS NULL
  FROM volunteer_certificates c
 WHERE c.revoked_at IS NULL AND (c.expires_at IS NULL OR c.expires_at > ?)`

// TrainingLeaderboard ranks volunteers by exam, quiz and certificate points.
// Each exam, quiz and certificate type counts once, with the best attempt.
func (r *Repo) TrainingLeaderboard(ctx context.Context, limit int) ([]TrainingEntry, error) {
	type row struct {
		UserID  string
		Source  string
		RefID   string
		Percent int
		Passed  bool
	}
	var rows []row
	if err := r.DB.WithContext(ctx).
		Raw(trainingSourcesSQL, models.ExamKindExam, true, models.ExamKindQuiz, r.now()).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	entries := make([]TrainingEntry, 0)
	for uid, rs := range lo.GroupBy(rows, func(x row) string { return x.UserID }) {
		best := map[string]int{}
		for _, x := range rs {
			key := x.Source + ":" + x.RefID
			if p := training.Points(x.Source, x.Percent, x.Passed); p >= best[key] {
				best[key] = p
			}
		}
		e := TrainingEntry{UserID: uid}
		for key, p := range best {
			switch {
			case strings.HasPrefix(key, models.ExamKindExam+":"):
				e.ExamsPassed++
			case strings.HasPrefix(key, models.ExamKindQuiz+":"):
				e.Quizzes++
			default:
				e.Certificates++
			}
			e.Points += p
		}
		entries = append(entries, e)
	}

	var users []models.User
	if len(entries) > 0 {
		ids := lo.Map(entries, func(e TrainingEntry, _ int) string { return e.UserID })
		if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
			return nil, err
		}
	}
	names := lo.KeyBy(users, func(u models.User) string { return u.ID })

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return lo.Map(entries, func(e TrainingEntry, i int) TrainingEntry {
		e.Rank = i + 1
		if u, ok := names[e.UserID]; ok {
			e.Username, e.DisplayName = u.Username, u.DisplayName
		}
		return e
	}), nil
}

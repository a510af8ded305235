// Package training scores exam attempts and derives certificate and leaderboard values.
package training

import (
	"time"

	"volunteerops/models"
)

// ExpiringWindow is how long before its expiry a certificate shows as expiring.
const ExpiringWindow = 30 * 24 * time.Hour

// Leaderboard points
const (
	CertificatePoints = 25
	// quizzes count half of their best percentage
	quizDivisor = 2
)

type Result struct {
	Correct int  `json:"correct"`
	Total   int  `json:"total"`
	Percent int  `json:"percent"`
	Passed  bool `json:"passed"`
}

// Score grades answers (question ID -> choice index). Unanswered or
// out-of-range answers count as wrong. The pass mark is inclusive.
func Score(questions []models.ExamQuestion, answers map[string]int, passPercent int) Result {
	res := Result{Total: len(questions)}
	for _, q := range questions {
		if a, ok := answers[q.ID]; ok && a == q.Correct {
			res.Correct++
		}
	}
	if res.Total > 0 {
		res.Percent = res.Correct * 100 / res.Total
	}
	res.Passed = res.Total > 0 && res.Percent >= passPercent
	return res
}

// CertificateStatus derives the badge of a certificate at now.
func CertificateStatus(c *models.VolunteerCertificate, now time.Time) string {
	switch {
	case c.RevokedAt != nil:
		return models.CertificateRevoked
	case c.ExpiresAt == nil:
		return models.CertificateValid
	case !now.Before(*c.ExpiresAt):
		return models.CertificateExpired
	case c.ExpiresAt.Sub(now) <= ExpiringWindow:
		return models.CertificateExpiring
	default:
		return models.CertificateValid
	}
}

// ExpiresAt adds the validity of t to issued; zero months never expire.
func ExpiresAt(t *models.CertificateType, issued time.Time) *time.Time {
	if t.ValidityMonths <= 0 {
		return nil
	}
	e := issued.AddDate(0, t.ValidityMonths, 0)
	return &e
}

// Points turns one leaderboard source row into points.
// Passed exams score their percentage, quizzes half of it (pass or not),
// held certificates a flat CertificatePoints.
func Points(source string, percent int, passed bool) int {
	switch source {
	case models.ExamKindExam:
		if passed {
			return percent
		}
		return 0
	case models.ExamKindQuiz:
		return percent / quizDivisor
	case "certificate":
		return CertificatePoints
	}
	return 0
}

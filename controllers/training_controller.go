package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/models"
)

type TrainingController struct{ *MissionsController }

func NewTrainingController(s *Srv) *TrainingController {
	return &TrainingController{MissionsController: NewMissionsController(s)}
}

// GET /certificates?user=&type=&expiring=
func (tc *TrainingController) CertificatesPage(c *gin.Context) {
	ctx := c.Request.Context()
	u := app.CurrentUser(c)
	q := db.CertificatesQuery{
		UserID:         c.Query("user"),
		TypeID:         c.Query("type"),
		ExpiringWithin: queryInt(c, "expiring", 0),
		IncludeRevoked: c.Query("revoked") == "1",
	}
	// 志愿者只能看自己的证书
	leader := models.RoleAtLeast(u.Role, models.RoleShiftLeader)
	if !leader {
		q.UserID = u.ID
	}
	certs, err := tc.Repo.ListCertificates(ctx, q)
	if err != nil {
		tc.renderError(c, err)
		return
	}
	types, err := tc.Repo.ListCertificateTypes(ctx)
	if err != nil {
		tc.renderError(c, err)
		return
	}
	data := gin.H{"Certificates": certs, "Types": types, "Query": q}
	if models.RoleAtLeast(u.Role, models.RoleDepartmentAdmin) {
		users, err := tc.Repo.ListUsers(ctx, "", 1, 100)
		if err != nil {
			tc.renderError(c, err)
			return
		}
		data["Users"] = users.Users
		data["CanManage"] = true
	}
	tc.render(c, "certificates.html", data)
}

// POST /certificates
func (tc *TrainingController) CertificatesAction(c *gin.Context) {
	if !tc.allowed(c, models.RoleDepartmentAdmin, "/certificates") {
		return
	}
	switch c.PostForm("action") {
	case "create_type":
		t := &models.CertificateType{
			Name:           c.PostForm("name"),
			Description:    strings.TrimSpace(c.PostForm("description")),
			ValidityMonths: formInt(c, "validity_months", 0),
		}
		if err := tc.Repo.CreateCertificateType(c.Request.Context(), t); err != nil {
			tc.fail(c, err, "/certificates")
			return
		}
		tc.audit(c, "create_certificate_type", "certificate_type", t.ID, t.Name)
		tc.done(c, "/certificates", "ok.saved")
	case "issue":
		issued, err := parseFormTime(c.PostForm("issued_at"))
		if err != nil {
			tc.fail(c, err, "/certificates")
			return
		}
		actor := app.CurrentUser(c).ID
		cert, err := tc.Repo.IssueCertificate(c.Request.Context(), db.IssueCertificateInput{
			UserID:   c.PostForm("user_id"),
			TypeID:   c.PostForm("type_id"),
			ActorID:  &actor,
			IssuedAt: issued,
			Notes:    c.PostForm("notes"),
		})
		if err != nil {
			tc.fail(c, err, "/certificates")
			return
		}
		tc.audit(c, "issue_certificate", "volunteer_certificate", cert.ID, fmt.Sprintf("user=%s type=%s", cert.UserID, cert.CertificateTypeID))
		tc.done(c, "/certificates", "ok.certificate_issued")
	case "revoke":
		id := c.PostForm("certificate_id")
		if err := tc.Repo.RevokeCertificate(c.Request.Context(), id); err != nil {
			tc.fail(c, err, "/certificates")
			return
		}
		tc.audit(c, "revoke_certificate", "volunteer_certificate", id, "")
		tc.done(c, "/certificates", "ok.saved")
	default:
		tc.fail(c, errUnknownAction, "/certificates")
	}
}

// GET /exams
func (tc *TrainingController) ExamsPage(c *gin.Context) {
	ctx := c.Request.Context()
	u := app.CurrentUser(c)
	manage := models.RoleAtLeast(u.Role, models.RoleDepartmentAdmin)
	exams, err := tc.Repo.ListExams(ctx, !manage)
	if err != nil {
		tc.renderError(c, err)
		return
	}
	mine, err := tc.Repo.ListAttempts(ctx, db.AttemptsQuery{UserID: u.ID, Limit: 50})
	if err != nil {
		tc.renderError(c, err)
		return
	}
	types, _ := tc.Repo.ListCertificateTypes(ctx)
	tc.render(c, "exams.html", gin.H{"Exams": exams, "Attempts": mine, "Types": types, "CanManage": manage})
}

// GET /exams/:id
func (tc *TrainingController) ExamPage(c *gin.Context) {
	ctx := c.Request.Context()
	u := app.CurrentUser(c)
	manage := models.RoleAtLeast(u.Role, models.RoleDepartmentAdmin)
	e, err := tc.Repo.GetExam(ctx, c.Param("id"))
	if err != nil {
		tc.renderError(c, err)
		return
	}
	if !e.Published && !manage {
		tc.renderError(c, db.ErrNotFound)
		return
	}
	data := gin.H{"Exam": e, "CanManage": manage}
	if manage {
		attempts, err := tc.Repo.ListAttempts(ctx, db.AttemptsQuery{ExamID: e.ID, Limit: 200})
		if err != nil {
			tc.renderError(c, err)
			return
		}
		data["Attempts"] = attempts
	}
	tc.render(c, "exam.html", data)
}

// POST /exams
func (tc *TrainingController) ExamsAction(c *gin.Context) {
	switch c.PostForm("action") {
	case "create_exam":
		tc.createExam(c)
	case "add_question":
		tc.addQuestion(c)
	case "publish":
		tc.publish(c, true)
	case "unpublish":
		tc.publish(c, false)
	case "submit":
		tc.submit(c)
	default:
		tc.fail(c, errUnknownAction, "/exams")
	}
}

func examPage(id string) string { return "/exams/" + id }

func (tc *TrainingController) createExam(c *gin.Context) {
	if !tc.allowed(c, models.RoleDepartmentAdmin, "/exams") {
		return
	}
	e := &models.Exam{
		Title:             c.PostForm("title"),
		Description:       strings.TrimSpace(c.PostForm("description")),
		Kind:              c.PostForm("kind"),
		PassPercent:       formInt(c, "pass_percent", 70),
		CertificateTypeID: optional(c.PostForm("certificate_type_id")),
		CreatedBy:         app.CurrentUser(c).ID,
	}
	if err := tc.Repo.CreateExam(c.Request.Context(), e); err != nil {
		tc.fail(c, err, "/exams")
		return
	}
	tc.audit(c, "create_exam", "exam", e.ID, e.Kind+" "+e.Title)
	tc.done(c, examPage(e.ID), "ok.saved")
}

func (tc *TrainingController) addQuestion(c *gin.Context) {
	examID := c.PostForm("exam_id")
	if !tc.allowed(c, models.RoleDepartmentAdmin, examPage(examID)) {
		return
	}
	// 表单里的正确答案从 1 开始
	q := &models.ExamQuestion{
		ExamID:  examID,
		Prompt:  c.PostForm("prompt"),
		Options: c.PostForm("options"),
		Correct: formInt(c, "correct", 0) - 1,
	}
	if err := tc.Repo.AddExamQuestion(c.Request.Context(), q); err != nil {
		tc.fail(c, err, examPage(examID))
		return
	}
	tc.audit(c, "add_question", "exam", examID, fmt.Sprintf("position=%d", q.Position))
	tc.done(c, examPage(examID), "ok.saved")
}

func (tc *TrainingController) publish(c *gin.Context, published bool) {
	examID := c.PostForm("exam_id")
	if !tc.allowed(c, models.RoleDepartmentAdmin, examPage(examID)) {
		return
	}
	if err := tc.Repo.SetExamPublished(c.Request.Context(), examID, published); err != nil {
		tc.fail(c, err, examPage(examID))
		return
	}
	tc.audit(c, "publish_exam", "exam", examID, fmt.Sprintf("published=%t", published))
	tc.done(c, examPage(examID), "ok.saved")
}

// submit reads one "q_<questionID>" radio value per question.
func (tc *TrainingController) submit(c *gin.Context) {
	examID := c.PostForm("exam_id")
	target := examPage(examID)
	answers := map[string]int{}
	if err := c.Request.ParseForm(); err != nil {
		tc.fail(c, db.ErrInvalidInput, target)
		return
	}
	for key, vals := range c.Request.PostForm {
		qid, ok := strings.CutPrefix(key, "q_")
		if !ok || len(vals) == 0 {
			continue
		}
		n, err := strconv.Atoi(vals[0])
		if err != nil {
			tc.fail(c, db.ErrInvalidInput, target)
			return
		}
		answers[qid] = n
	}
	a, cert, err := tc.Repo.SubmitExamAttempt(c.Request.Context(), examID, app.CurrentUser(c).ID, answers)
	if err != nil {
		tc.fail(c, err, target)
		return
	}
	tc.audit(c, "exam_attempt", "exam", examID, fmt.Sprintf("score=%d/%d passed=%t", a.Correct, a.Total, a.Passed))

	lang := app.Lang(c)
	key, kind := "exam.failed", "warning"
	if a.Passed {
		key, kind = "exam.passed", "success"
	}
	tc.flash(c, kind, fmt.Sprintf("%s %d / %d (%d%%)", app.T(lang, key), a.Correct, a.Total, a.Percent))
	if cert != nil {
		tc.flash(c, "success", app.T(lang, "ok.certificate_issued"))
	}
	c.Redirect(http.StatusSeeOther, "/exams")
}

// GET /leaderboard/training
func (tc *TrainingController) TrainingLeaderboardPage(c *gin.Context) {
	entries, err := tc.Repo.TrainingLeaderboard(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		tc.renderError(c, err)
		return
	}
	tc.render(c, "training_leaderboard.html", gin.H{"Entries": entries})
}

package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/models"
)

type NewsletterController struct{ *Srv }

func NewNewsletterController(s *Srv) *NewsletterController { return &NewsletterController{Srv: s} }

// GET /admin/newsletters
func (nc *NewsletterController) NewslettersPage(c *gin.Context) {
	ns, err := nc.Repo.ListNewsletters(c.Request.Context())
	if err != nil {
		nc.renderError(c, err)
		return
	}
	nc.render(c, "newsletters.html", gin.H{"Newsletters": ns})
}

// POST /admin/newsletters
func (nc *NewsletterController) NewslettersAction(c *gin.Context) {
	const target = "/admin/newsletters"
	ctx := c.Request.Context()
	switch c.PostForm("action") {
	case "create":
		n := &models.Newsletter{
			Subject:   c.PostForm("subject"),
			Body:      c.PostForm("body"),
			CreatedBy: app.CurrentUser(c).ID,
		}
		if err := nc.Repo.CreateNewsletter(ctx, n); err != nil {
			nc.fail(c, err, target)
			return
		}
		nc.audit(c, "create_newsletter", "newsletter", n.ID, n.Subject)
		nc.done(c, target, "ok.saved")
	case "send":
		id := c.PostForm("newsletter_id")
		// 同步发送：请求会阻塞到全部发完
		res, err := nc.Newsletter.Send(ctx, id)
		if err != nil {
			nc.fail(c, err, target)
			return
		}
		nc.audit(c, "send_newsletter", "newsletter", id, fmt.Sprintf("sent=%d failed=%d", res.Sent, res.Failed))
		msg := fmt.Sprintf("%s (%d / %d)", app.T(app.Lang(c), "ok.newsletter"), res.Sent, res.Sent+res.Failed)
		nc.flash(c, "success", msg)
		c.Redirect(http.StatusSeeOther, target)
	default:
		nc.fail(c, errUnknownAction, target)
	}
}

// GET /admin/email-log?status=&q=&page=
func (nc *NewsletterController) EmailLogPage(c *gin.Context) {
	q := db.EmailLogQuery{
		Status:  c.Query("status"),
		Search:  c.Query("q"),
		Page:    queryInt(c, "page", 1),
		PerPage: queryInt(c, "per_page", 50),
	}
	res, err := nc.Repo.ListEmailLogs(c.Request.Context(), q)
	if err != nil {
		nc.renderError(c, err)
		return
	}
	nc.render(c, "email_log.html", gin.H{"Logs": res.Logs, "Total": res.Total, "Query": q})
}

// POST /admin/email-log
func (nc *NewsletterController) EmailLogAction(c *gin.Context) {
	const target = "/admin/email-log"
	if c.PostForm("action") != "resend" {
		nc.fail(c, errUnknownAction, target)
		return
	}
	id := c.PostForm("log_id")
	err := nc.Mail.Resend(c.Request.Context(), id)
	nc.audit(c, "resend_email", "email_log", id, fmt.Sprint(err == nil))
	if err != nil {
		nc.fail(c, err, target)
		return
	}
	nc.done(c, target, "ok.resent")
}

package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/logger"
	"volunteerops/mailer"
	"volunteerops/models"
	"volunteerops/session"
)

type InviteController struct{ *Srv }

func GetInviteController(s *Srv) *InviteController { return &InviteController{Srv: s} }

// POST /admin/invites
func (ic *InviteController) CreateInvite(c *gin.Context) {
	const target = "/admin/users"
	email := strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	if !strings.Contains(email, "@") {
		ic.fail(c, db.ErrInvalidInput, target)
		return
	}
	role := c.DefaultPostForm("role", models.RoleVolunteer)
	if !models.ValidRole(role) {
		ic.fail(c, db.ErrInvalidInput, target)
		return
	}
	days := formInt(c, "expires_days", 1) // 默认 1 天
	if days <= 0 || days > 30 {
		days = 1
	}

	// 生成一次性 token
	token := session.NewToken()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	inv, err := ic.Repo.CreateInvite(ctx, email, token, role, time.Now().AddDate(0, 0, days), app.CurrentUser(c).Username)
	if err != nil {
		ic.fail(c, err, target)
		return
	}

	link := app.InviteLink(strings.TrimRight(ic.Cfg.WebOrigin, "/"), token)
	// 发送失败只记录，邮件日志里可以重发
	if err := ic.Mail.Send(c.Request.Context(), mailer.Message{
		To:      email,
		Subject: ic.Cfg.SMTP.AppName + " invitation",
		HTML:    app.InviteEmail(ic.Cfg.SMTP.AppName, link, days),
	}); err != nil {
		logger.GetLogger(c.Request.Context()).WithError(err).Warnf("invite email to %s failed", email)
	}

	ic.audit(c, "create_invite", "invite", inv.Token[:8], email+" role="+role)
	if !ic.Cfg.SMTP.Configured() {
		// 开发环境直接给出链接
		ic.flash(c, "info", link)
	}
	ic.done(c, target, "ok.invite_sent")
}

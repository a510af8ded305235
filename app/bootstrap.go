// app/bootstrap.go
package app

import (
	"context"
	"fmt"
	"time"

	"volunteerops/config"
	"volunteerops/db"
	"volunteerops/logger"
	"volunteerops/mailer"
	"volunteerops/models"
	"volunteerops/session"
)

// InviteLink is the registration URL for an invite token.
func InviteLink(origin, token string) string {
	return fmt.Sprintf("%s/invite?token=%s", origin, token)
}

func InviteEmail(appName, link string, expiresDays int) string {
	return fmt.Sprintf(`
<div style="font-family:Arial,sans-serif; font-size:14px; color:#222">
  <p>Hello,</p>
  <p>You have been invited to join <b>%s</b>. Open the link below to create your account:</p>
  <p><a href="%s">%s</a></p>
  <p>This invitation will expire in %d day(s).</p>
</div>
`, appName, link, link, expiresDays)
}

// BootstrapFirstAdmin creates a system-admin invite when no admin exists yet.
func BootstrapFirstAdmin(ctx context.Context, cfg config.Config, repo *db.Repo, mail mailer.Mailer) error {
	log := logger.GetLogger(ctx).WithField("component", "bootstrap")
	if cfg.BootstrapEmail == "" {
		return nil
	}
	n, err := repo.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil // 已经有管理员，跳过
	}

	token := session.NewToken()
	if _, err := repo.CreateInvite(ctx, cfg.BootstrapEmail, token, models.RoleSystemAdmin, time.Now().Add(24*time.Hour), "bootstrap"); err != nil {
		return fmt.Errorf("bootstrap invite: %w", err)
	}
	link := InviteLink(cfg.WebOrigin, token)
	log.Infof("no admin found, created an admin invite for %s", cfg.BootstrapEmail)
	log.Infof("open this URL to register the first admin: %s", link)

	if err := mail.Send(ctx, mailer.Message{
		To:      cfg.BootstrapEmail,
		Subject: cfg.SMTP.AppName + " admin invitation",
		HTML:    InviteEmail(cfg.SMTP.AppName, link, 1),
	}); err != nil {
		log.WithError(err).Warn("bootstrap invite mail failed")
	}
	return nil
}

// controllers/srv.go
package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"volunteerops/app"
	"volunteerops/config"
	"volunteerops/db"
	"volunteerops/logger"
	"volunteerops/mailer"
	"volunteerops/models"
	"volunteerops/session"
	"volunteerops/updater"
)

type Srv struct {
	WA         *webauthn.WebAuthn
	Repo       *db.Repo
	Ceremonies *session.Store
	Sessions   app.SessionStore
	Mail       *mailer.LoggingMailer
	Newsletter *mailer.NewsletterSender
	Updater    *updater.Pipeline
	Cfg        config.Config
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		WA:         a.WA,
		Repo:       a.Repo,
		Ceremonies: a.Ceremonies,
		Sessions:   a.Sessions,
		Mail:       a.Mail,
		Newsletter: mailer.NewNewsletterSender(a.Mail, a.Repo, a.Config.NewsletterDelay),
		Updater:    updater.NewDefault(a.Config, a.DB),
		Cfg:        a.Config,
	}
}

// --- helpers ---

// 统一设置业务会话 Cookie
func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Cfg.SecureCookies(),
		MaxAge:   int(maxAge / time.Second),
	})
}

// 登录成功：创建会话 + 记录登录快照
func (s *Srv) issueSession(ctx context.Context, c *gin.Context, userID string) error {
	if err := s.Repo.TouchUserLogin(ctx, userID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		logger.GetLogger(ctx).WithError(err).Warn("touch user login")
	}
	id := uuid.NewString()
	if _, err := s.Sessions.Create(ctx, id, userID); err != nil {
		return err
	}
	s.setAppCookie(c.Writer, id, s.Sessions.TTL())
	return nil
}

// audit appends an audit row; failures are logged, never surfaced.
func (s *Srv) audit(c *gin.Context, action, entityType, entityID, details string) {
	entry := &models.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		IP:         c.ClientIP(),
	}
	if u := app.CurrentUser(c); u != nil {
		entry.ActorID = &u.ID
		entry.ActorUsername = u.Username
	}
	if err := s.Repo.LogAction(c.Request.Context(), entry); err != nil {
		logger.GetLogger(c.Request.Context()).WithError(err).Warn("audit log write failed")
	}
}

// WebAuthn: DB user -> waUser
type waUser struct {
	user  models.User
	creds []webauthn.Credential
}

func (u *waUser) WebAuthnID() []byte                         { id, _ := uuid.Parse(u.user.ID); return id[:] }
func (u *waUser) WebAuthnName() string                       { return u.user.Username }
func (u *waUser) WebAuthnDisplayName() string                { return u.user.DisplayName }
func (u *waUser) WebAuthnIcon() string                       { return "" }
func (u *waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func toWaCred(c models.Credential) webauthn.Credential {
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.AAGUID,
			SignCount:    c.SignCount,
			CloneWarning: c.CloneWarning,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
	}
}

func fromWaCred(userID string, cred *webauthn.Credential) *models.Credential {
	return &models.Credential{
		UserID:          userID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		CloneWarning:    cred.Authenticator.CloneWarning,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	}
}

func (s *Srv) waUserFor(ctx context.Context, u *models.User) *waUser {
	cs, _ := s.Repo.LoadUserCredentials(ctx, u.ID)
	ws := make([]webauthn.Credential, 0, len(cs))
	for _, c := range cs {
		ws = append(ws, toWaCred(c))
	}
	return &waUser{user: *u, creds: ws}
}

func (s *Srv) loadWAUserByID(ctx context.Context, id string) (*waUser, error) {
	u, err := s.Repo.FindUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.waUserFor(ctx, u), nil
}

func (s *Srv) loadWAUserByUsername(ctx context.Context, username string) (*waUser, error) {
	u, err := s.Repo.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.waUserFor(ctx, u), nil
}

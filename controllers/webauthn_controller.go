// controllers/webauthn_controller.go
package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"volunteerops/app"
)

func registrationOptions() []webauthn.RegistrationOption {
	return []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationRequired,
		}),
	}
}

// GET /webauthn/whoami
func (s *Srv) WhoAmI(c *gin.Context) {
	u := app.CurrentUser(c)
	n, _ := s.Repo.CountCredentials(c.Request.Context(), u.ID)
	c.JSON(http.StatusOK, app.H{
		"userID":      u.ID,
		"username":    u.Username,
		"displayName": u.DisplayName,
		"role":        u.Role,
		"passkeys":    n,
	})
}

// ===== 注册（邀请制） =====

func (s *Srv) BeginRegistration(c *gin.Context) {
	var in struct {
		InviteToken string `json:"inviteToken" binding:"required"`
		DisplayName string `json:"displayName"`
		Phone       string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	inv, err := s.Repo.GetInviteByToken(ctx, in.InviteToken)
	if err != nil || !inv.Usable(time.Now()) {
		c.JSON(http.StatusForbidden, app.H{"error": "invalid or expired invite"})
		return
	}
	// 用户名强制 = 邀请邮箱
	u, err := s.userForInvite(c, inv, in.DisplayName, in.Phone)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}

	opts, sd, err := s.WA.BeginRegistration(s.waUserFor(ctx, u), registrationOptions()...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	if err := s.Ceremonies.SaveRegByToken(ctx, in.InviteToken, sd); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishRegistration(c *gin.Context) {
	token := c.Query("inviteToken")
	if token == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "missing inviteToken"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	inv, err := s.Repo.GetInviteByToken(ctx, token)
	if err != nil || !inv.Usable(time.Now()) {
		c.JSON(http.StatusForbidden, app.H{"error": "invalid or expired invite"})
		return
	}
	wUser, err := s.loadWAUserByUsername(ctx, inv.Email)
	if err != nil {
		c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
		return
	}
	sd, err := s.Ceremonies.TakeRegByToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "session expired or invalid"})
		return
	}
	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if err := s.Repo.AddCredential(ctx, fromWaCred(wUser.user.ID, cred)); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	if err := s.Repo.MarkInviteUsed(ctx, token); err != nil {
		c.JSON(http.StatusForbidden, app.H{"error": "invite already used"})
		return
	}

	// 注册即登录
	if err := s.issueSession(ctx, c, wUser.user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": "create app session failed"})
		return
	}
	c.Set(app.CtxUser, &wUser.user)
	s.audit(c, "register", "user", wUser.user.ID, "passkey")
	c.JSON(http.StatusOK, app.H{"ok": true, "username": wUser.user.Username, "redirect": "/"})
}

// ===== 添加新凭据（已登录） =====

func (s *Srv) BeginAddCredential(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	wUser := s.waUserFor(ctx, app.CurrentUser(c))
	opts, sd, err := s.WA.BeginRegistration(wUser, registrationOptions()...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	if err := s.Ceremonies.SaveReg(ctx, wUser.user.ID, sd); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishAddCredential(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	wUser := s.waUserFor(ctx, app.CurrentUser(c))
	sd, err := s.Ceremonies.TakeReg(ctx, wUser.user.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "session expired or invalid"})
		return
	}
	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if err := s.Repo.AddCredential(ctx, fromWaCred(wUser.user.ID, cred)); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	s.audit(c, "add_passkey", "user", wUser.user.ID, "")
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// ===== 登录 =====

type loginBeginReq struct {
	Username     string `json:"username"`
	Discoverable bool   `json:"discoverable"`
}
type loginBeginResp struct {
	Options   *protocol.CredentialAssertion `json:"options"`
	SessionID string                        `json:"sessionId"`
}

func (s *Srv) BeginLogin(c *gin.Context) {
	var req loginBeginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "bad request"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	var (
		opts *protocol.CredentialAssertion
		sd   *webauthn.SessionData
		err  error
	)
	if req.Discoverable {
		opts, sd, err = s.WA.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
	} else {
		wUser, err2 := s.loadWAUserByUsername(ctx, req.Username)
		if err2 != nil || !wUser.user.IsActive {
			c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
			return
		}
		opts, sd, err = s.WA.BeginLogin(wUser, webauthn.WithUserVerification(protocol.VerificationRequired))
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}

	sid := uuid.NewString()
	if err := s.Ceremonies.SaveAuth(ctx, sid, sd); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, loginBeginResp{Options: opts, SessionID: sid})
}

func (s *Srv) FinishLogin(c *gin.Context) {
	sid := c.Query("sessionId")
	if sid == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "missing sessionId"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	sd, err := s.Ceremonies.TakeAuth(ctx, sid)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "session expired or invalid"})
		return
	}

	var wUser *waUser
	var cred *webauthn.Credential
	if username := c.Query("username"); username != "" {
		wUser, err = s.loadWAUserByUsername(ctx, username)
		if err != nil {
			c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
			return
		}
		cred, err = s.WA.FinishLogin(wUser, *sd, c.Request)
	} else {
		handler := func(rawID, _ []byte) (webauthn.User, error) {
			u, _, err := s.Repo.FindUserByCredentialID(ctx, rawID)
			if err != nil {
				return nil, protocol.ErrBadRequest.WithDetails("credential not found")
			}
			return s.waUserFor(ctx, u), nil
		}
		var user webauthn.User
		user, cred, err = s.WA.FinishPasskeyLogin(handler, *sd, c.Request)
		if err == nil {
			wUser = user.(*waUser)
		}
	}
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": err.Error()})
		return
	}
	if !wUser.user.IsActive {
		c.JSON(http.StatusUnauthorized, app.H{"error": "account disabled"})
		return
	}
	_ = s.Repo.UpdateCredentialCounter(ctx, cred.ID, cred.Authenticator.SignCount, cred.Authenticator.CloneWarning)

	if err := s.issueSession(ctx, c, wUser.user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": "create app session failed"})
		return
	}
	c.Set(app.CtxUser, &wUser.user)
	s.audit(c, "login", "user", wUser.user.ID, "passkey")
	c.JSON(http.StatusOK, app.H{"ok": true, "redirect": "/"})
}

package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/models"
)

const minPasswordLen = 8

// GET /login
func (s *Srv) LoginPage(c *gin.Context) {
	s.render(c, "login.html", gin.H{})
}

// POST /login
func (s *Srv) Login(c *gin.Context) {
	ctx := c.Request.Context()
	username := strings.ToLower(strings.TrimSpace(c.PostForm("username")))
	password := c.PostForm("password")

	u, err := s.Repo.FindUserByUsername(ctx, username)
	if err != nil || u.PasswordHash == nil || !u.IsActive ||
		bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(password)) != nil {
		s.renderStatus(c, http.StatusUnauthorized, "login.html", gin.H{
			"Error":    app.T(app.Lang(c), "login.failed"),
			"Username": username,
		})
		return
	}
	if err := s.issueSession(ctx, c, u.ID); err != nil {
		s.renderStatus(c, http.StatusInternalServerError, "login.html", gin.H{"Error": app.T(app.Lang(c), "err.internal")})
		return
	}
	c.Set(app.CtxUser, u)
	s.audit(c, "login", "user", u.ID, "password")
	c.Redirect(http.StatusSeeOther, "/")
}

// POST /logout
func (s *Srv) Logout(c *gin.Context) {
	if sid := c.GetString(app.CtxSessionID); sid != "" {
		_ = s.Sessions.Delete(c.Request.Context(), sid)
	}
	s.setAppCookie(c.Writer, "", -time.Second)
	c.Redirect(http.StatusSeeOther, "/login")
}

// GET /lang/:code
func (s *Srv) SetLanguage(c *gin.Context) {
	code := c.Param("code")
	for _, l := range app.Languages {
		if l == code {
			c.SetCookie(app.LangCookie, code, 365*24*3600, "/", "", s.Cfg.SecureCookies(), false)
		}
	}
	back := c.Request.Referer()
	if back == "" {
		back = "/"
	}
	c.Redirect(http.StatusSeeOther, back)
}

// GET /invite?token=
func (s *Srv) InvitePage(c *gin.Context) {
	token := c.Query("token")
	inv, err := s.Repo.GetInviteByToken(c.Request.Context(), token)
	if err != nil || !inv.Usable(time.Now()) {
		s.renderStatus(c, http.StatusForbidden, "invite.html", gin.H{"Error": app.T(app.Lang(c), "err.invite_used")})
		return
	}
	s.render(c, "invite.html", gin.H{"Invite": inv, "Token": token})
}

// POST /invite: 邀请制注册（密码方式）；passkey 方式见 webauthn_controller
func (s *Srv) AcceptInvite(c *gin.Context) {
	ctx := c.Request.Context()
	token := c.PostForm("token")
	lang := app.Lang(c)

	inv, err := s.Repo.GetInviteByToken(ctx, token)
	if err != nil || !inv.Usable(time.Now()) {
		s.renderStatus(c, http.StatusForbidden, "invite.html", gin.H{"Error": app.T(lang, "err.invite_used")})
		return
	}
	password := c.PostForm("password")
	if len(password) < minPasswordLen || password != c.PostForm("password_confirm") {
		s.renderStatus(c, http.StatusBadRequest, "invite.html", gin.H{"Invite": inv, "Token": token, "Error": app.T(lang, "err.invalid_input")})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.renderStatus(c, http.StatusInternalServerError, "invite.html", gin.H{"Error": app.T(lang, "err.internal")})
		return
	}

	u, err := s.userForInvite(c, inv, c.PostForm("display_name"), c.PostForm("phone"))
	if err != nil {
		s.renderStatus(c, http.StatusBadRequest, "invite.html", gin.H{"Invite": inv, "Token": token, "Error": app.T(lang, messageKey(err))})
		return
	}
	if err := s.Repo.SetPasswordHash(ctx, u.ID, string(hash)); err != nil {
		s.renderStatus(c, http.StatusInternalServerError, "invite.html", gin.H{"Error": app.T(lang, "err.internal")})
		return
	}
	if err := s.Repo.MarkInviteUsed(ctx, token); err != nil {
		s.renderStatus(c, http.StatusForbidden, "invite.html", gin.H{"Error": app.T(lang, "err.invite_used")})
		return
	}
	if err := s.issueSession(ctx, c, u.ID); err != nil {
		s.renderStatus(c, http.StatusInternalServerError, "invite.html", gin.H{"Error": app.T(lang, "err.internal")})
		return
	}
	c.Set(app.CtxUser, u)
	s.audit(c, "register", "user", u.ID, "invite "+inv.Email)
	c.Redirect(http.StatusSeeOther, "/")
}

// userForInvite finds or creates the account named by the invite; the role
// comes from the invite, never from the form.
func (s *Srv) userForInvite(c *gin.Context, inv *models.Invite, displayName, phone string) (*models.User, error) {
	ctx := c.Request.Context()
	u, err := s.Repo.FindUserByUsername(ctx, inv.Email)
	if err == nil {
		return u, nil
	}
	if err != db.ErrNotFound {
		return nil, err
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = strings.Split(inv.Email, "@")[0]
	}
	u = &models.User{
		Username:    inv.Email,
		DisplayName: strings.TrimSpace(displayName),
		Phone:       strings.TrimSpace(phone),
		Role:        inv.Role,
		IsActive:    true,
	}
	if err := s.Repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

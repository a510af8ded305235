package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/inventory"
	"volunteerops/logger"
	"volunteerops/session"
)

var errUnknownAction = errors.New("unknown action")

// messageKey maps repository errors to translation keys.
func messageKey(err error) string {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return "err.not_found"
	case errors.Is(err, db.ErrDuplicate):
		return "err.duplicate"
	case errors.Is(err, db.ErrInvalidInput):
		return "err.invalid_input"
	case errors.Is(err, db.ErrItemNotAvailable):
		return "err.item_not_available"
	case errors.Is(err, db.ErrItemBooked):
		return "err.item_booked"
	case errors.Is(err, db.ErrBookingNotActive):
		return "err.booking_not_active"
	case errors.Is(err, db.ErrNothingToBook):
		return "err.nothing_to_book"
	case errors.Is(err, db.ErrNothingToReturn):
		return "err.nothing_to_return"
	case errors.Is(err, db.ErrItemHasHistory):
		return "err.item_has_history"
	case errors.Is(err, db.ErrKitInUse):
		return "err.kit_in_use"
	case errors.Is(err, db.ErrDepartmentInUse):
		return "err.department_in_use"
	case errors.Is(err, db.ErrAlreadyApplied):
		return "err.already_applied"
	case errors.Is(err, db.ErrShiftFull):
		return "err.shift_full"
	case errors.Is(err, db.ErrMissionNotOpen):
		return "err.mission_not_open"
	case errors.Is(err, db.ErrInvalidState):
		return "err.invalid_state"
	case errors.Is(err, db.ErrInviteAlreadyUsed):
		return "err.invite_used"
	case errors.Is(err, db.ErrForbiddenDepartment):
		return "err.forbidden"
	case errors.Is(err, inventory.ErrInvalidTransition):
		return "err.invalid_transition"
	case errors.Is(err, errUnknownAction):
		return "err.unknown_action"
	}
	return "err.internal"
}

func (s *Srv) render(c *gin.Context, name string, data gin.H) {
	s.renderStatus(c, http.StatusOK, name, data)
}

func (s *Srv) renderStatus(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["User"] = app.CurrentUser(c)
	data["Lang"] = app.Lang(c)
	data["AppName"] = s.Cfg.SMTP.AppName
	data["Version"] = s.Cfg.AppVersion
	data["Path"] = c.Request.URL.Path
	if as := app.CurrentSession(c); as != nil {
		data["CSRF"] = as.CSRF
	}
	if sid := c.GetString(app.CtxSessionID); sid != "" {
		if fs, err := s.Sessions.PopFlashes(c.Request.Context(), sid); err == nil {
			data["Flashes"] = fs
		}
	}
	c.HTML(status, name, data)
}

func (s *Srv) flash(c *gin.Context, kind, msg string) {
	sid := c.GetString(app.CtxSessionID)
	if sid == "" {
		return
	}
	if err := s.Sessions.PushFlash(c.Request.Context(), sid, session.Flash{Kind: kind, Message: msg}); err != nil {
		logger.GetLogger(c.Request.Context()).WithError(err).Warn("push flash")
	}
}

// done flashes a translated success message and redirects (PRG).
func (s *Srv) done(c *gin.Context, target, key string) {
	s.flash(c, "success", app.T(app.Lang(c), key))
	c.Redirect(http.StatusSeeOther, target)
}

// fail flashes the localized error and redirects back.
func (s *Srv) fail(c *gin.Context, err error, target string) {
	key := messageKey(err)
	e := logger.GetLogger(c.Request.Context()).WithError(err).WithField("action", c.PostForm("action"))
	if key == "err.internal" {
		e.Error("action failed")
	} else {
		e.Info("action rejected")
	}
	s.flash(c, "error", app.T(app.Lang(c), key))
	c.Redirect(http.StatusSeeOther, target)
}

func formInt(c *gin.Context, key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(c.PostForm(key))); err == nil {
		return n
	}
	return def
}

func queryInt(c *gin.Context, key string, def int) int {
	if n, err := strconv.Atoi(c.Query(key)); err == nil {
		return n
	}
	return def
}

func optional(v string) *string {
	if v = strings.TrimSpace(v); v == "" {
		return nil
	}
	return &v
}

// backTo returns the form's redirect target when it is a local path.
func backTo(c *gin.Context, def string) string {
	r := c.PostForm("redirect")
	if strings.HasPrefix(r, "/") && !strings.HasPrefix(r, "//") && !strings.Contains(r, "\\") {
		return r
	}
	return def
}

// parseFormTime accepts datetime-local and plain date inputs; blank means nil.
func parseFormTime(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, db.ErrInvalidInput
}

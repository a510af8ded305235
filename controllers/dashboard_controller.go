package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/models"
)

// GET /
func (s *Srv) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	u := app.CurrentUser(c)

	stats, err := s.Repo.InventoryStats(ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}
	mine, err := s.Repo.ListBookings(ctx, db.BookingsQuery{Status: "open", UserID: u.ID, PerPage: 50})
	if err != nil {
		s.renderError(c, err)
		return
	}
	missions, err := s.Repo.ListMissions(ctx, db.MissionsQuery{Status: models.MissionOpen, Upcoming: true})
	if err != nil {
		s.renderError(c, err)
		return
	}
	s.render(c, "dashboard.html", gin.H{
		"Stats":      stats,
		"MyBookings": mine.Bookings,
		"Missions":   missions,
	})
}

// GET /healthz
func (s *Srv) Health(c *gin.Context) {
	sqlDB, err := s.Repo.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "version": s.Cfg.AppVersion})
}

func (s *Srv) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch messageKey(err) {
	case "err.not_found":
		status = http.StatusNotFound
	case "err.forbidden":
		status = http.StatusForbidden
	case "err.internal":
		c.Error(err)
	default:
		status = http.StatusBadRequest
	}
	s.renderStatus(c, status, "error.html", gin.H{"Status": status, "Message": app.T(app.Lang(c), messageKey(err))})
}

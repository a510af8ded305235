package controllers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/models"
)

type MissionsController struct{ *Srv }

func NewMissionsController(s *Srv) *MissionsController { return &MissionsController{Srv: s} }

// GET /missions?status=
func (mc *MissionsController) MissionsPage(c *gin.Context) {
	q := db.MissionsQuery{Status: c.Query("status"), Upcoming: c.Query("upcoming") == "1"}
	// 志愿者看不到草稿
	if !models.RoleAtLeast(app.CurrentUser(c).Role, models.RoleDepartmentAdmin) && q.Status == "" {
		q.Status = models.MissionOpen
	}
	ms, err := mc.Repo.ListMissions(c.Request.Context(), q)
	if err != nil {
		mc.renderError(c, err)
		return
	}
	deps, _ := mc.Repo.ListDepartments(c.Request.Context())
	mc.render(c, "missions.html", gin.H{"Missions": ms, "Query": q, "Departments": deps})
}

type shiftView struct {
	models.Shift
	Requests []models.ParticipationRequest
	Approved int
	Mine     *models.ParticipationRequest
}

// GET /missions/:id
func (mc *MissionsController) MissionPage(c *gin.Context) {
	ctx := c.Request.Context()
	u := app.CurrentUser(c)
	m, err := mc.Repo.GetMission(ctx, c.Param("id"))
	if err != nil {
		mc.renderError(c, err)
		return
	}
	leader := models.RoleAtLeast(u.Role, models.RoleShiftLeader)
	if m.Status == models.MissionDraft && !models.RoleAtLeast(u.Role, models.RoleDepartmentAdmin) {
		mc.renderError(c, db.ErrNotFound)
		return
	}
	shifts := make([]shiftView, 0, len(m.Shifts))
	for _, s := range m.Shifts {
		reqs, err := mc.Repo.ListParticipation(ctx, s.ID)
		if err != nil {
			mc.renderError(c, err)
			return
		}
		v := shiftView{Shift: s}
		for i := range reqs {
			if reqs[i].Status == models.ParticipationApproved {
				v.Approved++
			}
			if reqs[i].VolunteerID == u.ID {
				v.Mine = &reqs[i]
			}
		}
		if leader {
			v.Requests = reqs
		}
		shifts = append(shifts, v)
	}
	mc.render(c, "mission.html", gin.H{
		"Mission":     m,
		"Shifts":      shifts,
		"Transitions": db.MissionTransitions(m.Status),
		"CanManage":   models.RoleAtLeast(u.Role, models.RoleDepartmentAdmin),
		"CanDecide":   leader,
	})
}

// POST /missions
func (mc *MissionsController) MissionsAction(c *gin.Context) {
	switch c.PostForm("action") {
	case "create_mission":
		mc.createMission(c)
	case "set_status":
		mc.setStatus(c)
	case "create_shift":
		mc.createShift(c)
	case "apply":
		mc.apply(c)
	case "approve":
		mc.decide(c, models.ParticipationApproved)
	case "reject":
		mc.decide(c, models.ParticipationRejected)
	case "attendance":
		mc.attendance(c)
	default:
		mc.fail(c, errUnknownAction, "/missions")
	}
}

func missionPage(id string) string { return "/missions/" + id }

func (mc *MissionsController) allowed(c *gin.Context, min, target string) bool {
	if models.RoleAtLeast(app.CurrentUser(c).Role, min) {
		return true
	}
	mc.fail(c, db.ErrForbiddenDepartment, target)
	return false
}

func (mc *MissionsController) createMission(c *gin.Context) {
	if !mc.allowed(c, models.RoleDepartmentAdmin, "/missions") {
		return
	}
	starts, err := parseFormTime(c.PostForm("starts_at"))
	if err == nil && starts == nil {
		err = db.ErrInvalidInput
	}
	if err != nil {
		mc.fail(c, err, "/missions")
		return
	}
	ends, err := parseFormTime(c.PostForm("ends_at"))
	if err == nil && ends == nil {
		err = db.ErrInvalidInput
	}
	if err != nil {
		mc.fail(c, err, "/missions")
		return
	}
	m := &models.Mission{
		Title:        strings.TrimSpace(c.PostForm("title")),
		Description:  strings.TrimSpace(c.PostForm("description")),
		Location:     strings.TrimSpace(c.PostForm("location")),
		DepartmentID: optional(c.PostForm("department_id")),
		StartsAt:     *starts,
		EndsAt:       *ends,
		CreatedBy:    app.CurrentUser(c).ID,
	}
	if err := mc.Repo.CreateMission(c.Request.Context(), m); err != nil {
		mc.fail(c, err, "/missions")
		return
	}
	mc.audit(c, "create_mission", "mission", m.ID, m.Title)
	mc.done(c, missionPage(m.ID), "ok.saved")
}

func (mc *MissionsController) setStatus(c *gin.Context) {
	id := c.PostForm("mission_id")
	if !mc.allowed(c, models.RoleDepartmentAdmin, missionPage(id)) {
		return
	}
	status := c.PostForm("status")
	if err := mc.Repo.UpdateMissionStatus(c.Request.Context(), id, status); err != nil {
		mc.fail(c, err, missionPage(id))
		return
	}
	mc.audit(c, "mission_status", "mission", id, status)
	mc.done(c, missionPage(id), "ok.saved")
}

func (mc *MissionsController) createShift(c *gin.Context) {
	missionID := c.PostForm("mission_id")
	target := missionPage(missionID)
	if !mc.allowed(c, models.RoleDepartmentAdmin, target) {
		return
	}
	starts, err := parseFormTime(c.PostForm("starts_at"))
	if err != nil || starts == nil {
		mc.fail(c, db.ErrInvalidInput, target)
		return
	}
	ends, err := parseFormTime(c.PostForm("ends_at"))
	if err != nil || ends == nil {
		mc.fail(c, db.ErrInvalidInput, target)
		return
	}
	s := &models.Shift{
		MissionID:     missionID,
		StartsAt:      *starts,
		EndsAt:        *ends,
		MinVolunteers: formInt(c, "min_volunteers", 0),
		MaxVolunteers: formInt(c, "max_volunteers", 0),
		Notes:         strings.TrimSpace(c.PostForm("notes")),
	}
	if err := mc.Repo.CreateShift(c.Request.Context(), s); err != nil {
		mc.fail(c, err, target)
		return
	}
	mc.audit(c, "create_shift", "shift", s.ID, "mission="+missionID)
	mc.done(c, target, "ok.saved")
}

func (mc *MissionsController) apply(c *gin.Context) {
	target := backTo(c, "/missions")
	p, err := mc.Repo.ApplyToShift(c.Request.Context(), c.PostForm("shift_id"), app.CurrentUser(c).ID, c.PostForm("notes"))
	if err != nil {
		mc.fail(c, err, target)
		return
	}
	mc.audit(c, "apply", "participation_request", p.ID, "shift="+p.ShiftID)
	mc.done(c, target, "ok.applied")
}

func (mc *MissionsController) decide(c *gin.Context, decision string) {
	target := backTo(c, "/missions")
	if !mc.allowed(c, models.RoleShiftLeader, target) {
		return
	}
	id := c.PostForm("request_id")
	if err := mc.Repo.DecideParticipation(c.Request.Context(), id, decision, app.CurrentUser(c).ID); err != nil {
		mc.fail(c, err, target)
		return
	}
	mc.audit(c, decision, "participation_request", id, "")
	mc.done(c, target, "ok.decided")
}

func (mc *MissionsController) attendance(c *gin.Context) {
	target := backTo(c, "/missions")
	if !mc.allowed(c, models.RoleShiftLeader, target) {
		return
	}
	id := c.PostForm("request_id")
	attended := c.PostForm("attended") != "0"
	var hours *decimal.Decimal
	if v := strings.TrimSpace(c.PostForm("hours")); v != "" {
		h, err := decimal.NewFromString(v)
		if err != nil {
			mc.fail(c, db.ErrInvalidInput, target)
			return
		}
		hours = &h
	}
	if err := mc.Repo.RecordAttendance(c.Request.Context(), id, attended, hours); err != nil {
		mc.fail(c, err, target)
		return
	}
	details := "attended=false"
	if attended {
		details = "attended=true"
		if hours != nil {
			details += " hours=" + hours.StringFixed(2)
		}
	}
	mc.audit(c, "attendance", "participation_request", id, details)
	mc.done(c, target, "ok.attendance")
}

// GET /leaderboard?days=
func (mc *MissionsController) LeaderboardPage(c *gin.Context) {
	var since *time.Time
	days := queryInt(c, "days", 0)
	if days > 0 {
		t := time.Now().AddDate(0, 0, -days)
		since = &t
	}
	entries, err := mc.Repo.Leaderboard(c.Request.Context(), since, queryInt(c, "limit", 50))
	if err != nil {
		mc.renderError(c, err)
		return
	}
	mc.render(c, "leaderboard.html", gin.H{"Entries": entries, "Days": days})
}

// GET /my/shifts
func (mc *MissionsController) MyShiftsPage(c *gin.Context) {
	ps, err := mc.Repo.ListMyParticipation(c.Request.Context(), app.CurrentUser(c).ID)
	if err != nil {
		mc.renderError(c, err)
		return
	}
	mc.render(c, "my_shifts.html", gin.H{"Requests": ps})
}

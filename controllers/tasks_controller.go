package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/models"
)

type TasksController struct{ *MissionsController }

func NewTasksController(s *Srv) *TasksController {
	return &TasksController{MissionsController: NewMissionsController(s)}
}

// GET /tasks?status=&assignee=&mission=&open=
func (tc *TasksController) TasksPage(c *gin.Context) {
	ctx := c.Request.Context()
	u := app.CurrentUser(c)
	q := db.TasksQuery{
		Status:     c.Query("status"),
		AssigneeID: c.Query("assignee"),
		MissionID:  c.Query("mission"),
		OpenOnly:   c.Query("open") == "1",
	}
	leader := models.RoleAtLeast(u.Role, models.RoleShiftLeader)
	if !leader {
		q.AssigneeID = u.ID
	}
	tasks, err := tc.Repo.ListTasks(ctx, q)
	if err != nil {
		tc.renderError(c, err)
		return
	}
	data := gin.H{"Tasks": tasks, "Query": q, "CanManage": leader}
	if leader {
		users, err := tc.Repo.ListUsers(ctx, "", 1, 100)
		if err != nil {
			tc.renderError(c, err)
			return
		}
		ms, err := tc.Repo.ListMissions(ctx, db.MissionsQuery{Upcoming: true})
		if err != nil {
			tc.renderError(c, err)
			return
		}
		data["Users"] = users.Users
		data["Missions"] = ms
	}
	tc.render(c, "tasks.html", data)
}

// POST /tasks
func (tc *TasksController) TasksAction(c *gin.Context) {
	switch c.PostForm("action") {
	case "create_task":
		tc.createTask(c)
	case "assign":
		tc.assign(c)
	case "set_status":
		tc.setTaskStatus(c)
	case "delete_task":
		tc.deleteTask(c)
	default:
		tc.fail(c, errUnknownAction, "/tasks")
	}
}

func (tc *TasksController) createTask(c *gin.Context) {
	target := backTo(c, "/tasks")
	if !tc.allowed(c, models.RoleShiftLeader, target) {
		return
	}
	due, err := parseFormTime(c.PostForm("due_at"))
	if err != nil {
		tc.fail(c, err, target)
		return
	}
	t := &models.Task{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		MissionID:   optional(c.PostForm("mission_id")),
		AssigneeID:  optional(c.PostForm("assignee_id")),
		Priority:    strings.TrimSpace(c.PostForm("priority")),
		DueAt:       due,
		CreatedBy:   app.CurrentUser(c).ID,
	}
	if err := tc.Repo.CreateTask(c.Request.Context(), t); err != nil {
		tc.fail(c, err, target)
		return
	}
	tc.audit(c, "create_task", "task", t.ID, t.Title)
	tc.done(c, target, "ok.saved")
}

func (tc *TasksController) assign(c *gin.Context) {
	target := backTo(c, "/tasks")
	if !tc.allowed(c, models.RoleShiftLeader, target) {
		return
	}
	id := c.PostForm("task_id")
	assignee := optional(c.PostForm("assignee_id"))
	if err := tc.Repo.AssignTask(c.Request.Context(), id, assignee); err != nil {
		tc.fail(c, err, target)
		return
	}
	tc.audit(c, "assign_task", "task", id, "assignee="+deref(assignee))
	tc.done(c, target, "ok.saved")
}

// setTaskStatus: leaders move any task, volunteers only their own.
func (tc *TasksController) setTaskStatus(c *gin.Context) {
	ctx := c.Request.Context()
	u := app.CurrentUser(c)
	target := backTo(c, "/tasks")
	id := c.PostForm("task_id")
	t, err := tc.Repo.GetTask(ctx, id)
	if err != nil {
		tc.fail(c, err, target)
		return
	}
	mine := t.AssigneeID != nil && *t.AssigneeID == u.ID
	if !mine && !tc.allowed(c, models.RoleShiftLeader, target) {
		return
	}
	status := c.PostForm("status")
	if _, err := tc.Repo.UpdateTaskStatus(ctx, id, status); err != nil {
		tc.fail(c, err, target)
		return
	}
	tc.audit(c, "task_status", "task", id, t.Status+" -> "+status)
	tc.done(c, target, "ok.saved")
}

func (tc *TasksController) deleteTask(c *gin.Context) {
	target := backTo(c, "/tasks")
	if !tc.allowed(c, models.RoleDepartmentAdmin, target) {
		return
	}
	id := c.PostForm("task_id")
	if err := tc.Repo.DeleteTask(c.Request.Context(), id); err != nil {
		tc.fail(c, err, target)
		return
	}
	tc.audit(c, "delete_task", "task", id, "")
	tc.done(c, target, "ok.deleted")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

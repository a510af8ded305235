package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/models"
)

type UserController struct{ *Srv }

func GetUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /admin/users?q=alice&page=1
func (uc *UserController) UsersPage(c *gin.Context) {
	ctx := c.Request.Context()
	q := c.Query("q")
	page := queryInt(c, "page", 1)
	res, err := uc.Repo.ListUsers(ctx, q, page, queryInt(c, "size", 50))
	if err != nil {
		uc.renderError(c, err)
		return
	}
	deps, err := uc.Repo.ListDepartments(ctx)
	if err != nil {
		uc.renderError(c, err)
		return
	}
	access, err := uc.Repo.ListDepartmentAccess(ctx)
	if err != nil {
		uc.renderError(c, err)
		return
	}
	uc.render(c, "users.html", gin.H{
		"Users":       res.Users,
		"Total":       res.Total,
		"Q":           q,
		"Page":        page,
		"Departments": deps,
		"Access":      access,
		"Roles":       []string{models.RoleSystemAdmin, models.RoleDepartmentAdmin, models.RoleShiftLeader, models.RoleVolunteer},
	})
}

// GET /api/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "invalid uuid"})
		return
	}
	user, err := uc.Repo.FindUserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app.H{"user": user})
}

// POST /admin/users
func (uc *UserController) UsersAction(c *gin.Context) {
	ctx := c.Request.Context()
	const target = "/admin/users"
	id := c.PostForm("user_id")
	me := app.CurrentUser(c)

	var err error
	action := c.PostForm("action")
	details := ""
	switch action {
	case "set_role":
		role := c.PostForm("role")
		// 不允许把自己降级，避免锁死
		if id == me.ID && role != me.Role {
			err = db.ErrInvalidState
			break
		}
		err = uc.Repo.SetUserRole(ctx, id, role)
		details = role
	case "set_department":
		dep := optional(c.PostForm("department_id"))
		err = uc.Repo.SetUserDepartment(ctx, id, dep)
		if dep != nil {
			details = *dep
		}
	case "set_active":
		active := c.PostForm("active") == "1"
		if id == me.ID && !active {
			err = db.ErrInvalidState
			break
		}
		if err = uc.Repo.SetUserActive(ctx, id, active); err == nil && !active {
			err = uc.Sessions.RevokeAllForUser(ctx, id)
		}
		details = map[bool]string{true: "active", false: "inactive"}[active]
	case "delete_user":
		err = uc.deleteUser(c, id)
	case "grant_access":
		dep := c.PostForm("department_id")
		err = uc.Repo.GrantDepartmentAccess(ctx, id, dep, me.ID)
		details = dep
	case "revoke_access":
		dep := c.PostForm("department_id")
		err = uc.Repo.RevokeDepartmentAccess(ctx, id, dep)
		details = dep
	default:
		err = errUnknownAction
	}
	if err != nil {
		uc.fail(c, err, target)
		return
	}
	uc.audit(c, action, "user", id, details)
	uc.done(c, target, "ok.saved")
}

func (uc *UserController) deleteUser(c *gin.Context, id string) error {
	ctx := c.Request.Context()
	if id == app.CurrentUser(c).ID {
		return db.ErrInvalidState
	}
	target, err := uc.Repo.FindUserByID(ctx, id)
	if err != nil {
		return err
	}
	// ADMIN_EMAILS 里的账号受保护
	email := strings.ToLower(target.Username)
	for _, admin := range uc.Cfg.AdminEmails {
		if email == admin {
			return db.ErrForbiddenDepartment
		}
	}
	if err := uc.Repo.DeleteUserByID(ctx, id); err != nil {
		return err
	}
	// 撤销该用户的所有登录会话
	return uc.Sessions.RevokeAllForUser(ctx, id)
}

// GET /admin/departments
func (uc *UserController) DepartmentsPage(c *gin.Context) {
	deps, err := uc.Repo.ListDepartments(c.Request.Context())
	if err != nil {
		uc.renderError(c, err)
		return
	}
	uc.render(c, "departments.html", gin.H{"Departments": deps})
}

// POST /admin/departments
func (uc *UserController) DepartmentsAction(c *gin.Context) {
	const target = "/admin/departments"
	ctx := c.Request.Context()
	switch c.PostForm("action") {
	case "create_department":
		d := &models.Department{Name: c.PostForm("name"), Description: strings.TrimSpace(c.PostForm("description"))}
		if err := uc.Repo.CreateDepartment(ctx, d); err != nil {
			uc.fail(c, err, target)
			return
		}
		uc.audit(c, "create_department", "department", d.ID, d.Name)
		uc.done(c, target, "ok.saved")
	case "delete_department":
		id := c.PostForm("department_id")
		if err := uc.Repo.DeleteDepartment(ctx, id); err != nil {
			uc.fail(c, err, target)
			return
		}
		uc.audit(c, "delete_department", "department", id, "")
		uc.done(c, target, "ok.deleted")
	default:
		uc.fail(c, errUnknownAction, target)
	}
}

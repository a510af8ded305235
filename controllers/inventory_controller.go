package controllers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/models"
)

type InventoryController struct{ *Srv }

func NewInventoryController(s *Srv) *InventoryController { return &InventoryController{Srv: s} }

// scope returns the departments the current user may see; nil means all.
func (ic *InventoryController) scope(c *gin.Context) ([]string, error) {
	ids, all, err := ic.Repo.AccessibleDepartments(c.Request.Context(), app.CurrentUser(c))
	if err != nil || all {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (ic *InventoryController) loadItem(c *gin.Context, id string) (*models.InventoryItem, error) {
	it, err := ic.Repo.FindItemByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	ok, err := ic.Repo.CanAccessItem(c.Request.Context(), app.CurrentUser(c), it)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, db.ErrForbiddenDepartment
	}
	return it, nil
}

// GET /inventory?search=&status=&category=&department=&page=&per_page=
func (ic *InventoryController) ItemsPage(c *gin.Context) {
	ctx := c.Request.Context()
	scope, err := ic.scope(c)
	if err != nil {
		ic.renderError(c, err)
		return
	}
	q := db.ItemsQuery{
		Search:        c.Query("search"),
		Status:        c.Query("status"),
		Category:      c.Query("category"),
		DepartmentID:  c.Query("department"),
		DepartmentIDs: scope,
		Page:          queryInt(c, "page", 1),
		PerPage:       queryInt(c, "per_page", 20),
	}
	res, err := ic.Repo.ListItems(ctx, q)
	if err != nil {
		ic.renderError(c, err)
		return
	}
	cats, _ := ic.Repo.ListCategories(ctx)
	deps, _ := ic.Repo.ListDepartments(ctx)
	ic.render(c, "items.html", gin.H{
		"Items":       res.Items,
		"Total":       res.Total,
		"Query":       q,
		"Categories":  cats,
		"Departments": deps,
	})
}

// GET /inventory/:id
func (ic *InventoryController) ItemPage(c *gin.Context) {
	ctx := c.Request.Context()
	it, err := ic.loadItem(c, c.Param("id"))
	if err != nil {
		ic.renderError(c, err)
		return
	}
	history, err := ic.Repo.ListBookings(ctx, db.BookingsQuery{ItemID: it.ID, PerPage: 50})
	if err != nil {
		ic.renderError(c, err)
		return
	}
	notes, err := ic.Repo.ListNotes(ctx, db.NotesQuery{ItemID: it.ID})
	if err != nil {
		ic.renderError(c, err)
		return
	}
	data := gin.H{"Item": it, "Bookings": history.Bookings, "Notes": notes}
	if open, err := ic.Repo.OpenBookingForItem(ctx, it.ID); err == nil {
		data["Open"] = open
	}
	if models.RoleAtLeast(app.CurrentUser(c).Role, models.RoleShiftLeader) {
		users, _ := ic.Repo.ListUsers(ctx, "", 1, 100)
		data["Users"] = users.Users
		missions, _ := ic.Repo.ListMissions(ctx, db.MissionsQuery{Status: models.MissionOpen})
		data["Missions"] = missions
	}
	deps, _ := ic.Repo.ListDepartments(ctx)
	data["Departments"] = deps
	ic.render(c, "item.html", data)
}

// POST /inventory
func (ic *InventoryController) ItemsAction(c *gin.Context) {
	switch c.PostForm("action") {
	case "create_item":
		ic.createItem(c)
	case "update_item":
		ic.updateItem(c)
	case "delete_item":
		ic.deleteItem(c)
	case "book":
		ic.book(c)
	case "return":
		ic.returnBooking(c)
	case "mark_lost":
		ic.markLost(c)
	case "add_note":
		ic.addNote(c)
	default:
		ic.fail(c, errUnknownAction, "/inventory")
	}
}

func (ic *InventoryController) requireRole(c *gin.Context, min, target string) bool {
	if models.RoleAtLeast(app.CurrentUser(c).Role, min) {
		return true
	}
	ic.fail(c, db.ErrForbiddenDepartment, target)
	return false
}

// department admins may only file items under departments they manage
func (ic *InventoryController) checkDepartment(c *gin.Context, dep *string) error {
	if dep == nil {
		return nil
	}
	ok, err := ic.Repo.CanAccessItem(c.Request.Context(), app.CurrentUser(c), &models.InventoryItem{DepartmentID: dep})
	if err != nil {
		return err
	}
	if !ok {
		return db.ErrForbiddenDepartment
	}
	return nil
}

func (ic *InventoryController) createItem(c *gin.Context) {
	if !ic.requireRole(c, models.RoleDepartmentAdmin, "/inventory") {
		return
	}
	it := &models.InventoryItem{
		Barcode:      c.PostForm("barcode"),
		Name:         c.PostForm("name"),
		Description:  strings.TrimSpace(c.PostForm("description")),
		Category:     strings.TrimSpace(c.PostForm("category")),
		DepartmentID: optional(c.PostForm("department_id")),
		Location:     strings.TrimSpace(c.PostForm("location")),
		Quantity:     formInt(c, "quantity", 1),
		Status:       c.PostForm("status"),
	}
	if err := ic.checkDepartment(c, it.DepartmentID); err != nil {
		ic.fail(c, err, "/inventory")
		return
	}
	if err := ic.Repo.CreateItem(c.Request.Context(), it); err != nil {
		ic.fail(c, err, "/inventory")
		return
	}
	ic.audit(c, "create_item", "inventory_item", it.ID, it.Barcode)
	ic.done(c, "/inventory/"+it.ID, "ok.saved")
}

func (ic *InventoryController) updateItem(c *gin.Context) {
	id := c.PostForm("item_id")
	target := "/inventory/" + id
	if !ic.requireRole(c, models.RoleDepartmentAdmin, target) {
		return
	}
	if _, err := ic.loadItem(c, id); err != nil {
		ic.fail(c, err, "/inventory")
		return
	}
	in := db.UpdateItemInput{
		ID:           id,
		Barcode:      c.PostForm("barcode"),
		Name:         c.PostForm("name"),
		Description:  strings.TrimSpace(c.PostForm("description")),
		Category:     c.PostForm("category"),
		DepartmentID: optional(c.PostForm("department_id")),
		Location:     strings.TrimSpace(c.PostForm("location")),
		Quantity:     formInt(c, "quantity", 1),
		Status:       c.PostForm("status"),
	}
	if err := ic.checkDepartment(c, in.DepartmentID); err != nil {
		ic.fail(c, err, target)
		return
	}
	it, err := ic.Repo.UpdateItem(c.Request.Context(), in)
	if err != nil {
		ic.fail(c, err, target)
		return
	}
	ic.audit(c, "update_item", "inventory_item", it.ID, fmt.Sprintf("%s status=%s", it.Barcode, it.Status))
	ic.done(c, target, "ok.saved")
}

func (ic *InventoryController) deleteItem(c *gin.Context) {
	id := c.PostForm("item_id")
	if !ic.requireRole(c, models.RoleDepartmentAdmin, "/inventory/"+id) {
		return
	}
	it, err := ic.loadItem(c, id)
	if err != nil {
		ic.fail(c, err, "/inventory")
		return
	}
	if err := ic.Repo.DeleteItem(c.Request.Context(), id); err != nil {
		ic.fail(c, err, "/inventory/"+id)
		return
	}
	ic.audit(c, "delete_item", "inventory_item", id, it.Barcode)
	ic.done(c, "/inventory", "ok.deleted")
}

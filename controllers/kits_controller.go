package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/logger"
	"volunteerops/models"
)

type KitsController struct{ *InventoryController }

func NewKitsController(s *Srv) *KitsController {
	return &KitsController{InventoryController: NewInventoryController(s)}
}

// GET /kits
func (kc *KitsController) KitsPage(c *gin.Context) {
	scope, err := kc.scope(c)
	if err != nil {
		kc.renderError(c, err)
		return
	}
	kits, err := kc.Repo.ListKits(c.Request.Context(), scope)
	if err != nil {
		kc.renderError(c, err)
		return
	}
	data := gin.H{"Kits": kits}
	if id := c.Query("id"); id != "" {
		k, err := kc.loadKit(c, id)
		if err != nil {
			kc.renderError(c, err)
			return
		}
		data["Kit"] = k
	}
	deps, _ := kc.Repo.ListDepartments(c.Request.Context())
	data["Departments"] = deps
	kc.render(c, "kits.html", data)
}

// POST /kits
func (kc *KitsController) KitsAction(c *gin.Context) {
	switch c.PostForm("action") {
	case "create_kit":
		kc.createKit(c)
	case "add_member":
		kc.addMember(c)
	case "remove_member":
		kc.removeMember(c)
	case "book_kit":
		kc.bookKit(c)
	case "return_kit":
		kc.returnKit(c)
	case "delete_kit":
		kc.deleteKit(c)
	default:
		kc.fail(c, errUnknownAction, "/kits")
	}
}

func kitPage(id string) string { return "/kits?id=" + id }

func (kc *KitsController) loadKit(c *gin.Context, id string) (*models.InventoryKit, error) {
	k, err := kc.Repo.GetKit(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if err := kc.checkDepartment(c, k.DepartmentID); err != nil {
		return nil, err
	}
	return k, nil
}

func (kc *KitsController) createKit(c *gin.Context) {
	if !kc.requireRole(c, models.RoleDepartmentAdmin, "/kits") {
		return
	}
	k := &models.InventoryKit{
		Name:         c.PostForm("name"),
		Description:  strings.TrimSpace(c.PostForm("description")),
		DepartmentID: optional(c.PostForm("department_id")),
	}
	if err := kc.checkDepartment(c, k.DepartmentID); err != nil {
		kc.fail(c, err, "/kits")
		return
	}
	if err := kc.Repo.CreateKit(c.Request.Context(), k); err != nil {
		kc.fail(c, err, "/kits")
		return
	}
	kc.audit(c, "create_kit", "inventory_kit", k.ID, k.Name)
	kc.done(c, kitPage(k.ID), "ok.saved")
}

func (kc *KitsController) addMember(c *gin.Context) {
	kitID := c.PostForm("kit_id")
	if !kc.requireRole(c, models.RoleDepartmentAdmin, kitPage(kitID)) {
		return
	}
	if _, err := kc.loadKit(c, kitID); err != nil {
		kc.fail(c, err, "/kits")
		return
	}
	it, err := kc.Repo.FindItemByBarcode(c.Request.Context(), strings.TrimSpace(c.PostForm("barcode")))
	if err != nil {
		kc.fail(c, err, kitPage(kitID))
		return
	}
	if err := kc.checkDepartment(c, it.DepartmentID); err != nil {
		kc.fail(c, err, kitPage(kitID))
		return
	}
	if err := kc.Repo.AddKitMember(c.Request.Context(), kitID, it.ID); err != nil {
		kc.fail(c, err, kitPage(kitID))
		return
	}
	kc.audit(c, "add_member", "inventory_kit", kitID, it.Barcode)
	kc.done(c, kitPage(kitID), "ok.saved")
}

func (kc *KitsController) removeMember(c *gin.Context) {
	kitID := c.PostForm("kit_id")
	if !kc.requireRole(c, models.RoleDepartmentAdmin, kitPage(kitID)) {
		return
	}
	if _, err := kc.loadKit(c, kitID); err != nil {
		kc.fail(c, err, "/kits")
		return
	}
	itemID := c.PostForm("item_id")
	if err := kc.Repo.RemoveKitMember(c.Request.Context(), kitID, itemID); err != nil {
		kc.fail(c, err, kitPage(kitID))
		return
	}
	kc.audit(c, "remove_member", "inventory_kit", kitID, "item="+itemID)
	kc.done(c, kitPage(kitID), "ok.deleted")
}

// kitOutcome flashes the result of a bulk kit operation. Partial failures
// keep the successful part and list the failed barcodes.
func (kc *KitsController) kitOutcome(c *gin.Context, kitID, action string, res *db.KitResult, err error, okKey string) {
	target := kitPage(kitID)
	var merr *multierror.Error
	if err != nil && !errors.As(err, &merr) {
		kc.fail(c, err, target)
		return
	}
	details := "processed=" + strings.Join(res.Processed, ",")
	if len(res.Failed) > 0 {
		details += " failed=" + strings.Join(res.Failed, ",")
	}
	kc.audit(c, action, "inventory_kit", kitID, details)
	if merr != nil {
		logger.GetLogger(c.Request.Context()).WithError(merr).Warnf("%s partially failed", action)
		lang := app.Lang(c)
		if len(res.Processed) > 0 {
			kc.flash(c, "success", app.T(lang, okKey)+" "+strings.Join(res.Processed, ", "))
		}
		kc.flash(c, "error", app.T(lang, "kit.partial")+" "+strings.Join(res.Failed, ", "))
		c.Redirect(http.StatusSeeOther, target)
		return
	}
	kc.done(c, target, okKey)
}

func (kc *KitsController) bookKit(c *gin.Context) {
	u := app.CurrentUser(c)
	kitID := c.PostForm("kit_id")
	if !kc.requireRole(c, models.RoleShiftLeader, kitPage(kitID)) {
		return
	}
	k, err := kc.loadKit(c, kitID)
	if err != nil {
		kc.fail(c, err, "/kits")
		return
	}
	expected, err := parseFormTime(c.PostForm("expected_return"))
	if err != nil {
		kc.fail(c, err, kitPage(kitID))
		return
	}
	borrower := u.ID
	if v := c.PostForm("user_id"); v != "" {
		borrower = v
	}
	scope, err := kc.scope(c)
	if err != nil {
		kc.fail(c, err, kitPage(kitID))
		return
	}
	res, err := kc.Repo.BookKit(c.Request.Context(), db.BookKitInput{
		KitID:          k.ID,
		UserID:         borrower,
		ActorID:        u.ID,
		MissionID:      optional(c.PostForm("mission_id")),
		Location:       c.PostForm("location"),
		Notes:          c.PostForm("notes"),
		ExpectedReturn: expected,
		DepartmentIDs:  scope,
	})
	kc.kitOutcome(c, k.ID, "book_kit", res, err, "ok.kit_booked")
}

func (kc *KitsController) returnKit(c *gin.Context) {
	kitID := c.PostForm("kit_id")
	if !kc.requireRole(c, models.RoleShiftLeader, kitPage(kitID)) {
		return
	}
	k, err := kc.loadKit(c, kitID)
	if err != nil {
		kc.fail(c, err, "/kits")
		return
	}
	scope, err := kc.scope(c)
	if err != nil {
		kc.fail(c, err, kitPage(kitID))
		return
	}
	res, err := kc.Repo.ReturnKit(c.Request.Context(), db.ReturnKitInput{
		KitID:         k.ID,
		ActorID:       app.CurrentUser(c).ID,
		Notes:         c.PostForm("notes"),
		DepartmentIDs: scope,
	})
	kc.kitOutcome(c, k.ID, "return_kit", res, err, "ok.kit_returned")
}

func (kc *KitsController) deleteKit(c *gin.Context) {
	kitID := c.PostForm("kit_id")
	if !kc.requireRole(c, models.RoleDepartmentAdmin, kitPage(kitID)) {
		return
	}
	k, err := kc.loadKit(c, kitID)
	if err != nil {
		kc.fail(c, err, "/kits")
		return
	}
	if err := kc.Repo.DeleteKit(c.Request.Context(), k.ID); err != nil {
		kc.fail(c, err, kitPage(k.ID))
		return
	}
	kc.audit(c, "delete_kit", "inventory_kit", k.ID, k.Name)
	kc.done(c, "/kits", "ok.deleted")
}

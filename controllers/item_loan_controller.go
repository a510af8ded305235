// controllers/item_loan_controller.go
package controllers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"volunteerops/app"
	"volunteerops/db"
	"volunteerops/models"
)

// 借出：志愿者只能替自己借，班长及以上可以替任何人借
func (ic *InventoryController) book(c *gin.Context) {
	ctx := c.Request.Context()
	u := app.CurrentUser(c)
	itemID := c.PostForm("item_id")
	target := backTo(c, "/inventory/"+itemID)

	if _, err := ic.loadItem(c, itemID); err != nil {
		ic.fail(c, err, target)
		return
	}
	borrower := u.ID
	if v := c.PostForm("user_id"); v != "" && v != u.ID {
		if !models.RoleAtLeast(u.Role, models.RoleShiftLeader) {
			ic.fail(c, db.ErrForbiddenDepartment, target)
			return
		}
		borrower = v
	}
	expected, err := parseFormTime(c.PostForm("expected_return"))
	if err != nil {
		ic.fail(c, err, target)
		return
	}
	b, err := ic.Repo.BookItem(ctx, db.BookItemInput{
		ItemID:         itemID,
		UserID:         borrower,
		ActorID:        u.ID,
		MissionID:      optional(c.PostForm("mission_id")),
		Location:       c.PostForm("location"),
		Notes:          c.PostForm("notes"),
		ExpectedReturn: expected,
	})
	if err != nil {
		ic.fail(c, err, target)
		return
	}
	ic.audit(c, "book", "inventory_booking", b.ID, fmt.Sprintf("item=%s user=%s", itemID, borrower))
	ic.done(c, target, "ok.booked")
}

// loadBooking returns an open booking the current user may act on.
func (ic *InventoryController) loadBooking(c *gin.Context, id string) (*models.InventoryBooking, error) {
	b, err := ic.Repo.FindBookingByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if b.Item != nil {
		ok, err := ic.Repo.CanAccessItem(c.Request.Context(), app.CurrentUser(c), b.Item)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, db.ErrForbiddenDepartment
		}
	}
	return b, nil
}

// 归还：班长及以上，或借用人本人
func (ic *InventoryController) returnBooking(c *gin.Context) {
	u := app.CurrentUser(c)
	target := backTo(c, "/bookings")
	b, err := ic.loadBooking(c, c.PostForm("booking_id"))
	if err != nil {
		ic.fail(c, err, target)
		return
	}
	if b.UserID != u.ID && !models.RoleAtLeast(u.Role, models.RoleShiftLeader) {
		ic.fail(c, db.ErrForbiddenDepartment, target)
		return
	}
	done, err := ic.Repo.ReturnBooking(c.Request.Context(), db.ReturnBookingInput{
		BookingID: b.ID,
		ActorID:   u.ID,
		Notes:     c.PostForm("notes"),
	})
	if err != nil {
		ic.fail(c, err, target)
		return
	}
	ic.audit(c, "return", "inventory_booking", done.ID, fmt.Sprintf("item=%s hours=%s", done.ItemID, done.ActualHours.Decimal.StringFixed(2)))
	ic.done(c, target, "ok.returned")
}

func (ic *InventoryController) markLost(c *gin.Context) {
	target := backTo(c, "/bookings")
	if !ic.requireRole(c, models.RoleDepartmentAdmin, target) {
		return
	}
	b, err := ic.loadBooking(c, c.PostForm("booking_id"))
	if err != nil {
		ic.fail(c, err, target)
		return
	}
	if _, err := ic.Repo.MarkBookingLost(c.Request.Context(), b.ID, app.CurrentUser(c).ID, c.PostForm("notes")); err != nil {
		ic.fail(c, err, target)
		return
	}
	ic.audit(c, "mark_lost", "inventory_booking", b.ID, "item="+b.ItemID)
	ic.done(c, target, "ok.marked_lost")
}

func (ic *InventoryController) addNote(c *gin.Context) {
	itemID := c.PostForm("item_id")
	target := backTo(c, "/inventory/"+itemID)
	if _, err := ic.loadItem(c, itemID); err != nil {
		ic.fail(c, err, target)
		return
	}
	n := &models.InventoryNote{
		ItemID:   itemID,
		AuthorID: app.CurrentUser(c).ID,
		NoteType: c.PostForm("note_type"),
		Priority: c.PostForm("priority"),
		Content:  c.PostForm("content"),
	}
	if err := ic.Repo.CreateNote(c.Request.Context(), n); err != nil {
		ic.fail(c, err, target)
		return
	}
	ic.audit(c, "add_note", "inventory_note", n.ID, "item="+itemID)
	ic.done(c, target, "ok.note_added")
}

// GET /bookings?status=&search=&mine=1&page=
func (ic *InventoryController) BookingsPage(c *gin.Context) {
	ctx := c.Request.Context()
	u := app.CurrentUser(c)
	scope, err := ic.scope(c)
	if err != nil {
		ic.renderError(c, err)
		return
	}
	q := db.BookingsQuery{
		Status:        c.DefaultQuery("status", "open"),
		Search:        c.Query("search"),
		DepartmentIDs: scope,
		Page:          queryInt(c, "page", 1),
		PerPage:       queryInt(c, "per_page", 50),
	}
	if q.Status == "all" {
		q.Status = ""
	}
	// 志愿者只看到自己的记录
	if c.Query("mine") == "1" || !models.RoleAtLeast(u.Role, models.RoleShiftLeader) {
		q.UserID = u.ID
	}
	res, err := ic.Repo.ListBookings(ctx, q)
	if err != nil {
		ic.renderError(c, err)
		return
	}
	data := gin.H{"Bookings": res.Bookings, "Total": res.Total, "Query": q}
	if u.IsAdmin() {
		issues, err := ic.Repo.CheckItemConsistency(ctx)
		if err != nil {
			ic.renderError(c, err)
			return
		}
		data["Issues"] = issues
	}
	ic.render(c, "bookings.html", data)
}

// POST /bookings
func (ic *InventoryController) BookingsAction(c *gin.Context) {
	switch c.PostForm("action") {
	case "return":
		ic.returnBooking(c)
	case "mark_lost":
		ic.markLost(c)
	case "refresh_overdue":
		if !ic.requireRole(c, models.RoleDepartmentAdmin, "/bookings") {
			return
		}
		n, err := ic.Repo.RefreshOverdue(c.Request.Context())
		if err != nil {
			ic.fail(c, err, "/bookings")
			return
		}
		ic.audit(c, "refresh_overdue", "inventory_booking", "", fmt.Sprintf("flagged=%d", n))
		ic.done(c, "/bookings?status=overdue", "ok.saved")
	default:
		ic.fail(c, errUnknownAction, "/bookings")
	}
}

// GET /api/bookings.json — open bookings of the current user
func (ic *InventoryController) MyBookingsJSON(c *gin.Context) {
	res, err := ic.Repo.ListBookings(c.Request.Context(), db.BookingsQuery{Status: "open", UserID: app.CurrentUser(c).ID, PerPage: 200})
	if err != nil {
		c.JSON(http.StatusInternalServerError, app.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

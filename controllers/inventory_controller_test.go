package controllers_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerops/db"
	"volunteerops/models"
)

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	h := newHarness(t)

	w := h.get("", "/inventory")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = h.get("", "/api/bookings.json")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPostWithoutCSRFIsRejected(t *testing.T) {
	h := newHarness(t)
	u := h.user("vol@example.org", models.RoleVolunteer)
	it := h.item("R-1")
	sid := h.login(u)

	form := url.Values{"action": {"book"}, "item_id": {it.ID}, "csrf_token": {"wrong"}}
	req := httptestForm(http.MethodPost, "/inventory", form)
	w := h.do(req, sid)
	assert.Equal(t, http.StatusForbidden, w.Code)

	got, err := h.repo.FindItemByID(context.Background(), it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, got.Status)
}

func TestInventoryPagesRender(t *testing.T) {
	h := newHarness(t)
	u := h.user("vol@example.org", models.RoleVolunteer)
	it := h.item("R-7")
	sid := h.login(u)

	w := h.get(sid, "/inventory")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "R-7")

	w = h.get(sid, "/inventory/"+it.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Radio R-7")

	w = h.get(sid, "/inventory/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBookAndReturnThroughForms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.user("vol@example.org", models.RoleVolunteer)
	it := h.item("R-1")
	sid := h.login(u)

	w := h.post(sid, "/inventory", url.Values{"action": {"book"}, "item_id": {it.ID}, "location": {"Gate B"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/inventory/"+it.ID, w.Header().Get("Location"))
	f := h.lastFlash(sid)
	assert.Equal(t, "success", f.Kind)
	assert.Equal(t, "Item booked.", f.Message)

	got, err := h.repo.FindItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemBooked, got.Status)
	open, err := h.repo.OpenBookingForItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, open.UserID)

	// a second booking of the same item fails
	w = h.post(sid, "/inventory", url.Values{"action": {"book"}, "item_id": {it.ID}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	f = h.lastFlash(sid)
	assert.Equal(t, "error", f.Kind)
	assert.Equal(t, "This item is not available.", f.Message)

	w = h.post(sid, "/bookings", url.Values{"action": {"return"}, "booking_id": {open.ID}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/bookings", w.Header().Get("Location"))
	assert.Equal(t, "Item returned.", h.lastFlash(sid).Message)

	got, err = h.repo.FindItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, got.Status)
	b, err := h.repo.FindBookingByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingReturned, b.Status)

	audit, err := h.repo.ListAudit(ctx, db.AuditQuery{EntityType: "inventory_booking"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, audit.Total)

	w = h.get(sid, "/bookings?status=all")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "R-1")
}

func TestVolunteerCannotBookForSomeoneElse(t *testing.T) {
	h := newHarness(t)
	vol := h.user("vol@example.org", models.RoleVolunteer)
	other := h.user("other@example.org", models.RoleVolunteer)
	it := h.item("R-2")
	sid := h.login(vol)

	w := h.post(sid, "/inventory", url.Values{"action": {"book"}, "item_id": {it.ID}, "user_id": {other.ID}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	f := h.lastFlash(sid)
	assert.Equal(t, "error", f.Kind)
	assert.Equal(t, "You do not have access to this record.", f.Message)

	got, err := h.repo.FindItemByID(context.Background(), it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, got.Status)
}

func TestShiftLeaderBooksForVolunteerAndBorrowerReturns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	leader := h.user("lead@example.org", models.RoleShiftLeader)
	vol := h.user("vol@example.org", models.RoleVolunteer)
	it := h.item("R-3")
	lsid, vsid := h.login(leader), h.login(vol)

	w := h.post(lsid, "/inventory", url.Values{"action": {"book"}, "item_id": {it.ID}, "user_id": {vol.ID}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "success", h.lastFlash(lsid).Kind)

	open, err := h.repo.OpenBookingForItem(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, vol.ID, open.UserID)
	assert.Equal(t, leader.ID, open.CreatedByID)

	// a third volunteer may not return someone else's booking
	stranger := h.user("x@example.org", models.RoleVolunteer)
	ssid := h.login(stranger)
	h.post(ssid, "/bookings", url.Values{"action": {"return"}, "booking_id": {open.ID}})
	assert.Equal(t, "error", h.lastFlash(ssid).Kind)

	h.post(vsid, "/bookings", url.Values{"action": {"return"}, "booking_id": {open.ID}})
	assert.Equal(t, "success", h.lastFlash(vsid).Kind)
}

func TestDepartmentScopeHidesForeignItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	north := &models.Department{Name: "North"}
	south := &models.Department{Name: "South"}
	require.NoError(t, h.repo.CreateDepartment(ctx, north))
	require.NoError(t, h.repo.CreateDepartment(ctx, south))

	admin := h.user("dadmin@example.org", models.RoleDepartmentAdmin)
	require.NoError(t, h.repo.SetUserDepartment(ctx, admin.ID, &north.ID))
	sid := h.login(admin)

	it := &models.InventoryItem{Barcode: "S-1", Name: "Tent", DepartmentID: &south.ID}
	require.NoError(t, h.repo.CreateItem(ctx, it))

	w := h.get(sid, "/inventory/"+it.ID)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.get(sid, "/inventory")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "S-1")

	// creating an item in a foreign department is refused
	h.post(sid, "/inventory", url.Values{"action": {"create_item"}, "barcode": {"S-2"}, "name": {"Stove"}, "department_id": {south.ID}})
	assert.Equal(t, "error", h.lastFlash(sid).Kind)
	_, err := h.repo.FindItemByBarcode(ctx, "S-2")
	assert.ErrorIs(t, err, db.ErrNotFound)

	w = h.post(sid, "/inventory", url.Values{"action": {"create_item"}, "barcode": {"N-1"}, "name": {"Stove"}, "department_id": {north.ID}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "success", h.lastFlash(sid).Kind)
	created, err := h.repo.FindItemByBarcode(ctx, "N-1")
	require.NoError(t, err)
	assert.Equal(t, "/inventory/"+created.ID, w.Header().Get("Location"))
}

func TestItemCRUDRequiresDepartmentAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	vol := h.user("vol@example.org", models.RoleVolunteer)
	admin := h.user("admin@example.org", models.RoleSystemAdmin)
	vsid, asid := h.login(vol), h.login(admin)

	h.post(vsid, "/inventory", url.Values{"action": {"create_item"}, "barcode": {"X-1"}, "name": {"Radio"}})
	assert.Equal(t, "error", h.lastFlash(vsid).Kind)

	h.post(asid, "/inventory", url.Values{"action": {"create_item"}, "barcode": {"X-1"}, "name": {"Radio"}})
	assert.Equal(t, "success", h.lastFlash(asid).Kind)

	h.post(asid, "/inventory", url.Values{"action": {"create_item"}, "barcode": {"X-1"}, "name": {"Radio"}})
	f := h.lastFlash(asid)
	assert.Equal(t, "error", f.Kind)
	assert.Equal(t, "A record with this value already exists.", f.Message)

	it, err := h.repo.FindItemByBarcode(ctx, "X-1")
	require.NoError(t, err)
	h.post(asid, "/inventory", url.Values{"action": {"delete_item"}, "item_id": {it.ID}})
	assert.Equal(t, "success", h.lastFlash(asid).Kind)
	_, err = h.repo.FindItemByID(ctx, it.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	h.post(asid, "/inventory", url.Values{"action": {"explode"}})
	assert.Equal(t, "Unknown action.", h.lastFlash(asid).Message)

	used := h.item("X-2")
	b, err := h.repo.BookItem(ctx, db.BookItemInput{ItemID: used.ID, UserID: vol.ID, ActorID: admin.ID})
	require.NoError(t, err)
	_, err = h.repo.ReturnBooking(ctx, db.ReturnBookingInput{BookingID: b.ID, ActorID: admin.ID})
	require.NoError(t, err)
	h.post(asid, "/inventory", url.Values{"action": {"delete_item"}, "item_id": {used.ID}})
	assert.Equal(t, "This item has booking history and cannot be deleted.", h.lastFlash(asid).Message)
	_, err = h.repo.FindItemByID(ctx, used.ID)
	assert.NoError(t, err)
}

func TestMarkLostAndOverdueRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.user("admin@example.org", models.RoleSystemAdmin)
	vol := h.user("vol@example.org", models.RoleVolunteer)
	it := h.item("L-1")
	sid := h.login(admin)

	b, err := h.repo.BookItem(ctx, db.BookItemInput{ItemID: it.ID, UserID: vol.ID, ActorID: admin.ID})
	require.NoError(t, err)

	w := h.post(sid, "/bookings", url.Values{"action": {"refresh_overdue"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/bookings?status=overdue", w.Header().Get("Location"))
	h.flashes(sid)

	h.post(sid, "/bookings", url.Values{"action": {"mark_lost"}, "booking_id": {b.ID}})
	assert.Equal(t, "Booking marked as lost.", h.lastFlash(sid).Message)

	got, err := h.repo.FindBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingLost, got.Status)
	item, err := h.repo.FindItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemDamaged, item.Status)
}

func TestMyBookingsJSON(t *testing.T) {
	h := newHarness(t)
	vol := h.user("vol@example.org", models.RoleVolunteer)
	it := h.item("J-1")
	_, err := h.repo.BookItem(context.Background(), db.BookItemInput{ItemID: it.ID, UserID: vol.ID, ActorID: vol.ID})
	require.NoError(t, err)

	w := h.get(h.login(vol), "/api/bookings.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, w.Body.String(), it.ID)
}

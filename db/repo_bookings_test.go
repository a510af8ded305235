package db

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerops/inventory"
	"volunteerops/models"
)

func TestBookAndReturn_INV001(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "nikos@example.org", models.RoleVolunteer)
	it := createTestItem(t, r, "INV001")

	due := testNow.Add(48 * time.Hour)
	b, err := r.BookItem(ctx, BookItemInput{ItemID: it.ID, UserID: u.ID, ActorID: u.ID, Location: "Base", ExpectedReturn: &due})
	require.NoError(t, err)
	assert.Equal(t, models.BookingActive, b.Status)

	got, err := r.FindItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemBooked, got.Status)
	require.NotNil(t, got.BookedByUserID)
	assert.Equal(t, u.ID, *got.BookedByUserID)
	require.NotNil(t, got.BookedByName)
	assert.Equal(t, "nikos", *got.BookedByName)

	// a second booking of the same item fails and leaves no trace
	other := createTestUser(t, r, "eleni@example.org", models.RoleVolunteer)
	_, err = r.BookItem(ctx, BookItemInput{ItemID: it.ID, UserID: other.ID, ActorID: other.ID})
	assert.ErrorIs(t, err, ErrItemNotAvailable)

	r.Now = func() time.Time { return testNow.Add(3*time.Hour + 30*time.Minute) }
	ret, err := r.ReturnBooking(ctx, ReturnBookingInput{BookingID: b.ID, ActorID: u.ID, Notes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, models.BookingReturned, ret.Status)
	require.True(t, ret.ActualHours.Valid)
	assert.True(t, decimal.RequireFromString("3.5").Equal(ret.ActualHours.Decimal))

	got, err = r.FindItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, got.Status)
	assert.Nil(t, got.BookedByUserID)
	assert.Nil(t, got.BookedAt)

	page, err := r.ListBookings(ctx, BookingsQuery{ItemID: it.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)

	issues, err := r.CheckItemConsistency(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestBookItem_RejectsNonAvailable(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	it := &models.InventoryItem{Barcode: "GEN-1", Name: "Generator", Status: models.ItemMaintenance}
	require.NoError(t, r.CreateItem(ctx, it))

	_, err := r.BookItem(ctx, BookItemInput{ItemID: it.ID, UserID: u.ID, ActorID: u.ID})
	assert.ErrorIs(t, err, ErrItemNotAvailable)

	page, err := r.ListBookings(ctx, BookingsQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, page.Total)

	_, err = r.BookItem(ctx, BookItemInput{ItemID: "missing", UserID: u.ID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReturnBooking_NotActiveLeavesStateAlone(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	it := createTestItem(t, r, "INV002")

	b, err := r.BookItem(ctx, BookItemInput{ItemID: it.ID, UserID: u.ID, ActorID: u.ID})
	require.NoError(t, err)
	_, err = r.ReturnBooking(ctx, ReturnBookingInput{BookingID: b.ID, ActorID: u.ID})
	require.NoError(t, err)

	before, err := r.FindBookingByID(ctx, b.ID)
	require.NoError(t, err)

	_, err = r.ReturnBooking(ctx, ReturnBookingInput{BookingID: b.ID, ActorID: u.ID, Notes: "again"})
	assert.ErrorIs(t, err, ErrBookingNotActive)

	after, err := r.FindBookingByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ReturnNotes, after.ReturnNotes)
	assert.Equal(t, before.Status, after.Status)

	_, err = r.ReturnBooking(ctx, ReturnBookingInput{BookingID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkBookingLost_FlagsItemDamaged(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	it := createTestItem(t, r, "INV003")

	b, err := r.BookItem(ctx, BookItemInput{ItemID: it.ID, UserID: u.ID, ActorID: u.ID})
	require.NoError(t, err)
	lost, err := r.MarkBookingLost(ctx, b.ID, u.ID, "left at site")
	require.NoError(t, err)
	assert.Equal(t, models.BookingLost, lost.Status)

	got, err := r.FindItemByID(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemDamaged, got.Status)

	_, err = r.BookItem(ctx, BookItemInput{ItemID: it.ID, UserID: u.ID, ActorID: u.ID})
	assert.ErrorIs(t, err, ErrItemNotAvailable)
}

func TestRefreshOverdue_AndTimeliness(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	late := createTestItem(t, r, "INV010")
	fine := createTestItem(t, r, "INV011")

	due := testNow.Add(2 * time.Hour)
	_, err := r.BookItem(ctx, BookItemInput{ItemID: late.ID, UserID: u.ID, ActorID: u.ID, ExpectedReturn: &due})
	require.NoError(t, err)
	_, err = r.BookItem(ctx, BookItemInput{ItemID: fine.ID, UserID: u.ID, ActorID: u.ID})
	require.NoError(t, err)

	r.Now = func() time.Time { return testNow.Add(5 * time.Hour) }
	n, err := r.RefreshOverdue(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	page, err := r.ListBookings(ctx, BookingsQuery{Status: "open"})
	require.NoError(t, err)
	require.Len(t, page.Bookings, 2)
	byItem := map[string]BookingRow{}
	for _, row := range page.Bookings {
		byItem[row.ItemID] = row
	}
	assert.Equal(t, models.BookingOverdue, byItem[late.ID].Status)
	assert.Equal(t, inventory.Overdue, byItem[late.ID].Timeliness)
	assert.Equal(t, inventory.OnTime, byItem[fine.ID].Timeliness)

	// overdue bookings can still be returned
	_, err = r.ReturnBooking(ctx, ReturnBookingInput{BookingID: byItem[late.ID].ID, ActorID: u.ID})
	require.NoError(t, err)
}

func TestCheckItemConsistency_ReportsDrift(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	it := createTestItem(t, r, "DRIFT-1")

	require.NoError(t, r.DB.Model(&models.InventoryItem{}).Where("id = ?", it.ID).Update("status", models.ItemBooked).Error)

	issues, err := r.CheckItemConsistency(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "DRIFT-1", issues[0].Barcode)
	assert.EqualValues(t, 0, issues[0].OpenBookings)
}

func TestItemsAdmin(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	it := createTestItem(t, r, "INV020")
	spare := createTestItem(t, r, "INV021")

	assert.ErrorIs(t, r.CreateItem(ctx, &models.InventoryItem{Barcode: "INV020", Name: "dup"}), ErrDuplicate)
	assert.ErrorIs(t, r.CreateItem(ctx, &models.InventoryItem{Barcode: "X", Name: "x", Status: models.ItemBooked}), ErrInvalidInput)

	res, err := r.ListItems(ctx, ItemsQuery{Search: "inv02"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)

	b, err := r.BookItem(ctx, BookItemInput{ItemID: it.ID, UserID: u.ID, ActorID: u.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, r.DeleteItem(ctx, it.ID), ErrItemBooked)

	stats, err := r.InventoryStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.Booked)
	assert.EqualValues(t, 1, stats.Available)

	// a returned item keeps its ledger and cannot be deleted
	_, err = r.ReturnBooking(ctx, ReturnBookingInput{BookingID: b.ID, ActorID: u.ID})
	require.NoError(t, err)
	assert.ErrorIs(t, r.DeleteItem(ctx, it.ID), ErrItemHasHistory)
	page, err := r.ListBookings(ctx, BookingsQuery{ItemID: it.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	_, err = r.FindItemByID(ctx, it.ID)
	require.NoError(t, err)

	cats, err := r.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"radio"}, cats)

	require.NoError(t, r.DeleteItem(ctx, spare.ID))
	_, err = r.FindItemByID(ctx, spare.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

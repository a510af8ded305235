package db

import (
	"context"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerops/models"
)

func setupKit(t *testing.T, r *Repo, barcodes ...string) (*models.InventoryKit, []*models.InventoryItem) {
	t.Helper()
	ctx := context.Background()
	k := &models.InventoryKit{Name: "First aid bag"}
	require.NoError(t, r.CreateKit(ctx, k))
	var items []*models.InventoryItem
	for _, bc := range barcodes {
		it := createTestItem(t, r, bc)
		require.NoError(t, r.AddKitMember(ctx, k.ID, it.ID))
		items = append(items, it)
	}
	return k, items
}

func TestKitMembers(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	k, items := setupKit(t, r, "K-1", "K-2")

	assert.ErrorIs(t, r.AddKitMember(ctx, k.ID, items[0].ID), ErrDuplicate)
	assert.ErrorIs(t, r.AddKitMember(ctx, k.ID, "missing"), ErrNotFound)
	assert.ErrorIs(t, r.CreateKit(ctx, &models.InventoryKit{Name: "First aid bag"}), ErrDuplicate)

	got, err := r.GetKit(ctx, k.ID)
	require.NoError(t, err)
	require.Len(t, got.Members, 2)
	require.NotNil(t, got.Members[0].Item)

	require.NoError(t, r.RemoveKitMember(ctx, k.ID, items[1].ID))
	assert.ErrorIs(t, r.RemoveKitMember(ctx, k.ID, items[1].ID), ErrNotFound)
}

func TestBookKit_SkipsUnavailableMembers(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	k, items := setupKit(t, r, "K-1", "K-2", "K-3")

	// K-2 is out on its own booking
	_, err := r.BookItem(ctx, BookItemInput{ItemID: items[1].ID, UserID: u.ID, ActorID: u.ID})
	require.NoError(t, err)

	res, err := r.BookKit(ctx, BookKitInput{KitID: k.ID, UserID: u.ID, ActorID: u.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"K-1", "K-3"}, res.Processed)
	assert.Empty(t, res.Failed)

	page, err := r.ListBookings(ctx, BookingsQuery{Status: "open"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)

	_, err = r.BookKit(ctx, BookKitInput{KitID: k.ID, UserID: u.ID, ActorID: u.ID})
	assert.ErrorIs(t, err, ErrNothingToBook)

	assert.ErrorIs(t, r.DeleteKit(ctx, k.ID), ErrKitInUse)
}

func TestBookKit_PartialFailureKeepsEarlierBookings(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	k, items := setupKit(t, r, "K-1", "K-2")

	// drift: K-2 says available but the ledger still has an open booking
	require.NoError(t, r.DB.Create(&models.InventoryBooking{
		ItemID: items[1].ID, UserID: u.ID, Status: models.BookingActive, CreatedAt: testNow,
	}).Error)

	res, err := r.BookKit(ctx, BookKitInput{KitID: k.ID, UserID: u.ID, ActorID: u.ID})
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)
	assert.ErrorIs(t, merr.Errors[0], ErrItemNotAvailable)
	assert.Equal(t, []string{"K-1"}, res.Processed)
	assert.Equal(t, []string{"K-2"}, res.Failed)

	got, err := r.FindItemByID(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemBooked, got.Status)
}

func TestReturnKit(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	k, items := setupKit(t, r, "K-1", "K-2")

	_, err := r.ReturnKit(ctx, ReturnKitInput{KitID: k.ID, ActorID: u.ID})
	assert.ErrorIs(t, err, ErrNothingToReturn)

	_, err = r.BookKit(ctx, BookKitInput{KitID: k.ID, UserID: u.ID, ActorID: u.ID})
	require.NoError(t, err)

	res, err := r.ReturnKit(ctx, ReturnKitInput{KitID: k.ID, ActorID: u.ID, Notes: "all back"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"K-1", "K-2"}, res.Processed)
	for _, it := range items {
		got, err := r.FindItemByID(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ItemAvailable, got.Status)
	}

	require.NoError(t, r.DeleteKit(ctx, k.ID))
	_, err = r.GetKit(ctx, k.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKitOperationsSkipForeignDepartments(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "a@example.org", models.RoleShiftLeader)
	north := &models.Department{Name: "North"}
	south := &models.Department{Name: "South"}
	require.NoError(t, r.CreateDepartment(ctx, north))
	require.NoError(t, r.CreateDepartment(ctx, south))

	k, items := setupKit(t, r, "K-1")
	foreign := &models.InventoryItem{Barcode: "S-1", Name: "Tent", DepartmentID: &south.ID}
	require.NoError(t, r.CreateItem(ctx, foreign))
	require.NoError(t, r.AddKitMember(ctx, k.ID, foreign.ID))

	scope := []string{north.ID}
	res, err := r.BookKit(ctx, BookKitInput{KitID: k.ID, UserID: u.ID, ActorID: u.ID, DepartmentIDs: scope})
	require.ErrorIs(t, err, ErrForbiddenDepartment)
	assert.Equal(t, []string{"K-1"}, res.Processed)
	assert.Equal(t, []string{"S-1"}, res.Failed)

	got, err := r.FindItemByID(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, got.Status)

	// a wider scope books the rest; a narrow one cannot return it
	_, err = r.BookKit(ctx, BookKitInput{KitID: k.ID, UserID: u.ID, ActorID: u.ID})
	require.NoError(t, err)
	res, err = r.ReturnKit(ctx, ReturnKitInput{KitID: k.ID, ActorID: u.ID, DepartmentIDs: scope})
	require.ErrorIs(t, err, ErrForbiddenDepartment)
	assert.Equal(t, []string{"K-1"}, res.Processed)
	assert.Equal(t, []string{"S-1"}, res.Failed)

	got, err = r.FindItemByID(ctx, items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemAvailable, got.Status)

	southKit := &models.InventoryKit{Name: "South bag", DepartmentID: &south.ID}
	require.NoError(t, r.CreateKit(ctx, southKit))
	kits, err := r.ListKits(ctx, scope)
	require.NoError(t, err)
	require.Len(t, kits, 1)
	assert.Equal(t, k.ID, kits[0].ID)
	all, err := r.ListKits(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

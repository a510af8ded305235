package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerops/inventory"
	"volunteerops/models"
)

func TestNoteWorkflow(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	u := createTestUser(t, r, "a@example.org", models.RoleShiftLeader)
	it := createTestItem(t, r, "N-1")

	n := &models.InventoryNote{ItemID: it.ID, AuthorID: u.ID, NoteType: "damage", Priority: "high", Content: "antenna bent"}
	require.NoError(t, r.CreateNote(ctx, n))
	assert.Equal(t, models.NotePending, n.Status)

	r.Now = func() time.Time { return testNow.Add(time.Hour) }
	got, err := r.TransitionNote(ctx, NoteTransitionInput{NoteID: n.ID, To: models.NoteResolved, ActorID: u.ID, Comment: "replaced"})
	require.NoError(t, err)
	assert.Equal(t, models.NoteResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)

	_, err = r.TransitionNote(ctx, NoteTransitionInput{NoteID: n.ID, To: models.NotePending, ActorID: u.ID})
	assert.ErrorIs(t, err, inventory.ErrInvalidTransition)

	stored, err := r.FindNoteByID(ctx, n.ID)
	require.NoError(t, err)
	hist, err := inventory.ParseHistory(stored.StatusHistory)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, models.NotePending, hist[1].From)
	assert.Equal(t, models.NoteResolved, hist[1].To)
	assert.Equal(t, "replaced", hist[1].Comment)

	_, err = r.TransitionNote(ctx, NoteTransitionInput{NoteID: n.ID, To: models.NoteArchived, ActorID: u.ID})
	require.NoError(t, err)

	open, err := r.ListNotes(ctx, NotesQuery{ItemID: it.ID})
	require.NoError(t, err)
	assert.Empty(t, open)
	archived, err := r.ListNotes(ctx, NotesQuery{Status: models.NoteArchived})
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestCreateNote_Validation(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	it := createTestItem(t, r, "N-2")

	assert.ErrorIs(t, r.CreateNote(ctx, &models.InventoryNote{ItemID: it.ID, Content: "  "}), ErrInvalidInput)
	assert.ErrorIs(t, r.CreateNote(ctx, &models.InventoryNote{ItemID: it.ID, Content: "x", Priority: "meh"}), ErrInvalidInput)
	assert.ErrorIs(t, r.CreateNote(ctx, &models.InventoryNote{ItemID: "missing", Content: "x"}), ErrNotFound)
}

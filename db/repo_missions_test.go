package db

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerops/models"
)

func setupOpenShift(t *testing.T, r *Repo, max int) (*models.Mission, *models.Shift) {
	t.Helper()
	ctx := context.Background()
	m := &models.Mission{Title: "Flood response", StartsAt: testNow, EndsAt: testNow.Add(24 * time.Hour)}
	require.NoError(t, r.CreateMission(ctx, m))
	require.NoError(t, r.UpdateMissionStatus(ctx, m.ID, models.MissionOpen))
	s := &models.Shift{MissionID: m.ID, StartsAt: testNow, EndsAt: testNow.Add(4 * time.Hour), MaxVolunteers: max}
	require.NoError(t, r.CreateShift(ctx, s))
	return m, s
}

func TestMissionStatusTransitions(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	m := &models.Mission{Title: "Drill", StartsAt: testNow, EndsAt: testNow.Add(time.Hour)}
	require.NoError(t, r.CreateMission(ctx, m))
	assert.Equal(t, models.MissionDraft, m.Status)

	assert.ErrorIs(t, r.UpdateMissionStatus(ctx, m.ID, models.MissionCompleted), ErrInvalidState)
	require.NoError(t, r.UpdateMissionStatus(ctx, m.ID, models.MissionOpen))
	require.NoError(t, r.UpdateMissionStatus(ctx, m.ID, models.MissionClosed))
	require.NoError(t, r.UpdateMissionStatus(ctx, m.ID, models.MissionCompleted))

	err := r.CreateShift(ctx, &models.Shift{MissionID: m.ID, StartsAt: testNow, EndsAt: testNow.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrMissionNotOpen)

	assert.ErrorIs(t, r.CreateMission(ctx, &models.Mission{Title: "bad", StartsAt: testNow, EndsAt: testNow}), ErrInvalidInput)
}

func TestApplyAndApprove_RespectsCapacity(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	leader := createTestUser(t, r, "lead@example.org", models.RoleShiftLeader)
	a := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	b := createTestUser(t, r, "b@example.org", models.RoleVolunteer)
	_, s := setupOpenShift(t, r, 1)

	pa, err := r.ApplyToShift(ctx, s.ID, a.ID, "")
	require.NoError(t, err)
	_, err = r.ApplyToShift(ctx, s.ID, a.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyApplied)
	pb, err := r.ApplyToShift(ctx, s.ID, b.ID, "")
	require.NoError(t, err)

	require.NoError(t, r.DecideParticipation(ctx, pa.ID, models.ParticipationApproved, leader.ID))
	assert.ErrorIs(t, r.DecideParticipation(ctx, pb.ID, models.ParticipationApproved, leader.ID), ErrShiftFull)
	require.NoError(t, r.DecideParticipation(ctx, pb.ID, models.ParticipationRejected, leader.ID))
	assert.ErrorIs(t, r.DecideParticipation(ctx, pb.ID, models.ParticipationApproved, leader.ID), ErrInvalidState)

	ps, err := r.ListParticipation(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, ps, 2)
}

func TestApplyToShift_MissionMustBeOpen(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	a := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	m, s := setupOpenShift(t, r, 0)
	require.NoError(t, r.UpdateMissionStatus(ctx, m.ID, models.MissionClosed))

	_, err := r.ApplyToShift(ctx, s.ID, a.ID, "")
	assert.ErrorIs(t, err, ErrMissionNotOpen)
}

func TestAttendanceAndLeaderboard(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	leader := createTestUser(t, r, "lead@example.org", models.RoleShiftLeader)
	a := createTestUser(t, r, "a@example.org", models.RoleVolunteer)
	b := createTestUser(t, r, "b@example.org", models.RoleVolunteer)
	_, s := setupOpenShift(t, r, 0)

	pa, err := r.ApplyToShift(ctx, s.ID, a.ID, "")
	require.NoError(t, err)
	pb, err := r.ApplyToShift(ctx, s.ID, b.ID, "")
	require.NoError(t, err)

	// attendance needs an approved request
	assert.ErrorIs(t, r.RecordAttendance(ctx, pa.ID, true, nil), ErrInvalidState)

	require.NoError(t, r.DecideParticipation(ctx, pa.ID, models.ParticipationApproved, leader.ID))
	require.NoError(t, r.DecideParticipation(ctx, pb.ID, models.ParticipationApproved, leader.ID))

	neg := decimal.NewFromInt(-1)
	assert.ErrorIs(t, r.RecordAttendance(ctx, pa.ID, true, &neg), ErrInvalidInput)

	require.NoError(t, r.RecordAttendance(ctx, pa.ID, true, nil))
	half := decimal.RequireFromString("1.5")
	require.NoError(t, r.RecordAttendance(ctx, pb.ID, true, &half))

	board, err := r.Leaderboard(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, a.ID, board[0].UserID)
	assert.Equal(t, 1, board[0].Rank)
	assert.True(t, decimal.NewFromInt(4).Equal(board[0].Hours))
	assert.EqualValues(t, 45, board[0].Points)
	assert.Equal(t, "a@example.org", board[0].Username)
	assert.Equal(t, 2, board[1].Rank)
	assert.EqualValues(t, 20, board[1].Points)

	mine, err := r.ListMyParticipation(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Shift)
	require.NotNil(t, mine[0].Shift.Mission)
}

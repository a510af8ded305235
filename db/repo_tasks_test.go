package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volunteerops/models"
)

func TestTaskLifecycle(t *testing.T) {
	r := setupTestRepo(t)
	ctx := context.Background()
	lead := createTestUser(t, r, "lead@example.org", models.RoleShiftLeader)
	vol := createTestUser(t, r, "vol@example.org", models.RoleVolunteer)
	m := &models.Mission{Title: "Cleanup", StartsAt: testNow, EndsAt: testNow.Add(4 * time.Hour)}
	require.NoError(t, r.CreateMission(ctx, m))

	assert.ErrorIs(t, r.CreateTask(ctx, &models.Task{Title: " "}), ErrInvalidInput)
	assert.ErrorIs(t, r.CreateTask(ctx, &models.Task{Title: "x", Priority: "urgent"}), ErrInvalidInput)
	missing := "missing"
	assert.ErrorIs(t, r.CreateTask(ctx, &models.Task{Title: "x", MissionID: &missing}), ErrNotFound)

	due := testNow.Add(24 * time.Hour)
	task := &models.Task{Title: "Buy gloves", MissionID: &m.ID, AssigneeID: &vol.ID, DueAt: &due, CreatedBy: lead.ID, Status: models.TaskDone}
	require.NoError(t, r.CreateTask(ctx, task))
	assert.Equal(t, models.TaskTodo, task.Status)
	assert.Equal(t, models.TaskNormal, task.Priority)
	require.NoError(t, r.CreateTask(ctx, &models.Task{Title: "Print flyers", CreatedBy: lead.ID}))

	mine, err := r.ListTasks(ctx, TasksQuery{AssigneeID: vol.ID})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Mission)
	assert.Equal(t, "Cleanup", mine[0].Mission.Title)

	all, err := r.ListTasks(ctx, TasksQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Buy gloves", all[0].Title) // due date first

	_, err = r.UpdateTaskStatus(ctx, task.ID, models.TaskTodo)
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := r.UpdateTaskStatus(ctx, task.ID, models.TaskDone)
	require.NoError(t, err)
	assert.Equal(t, models.TaskDone, got.Status)
	assert.NotNil(t, got.CompletedAt)

	open, err := r.ListTasks(ctx, TasksQuery{OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	// reopening clears the completion time
	got, err = r.UpdateTaskStatus(ctx, task.ID, models.TaskInProgress)
	require.NoError(t, err)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, r.AssignTask(ctx, task.ID, nil))
	got, err = r.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AssigneeID)

	require.NoError(t, r.SetUserActive(ctx, vol.ID, false))
	assert.ErrorIs(t, r.AssignTask(ctx, task.ID, &vol.ID), ErrInvalidState)
	assert.ErrorIs(t, r.AssignTask(ctx, "missing", &lead.ID), ErrNotFound)

	require.NoError(t, r.DeleteTask(ctx, task.ID))
	assert.ErrorIs(t, r.DeleteTask(ctx, task.ID), ErrNotFound)
}

func TestTaskTransitions(t *testing.T) {
	assert.Equal(t, []string{models.TaskInProgress}, TaskTransitions(models.TaskDone))
	assert.Contains(t, TaskTransitions(models.TaskTodo), models.TaskCanceled)
	assert.Empty(t, TaskTransitions("unknown"))
}

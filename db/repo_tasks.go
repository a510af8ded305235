package db

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"volunteerops/models"
)

var taskTransitions = map[string][]string{
	models.TaskTodo:       {models.TaskInProgress, models.TaskDone, models.TaskCanceled},
	models.TaskInProgress: {models.TaskTodo, models.TaskDone, models.TaskCanceled},
	models.TaskDone:       {models.TaskInProgress},
	models.TaskCanceled:   {models.TaskTodo},
}

// TaskTransitions lists the states a task may move to from status.
func TaskTransitions(status string) []string { return taskTransitions[status] }

func (r *Repo) CreateTask(ctx context.Context, t *models.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	if t.Priority == "" {
		t.Priority = models.TaskNormal
	}
	if t.Title == "" || !lo.Contains(models.TaskPriorities, t.Priority) {
		return ErrInvalidInput
	}
	t.Status = models.TaskTodo
	if err := r.checkTaskRefs(ctx, t.MissionID, t.AssigneeID); err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Omit(clause.Associations).Create(t).Error
}

func (r *Repo) checkTaskRefs(ctx context.Context, missionID, assigneeID *string) error {
	if missionID != nil {
		if _, err := r.GetMission(ctx, *missionID); err != nil {
			return err
		}
	}
	if assigneeID != nil {
		u, err := r.FindUserByID(ctx, *assigneeID)
		if err != nil {
			return err
		}
		if !u.IsActive {
			return ErrInvalidState
		}
	}
	return nil
}

func (r *Repo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var t models.Task
	if err := r.DB.WithContext(ctx).Preload("Assignee").Preload("Mission").First(&t, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

type TasksQuery struct {
	Status     string
	AssigneeID string
	MissionID  string
	OpenOnly   bool // todo + in_progress
}

func (r *Repo) ListTasks(ctx context.Context, q TasksQuery) ([]models.Task, error) {
	tx := r.DB.WithContext(ctx).Preload("Assignee").Preload("Mission")
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.OpenOnly {
		tx = tx.Where("status IN ?", []string{models.TaskTodo, models.TaskInProgress})
	}
	if q.AssigneeID != "" {
		tx = tx.Where("assignee_id = ?", q.AssigneeID)
	}
	if q.MissionID != "" {
		tx = tx.Where("mission_id = ?", q.MissionID)
	}
	var ts []models.Task
	// 有截止日期的排前面
	err := tx.Order("due_at IS NULL, due_at, created_at").Find(&ts).Error
	return ts, err
}

// AssignTask sets or clears (nil) the assignee.
func (r *Repo) AssignTask(ctx context.Context, id string, assigneeID *string) error {
	if err := r.checkTaskRefs(ctx, nil, assigneeID); err != nil {
		return err
	}
	res := r.DB.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).
		Updates(map[string]any{"assignee_id": assigneeID, "updated_at": r.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTaskStatus moves a task along taskTransitions; completed_at follows the done state.
func (r *Repo) UpdateTaskStatus(ctx context.Context, id, status string) (*models.Task, error) {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t models.Task
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&t, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if !lo.Contains(taskTransitions[t.Status], status) {
			return ErrInvalidState
		}
		now := r.now()
		upd := map[string]any{"status": status, "updated_at": now, "completed_at": nil}
		if status == models.TaskDone {
			upd["completed_at"] = now
		}
		return tx.Model(&models.Task{}).Where("id = ?", id).Updates(upd).Error
	})
	if err != nil {
		return nil, err
	}
	return r.GetTask(ctx, id)
}

func (r *Repo) DeleteTask(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Delete(&models.Task{ID: id})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

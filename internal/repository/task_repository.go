package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/bekhruz1723-collab/sTaskManager/internal/model"
)

// ErrAccessDenied is returned when a mutation targets a row the acting
// user does not own, or a row that does not exist. The two cases are not
// distinguished so nothing about the real owner leaks.
var ErrAccessDenied = errors.New("access denied")

// CreateTaskInput carries everything needed to insert a root task with
// its subtasks.
type CreateTaskInput struct {
	Title       string
	Description string
	Priority    model.Priority
	Deadline    *time.Time
	Subtasks    []string
}

// TaskRepository handles the tasks table for both front ends.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts the root row and one row per non-blank subtask title in a
// single transaction, so a failure never leaves subtasks pointing at a
// root that was not committed.
func (r *TaskRepository) Create(ctx context.Context, userID uint, input CreateTaskInput) (*model.Task, error) {
	task := model.Task{
		Title:       input.Title,
		Description: input.Description,
		Status:      model.StatusNotStarted,
		Priority:    input.Priority,
		Deadline:    input.Deadline,
		UserID:      userID,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		for _, raw := range input.Subtasks {
			title := strings.TrimSpace(raw)
			if title == "" {
				continue
			}
			sub := model.Task{
				Title:    title,
				Status:   model.StatusNotStarted,
				Priority: model.PriorityMedium,
				UserID:   userID,
				ParentID: &task.ID,
			}
			if err := tx.Create(&sub).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	return &task, nil
}

// ListRoots returns the owner's root tasks, newest first.
func (r *TaskRepository) ListRoots(ctx context.Context, userID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND parent_id IS NULL", userID).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListSubtasks returns the subtasks of a root in creation order.
func (r *TaskRepository) ListSubtasks(ctx context.Context, rootID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("parent_id = ?", rootID).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// owned loads the row and confirms ownership before any mutation.
func (r *TaskRepository) owned(ctx context.Context, id, userID uint) (*model.Task, error) {
	task, err := r.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task.UserID != userID {
		return nil, ErrAccessDenied
	}
	return task, nil
}

// ToggleRoot flips a root task between done and not_started and cascades
// the new status and completion timestamp to every subtask. A stored
// in_progress row flips to done; in_progress is never a toggle target.
func (r *TaskRepository) ToggleRoot(ctx context.Context, id, userID uint) (model.Status, error) {
	task, err := r.owned(ctx, id, userID)
	if err != nil {
		return "", err
	}

	newStatus, completedAt := flipped(task.Status)

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":       newStatus,
			"completed_at": completedAt,
		}
		if err := tx.Model(&model.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Model(&model.Task{}).Where("parent_id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return "", fmt.Errorf("toggle task: %w", err)
	}

	return newStatus, nil
}

// ToggleSubtask flips a single row, leaving siblings and the parent's
// stored status alone.
func (r *TaskRepository) ToggleSubtask(ctx context.Context, id, userID uint) (model.Status, error) {
	task, err := r.owned(ctx, id, userID)
	if err != nil {
		return "", err
	}

	newStatus, completedAt := flipped(task.Status)

	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       newStatus,
		"completed_at": completedAt,
	}).Error; err != nil {
		return "", fmt.Errorf("toggle subtask: %w", err)
	}

	return newStatus, nil
}

// Delete removes the row; the compound predicate makes root deletes take
// their subtasks along while a subtask delete touches only itself.
func (r *TaskRepository) Delete(ctx context.Context, id, userID uint) error {
	if _, err := r.owned(ctx, id, userID); err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).
		Where("id = ? OR parent_id = ?", id, id).
		Delete(&model.Task{}).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func flipped(current model.Status) (model.Status, *time.Time) {
	if current == model.StatusDone {
		return model.StatusNotStarted, nil
	}
	now := time.Now().UTC()
	return model.StatusDone, &now
}

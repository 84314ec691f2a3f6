package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bekhruz1723-collab/sTaskManager/internal/model"
	"github.com/bekhruz1723-collab/sTaskManager/internal/repository"
)

var ErrTitleRequired = errors.New("title is required")

// TaskInput represents data required to create a root task.
type TaskInput struct {
	Title       string
	Description string
	Priority    model.Priority
	Deadline    *time.Time
	Subtasks    []string
}

// TaskWithSubtasks is a root task together with its subtasks and the
// display status derived from them.
type TaskWithSubtasks struct {
	model.Task
	Subtasks       []model.Task `json:"subtasks"`
	ComputedStatus model.Status `json:"computed_status"`
}

// TaskService wraps task-related business logic shared by the web and bot
// front ends.
type TaskService struct {
	tasks *repository.TaskRepository
}

func NewTaskService(tasks *repository.TaskRepository) *TaskService {
	return &TaskService{tasks: tasks}
}

// CreateTask validates the input and inserts the root task with its
// subtasks. Unknown priorities fall back to medium, like a form that sent
// nothing.
func (s *TaskService) CreateTask(ctx context.Context, userID uint, input TaskInput) (*model.Task, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return nil, ErrTitleRequired
	}
	if !model.ValidPriority(input.Priority) {
		input.Priority = model.PriorityMedium
	}

	return s.tasks.Create(ctx, userID, repository.CreateTaskInput{
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
		Priority:    input.Priority,
		Deadline:    input.Deadline,
		Subtasks:    input.Subtasks,
	})
}

// ListTasks returns the owner's root tasks, newest first, each with its
// subtasks in creation order and the computed status.
func (s *TaskService) ListTasks(ctx context.Context, userID uint) ([]TaskWithSubtasks, error) {
	roots, err := s.tasks.ListRoots(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]TaskWithSubtasks, 0, len(roots))
	for _, root := range roots {
		subs, err := s.tasks.ListSubtasks(ctx, root.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, TaskWithSubtasks{
			Task:           root,
			Subtasks:       subs,
			ComputedStatus: model.ComputedStatus(root, subs),
		})
	}
	return views, nil
}

// GetTask returns a single row by id; callers that mutate must still go
// through the ownership-checked repository operations.
func (s *TaskService) GetTask(ctx context.Context, id uint) (*model.Task, error) {
	return s.tasks.FindByID(ctx, id)
}

// GetTaskView loads one root task with subtasks and computed status,
// rejecting rows the user does not own.
func (s *TaskService) GetTaskView(ctx context.Context, userID, id uint) (*TaskWithSubtasks, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, repository.ErrAccessDenied
	}

	subs, err := s.tasks.ListSubtasks(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return &TaskWithSubtasks{
		Task:           *task,
		Subtasks:       subs,
		ComputedStatus: model.ComputedStatus(*task, subs),
	}, nil
}

// ToggleRoot flips a root task and cascades to its subtasks.
func (s *TaskService) ToggleRoot(ctx context.Context, userID, id uint) (model.Status, error) {
	return s.tasks.ToggleRoot(ctx, id, userID)
}

// ToggleSubtask flips a single subtask.
func (s *TaskService) ToggleSubtask(ctx context.Context, userID, id uint) (model.Status, error) {
	return s.tasks.ToggleSubtask(ctx, id, userID)
}

// DeleteTask removes a task; for roots the subtasks go with it.
func (s *TaskService) DeleteTask(ctx context.Context, userID, id uint) error {
	return s.tasks.Delete(ctx, id, userID)
}

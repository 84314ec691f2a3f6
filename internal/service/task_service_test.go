package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bekhruz1723-collab/sTaskManager/internal/model"
	"github.com/bekhruz1723-collab/sTaskManager/internal/repository"
)

func TestCreateTaskValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTaskService(repository.NewTaskRepository(db))
	user := newTestUser(t, db, "alice")
	ctx := context.Background()

	if _, err := svc.CreateTask(ctx, user.ID, TaskInput{Title: "   "}); !errors.Is(err, ErrTitleRequired) {
		t.Errorf("blank title: got %v, want ErrTitleRequired", err)
	}

	task, err := svc.CreateTask(ctx, user.ID, TaskInput{
		Title:       "  Plan trip  ",
		Description: "  pack bags  ",
		Priority:    model.Priority("urgent"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Title != "Plan trip" {
		t.Errorf("title not trimmed: %q", task.Title)
	}
	if task.Description != "pack bags" {
		t.Errorf("description not trimmed: %q", task.Description)
	}
	if task.Priority != model.PriorityMedium {
		t.Errorf("unknown priority should fall back to medium, got %s", task.Priority)
	}
}

func TestListTasksComputesStatus(t *testing.T) {
	db := setupTestDB(t)
	taskRepo := repository.NewTaskRepository(db)
	svc := NewTaskService(taskRepo)
	user := newTestUser(t, db, "alice")
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, user.ID, TaskInput{
		Title:    "Mixed",
		Subtasks: []string{"done one", "open one"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	subs, _ := taskRepo.ListSubtasks(ctx, task.ID)
	if _, err := svc.ToggleSubtask(ctx, user.ID, subs[0].ID); err != nil {
		t.Fatalf("toggle subtask: %v", err)
	}

	views, err := svc.ListTasks(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d tasks, want 1", len(views))
	}
	if views[0].ComputedStatus != model.StatusInProgress {
		t.Errorf("computed status = %s, want %s", views[0].ComputedStatus, model.StatusInProgress)
	}
	if views[0].Status != model.StatusNotStarted {
		t.Errorf("stored status changed: %s", views[0].Status)
	}
	if len(views[0].Subtasks) != 2 {
		t.Errorf("got %d subtasks, want 2", len(views[0].Subtasks))
	}
}

func TestGetTaskViewOwnership(t *testing.T) {
	db := setupTestDB(t)
	svc := NewTaskService(repository.NewTaskRepository(db))
	owner := newTestUser(t, db, "alice")
	intruder := newTestUser(t, db, "mallory")
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, owner.ID, TaskInput{Title: "Private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.GetTaskView(ctx, owner.ID, task.ID); err != nil {
		t.Errorf("owner view: %v", err)
	}
	if _, err := svc.GetTaskView(ctx, intruder.ID, task.ID); !errors.Is(err, repository.ErrAccessDenied) {
		t.Errorf("foreign view: got %v, want ErrAccessDenied", err)
	}
}

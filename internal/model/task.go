package model

import "time"

// Status is a task's stored completion state.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Priority levels a task can carry.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriority reports whether p is one of the known levels.
func ValidPriority(p Priority) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Task is a single row in the tasks table. A task with a nil ParentID is a
// root task; subtasks point at their root via ParentID and stay one level
// deep by convention.
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	Status      Status     `gorm:"type:varchar(20);default:not_started" json:"status"`
	Priority    Priority   `gorm:"type:varchar(20);default:medium" json:"priority"`
	Deadline    *time.Time `gorm:"type:date" json:"deadline,omitempty"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	ParentID    *uint      `gorm:"index" json:"parent_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsRoot reports whether the task has no parent.
func (t Task) IsRoot() bool {
	return t.ParentID == nil
}

// ComputedStatus derives the display status of a root task from its
// subtasks. With no subtasks the stored status stands; otherwise the count
// of done subtasks decides, regardless of what the root row itself says.
// The result is presentation-only and never written back.
func ComputedStatus(root Task, subtasks []Task) Status {
	if len(subtasks) == 0 {
		return root.Status
	}
	done := 0
	for _, st := range subtasks {
		if st.Status == StatusDone {
			done++
		}
	}
	switch {
	case done == 0:
		return StatusNotStarted
	case done == len(subtasks):
		return StatusDone
	default:
		return StatusInProgress
	}
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// Task statuses double as kanban board columns.
const (
	TaskStatusBacklog    = "backlog"
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
)

// Task priorities.
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
	TaskPriorityUrgent = "urgent"
)

// Task is a unit of work on a project's board and roadmap.
type Task struct {
	BaseModel

	ProjectID   string         `gorm:"type:uuid;index;not null" json:"project_id"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"type:varchar(32);default:'todo';index" json:"status"`
	Position    int            `gorm:"default:0" json:"position"`
	Priority    string         `gorm:"type:varchar(32);default:'medium'" json:"priority"`
	Labels      datatypes.JSON `json:"labels"`

	DueAt *time.Time `gorm:"index" json:"due_at"`

	// Roadmap placement; both must be set for the task to appear on the roadmap.
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`

	Subtasks []Subtask `gorm:"constraint:OnDelete:CASCADE" json:"subtasks,omitempty"`
}

// ValidTaskStatus reports whether status names a known board column.
func ValidTaskStatus(status string) bool {
	switch status {
	case TaskStatusBacklog, TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// ValidTaskPriority reports whether priority is a known level.
func ValidTaskPriority(priority string) bool {
	switch priority {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return true
	}
	return false
}

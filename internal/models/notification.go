package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types produced by the due-date scanner.
const (
	NotificationTaskDueSoon = "task.due_soon"
	NotificationTaskOverdue = "task.overdue"
)

// Notification represents an in-app notification.
type Notification struct {
	BaseModel

	Type     string         `gorm:"type:varchar(64);not null;index" json:"type"`
	Title    string         `gorm:"type:varchar(255);not null" json:"title"`
	Message  string         `gorm:"type:text" json:"message"`
	Severity string         `gorm:"type:varchar(32);default:'info'" json:"severity"`
	TaskID   string         `gorm:"type:uuid;index" json:"task_id,omitempty"`
	Metadata datatypes.JSON `json:"metadata"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}

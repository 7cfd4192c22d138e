package models

// Subtask is a child unit of work under a task. Description holds rich-text
// HTML; inline images are stored as SubtaskImage rows and referenced from the
// HTML via data-image-id attributes.
type Subtask struct {
	BaseModel

	TaskID      string `gorm:"type:uuid;index;not null" json:"task_id"`
	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Done        bool   `gorm:"default:false" json:"done"`
	Position    int    `gorm:"default:0" json:"position"`

	Images []SubtaskImage `gorm:"constraint:OnDelete:CASCADE" json:"images,omitempty"`
}

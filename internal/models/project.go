package models

// Project groups tasks under a single planning unit.
type Project struct {
	BaseModel

	Name        string `gorm:"type:varchar(255);not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Color       string `gorm:"type:varchar(32);default:'slate'" json:"color"`
	Archived    bool   `gorm:"default:false;index" json:"archived"`

	Tasks []Task `gorm:"constraint:OnDelete:CASCADE" json:"tasks,omitempty"`
}

package models

// SubtaskImage stores one inline image extracted from a subtask description.
// The base64 payload lives only here (and in the disposable file cache); the
// stored description HTML references it by id.
type SubtaskImage struct {
	BaseModel

	SubtaskID  string `gorm:"type:uuid;index;not null" json:"subtask_id"`
	Filename   string `gorm:"type:varchar(255);not null" json:"filename"`
	MimeType   string `gorm:"type:varchar(64);not null" json:"mime_type"`
	Base64Data string `gorm:"type:text" json:"-"`
	Order      int    `gorm:"column:display_order;default:0" json:"order"`
}

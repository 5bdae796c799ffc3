package model

import "time"

// Document holds the extracted text of one uploaded file. Generation only
// consults the newest row per user; older rows stay stored but unused.
type Document struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Username string    `gorm:"size:100;not null;index" json:"username"`
	Filename string    `gorm:"size:255;not null" json:"filename"`
	Content  string    `gorm:"type:longtext" json:"content"`
	Created  time.Time `gorm:"autoCreateTime" json:"created"`
}

func (Document) TableName() string {
	return "files"
}

package model

import "time"

const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// ChatTurn is one recorded conversation message. Rows are append-only; the
// only mutation is the bulk delete performed by clear-history.
type ChatTurn struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Username string    `gorm:"size:100;not null;index" json:"username"`
	Role     string    `gorm:"size:10;not null" json:"role"`
	Message  string    `gorm:"type:longtext;not null" json:"message"`
	Created  time.Time `gorm:"autoCreateTime" json:"created"`
}

func (ChatTurn) TableName() string {
	return "messages"
}

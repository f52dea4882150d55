package model

import "time"

type Notification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index:idx_notifications_user_created,priority:2" json:"created_at"`
	UserID    uint      `gorm:"index:idx_notifications_user_created,priority:1;not null" json:"user_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	IsRead    bool      `gorm:"not null;default:false" json:"is_read"`
}

// TableName specifies the table name
func (Notification) TableName() string {
	return "notifications"
}

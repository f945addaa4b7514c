package models

import "time"

// DeliveryAttempt tracks one notification on one channel, including the
// persisted retry schedule.
type DeliveryAttempt struct {
	BaseModel

	NotificationID string     `gorm:"type:varchar(36);not null;index" json:"notification_id"`
	UserID         string     `gorm:"type:varchar(128);index" json:"user_id"`
	Channel        string     `gorm:"type:varchar(16);not null" json:"channel"`
	Status         string     `gorm:"type:varchar(16);not null;index" json:"status"`
	Error          string     `gorm:"type:text" json:"error"`
	Position       int        `gorm:"not null;default:0" json:"position"`
	RetryCount     int        `gorm:"not null;default:0" json:"retry_count"`
	NextRetry      *time.Time `gorm:"index" json:"next_retry"`
	AttemptedAt    time.Time  `gorm:"index" json:"attempted_at"`
}

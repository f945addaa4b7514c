package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is the persisted form of a scored alert.
type Notification struct {
	BaseModel

	UserID   string         `gorm:"type:varchar(128);not null;index" json:"user_id"`
	Type     string         `gorm:"type:varchar(64);not null" json:"type"`
	Priority string         `gorm:"type:varchar(16);not null;index" json:"priority"`
	Category string         `gorm:"type:varchar(32);not null;index" json:"category"`
	Title    string         `gorm:"type:varchar(255);not null" json:"title"`
	Message  string         `gorm:"type:text" json:"message"`
	Data     datatypes.JSON `json:"data"`
	Source   string         `gorm:"type:varchar(128);index" json:"source"`
	RuleID   *string        `gorm:"type:varchar(64);index" json:"rule_id"`
	Actions  datatypes.JSON `json:"actions"`
	Channels datatypes.JSON `json:"channels"`
	Metadata datatypes.JSON `json:"metadata"`

	IsRead      bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt      *time.Time `json:"read_at"`
	IsDismissed bool       `gorm:"default:false;index" json:"is_dismissed"`
	DismissedAt *time.Time `json:"dismissed_at"`
	ExpiresAt   *time.Time `gorm:"index" json:"expires_at"`

	Attempts []DeliveryAttempt `gorm:"foreignKey:NotificationID" json:"attempts,omitempty"`
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationPreference holds one user's delivery settings as a JSON document.
// The row keyed "global" seeds new users.
type NotificationPreference struct {
	UserID    string         `gorm:"primaryKey;type:varchar(128)" json:"user_id"`
	Settings  datatypes.JSON `gorm:"not null" json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

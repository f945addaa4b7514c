package models

import (
	"time"

	"gorm.io/datatypes"
)

// AlertRule stores a declarative notification trigger.
type AlertRule struct {
	BaseModel

	Name            string         `gorm:"type:varchar(128);not null;uniqueIndex" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	IsActive        bool           `gorm:"index" json:"is_active"`
	Conditions      datatypes.JSON `json:"conditions"`
	Actions         datatypes.JSON `json:"actions"`
	Priority        string         `gorm:"type:varchar(16);not null" json:"priority"`
	Channels        datatypes.JSON `json:"channels"`
	CooldownMinutes int            `gorm:"not null;default:0" json:"cooldown_minutes"`
	MaxPerDay       int            `gorm:"not null;default:0" json:"max_per_day"`
}

// RuleExecution records one firing of a rule for a user.
type RuleExecution struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RuleID         string    `gorm:"type:varchar(64);not null;index:idx_rule_executions_rule_user,priority:1" json:"rule_id"`
	UserID         string    `gorm:"type:varchar(128);not null;index:idx_rule_executions_rule_user,priority:2" json:"user_id"`
	NotificationID string    `gorm:"type:varchar(64)" json:"notification_id"`
	ExecutedAt     time.Time `gorm:"not null;index" json:"executed_at"`
}

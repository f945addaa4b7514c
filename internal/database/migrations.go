package database

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Notification{},
		&models.DeliveryAttempt{},
		&models.AlertRule{},
		&models.RuleExecution{},
		&models.NotificationPreference{},
		&models.CacheEntry{},
		&models.RateEvent{},
		&models.SystemSetting{},
	)
}

// SeedData inserts the global preference template used for first-time users.
// An existing template is left untouched.
func SeedData(db *gorm.DB) error {
	defaults := alerting.DefaultPreferences(alerting.GlobalPreferencesID)
	payload, err := json.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("encode default preferences: %w", err)
	}

	global := models.NotificationPreference{
		UserID:   alerting.GlobalPreferencesID,
		Settings: datatypes.JSON(payload),
	}
	return db.Where(models.NotificationPreference{UserID: global.UserID}).
		Attrs(global).
		FirstOrCreate(&models.NotificationPreference{}).Error
}

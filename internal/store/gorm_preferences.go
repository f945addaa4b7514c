package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/models"
)

// GetPreferences loads stored preferences or returns alerting.ErrNotFound.
func (g *Gorm) GetPreferences(ctx context.Context, userID string) (*alerting.Preferences, error) {
	var row models.NotificationPreference
	if err := g.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error; err != nil {
		return nil, translate(err)
	}
	var prefs alerting.Preferences
	if err := json.Unmarshal(row.Settings, &prefs); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	prefs.UserID = row.UserID
	prefs.UpdatedAt = row.UpdatedAt
	return &prefs, nil
}

// SavePreferences upserts the user's preference document.
func (g *Gorm) SavePreferences(ctx context.Context, prefs alerting.Preferences) error {
	settings, err := encodeJSON(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	row := models.NotificationPreference{UserID: prefs.UserID, Settings: settings}
	if !prefs.UpdatedAt.IsZero() {
		row.UpdatedAt = prefs.UpdatedAt
	}
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"settings", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

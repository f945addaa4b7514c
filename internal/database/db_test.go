package database

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestOpenSQLiteMemoryIsIsolated(t *testing.T) {
	first := openTestDB(t)
	second := openTestDB(t)

	require.NoError(t, first.AutoMigrate(&models.SystemSetting{}))
	require.True(t, first.Migrator().HasTable(&models.SystemSetting{}))
	require.False(t, second.Migrator().HasTable(&models.SystemSetting{}))
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db))

	var row models.NotificationPreference
	require.NoError(t, db.Take(&row, "user_id = ?", alerting.GlobalPreferencesID).Error)

	var prefs alerting.Preferences
	require.NoError(t, json.Unmarshal(row.Settings, &prefs))
	require.True(t, prefs.Channels[alerting.ChannelInApp])
	require.Equal(t, 10, prefs.Frequency.MaxPerHour)

	// Seeding twice keeps a single template row.
	require.NoError(t, SeedData(db))
	var count int64
	require.NoError(t, db.Model(&models.NotificationPreference{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSeedDataKeepsCustomisedTemplate(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	custom := models.NotificationPreference{
		UserID:   alerting.GlobalPreferencesID,
		Settings: []byte(`{"frequency":{"max_per_hour":3}}`),
	}
	require.NoError(t, db.Create(&custom).Error)
	require.NoError(t, SeedData(db))

	var row models.NotificationPreference
	require.NoError(t, db.Take(&row, "user_id = ?", alerting.GlobalPreferencesID).Error)
	require.JSONEq(t, `{"frequency":{"max_per_hour":3}}`, string(row.Settings))
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

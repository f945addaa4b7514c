package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/salesalert/internal/models"
)

func TestGetAndUpsertSystemSetting(t *testing.T) {
	db := openSystemSettingTestDB(t)

	value, err := GetSystemSetting(context.Background(), db, "missing")
	require.NoError(t, err)
	require.Equal(t, "", value)

	require.NoError(t, UpsertSystemSetting(context.Background(), db, RulePackChecksumSetting, "abc"))

	retrieved, err := GetSystemSetting(context.Background(), db, RulePackChecksumSetting)
	require.NoError(t, err)
	require.Equal(t, "abc", retrieved)

	require.NoError(t, UpsertSystemSetting(context.Background(), db, RulePackChecksumSetting, "def"))

	retrieved, err = GetSystemSetting(context.Background(), db, RulePackChecksumSetting)
	require.NoError(t, err)
	require.Equal(t, "def", retrieved)
}

func TestUpsertSystemSettingRequiresKey(t *testing.T) {
	db := openSystemSettingTestDB(t)
	require.Error(t, UpsertSystemSetting(context.Background(), db, "  ", "value"))
}

func TestGetSystemSettingBeforeMigration(t *testing.T) {
	db := openTestDB(t)

	value, err := GetSystemSetting(context.Background(), db, RulePackChecksumSetting)
	require.NoError(t, err)
	require.Empty(t, value)
}

func openSystemSettingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.SystemSetting{}))
	return db
}

package testutil

import (
	"path/filepath"
	"testing"

	"mailcake-backend/pkg/config"
	"mailcake-backend/pkg/database"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewTestDB returns a migrated sqlite database that lives for the duration of the test.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	cfg := &config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    filepath.Join(t.TempDir(), "mailcake.db") + "?_busy_timeout=5000",
		LogLevel:       "error",
	}
	db, err := database.NewConnection(cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frycast/internal/models"
)

func TestOpenAndMigrate_InMemory(t *testing.T) {
	db, err := OpenAndMigrate("", "")
	require.NoError(t, err)
	defer db.Close()

	assert.True(t, db.HasTable(&models.MetricPoint{}))
	assert.True(t, db.HasTable("recommendation_feedback"))
	assert.True(t, db.HasTable("analytics_samples"))
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "analytics.db")

	db, err := OpenAndMigrate(DriverSQLite, path)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, path)
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "root@/frycast")
	assert.Error(t, err)

	_, err = Open(DriverPostgres, "")
	assert.Error(t, err)
}

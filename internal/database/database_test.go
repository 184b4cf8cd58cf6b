package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epgsync/epgsync/internal/config"
	"github.com/epgsync/epgsync/internal/models"
)

func testConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		LogLevel:        "silent",
	}
}

func TestNew_Sqlite(t *testing.T) {
	db, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "sqlite", db.Driver())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestNew_UnsupportedDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Driver = "oracle"

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestAutoMigrate(t *testing.T) {
	db, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.AutoMigrate())

	assert.True(t, db.Migrator().HasTable(&models.EpgSource{}))
	assert.True(t, db.Migrator().HasTable(&models.EpgProgram{}))

	// Migrations are idempotent.
	require.NoError(t, db.AutoMigrate())
}

func TestAutoMigrate_ProgramKeyUnique(t *testing.T) {
	db, err := New(testConfig(), nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.AutoMigrate())

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	first := &models.EpgProgram{
		ChannelID: "news.example",
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Title:     "Evening News",
	}
	require.NoError(t, db.Create(first).Error)

	dup := &models.EpgProgram{
		ChannelID: "news.example",
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		Title:     "Late News",
	}
	assert.Error(t, db.Create(dup).Error)
}

func TestGormLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"silent", "silent"},
		{"error", "error"},
		{"warn", "warn"},
		{"info", "info"},
		{"bogus", "warn"},
	}
	for _, tc := range tests {
		got := gormLogLevel(tc.in)
		want := gormLogLevel(tc.want)
		assert.Equal(t, want, got, "level %s", tc.in)
	}
}

func TestTruncateSQL(t *testing.T) {
	short := "SELECT 1"
	assert.Equal(t, short, truncateSQL(short))

	long := make([]byte, maxSQLLogLength+50)
	for i := range long {
		long[i] = 'x'
	}
	got := truncateSQL(string(long))
	assert.Len(t, got, maxSQLLogLength+len("... (truncated)"))
}

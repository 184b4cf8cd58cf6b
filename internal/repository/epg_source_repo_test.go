package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/epgsync/epgsync/internal/models"
)

func setupEpgSourceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.EpgSource{})
	require.NoError(t, err)

	return db
}

func TestEpgSourceRepo_Create(t *testing.T) {
	db := setupEpgSourceTestDB(t)
	repo := NewEpgSourceRepository(db)
	ctx := context.Background()

	source := &models.EpgSource{
		Name:     "Test Guide",
		URL:      "http://example.com/epg.xml",
		IsActive: models.BoolPtr(true),
	}

	err := repo.Create(ctx, source)
	require.NoError(t, err)
	assert.False(t, source.ID.IsZero())
}

func TestEpgSourceRepo_Create_DuplicateName(t *testing.T) {
	db := setupEpgSourceTestDB(t)
	repo := NewEpgSourceRepository(db)
	ctx := context.Background()

	first := &models.EpgSource{Name: "Dup Guide", URL: "http://example.com/a.xml"}
	require.NoError(t, repo.Create(ctx, first))

	second := &models.EpgSource{Name: "Dup Guide", URL: "http://example.com/b.xml"}
	assert.Error(t, repo.Create(ctx, second))
}

func TestEpgSourceRepo_GetByID(t *testing.T) {
	db := setupEpgSourceTestDB(t)
	repo := NewEpgSourceRepository(db)
	ctx := context.Background()

	source := &models.EpgSource{
		Name: "Find Me Guide",
		URL:  "http://example.com/find.xml",
	}
	require.NoError(t, repo.Create(ctx, source))

	t.Run("found", func(t *testing.T) {
		found, err := repo.GetByID(ctx, source.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "Find Me Guide", found.Name)
	})

	t.Run("not found", func(t *testing.T) {
		found, err := repo.GetByID(ctx, models.NewULID())
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestEpgSourceRepo_GetByName(t *testing.T) {
	db := setupEpgSourceTestDB(t)
	repo := NewEpgSourceRepository(db)
	ctx := context.Background()

	source := &models.EpgSource{
		Name: "Named Guide",
		URL:  "http://example.com/named.xml",
	}
	require.NoError(t, repo.Create(ctx, source))

	t.Run("found", func(t *testing.T) {
		found, err := repo.GetByName(ctx, "Named Guide")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, source.ID, found.ID)
	})

	t.Run("not found", func(t *testing.T) {
		found, err := repo.GetByName(ctx, "No Such Guide")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestEpgSourceRepo_GetAll(t *testing.T) {
	db := setupEpgSourceTestDB(t)
	repo := NewEpgSourceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.EpgSource{Name: "Zulu Guide", URL: "http://example.com/z.xml"}))
	require.NoError(t, repo.Create(ctx, &models.EpgSource{Name: "Alpha Guide", URL: "http://example.com/a.xml"}))

	sources, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "Alpha Guide", sources[0].Name)
	assert.Equal(t, "Zulu Guide", sources[1].Name)
}

func TestEpgSourceRepo_GetActive(t *testing.T) {
	db := setupEpgSourceTestDB(t)
	repo := NewEpgSourceRepository(db)
	ctx := context.Background()

	active := &models.EpgSource{
		Name:     "Active Guide",
		URL:      "http://example.com/active.xml",
		IsActive: models.BoolPtr(true),
	}
	inactive := &models.EpgSource{
		Name:     "Inactive Guide",
		URL:      "http://example.com/inactive.xml",
		IsActive: models.BoolPtr(false),
	}
	require.NoError(t, repo.Create(ctx, active))
	require.NoError(t, repo.Create(ctx, inactive))

	sources, err := repo.GetActive(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "Active Guide", sources[0].Name)
}

func TestEpgSourceRepo_Update(t *testing.T) {
	db := setupEpgSourceTestDB(t)
	repo := NewEpgSourceRepository(db)
	ctx := context.Background()

	source := &models.EpgSource{
		Name: "Update Guide",
		URL:  "http://example.com/old.xml",
	}
	require.NoError(t, repo.Create(ctx, source))

	source.URL = "http://example.com/new.xml"
	require.NoError(t, repo.Update(ctx, source))

	found, err := repo.GetByID(ctx, source.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "http://example.com/new.xml", found.URL)
}

func TestEpgSourceRepo_UpdateImportStatus(t *testing.T) {
	db := setupEpgSourceTestDB(t)
	repo := NewEpgSourceRepository(db)
	ctx := context.Background()

	source := &models.EpgSource{
		Name: "Status Guide",
		URL:  "http://example.com/status.xml",
	}
	require.NoError(t, repo.Create(ctx, source))

	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	source.MarkSuccess(now, 1200, 42)
	require.NoError(t, repo.UpdateImportStatus(ctx, source))

	found, err := repo.GetByID(ctx, source.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, models.ImportStatusSuccess, found.LastImportStatus)
	assert.Equal(t, 1200, found.ProgramsCount)
	assert.Equal(t, 42, found.ChannelsCount)
	require.NotNil(t, found.LastImportAt)
	assert.True(t, found.LastImportAt.Equal(now))

	// A failed run records the timestamp but keeps the previous counts.
	later := now.Add(time.Hour)
	source.MarkFailed(later, "connection refused")
	require.NoError(t, repo.UpdateImportStatus(ctx, source))

	found, err = repo.GetByID(ctx, source.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "failed: connection refused", found.LastImportStatus)
	assert.Equal(t, 1200, found.ProgramsCount)
	assert.Equal(t, 42, found.ChannelsCount)
	require.NotNil(t, found.LastImportAt)
	assert.True(t, found.LastImportAt.Equal(later))
}

func TestEpgSourceRepo_Delete(t *testing.T) {
	db := setupEpgSourceTestDB(t)
	repo := NewEpgSourceRepository(db)
	ctx := context.Background()

	source := &models.EpgSource{
		Name: "Delete Guide",
		URL:  "http://example.com/delete.xml",
	}
	require.NoError(t, repo.Create(ctx, source))

	require.NoError(t, repo.Delete(ctx, source.ID))

	found, err := repo.GetByID(ctx, source.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

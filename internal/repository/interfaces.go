// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"time"

	"github.com/epgsync/epgsync/internal/models"
)

// EpgSourceRepository defines operations for EPG source persistence.
type EpgSourceRepository interface {
	// Create creates a new EPG source.
	Create(ctx context.Context, source *models.EpgSource) error
	// GetByID retrieves an EPG source by ID. Returns nil if not found.
	GetByID(ctx context.Context, id models.ULID) (*models.EpgSource, error)
	// GetByName retrieves an EPG source by name. Returns nil if not found.
	GetByName(ctx context.Context, name string) (*models.EpgSource, error)
	// GetAll retrieves all EPG sources ordered by name.
	GetAll(ctx context.Context) ([]*models.EpgSource, error)
	// GetActive retrieves all active EPG sources ordered by name.
	GetActive(ctx context.Context) ([]*models.EpgSource, error)
	// Update updates an existing EPG source.
	Update(ctx context.Context, source *models.EpgSource) error
	// UpdateImportStatus persists the import outcome columns of a source.
	UpdateImportStatus(ctx context.Context, source *models.EpgSource) error
	// Delete deletes an EPG source by ID.
	Delete(ctx context.Context, id models.ULID) error
}

// EpgProgramRepository defines operations for EPG program persistence.
type EpgProgramRepository interface {
	// Create creates a new EPG program.
	Create(ctx context.Context, program *models.EpgProgram) error
	// CreateBatch inserts multiple programs in a single statement.
	CreateBatch(ctx context.Context, programs []*models.EpgProgram) error
	// UpsertBatch inserts programs, updating existing rows that share the
	// same channel ID and start time.
	UpsertBatch(ctx context.Context, programs []*models.EpgProgram) error
	// GetByID retrieves an EPG program by ID. Returns nil if not found.
	GetByID(ctx context.Context, id models.ULID) (*models.EpgProgram, error)
	// GetByChannelID retrieves programs for a channel overlapping [start, end).
	GetByChannelID(ctx context.Context, channelID string, start, end time.Time) ([]*models.EpgProgram, error)
	// GetCurrentByChannelID retrieves the program on air for a channel at now.
	// Returns nil if there is no current program.
	GetCurrentByChannelID(ctx context.Context, channelID string, now time.Time) (*models.EpgProgram, error)
	// DeleteByChannelIDs deletes all programs whose channel ID is in the set.
	DeleteByChannelIDs(ctx context.Context, channelIDs []string) (int64, error)
	// DeleteEndedBefore deletes programs whose end time is before the cutoff.
	DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// Count returns the total number of programs.
	Count(ctx context.Context) (int64, error)
	// CountByChannelID returns the number of programs for a channel.
	CountByChannelID(ctx context.Context, channelID string) (int64, error)
}

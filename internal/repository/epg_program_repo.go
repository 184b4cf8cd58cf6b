package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/epgsync/epgsync/internal/models"
)

// deleteChunkSize bounds the IN list of channel-scoped deletes so the
// statement stays under SQLite's variable limit.
const deleteChunkSize = 500

// epgProgramRepo implements EpgProgramRepository using GORM.
type epgProgramRepo struct {
	db *gorm.DB
}

// NewEpgProgramRepository creates a new EpgProgramRepository.
func NewEpgProgramRepository(db *gorm.DB) *epgProgramRepo {
	return &epgProgramRepo{db: db}
}

// Create creates a new EPG program.
func (r *epgProgramRepo) Create(ctx context.Context, program *models.EpgProgram) error {
	if err := r.db.WithContext(ctx).Create(program).Error; err != nil {
		return fmt.Errorf("creating EPG program: %w", err)
	}
	return nil
}

// CreateBatch inserts multiple programs in a single statement.
func (r *epgProgramRepo) CreateBatch(ctx context.Context, programs []*models.EpgProgram) error {
	if len(programs) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).Create(programs).Error; err != nil {
		return fmt.Errorf("creating EPG program batch: %w", err)
	}
	return nil
}

// UpsertBatch inserts programs, refreshing rows that already exist for the
// same channel ID and start time. End time and all descriptive columns are
// overwritten so a re-imported guide replaces stale listing data in place.
func (r *epgProgramRepo) UpsertBatch(ctx context.Context, programs []*models.EpgProgram) error {
	if len(programs) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "channel_id"}, {Name: "start_time"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"end_time", "title", "description", "category",
			"episode_num", "icon_url", "lang", "updated_at",
		}),
	}).Create(programs).Error
	if err != nil {
		return fmt.Errorf("upserting EPG program batch: %w", err)
	}
	return nil
}

// GetByID retrieves an EPG program by ID.
func (r *epgProgramRepo) GetByID(ctx context.Context, id models.ULID) (*models.EpgProgram, error) {
	var program models.EpgProgram
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&program).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting EPG program by ID: %w", err)
	}
	return &program, nil
}

// GetByChannelID retrieves programs for a channel overlapping [start, end).
func (r *epgProgramRepo) GetByChannelID(ctx context.Context, channelID string, start, end time.Time) ([]*models.EpgProgram, error) {
	var programs []*models.EpgProgram
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND start_time < ? AND end_time > ?", channelID, end, start).
		Order("start_time ASC").
		Find(&programs).Error
	if err != nil {
		return nil, fmt.Errorf("getting programs by channel ID: %w", err)
	}
	return programs, nil
}

// GetCurrentByChannelID retrieves the program on air for a channel at now.
func (r *epgProgramRepo) GetCurrentByChannelID(ctx context.Context, channelID string, now time.Time) (*models.EpgProgram, error) {
	var program models.EpgProgram
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND start_time <= ? AND end_time > ?", channelID, now, now).
		Order("start_time DESC").
		First(&program).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting current program: %w", err)
	}
	return &program, nil
}

// DeleteByChannelIDs deletes all programs whose channel ID is in the set.
// Returns the number of rows deleted.
func (r *epgProgramRepo) DeleteByChannelIDs(ctx context.Context, channelIDs []string) (int64, error) {
	if len(channelIDs) == 0 {
		return 0, nil
	}

	var total int64
	for start := 0; start < len(channelIDs); start += deleteChunkSize {
		end := start + deleteChunkSize
		if end > len(channelIDs) {
			end = len(channelIDs)
		}

		res := r.db.WithContext(ctx).
			Where("channel_id IN ?", channelIDs[start:end]).
			Delete(&models.EpgProgram{})
		if res.Error != nil {
			return total, fmt.Errorf("deleting programs by channel IDs: %w", res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// DeleteEndedBefore deletes programs whose end time is before the cutoff.
// Returns the number of rows deleted.
func (r *epgProgramRepo) DeleteEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("end_time < ?", cutoff).
		Delete(&models.EpgProgram{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting ended programs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Count returns the total number of programs.
func (r *epgProgramRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.EpgProgram{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting programs: %w", err)
	}
	return count, nil
}

// CountByChannelID returns the number of programs for a channel.
func (r *epgProgramRepo) CountByChannelID(ctx context.Context, channelID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.EpgProgram{}).
		Where("channel_id = ?", channelID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting programs by channel ID: %w", err)
	}
	return count, nil
}

// Ensure epgProgramRepo implements EpgProgramRepository at compile time.
var _ EpgProgramRepository = (*epgProgramRepo)(nil)

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/epgsync/epgsync/internal/models"
	"github.com/epgsync/epgsync/pkg/xmltv"
)

// Mode selects how imported programs are written against existing rows.
type Mode int

const (
	// ModeMerge drops programs that have already ended and upserts the
	// rest on the (channel_id, start_time) key. Used by on-demand imports.
	ModeMerge Mode = iota

	// ModeReplace deletes all existing rows for the source's channels and
	// plain-inserts the new guide. Used by scheduled runs so stale rows
	// for a channel never outlive the feed that stopped listing them.
	ModeReplace
)

func (m Mode) String() string {
	switch m {
	case ModeMerge:
		return "merge"
	case ModeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name as used in configuration and CLI flags.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "merge":
		return ModeMerge, nil
	case "replace":
		return ModeReplace, nil
	default:
		return ModeMerge, fmt.Errorf("invalid import mode: %q (valid: merge, replace)", s)
	}
}

// DefaultBatchSize is used when the planner is configured with a
// non-positive batch size.
const DefaultBatchSize = 1000

// ProgramSink receives planned program batches. Satisfied by
// repository.EpgProgramRepository.
type ProgramSink interface {
	UpsertBatch(ctx context.Context, programs []*models.EpgProgram) error
	CreateBatch(ctx context.Context, programs []*models.EpgProgram) error
	DeleteByChannelIDs(ctx context.Context, channelIDs []string) (int64, error)
}

// Summary reports the outcome of one source's planning pass.
type Summary struct {
	// Channels is the number of channels defined in the document,
	// whether or not any admitted program referenced them.
	Channels int `json:"channels"`

	// Programs is the number of programs admitted past the filters,
	// before key dedup.
	Programs int `json:"programs"`

	// Deleted is the number of existing rows removed in replace mode.
	Deleted int64 `json:"deleted,omitempty"`

	DroppedUnknownChannel int `json:"dropped_unknown_channel,omitempty"`
	DroppedBadTime        int `json:"dropped_bad_time,omitempty"`
	DroppedPast           int `json:"dropped_past,omitempty"`
	DroppedInvalid        int `json:"dropped_invalid,omitempty"`
}

// Dropped returns the total number of programs filtered out.
func (s Summary) Dropped() int {
	return s.DroppedUnknownChannel + s.DroppedBadTime + s.DroppedPast + s.DroppedInvalid
}

// programKey is the upsert identity of a program row.
type programKey struct {
	channelID string
	start     int64
}

// Planner filters raw programme tuples against the channel map, batches the
// admitted records, and flushes them to the sink in document order.
//
// Within a batch the last record for a key wins; a single statement cannot
// update the same row twice. In replace mode, keys already written by an
// earlier flush are skipped since there is no conflict target to merge into.
type Planner struct {
	mode      Mode
	now       time.Time
	batchSize int
	channels  map[string]string
	sink      ProgramSink
	logger    *slog.Logger

	batch    []*models.EpgProgram
	batchIdx map[programKey]int
	written  map[programKey]struct{}
	wiped    map[string]struct{}
	summary  Summary
}

// PlannerConfig configures a Planner.
type PlannerConfig struct {
	Mode      Mode
	Now       time.Time
	BatchSize int
	// Channels is the live channel map, filled by the parser as channel
	// elements are seen. Programs referencing an id not yet in the map
	// are dropped. XMLTV documents declare all channels before the first
	// programme, so in practice only truly undeclared ids are affected.
	Channels map[string]string
	Sink     ProgramSink
	Logger   *slog.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(cfg PlannerConfig) *Planner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	p := &Planner{
		mode:      cfg.Mode,
		now:       cfg.Now,
		batchSize: cfg.BatchSize,
		channels:  cfg.Channels,
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		batchIdx:  make(map[programKey]int),
	}
	if cfg.Mode == ModeReplace {
		p.written = make(map[programKey]struct{})
		p.wiped = make(map[string]struct{})
	}
	return p
}

// Add filters one raw programme and appends it to the pending batch,
// flushing when the batch is full. Filter drops are counted, not errors.
func (p *Planner) Add(ctx context.Context, prog *xmltv.Programme) error {
	if _, ok := p.channels[prog.Channel]; !ok {
		p.summary.DroppedUnknownChannel++
		return nil
	}

	start, err := xmltv.ParseTime(prog.Start)
	if err != nil {
		p.summary.DroppedBadTime++
		return nil
	}
	end, err := xmltv.ParseTime(prog.Stop)
	if err != nil {
		p.summary.DroppedBadTime++
		return nil
	}

	if p.mode == ModeMerge && end.Before(p.now) {
		p.summary.DroppedPast++
		return nil
	}

	record := &models.EpgProgram{
		ChannelID:   prog.Channel,
		StartTime:   start,
		EndTime:     end,
		Title:       prog.Title,
		Description: prog.Description,
		Category:    prog.Category,
		EpisodeNum:  prog.EpisodeNum,
		IconURL:     prog.IconURL,
		Lang:        prog.Lang,
	}
	if err := record.Validate(); err != nil {
		p.summary.DroppedInvalid++
		return nil
	}

	p.summary.Programs++

	key := programKey{channelID: record.ChannelID, start: start.Unix()}
	if p.written != nil {
		if _, done := p.written[key]; done {
			return nil
		}
	}
	if idx, ok := p.batchIdx[key]; ok {
		p.batch[idx] = record
		return nil
	}

	p.batchIdx[key] = len(p.batch)
	p.batch = append(p.batch, record)

	if len(p.batch) >= p.batchSize {
		return p.flush(ctx)
	}
	return nil
}

// Finish flushes any remaining records and returns the run summary. In
// replace mode it also wipes channels that never produced a batch, so a
// feed that went empty still clears its old rows.
func (p *Planner) Finish(ctx context.Context) (Summary, error) {
	if err := p.flush(ctx); err != nil {
		return p.summary, err
	}
	if p.mode == ModeReplace {
		if err := p.wipeNewChannels(ctx); err != nil {
			return p.summary, err
		}
	}
	p.summary.Channels = len(p.channels)
	return p.summary, nil
}

func (p *Planner) flush(ctx context.Context) error {
	if len(p.batch) == 0 {
		return nil
	}

	switch p.mode {
	case ModeReplace:
		if err := p.wipeNewChannels(ctx); err != nil {
			return err
		}
		if err := p.sink.CreateBatch(ctx, p.batch); err != nil {
			return fmt.Errorf("%w: inserting batch: %v", ErrStorageFailure, err)
		}
		for key := range p.batchIdx {
			p.written[key] = struct{}{}
		}
	default:
		if err := p.sink.UpsertBatch(ctx, p.batch); err != nil {
			return fmt.Errorf("%w: upserting batch: %v", ErrStorageFailure, err)
		}
	}

	p.logger.Debug("flushed program batch",
		slog.Int("size", len(p.batch)),
		slog.String("mode", p.mode.String()),
	)

	p.batch = p.batch[:0]
	clear(p.batchIdx)
	return nil
}

// wipeNewChannels deletes existing rows for channels seen in the map that
// have not been wiped yet this run.
func (p *Planner) wipeNewChannels(ctx context.Context) error {
	var pending []string
	for id := range p.channels {
		if _, done := p.wiped[id]; !done {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	deleted, err := p.sink.DeleteByChannelIDs(ctx, pending)
	if err != nil {
		return fmt.Errorf("%w: deleting channel rows: %v", ErrStorageFailure, err)
	}
	p.summary.Deleted += deleted

	for _, id := range pending {
		p.wiped[id] = struct{}{}
	}
	return nil
}

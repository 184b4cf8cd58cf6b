package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epgsync/epgsync/internal/models"
	"github.com/epgsync/epgsync/pkg/xmltv"
)

type fakeSink struct {
	upserts  [][]*models.EpgProgram
	inserts  [][]*models.EpgProgram
	deletes  [][]string
	failNext error
}

func (f *fakeSink) UpsertBatch(ctx context.Context, programs []*models.EpgProgram) error {
	if f.failNext != nil {
		return f.failNext
	}
	batch := make([]*models.EpgProgram, len(programs))
	copy(batch, programs)
	f.upserts = append(f.upserts, batch)
	return nil
}

func (f *fakeSink) CreateBatch(ctx context.Context, programs []*models.EpgProgram) error {
	if f.failNext != nil {
		return f.failNext
	}
	batch := make([]*models.EpgProgram, len(programs))
	copy(batch, programs)
	f.inserts = append(f.inserts, batch)
	return nil
}

func (f *fakeSink) DeleteByChannelIDs(ctx context.Context, channelIDs []string) (int64, error) {
	f.deletes = append(f.deletes, channelIDs)
	return int64(len(channelIDs)), nil
}

var plannerNow = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func testProgramme(channel, start, stop, title string) *xmltv.Programme {
	return &xmltv.Programme{
		Channel: channel,
		Start:   start,
		Stop:    stop,
		Title:   title,
		Lang:    xmltv.DefaultLang,
	}
}

func newTestPlanner(mode Mode, batchSize int, sink ProgramSink, channels map[string]string) *Planner {
	return NewPlanner(PlannerConfig{
		Mode:      mode,
		Now:       plannerNow,
		BatchSize: batchSize,
		Channels:  channels,
		Sink:      sink,
	})
}

func TestPlanner_AdmitsKnownChannel(t *testing.T) {
	sink := &fakeSink{}
	channels := map[string]string{"news.example": "Example News"}
	planner := newTestPlanner(ModeMerge, 10, sink, channels)
	ctx := context.Background()

	require.NoError(t, planner.Add(ctx, testProgramme("news.example", "20240102120000 +0000", "20240102130000 +0000", "Midday Report")))

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Programs)
	assert.Equal(t, 1, summary.Channels)
	require.Len(t, sink.upserts, 1)
	require.Len(t, sink.upserts[0], 1)
	assert.Equal(t, "Midday Report", sink.upserts[0][0].Title)
	assert.True(t, sink.upserts[0][0].StartTime.Equal(time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)))
}

func TestPlanner_DropsUnknownChannel(t *testing.T) {
	sink := &fakeSink{}
	planner := newTestPlanner(ModeMerge, 10, sink, map[string]string{"known.example": "Known"})
	ctx := context.Background()

	require.NoError(t, planner.Add(ctx, testProgramme("ghost.example", "20240102120000", "20240102130000", "Phantom Show")))

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Programs)
	assert.Equal(t, 1, summary.DroppedUnknownChannel)
	assert.Empty(t, sink.upserts)
}

func TestPlanner_ChannelDeclaredMidDocument(t *testing.T) {
	// The channel map fills in document order, so a programme seen before
	// its channel declaration is treated as unknown.
	sink := &fakeSink{}
	channels := map[string]string{}
	planner := newTestPlanner(ModeMerge, 10, sink, channels)
	ctx := context.Background()

	require.NoError(t, planner.Add(ctx, testProgramme("late.example", "20240102120000", "20240102130000", "Early Bird")))

	channels["late.example"] = "Late Channel"
	require.NoError(t, planner.Add(ctx, testProgramme("late.example", "20240102130000", "20240102140000", "On Time")))

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Programs)
	assert.Equal(t, 1, summary.DroppedUnknownChannel)
	require.Len(t, sink.upserts, 1)
	require.Len(t, sink.upserts[0], 1)
	assert.Equal(t, "On Time", sink.upserts[0][0].Title)
}

func TestPlanner_DropsUnparsableTimes(t *testing.T) {
	sink := &fakeSink{}
	channels := map[string]string{"c": "C"}
	planner := newTestPlanner(ModeMerge, 10, sink, channels)
	ctx := context.Background()

	require.NoError(t, planner.Add(ctx, testProgramme("c", "garbage", "20240102130000", "Bad Start")))
	require.NoError(t, planner.Add(ctx, testProgramme("c", "20240102120000", "", "Bad Stop")))

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Programs)
	assert.Equal(t, 2, summary.DroppedBadTime)
}

func TestPlanner_MergeDropsEndedPrograms(t *testing.T) {
	sink := &fakeSink{}
	channels := map[string]string{"c": "C"}
	planner := newTestPlanner(ModeMerge, 10, sink, channels)
	ctx := context.Background()

	// Ended the day before the planning clock.
	require.NoError(t, planner.Add(ctx, testProgramme("c", "20240101100000", "20240101110000", "Yesterday Show")))
	// Still on air at the planning clock.
	require.NoError(t, planner.Add(ctx, testProgramme("c", "20240101233000", "20240102003000", "Overnight Show")))

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Programs)
	assert.Equal(t, 1, summary.DroppedPast)
	require.Len(t, sink.upserts, 1)
	assert.Equal(t, "Overnight Show", sink.upserts[0][0].Title)
}

func TestPlanner_ReplaceKeepsEndedPrograms(t *testing.T) {
	sink := &fakeSink{}
	channels := map[string]string{"c": "C"}
	planner := newTestPlanner(ModeReplace, 10, sink, channels)
	ctx := context.Background()

	require.NoError(t, planner.Add(ctx, testProgramme("c", "20240101100000", "20240101110000", "Yesterday Show")))

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Programs)
	assert.Zero(t, summary.DroppedPast)
	require.Len(t, sink.inserts, 1)
}

func TestPlanner_DropsInvalidRecords(t *testing.T) {
	sink := &fakeSink{}
	channels := map[string]string{"c": "C"}
	planner := newTestPlanner(ModeMerge, 10, sink, channels)
	ctx := context.Background()

	// Missing title.
	require.NoError(t, planner.Add(ctx, testProgramme("c", "20240102120000", "20240102130000", "")))
	// End before start.
	require.NoError(t, planner.Add(ctx, testProgramme("c", "20240102120000", "20240102110000", "Backwards")))

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Programs)
	assert.Equal(t, 2, summary.DroppedInvalid)
}

func TestPlanner_FlushesAtBatchSize(t *testing.T) {
	sink := &fakeSink{}
	channels := map[string]string{"c": "C"}
	planner := newTestPlanner(ModeMerge, 2, sink, channels)
	ctx := context.Background()

	base := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, planner.Add(ctx, testProgramme("c",
			start.Format("20060102150405"),
			start.Add(time.Hour).Format("20060102150405"),
			fmt.Sprintf("Show %d", i))))
	}

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Programs)
	// Two full batches plus the remainder.
	require.Len(t, sink.upserts, 3)
	assert.Len(t, sink.upserts[0], 2)
	assert.Len(t, sink.upserts[1], 2)
	assert.Len(t, sink.upserts[2], 1)
}

func TestPlanner_LastRecordWinsWithinBatch(t *testing.T) {
	sink := &fakeSink{}
	channels := map[string]string{"c": "C"}
	planner := newTestPlanner(ModeMerge, 10, sink, channels)
	ctx := context.Background()

	require.NoError(t, planner.Add(ctx, testProgramme("c", "20240102120000", "20240102130000", "First Listing")))
	require.NoError(t, planner.Add(ctx, testProgramme("c", "20240102120000", "20240102140000", "Revised Listing")))

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	// Both admitted, one row flushed.
	assert.Equal(t, 2, summary.Programs)
	require.Len(t, sink.upserts, 1)
	require.Len(t, sink.upserts[0], 1)
	assert.Equal(t, "Revised Listing", sink.upserts[0][0].Title)
}

func TestPlanner_ReplaceWipesChannelsBeforeInsert(t *testing.T) {
	sink := &fakeSink{}
	channels := map[string]string{"a": "A", "b": "B"}
	planner := newTestPlanner(ModeReplace, 10, sink, channels)
	ctx := context.Background()

	require.NoError(t, planner.Add(ctx, testProgramme("a", "20240102120000", "20240102130000", "Show A")))

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Deleted)
	require.Len(t, sink.deletes, 1)
	assert.ElementsMatch(t, []string{"a", "b"}, sink.deletes[0])
	require.Len(t, sink.inserts, 1)
}

func TestPlanner_ReplaceWipesEvenWithoutPrograms(t *testing.T) {
	sink := &fakeSink{}
	channels := map[string]string{"empty.example": "Empty"}
	planner := newTestPlanner(ModeReplace, 10, sink, channels)

	summary, err := planner.Finish(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Programs)
	assert.Equal(t, int64(1), summary.Deleted)
	require.Len(t, sink.deletes, 1)
	assert.Equal(t, []string{"empty.example"}, sink.deletes[0])
}

func TestPlanner_ReplaceSkipsAlreadyWrittenKeys(t *testing.T) {
	sink := &fakeSink{}
	channels := map[string]string{"c": "C"}
	planner := newTestPlanner(ModeReplace, 1, sink, channels)
	ctx := context.Background()

	require.NoError(t, planner.Add(ctx, testProgramme("c", "20240102120000", "20240102130000", "Original")))
	// Same key after the first flush must not be re-inserted.
	require.NoError(t, planner.Add(ctx, testProgramme("c", "20240102120000", "20240102140000", "Duplicate")))

	summary, err := planner.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Programs)
	require.Len(t, sink.inserts, 1)
	assert.Equal(t, "Original", sink.inserts[0][0].Title)
}

func TestPlanner_StorageFailureClassified(t *testing.T) {
	sink := &fakeSink{failNext: errors.New("disk full")}
	channels := map[string]string{"c": "C"}
	planner := newTestPlanner(ModeMerge, 1, sink, channels)
	ctx := context.Background()

	err := planner.Add(ctx, testProgramme("c", "20240102120000", "20240102130000", "Show"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageFailure)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("merge")
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, mode)

	mode, err = ParseMode("replace")
	require.NoError(t, err)
	assert.Equal(t, ModeReplace, mode)

	_, err = ParseMode("upsert")
	assert.Error(t, err)
}

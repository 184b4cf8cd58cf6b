package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/epgsync/epgsync/internal/models"
	"github.com/epgsync/epgsync/internal/repository"
	"github.com/epgsync/epgsync/pkg/xmltv"
)

// statusWriteTimeout bounds the final status update so a stalled database
// cannot hang a run that is otherwise finished.
const statusWriteTimeout = 10 * time.Second

// DefaultMaxConcurrent bounds parallel source imports when the runner is
// configured with a non-positive limit.
const DefaultMaxConcurrent = 3

// Result is the per-source outcome of a multi-source run.
type Result struct {
	Source  *models.EpgSource
	Summary Summary
	Err     error
}

// Failed reports whether the source's import failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Sources       repository.EpgSourceRepository
	Programs      ProgramSink
	Fetcher       *Fetcher
	BatchSize     int
	MaxConcurrent int
	Logger        *slog.Logger
	// Now supplies the clock used for time-relative filtering and status
	// timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Runner drives the import of one or many sources: fetch, parse, plan,
// write, and record status. Each source is an independent unit of work;
// a failure in one never aborts the others.
type Runner struct {
	sources       repository.EpgSourceRepository
	programs      ProgramSink
	fetcher       *Fetcher
	batchSize     int
	maxConcurrent int
	logger        *slog.Logger
	now           func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	return &Runner{
		sources:       cfg.Sources,
		programs:      cfg.Programs,
		fetcher:       cfg.Fetcher,
		batchSize:     cfg.BatchSize,
		maxConcurrent: cfg.MaxConcurrent,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
}

// ImportSource runs the full pipeline for one source and records the
// outcome on the source row. The status update happens exactly once,
// whether the run succeeds or fails.
func (r *Runner) ImportSource(ctx context.Context, source *models.EpgSource, mode Mode) (summary Summary, err error) {
	runID := uuid.NewString()
	log := r.logger.With(
		slog.String("run_id", runID),
		slog.String("source", source.Name),
		slog.String("mode", mode.String()),
	)
	start := time.Now()

	defer func() {
		at := r.now()
		switch {
		case err == nil:
			source.MarkSuccess(at, summary.Programs, summary.Channels)
		case errors.Is(err, ErrContentUnavailable):
			source.MarkFailed(at, failureReason(err))
		default:
			source.MarkError(at, err)
		}

		// Detached context: a cancelled run must still leave a status
		// behind or the source looks permanently "importing".
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
		defer cancel()
		if uerr := r.sources.UpdateImportStatus(sctx, source); uerr != nil {
			log.Error("recording import status failed",
				slog.String("error", uerr.Error()),
			)
		}
	}()

	log.Info("import started")

	body, ferr := r.fetcher.Fetch(ctx, source)
	if ferr != nil {
		err = ferr
		log.Warn("fetch failed", slog.String("error", err.Error()))
		return summary, err
	}
	defer body.Close()

	// Filled in document order. XMLTV lists channels before programmes; a
	// programme that precedes its channel declaration is dropped as unknown.
	channels := make(map[string]string)
	planner := NewPlanner(PlannerConfig{
		Mode:      mode,
		Now:       r.now(),
		BatchSize: r.batchSize,
		Channels:  channels,
		Sink:      r.programs,
		Logger:    log,
	})

	parser := &xmltv.Parser{
		OnChannel: func(c *xmltv.Channel) error {
			// Duplicate ids: last one wins.
			channels[c.ID] = c.DisplayName
			return nil
		},
		OnProgramme: func(prog *xmltv.Programme) error {
			return planner.Add(ctx, prog)
		},
	}

	if perr := parser.ParseCompressed(body); perr != nil {
		var malformed *xmltv.MalformedDocumentError
		switch {
		case errors.As(perr, &malformed):
			err = fmt.Errorf("%w: %v", ErrMalformedDocument, perr)
		default:
			// Callback errors carry their own class, e.g. a storage
			// failure during a mid-document flush.
			err = perr
		}
		log.Warn("import failed", slog.String("error", err.Error()))
		return summary, err
	}

	summary, err = planner.Finish(ctx)
	if err != nil {
		log.Warn("import failed", slog.String("error", err.Error()))
		return summary, err
	}

	log.Info("import finished",
		slog.Int("channels", summary.Channels),
		slog.Int("programs", summary.Programs),
		slog.Int("dropped", summary.Dropped()),
		slog.Int64("deleted", summary.Deleted),
		slog.Duration("duration", time.Since(start)),
	)
	return summary, nil
}

// ImportSources imports multiple sources with bounded concurrency. Results
// are returned in input order. Source failures are isolated; the returned
// slice always has one entry per input source.
func (r *Runner) ImportSources(ctx context.Context, sources []*models.EpgSource, mode Mode) []Result {
	results := make([]Result, len(sources))

	sem := make(chan struct{}, r.maxConcurrent)
	var wg sync.WaitGroup

	for i, source := range sources {
		wg.Add(1)
		go func(i int, source *models.EpgSource) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			summary, err := r.ImportSource(ctx, source, mode)
			results[i] = Result{Source: source, Summary: summary, Err: err}
		}(i, source)
	}

	wg.Wait()
	return results
}

// ImportActive imports all active sources with bounded concurrency.
func (r *Runner) ImportActive(ctx context.Context, mode Mode) ([]Result, error) {
	sources, err := r.sources.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active sources: %w", err)
	}
	return r.ImportSources(ctx, sources, mode), nil
}

// failureReason strips the error class prefix so the recorded status reads
// as a plain reason.
func failureReason(err error) string {
	return strings.TrimPrefix(err.Error(), ErrContentUnavailable.Error()+": ")
}

// Package scheduler runs recurring EPG imports and the retention sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/epgsync/epgsync/internal/config"
	"github.com/epgsync/epgsync/internal/ingest"
	"github.com/epgsync/epgsync/internal/observability"
	"github.com/epgsync/epgsync/internal/repository"
)

// Scheduler triggers imports of all active sources on a cron schedule and
// sweeps expired program rows after each run.
type Scheduler struct {
	runner   *ingest.Runner
	programs repository.EpgProgramRepository
	cfg      config.EPGConfig
	mode     ingest.Mode
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler. The schedule expression and import mode are
// validated up front so a bad config fails at startup, not at first tick.
func New(runner *ingest.Runner, programs repository.EpgProgramRepository, cfg config.EPGConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := ingest.ParseMode(cfg.ScheduledMode)
	if err != nil {
		return nil, err
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(cfg.ScheduleCron); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.ScheduleCron, err)
	}

	return &Scheduler{
		runner:   runner,
		programs: programs,
		cfg:      cfg,
		mode:     mode,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Start registers the cron entry and begins scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()

	if _, err := s.cron.AddFunc(s.cfg.ScheduleCron, s.tick); err != nil {
		return fmt.Errorf("registering schedule: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		slog.String("schedule", s.cfg.ScheduleCron),
		slog.String("mode", s.mode.String()),
		slog.Duration("retention", s.cfg.Retention),
	)
	return nil
}

// Stop stops scheduling and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.cancel()
	s.cron = nil
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) tick() {
	if err := s.RunOnce(s.ctx); err != nil {
		observability.WithError(s.logger, err).Error("scheduled run failed")
	}
}

// RunOnce imports all active sources with the scheduled policy and then
// sweeps expired rows. Per-source failures are logged and do not fail the
// run; only listing sources or sweeping can.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	done := observability.TimedOperation(ctx, s.logger, "scheduled_run")
	defer done()

	results, err := s.runner.ImportActive(ctx, s.mode)
	if err != nil {
		return err
	}

	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
			observability.WithError(s.logger, res.Err).Warn("source import failed",
				slog.String("source", res.Source.Name),
			)
			continue
		}
		s.logger.Info("source imported",
			slog.String("source", res.Source.Name),
			slog.Int("channels", res.Summary.Channels),
			slog.Int("programs", res.Summary.Programs),
		)
	}

	if err := s.Sweep(ctx); err != nil {
		return err
	}

	total, err := s.programs.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting programs: %w", err)
	}

	s.logger.Info("scheduled run finished",
		slog.Int("sources", len(results)),
		slog.Int("failed", failed),
		slog.Int64("total_programs", total),
	)
	return nil
}

// Sweep deletes program rows whose end time is older than the retention
// window.
func (s *Scheduler) Sweep(ctx context.Context) error {
	if s.cfg.Retention <= 0 {
		return nil
	}

	cutoff := s.now().Add(-s.cfg.Retention)
	deleted, err := s.programs.DeleteEndedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("sweeping expired programs: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("swept expired programs",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff),
		)
	}
	return nil
}

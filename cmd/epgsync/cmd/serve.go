package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/epgsync/epgsync/internal/observability"
	"github.com/epgsync/epgsync/internal/repository"
	"github.com/epgsync/epgsync/internal/scheduler"
	"github.com/epgsync/epgsync/internal/version"
)

var serveRunNow bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled import daemon",
	Long: `Run the scheduled import daemon.

All active sources are imported on the configured cron schedule using
the scheduled import mode (replace by default), and expired program
rows are swept after each run.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveRunNow, "run-now", false, "run an import immediately on startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.Default()
	logger.Info("starting epgsync",
		slog.String("version", version.Short()),
		slog.String("schedule", cfg.EPG.ScheduleCron),
	)

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	runner := buildRunner(cfg, db, logger)
	programs := repository.NewEpgProgramRepository(db.DB)

	sched, err := scheduler.New(runner, programs, cfg.EPG,
		observability.WithComponent(logger, "scheduler"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}

	if serveRunNow {
		if err := sched.RunOnce(ctx); err != nil {
			logger.Error("startup run failed", slog.String("error", err.Error()))
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	sched.Stop()

	return nil
}

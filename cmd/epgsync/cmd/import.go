package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/epgsync/epgsync/internal/config"
	"github.com/epgsync/epgsync/internal/database"
	"github.com/epgsync/epgsync/internal/ingest"
	"github.com/epgsync/epgsync/internal/models"
	"github.com/epgsync/epgsync/internal/observability"
	"github.com/epgsync/epgsync/internal/repository"
	"github.com/epgsync/epgsync/internal/version"
	"github.com/epgsync/epgsync/pkg/httpclient"
)

var (
	importSourceNames []string
	importMode        string
	importStrict      bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import EPG data from configured sources",
	Long: `Import EPG data from configured sources.

Without flags, all active sources are imported. Use --source to import
specific sources by name (repeatable). Source failures are isolated:
each failure is recorded on the source and the rest continue.

The default "merge" mode upserts current and future programs in place.
The "replace" mode wipes each source's channels and rewrites the full
guide, including already-ended programs.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringArrayVar(&importSourceNames, "source", nil, "source name to import (repeatable; default all active)")
	importCmd.Flags().StringVar(&importMode, "mode", "merge", "import mode (merge, replace)")
	importCmd.Flags().BoolVar(&importStrict, "strict", false, "exit non-zero if any source fails")
	rootCmd.AddCommand(importCmd)
}

// buildRunner wires the import pipeline from the effective configuration.
func buildRunner(cfg *config.Config, db *database.DB, logger *slog.Logger) *ingest.Runner {
	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.Ingestion.HTTPTimeout
	clientCfg.RetryAttempts = cfg.Ingestion.RetryAttempts
	clientCfg.RetryDelay = cfg.Ingestion.RetryDelay
	clientCfg.UserAgent = cfg.Ingestion.UserAgent
	clientCfg.Logger = logger
	if clientCfg.UserAgent == "" {
		clientCfg.UserAgent = version.UserAgent()
	}
	clientCfg.BaseClient = &http.Client{Timeout: clientCfg.Timeout}

	client := httpclient.New(clientCfg)
	fetcher := ingest.NewFetcher(client, cfg.Storage.EpgPath(),
		observability.WithComponent(logger, "fetcher"))

	return ingest.NewRunner(ingest.RunnerConfig{
		Sources:       repository.NewEpgSourceRepository(db.DB),
		Programs:      repository.NewEpgProgramRepository(db.DB),
		Fetcher:       fetcher,
		BatchSize:     cfg.Ingestion.BatchSize,
		MaxConcurrent: cfg.Ingestion.MaxConcurrent,
		Logger:        observability.WithComponent(logger, "ingest"),
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	start := time.Now()

	mode, err := ingest.ParseMode(importMode)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := slog.Default()
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	runner := buildRunner(cfg, db, logger)
	ctx := cmd.Context()

	var results []ingest.Result
	if len(importSourceNames) > 0 {
		sourceRepo := repository.NewEpgSourceRepository(db.DB)
		var sources []*models.EpgSource
		for _, name := range importSourceNames {
			source, err := sourceRepo.GetByName(ctx, name)
			if err != nil {
				return err
			}
			if source == nil {
				return fmt.Errorf("source not found: %q", name)
			}
			sources = append(sources, source)
		}
		results = runner.ImportSources(ctx, sources, mode)
	} else {
		results, err = runner.ImportActive(ctx, mode)
		if err != nil {
			return err
		}
	}

	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
			fmt.Printf("%s: %s\n", res.Source.Name, res.Source.LastImportStatus)
			continue
		}
		fmt.Printf("%s: imported %d programs across %d channels\n",
			res.Source.Name, res.Summary.Programs, res.Summary.Channels)
	}

	if len(results) == 0 {
		fmt.Println("no sources to import")
		return nil
	}

	fmt.Printf("done: %d source(s), %d failed, took %s\n",
		len(results), failed, time.Since(start).Round(time.Millisecond))

	if importStrict && failed > 0 {
		return fmt.Errorf("%d source(s) failed", failed)
	}
	return nil
}

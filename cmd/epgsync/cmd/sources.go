package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/epgsync/epgsync/internal/models"
	"github.com/epgsync/epgsync/internal/repository"
)

var (
	sourceAddURL  string
	sourceAddFile string
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage EPG sources",
	Long:  `Commands for listing and editing the configured EPG sources.`,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources and their last import status",
	RunE:  runSourcesList,
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a source",
	Long: `Add a source fed from a URL or a file path.

Exactly one of --url or --file must be given. Relative file paths are
resolved against the configured EPG storage directory at import time.`,
	Args: cobra.ExactArgs(1),
	RunE: runSourcesAdd,
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourcesRemove,
}

var sourcesEnableCmd = &cobra.Command{
	Use:   "enable NAME",
	Short: "Enable a source",
	Args:  cobra.ExactArgs(1),
	RunE:  setSourceActive(true),
}

var sourcesDisableCmd = &cobra.Command{
	Use:   "disable NAME",
	Short: "Disable a source without removing it",
	Args:  cobra.ExactArgs(1),
	RunE:  setSourceActive(false),
}

func init() {
	sourcesAddCmd.Flags().StringVar(&sourceAddURL, "url", "", "URL to fetch the XMLTV document from")
	sourcesAddCmd.Flags().StringVar(&sourceAddFile, "file", "", "file path to read the XMLTV document from")

	sourcesCmd.AddCommand(sourcesListCmd, sourcesAddCmd, sourcesRemoveCmd, sourcesEnableCmd, sourcesDisableCmd)
	rootCmd.AddCommand(sourcesCmd)
}

// withSourceRepo opens the database and hands a source repository to fn.
func withSourceRepo(ctx context.Context, fn func(context.Context, repository.EpgSourceRepository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, repository.NewEpgSourceRepository(db.DB))
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	return withSourceRepo(cmd.Context(), func(ctx context.Context, repo repository.EpgSourceRepository) error {
		sources, err := repo.GetAll(ctx)
		if err != nil {
			return err
		}

		if len(sources) == 0 {
			fmt.Println("no sources configured")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tACTIVE\tLOCATION\tLAST IMPORT\tSTATUS\tPROGRAMS\tCHANNELS")
		for _, s := range sources {
			location := s.URL
			if location == "" {
				location = s.FilePath
			}
			lastImport := "never"
			if s.LastImportAt != nil {
				lastImport = s.LastImportAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\t%d\t%d\n",
				s.Name, s.Active(), location, lastImport, s.LastImportStatus, s.ProgramsCount, s.ChannelsCount)
		}
		return w.Flush()
	})
}

func runSourcesAdd(cmd *cobra.Command, args []string) error {
	return withSourceRepo(cmd.Context(), func(ctx context.Context, repo repository.EpgSourceRepository) error {
		source := &models.EpgSource{
			Name:     args[0],
			URL:      sourceAddURL,
			FilePath: sourceAddFile,
		}

		existing, err := repo.GetByName(ctx, source.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("source already exists: %q", source.Name)
		}

		if err := repo.Create(ctx, source); err != nil {
			return err
		}
		fmt.Printf("added source %q\n", source.Name)
		return nil
	})
}

func runSourcesRemove(cmd *cobra.Command, args []string) error {
	return withSourceRepo(cmd.Context(), func(ctx context.Context, repo repository.EpgSourceRepository) error {
		source, err := repo.GetByName(ctx, args[0])
		if err != nil {
			return err
		}
		if source == nil {
			return fmt.Errorf("source not found: %q", args[0])
		}

		if err := repo.Delete(ctx, source.ID); err != nil {
			return err
		}
		fmt.Printf("removed source %q\n", source.Name)
		return nil
	})
}

func setSourceActive(active bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withSourceRepo(cmd.Context(), func(ctx context.Context, repo repository.EpgSourceRepository) error {
			source, err := repo.GetByName(ctx, args[0])
			if err != nil {
				return err
			}
			if source == nil {
				return fmt.Errorf("source not found: %q", args[0])
			}

			source.IsActive = models.BoolPtr(active)
			if err := repo.Update(ctx, source); err != nil {
				return err
			}

			verb := "disabled"
			if active {
				verb = "enabled"
			}
			fmt.Printf("%s source %q\n", verb, source.Name)
			return nil
		})
	}
}

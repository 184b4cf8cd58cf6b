package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/epgsync/epgsync/internal/repository"
)

var programsListHours int

var programsCmd = &cobra.Command{
	Use:   "programs",
	Short: "Query imported guide data",
	Long:  `Commands for inspecting the imported program guide by channel.`,
}

var programsListCmd = &cobra.Command{
	Use:   "list CHANNEL_ID",
	Short: "List upcoming programs for a channel",
	Long: `List programs for a channel that overlap the window from now to
now plus --hours, in start-time order.`,
	Args: cobra.ExactArgs(1),
	RunE: runProgramsList,
}

var programsCurrentCmd = &cobra.Command{
	Use:   "current CHANNEL_ID",
	Short: "Show the program currently on air for a channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgramsCurrent,
}

func init() {
	programsListCmd.Flags().IntVar(&programsListHours, "hours", 24, "window length in hours")

	programsCmd.AddCommand(programsListCmd, programsCurrentCmd)
	rootCmd.AddCommand(programsCmd)
}

// withProgramRepo opens the database and hands a program repository to fn.
func withProgramRepo(ctx context.Context, fn func(context.Context, repository.EpgProgramRepository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, repository.NewEpgProgramRepository(db.DB))
}

func runProgramsList(cmd *cobra.Command, args []string) error {
	return withProgramRepo(cmd.Context(), func(ctx context.Context, repo repository.EpgProgramRepository) error {
		now := time.Now().UTC()
		return renderProgramList(ctx, repo, os.Stdout, args[0], now, now.Add(time.Duration(programsListHours)*time.Hour))
	})
}

func runProgramsCurrent(cmd *cobra.Command, args []string) error {
	return withProgramRepo(cmd.Context(), func(ctx context.Context, repo repository.EpgProgramRepository) error {
		return renderCurrentProgram(ctx, repo, os.Stdout, args[0], time.Now().UTC())
	})
}

// renderProgramList writes the channel's programs overlapping [from, to) as
// a table, followed by the channel's total row count.
func renderProgramList(ctx context.Context, repo repository.EpgProgramRepository, out io.Writer, channelID string, from, to time.Time) error {
	programs, err := repo.GetByChannelID(ctx, channelID, from, to)
	if err != nil {
		return err
	}
	total, err := repo.CountByChannelID(ctx, channelID)
	if err != nil {
		return err
	}

	if len(programs) == 0 {
		fmt.Fprintf(out, "no programs for channel %q in the next %s (%d stored in total)\n",
			channelID, to.Sub(from), total)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "START\tEND\tTITLE\tCATEGORY")
	for _, p := range programs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			p.StartTime.Format("2006-01-02 15:04"),
			p.EndTime.Format("2006-01-02 15:04"),
			p.Title, p.Category)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d program(s) shown, %d stored for channel %q\n", len(programs), total, channelID)
	return nil
}

// renderCurrentProgram writes the program on air for the channel, if any.
func renderCurrentProgram(ctx context.Context, repo repository.EpgProgramRepository, out io.Writer, channelID string, now time.Time) error {
	program, err := repo.GetCurrentByChannelID(ctx, channelID, now)
	if err != nil {
		return err
	}
	if program == nil {
		fmt.Fprintf(out, "nothing on air for channel %q\n", channelID)
		return nil
	}

	fmt.Fprintf(out, "%s (%s - %s)\n", program.Title,
		program.StartTime.Format("15:04"), program.EndTime.Format("15:04"))
	if program.Description != "" {
		fmt.Fprintln(out, program.Description)
	}
	return nil
}

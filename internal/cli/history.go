package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/rulesift/internal/config"
	"github.com/ppiankov/rulesift/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func historyAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()

	runs, err := db.RecentRuns(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "No runs recorded yet. Run 'rulesift sift' first.")
		return nil
	}

	w := os.Stdout
	fmt.Fprintf(w, "  %-14s  %9s  %9s  %7s  %s\n", "Started", "Duration", "Processed", "Matches", "Newest Post")
	for _, run := range runs {
		newest := "-"
		if run.LastCreated != nil {
			newest = humanize.Time(*run.LastCreated)
		}
		fmt.Fprintf(w, "  %-14s  %9s  %9d  %7d  %s\n",
			humanize.Time(run.StartedAt),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String(),
			run.TotalProcessed,
			run.Matches,
			newest)
	}

	cursor, ok, err := db.Cursor(ctx)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	if ok {
		fmt.Fprintf(w, "\ncursor: %s (%s)\n", cursor.UTC().Format(time.RFC3339), humanize.Time(cursor))
	}
	return nil
}

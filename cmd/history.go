package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/autobrr/dupelink/pkg/config"
	"github.com/autobrr/dupelink/pkg/report"
)

func HistoryCommand() *cobra.Command {
	var (
		reportDB string
		limit    int
	)

	command := &cobra.Command{
		Use:   "history",
		Short: "List runs recorded in the report database",
		Long:  `List the link runs recorded in the report database, newest first, with their outcome counts.`,
		Example: `  dupelink history --report-db /var/lib/dupelink/report.db
  dupelink history --limit 3`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}

	command.Flags().StringVar(&reportDB, "report-db", "", "SQLite report database to read")
	command.Flags().IntVar(&limit, "limit", 10, "Show at most this many runs (0 for all)")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		if err := initCore(); err != nil {
			return err
		}

		dbPath := config.Config.ReportDB
		if cmd.Flags().Changed("report-db") {
			dbPath = reportDB
		}
		if dbPath == "" {
			return fmt.Errorf("no report database configured, set report_db or pass --report-db")
		}

		return runHistory(cmd.Context(), dbPath, limit, cmd.OutOrStdout())
	}

	return command
}

func runHistory(ctx context.Context, dbPath string, limit int, out io.Writer) error {
	// never create an empty database just to read it
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("open report database: %w", err)
	}

	store, err := report.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open report database: %w", err)
	}
	defer store.Close()

	runs, err := store.Runs(ctx)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	for _, r := range runs {
		counts, err := store.OutcomeCounts(ctx, r.ID)
		if err != nil {
			return err
		}

		printRun(out, r, counts)
	}

	return nil
}

func printRun(out io.Writer, r report.Run, counts map[string]int) {
	state := "unfinished"
	if r.FinishedAt.Valid {
		state = "took " + r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
	}

	mode := ""
	if r.DryRun {
		mode = " (dry run)"
	}

	fmt.Fprintf(out, "#%d %s%s | policy %s | started %s | %s\n", r.ID, r.Root, mode, r.Policy,
		r.StartedAt.Local().Format(time.DateTime), state)
	fmt.Fprintf(out, "  scanned %d, %d sets holding %d files, %d already hardlinked\n",
		r.Scanned, r.Sets, r.FilesInSets, r.PreExistingLinks)
	fmt.Fprintf(out, "  linked %d, %d failures, %d stranded | reclaimable %s, reclaimed %s\n",
		r.Linked, r.Failures, r.Stranded, humanize.IBytes(r.ReclaimableBytes), humanize.IBytes(r.ReclaimedBytes))

	if len(counts) == 0 {
		return
	}

	parts := make([]string, 0, len(counts))
	for _, status := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s=%d", status, counts[status]))
	}
	fmt.Fprintf(out, "  outcomes: %s\n", strings.Join(parts, " "))
}

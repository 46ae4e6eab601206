package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/autobrr/dupelink/pkg/config"
	"github.com/autobrr/dupelink/pkg/consolidate"
	"github.com/autobrr/dupelink/pkg/dedupe"
	"github.com/autobrr/dupelink/pkg/metrics"
	"github.com/autobrr/dupelink/pkg/notification"
	"github.com/autobrr/dupelink/pkg/report"
)

type linkOptions struct {
	yes           bool
	dryRun        bool
	backupSuffix  string
	reportDB      string
	metricsFile   string
	notifications config.NotificationsConfig
}

func LinkCommand() *cobra.Command {
	var (
		flags       scanFlags
		yes         bool
		reportDB    string
		metricsFile string
	)

	command := &cobra.Command{
		Use:   "link [DIR]",
		Short: "Replace duplicate files with hardlinks",
		Long: `Scan a directory tree for files with identical content and replace every duplicate
with a hardlink to the original of its set. Each duplicate is renamed to a backup name
first and only deleted once the hardlink exists.`,
		Example: `  dupelink link /data
  dupelink link /data --yes --report-db /var/lib/dupelink/report.db
  dupelink link /data --dry-run`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
	}

	flags.register(command)
	command.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	command.Flags().StringVar(&reportDB, "report-db", "", "Record the run to this SQLite database")
	command.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		if err := initCore(); err != nil {
			return err
		}

		opts, err := resolveScanOptions(cmd, args, &flags, config.Config)
		if err != nil {
			return err
		}

		lo := linkOptions{
			yes:           yes,
			dryRun:        FlagDryRun,
			backupSuffix:  config.Config.BackupSuffix,
			reportDB:      config.Config.ReportDB,
			metricsFile:   config.Config.MetricsFile,
			notifications: config.Config.Notifications,
		}
		if cmd.Flags().Changed("report-db") {
			lo.reportDB = reportDB
		}
		if cmd.Flags().Changed("metrics-file") {
			lo.metricsFile = metricsFile
		}

		return runLink(cmd.Context(), opts, lo, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	return command
}

// runLink scans, asks for confirmation and consolidates every duplicate set. The returned
// error matches consolidate.ErrStranded when any dupe's content was left under its backup name.
func runLink(ctx context.Context, opts *scanOptions, lo linkOptions, in io.Reader, out io.Writer) error {
	start := time.Now()

	var store *report.Store
	var runID int64
	if lo.reportDB != "" {
		s, err := report.Open(lo.reportDB)
		if err != nil {
			return fmt.Errorf("open report database: %w", err)
		}
		defer s.Close()

		id, err := s.BeginRun(ctx, report.RunInfo{
			Root:      opts.root,
			DryRun:    lo.dryRun,
			Policy:    string(opts.dedupe.Policy),
			StartedAt: start,
		})
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}

		store, runID = s, id
	}

	var mm *metrics.Manager
	if lo.metricsFile != "" {
		mm = metrics.NewManager()
	}

	res, err := runScan(ctx, opts, out)
	if err != nil {
		if store != nil {
			// an aborted scan still gets its run closed
			if finishErr := store.FinishRun(context.WithoutCancel(ctx), runID, dedupe.Summary{}, nil); finishErr != nil {
				log.WithError(finishErr).Error("Failed finishing run record")
			}
		}
		return err
	}

	if mm != nil {
		mm.Run().ObserveSummary(res.Summary)
	}

	if store != nil {
		if err := store.RecordSets(ctx, runID, res.Sets); err != nil {
			log.WithError(err).Error("Failed recording duplicate sets")
		}
	}

	noti := notification.NewConsoleSender(log, lo.notifications, out)

	var rep *consolidate.Report
	var linkErr error

	switch {
	case len(res.Sets) == 0:
		log.Info("No duplicates found, nothing to link")
	case !lo.dryRun && !lo.yes && !confirmLink(in, out, res.Summary.FilesInSets-res.Summary.Sets, res.Summary.Sets,
		res.Summary.ReclaimableBytes):
		log.Warn("Aborted, no files were changed")
	default:
		var fields []notification.Field

		engine := consolidate.New(opts.fs, consolidate.Options{
			BackupSuffix: lo.backupSuffix,
			DryRun:       lo.dryRun,
			OnOutcome: func(o consolidate.Outcome) {
				if mm != nil {
					mm.Run().ObserveOutcome(o)
				}

				action, buildOpts := notification.FromOutcome(o)
				fields = append(fields, noti.BuildField(action, buildOpts))
			},
		})

		rep, linkErr = engine.ConsolidateAll(ctx, res.Sets)

		log.Info("-----")
		if lo.dryRun {
			log.WithField("reclaimable_space", humanize.IBytes(rep.ReclaimedBytes)).
				Infof("Would hardlink %d dupes, %d already linked and %d skipped", rep.DryRun, rep.AlreadyLinked,
					rep.Skipped)
		} else {
			log.WithField("reclaimed_space", humanize.IBytes(rep.ReclaimedBytes)).
				Infof("Hardlinked %d dupes (%d kept backups), %d already linked, %d restored, %d skipped and %d stranded",
					rep.Linked+rep.BackupKept, rep.BackupKept, rep.AlreadyLinked, rep.Restored, rep.Skipped,
					rep.Stranded)
		}

		if noti.CanSend() {
			description := fmt.Sprintf("Linked %d dupes in %d sets | Total reclaimed %s",
				rep.Linked+rep.BackupKept, len(res.Sets), humanize.IBytes(rep.ReclaimedBytes))
			if lo.dryRun {
				description = fmt.Sprintf("Would link %d dupes in %d sets | Would reclaim %s",
					rep.DryRun, len(res.Sets), humanize.IBytes(rep.ReclaimedBytes))
			}

			sendErr := noti.Send(
				"Consolidate",
				description,
				time.Since(start),
				fields,
				lo.dryRun,
			)
			if sendErr != nil {
				log.WithError(sendErr).Error("Failed sending notification")
			}
		}
	}

	if store != nil {
		if rep != nil {
			if err := store.RecordOutcomes(ctx, runID, rep.Outcomes); err != nil {
				log.WithError(err).Error("Failed recording outcomes")
			}
		}
		if err := store.FinishRun(ctx, runID, res.Summary, rep); err != nil {
			log.WithError(err).Error("Failed finishing run record")
		}
	}

	if mm != nil {
		if rep != nil {
			mm.Run().ObserveReport(rep)
		}
		mm.Run().ObserveDuration(time.Since(start))

		if err := mm.WriteTextfile(lo.metricsFile); err != nil {
			log.WithError(err).Errorf("Failed writing metrics to %s", lo.metricsFile)
		}
	}

	return linkErr
}

func confirmLink(in io.Reader, out io.Writer, dupes, sets int, reclaimable uint64) bool {
	ok, err := confirm(in, out, fmt.Sprintf("Replace %d dupes in %d sets with hardlinks, reclaiming %s?",
		dupes, sets, humanize.IBytes(reclaimable)))
	if err != nil {
		log.WithError(err).Error("Failed reading confirmation")
		return false
	}

	return ok
}

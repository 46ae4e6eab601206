package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/autobrr/dupelink/pkg/config"
	"github.com/autobrr/dupelink/pkg/dedupe"
	"github.com/autobrr/dupelink/pkg/expression"
	"github.com/autobrr/dupelink/pkg/hasher"
	"github.com/autobrr/dupelink/pkg/linkfs"
	"github.com/autobrr/dupelink/pkg/paths"
)

const progressInterval = 2 * time.Second

// scanFlags hold the command line overrides shared by scan and link.
type scanFlags struct {
	pattern string
	minSize int64
	workers int
	policy  string
	list    bool
}

func (f *scanFlags) register(command *cobra.Command) {
	command.Flags().StringVar(&f.pattern, "pattern", "*", "Glob file names must match")
	command.Flags().Int64Var(&f.minSize, "min-size", dedupe.DefaultMinSize, "Ignore files smaller than this many bytes (must be positive)")
	command.Flags().IntVar(&f.workers, "workers", 1, "Number of concurrent hashing jobs")
	command.Flags().StringVar(&f.policy, "policy", string(dedupe.PolicyFirstSeen), "Original selection policy: first-seen, shortest-path or oldest")
	command.Flags().BoolVar(&f.list, "list", false, "Print every duplicate set")
}

// scanOptions is the resolved configuration of one run.
type scanOptions struct {
	fs     linkfs.FS
	root   string
	filter paths.Filter
	ignore []expression.CompiledExpression
	dedupe dedupe.Options
	list   bool
}

// resolveScanOptions merges the loaded configuration with any flag set on the command line.
func resolveScanOptions(command *cobra.Command, args []string, f *scanFlags, cfg *config.Configuration) (*scanOptions, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve directory: %w", err)
	}

	pattern := cfg.Filter.Pattern
	if command.Flags().Changed("pattern") {
		pattern = f.pattern
	}

	minSize := cfg.Filter.MinSize
	if command.Flags().Changed("min-size") {
		minSize = f.minSize
	}
	if minSize <= 0 {
		return nil, fmt.Errorf("invalid minimum size %d: must be at least 1 byte", minSize)
	}

	workers := cfg.Workers
	if command.Flags().Changed("workers") {
		workers = f.workers
	}

	policyName := cfg.Policy
	if command.Flags().Changed("policy") {
		policyName = f.policy
	}

	policy, err := dedupe.ParsePolicy(policyName)
	if err != nil {
		return nil, err
	}

	ignore, err := expression.Compile(cfg.Filter.Ignore)
	if err != nil {
		return nil, fmt.Errorf("compile ignore expressions: %w", err)
	}

	return &scanOptions{
		fs:   linkfs.New(),
		root: root,
		filter: paths.Filter{
			Pattern: pattern,
			Exclude: cfg.Filter.Exclude,
		},
		ignore: ignore,
		dedupe: dedupe.Options{
			MinSize: minSize,
			Workers: workers,
			Policy:  policy,
		},
		list: f.list,
	}, nil
}

// runScan enumerates candidates under the root, drops ignored ones and groups the rest
// into duplicate sets.
func runScan(ctx context.Context, opts *scanOptions, out io.Writer) (*dedupe.Result, error) {
	log.Infof("Scanning %q for duplicates (pattern: %q, min size: %s, workers: %d, policy: %s)",
		opts.root, opts.filter.Pattern, humanize.IBytes(uint64(opts.dedupe.MinSize)), max(opts.dedupe.Workers, 1),
		opts.dedupe.Policy)

	files, size, err := paths.InFolder(opts.root, opts.filter)
	if err != nil {
		return nil, fmt.Errorf("enumerate files: %w", err)
	}
	log.Infof("Retrieved %d files (%s) from %q", len(files), humanize.IBytes(size), opts.root)

	files, ignored, err := expression.FilterPaths(ctx, files, opts.ignore)
	if err != nil {
		return nil, fmt.Errorf("apply ignore expressions: %w", err)
	}
	if ignored > 0 {
		log.Infof("Ignored %d files matching ignore expressions", ignored)
	}

	grouper := dedupe.NewGrouper(opts.fs, hasher.NewSHA256(), opts.dedupe)

	stop := reportProgress(grouper.Progress(), progressInterval)
	res, err := grouper.Scan(ctx, paths.Names(files))
	stop()
	if err != nil {
		return nil, err
	}

	logSummary(res.Summary)

	if opts.list {
		printSets(out, res.Sets)
	}

	return res, nil
}

// reportProgress logs the scan progress on every tick until the returned func is called.
func reportProgress(p *dedupe.Progress, interval time.Duration) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				log.Infof("Progress: %d%% (%d/%d scanned, %d hashed, %d failed)", p.Percent(),
					p.Scanned.Load(), p.Total.Load(), p.Hashed.Load(), p.Failed.Load())
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func logSummary(s dedupe.Summary) {
	log.Info("-----")
	log.WithField("reclaimable_space", humanize.IBytes(s.ReclaimableBytes)).
		Infof("Scanned %d files: %d unique, %d duplicate sets holding %d files, %d already hardlinked",
			s.Scanned, s.Unique, s.Sets, s.FilesInSets, s.PreExistingLinks)

	if s.SkippedSmall > 0 || s.Failed > 0 {
		log.Infof("Skipped %d files below the minimum size and %d unreadable files", s.SkippedSmall, s.Failed)
	}

	if s.IdentityUnavailable > 0 {
		log.Warnf("File identity unavailable for %d files, existing hardlinks among them were compared by content",
			s.IdentityUnavailable)
	}

	log.Infof("Reclaimable: %d KiB / %d MiB / %d GiB / %d TiB", s.ReclaimableIn(dedupe.KiB),
		s.ReclaimableIn(dedupe.MiB), s.ReclaimableIn(dedupe.GiB), s.ReclaimableIn(dedupe.TiB))
}

func printSets(out io.Writer, sets []dedupe.DuplicateSet) {
	for i, set := range sets {
		fmt.Fprintf(out, "[%d] %d files @ %s (%s)\n", i+1, len(set.Paths), humanize.IBytes(uint64(set.Size)), set.Hash)
		fmt.Fprintf(out, "  original: %s\n", set.Original())
		for _, dupe := range set.Dupes() {
			fmt.Fprintf(out, "  dupe:     %s\n", dupe)
		}
	}
}

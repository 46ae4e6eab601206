package dedupe

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/scylladb/go-set/strset"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/dupelink/pkg/hardlinkfilemap"
	"github.com/autobrr/dupelink/pkg/hasher"
	"github.com/autobrr/dupelink/pkg/linkfs"
	"github.com/autobrr/dupelink/pkg/logger"
)

// DefaultMinSize is the smallest file size considered for deduplication.
const DefaultMinSize int64 = 1024

type Options struct {
	// MinSize skips files smaller than this many bytes. Zero means DefaultMinSize.
	MinSize int64
	// Workers is the number of concurrent hashing jobs. Values below 2 hash inline.
	Workers int
	// Policy selects the original of each duplicate set.
	Policy Policy
}

// Grouper classifies candidate files into duplicate sets: by size first, then by content
// hash, skipping files that are already hardlinked to a previously seen path. A Grouper
// holds the state of a single run.
type Grouper struct {
	fs     linkfs.FS
	hasher hasher.Hasher
	links  *hardlinkfilemap.HardlinkFileMap
	opts   Options
	log    *logrus.Entry
	tracer trace.Tracer
	pool   *errgroup.Group

	progress Progress

	mu           sync.Mutex
	sizes        map[int64]*sizeBucket
	seen         *strset.Set
	seq          int
	scanned      int
	skippedSmall int
	failures     []error
}

func NewGrouper(fsys linkfs.FS, h hasher.Hasher, opts Options) *Grouper {
	if opts.MinSize <= 0 {
		opts.MinSize = DefaultMinSize
	}
	if opts.Policy == "" {
		opts.Policy = PolicyFirstSeen
	}

	g := &Grouper{
		fs:     fsys,
		hasher: h,
		links:  hardlinkfilemap.New(fsys),
		opts:   opts,
		log:    logger.GetLogger("dedupe"),
		tracer: otel.Tracer("github.com/autobrr/dupelink/pkg/dedupe"),
		sizes:  make(map[int64]*sizeBucket),
		seen:   strset.New(),
	}

	if opts.Workers > 1 {
		g.pool = &errgroup.Group{}
		g.pool.SetLimit(opts.Workers)
	}

	return g
}

// Progress exposes the live counters of the run.
func (g *Grouper) Progress() *Progress {
	return &g.progress
}

// Scan feeds every path to Add, waits for outstanding hashing and returns the result.
func (g *Grouper) Scan(ctx context.Context, paths []string) (*Result, error) {
	ctx, span := g.tracer.Start(ctx, "dedupe.Scan",
		trace.WithAttributes(attribute.Int("candidates", len(paths))))
	defer span.End()

	g.progress.Total.Store(int64(len(paths)))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return nil, fmt.Errorf("scan interrupted: %w", err)
		}

		g.Add(path)
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("wait for hashing: %w", err)
	}

	res := g.Result()
	span.SetAttributes(
		attribute.Int("sets", res.Summary.Sets),
		attribute.Int("preexisting_links", res.Summary.PreExistingLinks),
		attribute.Int64("reclaimable_bytes", int64(res.Summary.ReclaimableBytes)),
	)

	return res, nil
}

// Add runs one candidate through the filter pipeline, cheapest checks first.
func (g *Grouper) Add(path string) {
	g.progress.Scanned.Add(1)

	g.mu.Lock()
	if g.seen.Has(path) {
		g.mu.Unlock()
		g.log.Tracef("Skipping repeated path: %s", path)
		return
	}
	g.seen.Add(path)
	g.scanned++
	seq := g.seq
	g.seq++
	g.mu.Unlock()

	info, err := g.fs.Lstat(path)
	if err != nil {
		g.fail(fmt.Errorf("stat %s: %w", path, err))
		return
	}

	if !info.Mode().IsRegular() {
		g.log.Tracef("Skipping non-regular file: %s", path)
		return
	}

	size := info.Size()
	if size < g.opts.MinSize {
		g.mu.Lock()
		g.skippedSmall++
		g.mu.Unlock()
		return
	}

	if seen, _ := g.links.Observe(path); seen {
		return
	}

	g.mu.Lock()
	bucket, ok := g.sizes[size]
	if !ok {
		bucket = &sizeBucket{}
		g.sizes[size] = bucket
	}
	g.mu.Unlock()

	for _, c := range bucket.admit(candidate{path: path, seq: seq}) {
		g.hash(bucket, c)
	}
}

func (g *Grouper) hash(bucket *sizeBucket, c candidate) {
	work := func() error {
		sum, err := hasher.HashFile(g.hasher, g.fs.Open, c.path)
		if err != nil {
			g.fail(err)
			return nil
		}

		g.progress.Hashed.Add(1)
		bucket.insert(sum, c)
		return nil
	}

	if g.pool == nil {
		_ = work()
		return
	}

	g.pool.Go(work)
}

func (g *Grouper) fail(err error) {
	g.progress.Failed.Add(1)
	g.log.WithError(err).Warn("Couldn't read file, ignored")

	g.mu.Lock()
	g.failures = append(g.failures, err)
	g.mu.Unlock()
}

// Wait blocks until all dispatched hashing jobs have finished.
func (g *Grouper) Wait() error {
	if g.pool == nil {
		return nil
	}

	return g.pool.Wait()
}

// Result finalizes the duplicate sets. It must only be called after Wait.
func (g *Grouper) Result() *Result {
	type orderedSet struct {
		set      DuplicateSet
		firstSeq int
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var ordered []orderedSet
	for size, bucket := range g.sizes {
		for hash, members := range bucket.groups() {
			sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })

			paths := make([]string, len(members))
			for i, m := range members {
				paths[i] = m.path
			}

			ordered = append(ordered, orderedSet{
				set:      DuplicateSet{Size: size, Hash: hash, Paths: paths},
				firstSeq: members[0].seq,
			})
		}
	}

	sort.Slice(ordered, func(i, j int) bool { return ordered[i].firstSeq < ordered[j].firstSeq })

	res := &Result{
		Sets:     make([]DuplicateSet, 0, len(ordered)),
		Failures: append([]error(nil), g.failures...),
	}

	summary := Summary{
		Scanned:          g.scanned,
		PreExistingLinks: g.links.PreExisting(),
		SkippedSmall:     g.skippedSmall,
		Failed:           len(g.failures),

		IdentityUnavailable: g.links.Unavailable(),
	}

	for _, o := range ordered {
		set := o.set
		set.Paths = g.opts.Policy.order(g.fs, set.Paths)

		summary.Sets++
		summary.FilesInSets += len(set.Paths)
		summary.ReclaimableBytes += set.Reclaimable()
		res.Sets = append(res.Sets, set)
	}

	summary.Unique = summary.Scanned - summary.FilesInSets
	res.Summary = summary

	return res
}

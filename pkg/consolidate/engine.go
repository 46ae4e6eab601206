package consolidate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/autobrr/dupelink/pkg/dedupe"
	"github.com/autobrr/dupelink/pkg/hasher"
	"github.com/autobrr/dupelink/pkg/linkfs"
	"github.com/autobrr/dupelink/pkg/logger"
)

const DefaultBackupSuffix = ".bak"

var (
	// ErrStranded marks a dupe whose content was left under its backup name.
	ErrStranded = errors.New("content stranded under backup name")
	// ErrBackupExists is returned when the backup name is already taken.
	ErrBackupExists = errors.New("backup path already exists")
	// ErrChanged is returned when a set member no longer matches the scanned size or content.
	ErrChanged = errors.New("file changed since scan")
)

type Options struct {
	BackupSuffix string
	DryRun       bool
	// Hasher re-hashes set members before they are touched. Nil means SHA-256.
	Hasher hasher.Hasher
	// OnOutcome is called once per dupe, after the outcome has been logged.
	OnOutcome func(Outcome)
}

// Engine replaces duplicate copies with hardlinks to their set's original.
type Engine struct {
	fs     linkfs.FS
	opts   Options
	log    *logrus.Entry
	tracer trace.Tracer
}

func New(fsys linkfs.FS, opts Options) *Engine {
	if opts.BackupSuffix == "" {
		opts.BackupSuffix = DefaultBackupSuffix
	}
	if opts.Hasher == nil {
		opts.Hasher = hasher.NewSHA256()
	}

	return &Engine{
		fs:     fsys,
		opts:   opts,
		log:    logger.GetLogger("consolidate"),
		tracer: otel.Tracer("github.com/autobrr/dupelink/pkg/consolidate"),
	}
}

// ConsolidateAll processes every set to completion. The returned error aggregates every
// stranded dupe and matches ErrStranded; other per-dupe failures only appear in the report.
func (e *Engine) ConsolidateAll(ctx context.Context, sets []dedupe.DuplicateSet) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "consolidate.All",
		trace.WithAttributes(attribute.Int("sets", len(sets))))
	defer span.End()

	report := &Report{}
	var stranded *multierror.Error

	for _, set := range sets {
		for _, o := range e.Consolidate(ctx, set) {
			report.add(o)
			if o.Status == StatusStranded {
				stranded = multierror.Append(stranded, o.Err)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("linked", report.Linked),
		attribute.Int("stranded", report.Stranded),
	)

	return report, stranded.ErrorOrNil()
}

// Consolidate links every dupe of set to its original, one dupe at a time. A failure on
// one dupe never stops the others.
func (e *Engine) Consolidate(ctx context.Context, set dedupe.DuplicateSet) []Outcome {
	_, span := e.tracer.Start(ctx, "consolidate.Set", trace.WithAttributes(
		attribute.String("original", set.Original()),
		attribute.Int("dupes", len(set.Dupes())),
		attribute.Int64("size", set.Size),
	))
	defer span.End()

	original := set.Original()
	outcomes := make([]Outcome, 0, len(set.Dupes()))
	want := sync.OnceValues(func() (string, error) {
		return e.verifyOriginal(set)
	})

	for _, dupe := range set.Dupes() {
		o := e.replace(original, dupe, set.Size, want)
		e.logOutcome(o)

		if e.opts.OnOutcome != nil {
			e.opts.OnOutcome(o)
		}

		outcomes = append(outcomes, o)
	}

	return outcomes
}

func (e *Engine) skip(o Outcome, err error) Outcome {
	o.Status = StatusSkipped
	o.Err = err
	return o
}

// verifyOriginal hashes the original and checks it against the digest recorded by the scan.
// The returned digest is what every dupe must still hash to.
func (e *Engine) verifyOriginal(set dedupe.DuplicateSet) (string, error) {
	sum, err := hasher.HashFile(e.opts.Hasher, e.fs.Open, set.Original())
	if err != nil {
		return "", fmt.Errorf("verify original: %w", err)
	}

	if set.Hash != "" && sum != set.Hash {
		return "", fmt.Errorf("%w: original %s", ErrChanged, set.Original())
	}

	return sum, nil
}

// replace swaps dupe for a hardlink to original. The dupe is first renamed to its backup
// name so its content survives a failed link; the backup is renamed back if linking fails
// and deleted once the link exists. Nothing is renamed unless the dupe still hashes to want.
func (e *Engine) replace(original, dupe string, size int64, want func() (string, error)) Outcome {
	o := Outcome{
		Original: original,
		Dupe:     dupe,
		Backup:   dupe + e.opts.BackupSuffix,
		Size:     size,
	}

	if origID, ok := e.fs.Identity(original); ok {
		if dupeID, ok := e.fs.Identity(dupe); ok && origID == dupeID {
			o.Status = StatusAlreadyLinked
			return o
		}
	}

	info, err := e.fs.Lstat(dupe)
	if err != nil {
		return e.skip(o, fmt.Errorf("stat dupe: %w", err))
	}
	if !info.Mode().IsRegular() || info.Size() != size {
		return e.skip(o, ErrChanged)
	}

	if err := e.fs.CanLink(original, dupe); err != nil {
		return e.skip(o, fmt.Errorf("check link capability: %w", err))
	}

	if _, err := e.fs.Lstat(o.Backup); err == nil {
		return e.skip(o, fmt.Errorf("%w: %s", ErrBackupExists, o.Backup))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return e.skip(o, fmt.Errorf("stat backup: %w", err))
	}

	wantSum, err := want()
	if err != nil {
		return e.skip(o, err)
	}

	sum, err := hasher.HashFile(e.opts.Hasher, e.fs.Open, dupe)
	if err != nil {
		return e.skip(o, fmt.Errorf("verify dupe: %w", err))
	}
	if sum != wantSum {
		return e.skip(o, fmt.Errorf("%w: content differs from %s", ErrChanged, original))
	}

	if e.opts.DryRun {
		o.Status = StatusDryRun
		return o
	}

	if err := e.fs.Rename(dupe, o.Backup); err != nil {
		return e.skip(o, fmt.Errorf("create backup: %w", err))
	}

	if linkErr := e.fs.Link(original, dupe); linkErr != nil {
		if err := e.fs.Rename(o.Backup, dupe); err != nil {
			o.Status = StatusStranded
			o.Err = fmt.Errorf("%w: %s (restore to %s: %w, link: %w)", ErrStranded, o.Backup, dupe, err, linkErr)
			return o
		}

		o.Status = StatusRestored
		o.Err = fmt.Errorf("create hardlink: %w", linkErr)
		return o
	}

	if err := e.fs.Remove(o.Backup); err != nil {
		o.Status = StatusLinkedBackupKept
		o.Err = fmt.Errorf("remove backup: %w", err)
		return o
	}

	o.Status = StatusLinked
	return o
}

func (e *Engine) logOutcome(o Outcome) {
	log := e.log.WithField("dupe", o.Dupe)

	switch o.Status {
	case StatusLinked:
		log.Infof("Hardlinked %q to %q; deleted backup", o.Original, o.Dupe)
	case StatusLinkedBackupKept:
		log.WithError(o.Err).Warnf("Hardlinked %q to %q but backup remains: %q", o.Original, o.Dupe, o.Backup)
	case StatusAlreadyLinked:
		log.Debugf("Already hardlinked to %q", o.Original)
	case StatusRestored:
		log.WithError(o.Err).Warnf("Couldn't hardlink %q to %q; restored backup", o.Original, o.Dupe)
	case StatusSkipped:
		log.WithError(o.Err).Warnf("Skipping dupe of %q", o.Original)
	case StatusStranded:
		log.WithError(o.Err).Errorf("Restore failed, content of %q is stranded at %q and must be moved back manually",
			o.Dupe, o.Backup)
	case StatusDryRun:
		log.Warnf("Dry-run enabled, skipping hardlink of %q to %q...", o.Original, o.Dupe)
	}
}

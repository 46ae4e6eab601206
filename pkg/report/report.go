// Package report persists the duplicate sets and consolidation outcomes of each run to a
// SQLite database for later inspection. Nothing in it feeds back into detection.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/autobrr/dupelink/pkg/consolidate"
	"github.com/autobrr/dupelink/pkg/dedupe"
	"github.com/autobrr/dupelink/pkg/logger"
)

type Store struct {
	db  *sql.DB
	log *logrus.Entry
}

type RunInfo struct {
	Root      string
	DryRun    bool
	Policy    string
	StartedAt time.Time
}

// Run is one row of the runs table.
type Run struct {
	ID               int64
	Root             string
	DryRun           bool
	Policy           string
	StartedAt        time.Time
	FinishedAt       sql.NullTime
	Scanned          int
	Unique           int
	Sets             int
	FilesInSets      int
	PreExistingLinks int
	ReclaimableBytes uint64
	ReclaimedBytes   uint64
	Linked           int
	Failures         int
	Stranded         int
}

// connectionParams are applied by the driver to every connection of the pool.
const connectionParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"

// Open creates the database at dbPath if needed, applies pending migrations and tunes the
// connections for a single writer.
func Open(dbPath string) (*Store, error) {
	log := logger.GetLogger("report")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	needsInit := false
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		needsInit = true
	}

	db, err := sql.Open("sqlite3", dbPath+"?"+connectionParams)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if needsInit || needsMigration(db) {
		log.Debugf("Running database migrations on %s", dbPath)
		if err := runMigrations(dbPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) BeginRun(ctx context.Context, info RunInfo) (int64, error) {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (root, dry_run, policy, started_at)
		VALUES (?, ?, ?, ?)
	`, info.Root, info.DryRun, info.Policy, info.StartedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read run id: %w", err)
	}

	s.log.Debugf("Recording run %d", id)
	return id, nil
}

func (s *Store) RecordSets(ctx context.Context, runID int64, sets []dedupe.DuplicateSet) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO duplicate_sets (run_id, size, hash, original, members)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare set insert: %w", err)
		}
		defer stmt.Close()

		for _, set := range sets {
			if _, err := stmt.ExecContext(ctx, runID, set.Size, set.Hash, set.Original(), len(set.Paths)); err != nil {
				return fmt.Errorf("insert set %s: %w", set.Original(), err)
			}
		}

		return nil
	})
}

func (s *Store) RecordOutcomes(ctx context.Context, runID int64, outcomes []consolidate.Outcome) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO outcomes (run_id, original, dupe, backup, size, status, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare outcome insert: %w", err)
		}
		defer stmt.Close()

		for _, o := range outcomes {
			var errText sql.NullString
			if o.Err != nil {
				errText = sql.NullString{String: o.Err.Error(), Valid: true}
			}

			if _, err := stmt.ExecContext(ctx, runID, o.Original, o.Dupe, o.Backup, o.Size, o.Status.String(), errText); err != nil {
				return fmt.Errorf("insert outcome %s: %w", o.Dupe, err)
			}
		}

		return nil
	})
}

// FinishRun stores the scan summary and, when consolidation ran, its report.
func (s *Store) FinishRun(ctx context.Context, runID int64, summary dedupe.Summary, rep *consolidate.Report) error {
	if rep == nil {
		rep = &consolidate.Report{}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			scanned = ?,
			unique_files = ?,
			duplicate_sets = ?,
			files_in_sets = ?,
			preexisting_links = ?,
			reclaimable_bytes = ?,
			reclaimed_bytes = ?,
			linked = ?,
			failures = ?,
			stranded = ?
		WHERE run_id = ?
	`, time.Now().UTC(), summary.Scanned, summary.Unique, summary.Sets, summary.FilesInSets,
		summary.PreExistingLinks, int64(summary.ReclaimableBytes), int64(rep.ReclaimedBytes),
		rep.Linked+rep.BackupKept, rep.Failures(), rep.Stranded, runID)
	if err != nil {
		return fmt.Errorf("update run %d: %w", runID, err)
	}

	return nil
}

// Runs lists every recorded run, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, root, dry_run, policy, started_at, finished_at, scanned, unique_files,
			duplicate_sets, files_in_sets, preexisting_links, reclaimable_bytes, reclaimed_bytes,
			linked, failures, stranded
		FROM runs
		ORDER BY run_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r           Run
			reclaimable int64
			reclaimed   int64
		)

		if err := rows.Scan(&r.ID, &r.Root, &r.DryRun, &r.Policy, &r.StartedAt, &r.FinishedAt,
			&r.Scanned, &r.Unique, &r.Sets, &r.FilesInSets, &r.PreExistingLinks, &reclaimable,
			&reclaimed, &r.Linked, &r.Failures, &r.Stranded); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		r.ReclaimableBytes = uint64(reclaimable)
		r.ReclaimedBytes = uint64(reclaimed)
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// OutcomeCounts returns the number of recorded outcomes per status for a run.
func (s *Store) OutcomeCounts(ctx context.Context, runID int64) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM outcomes WHERE run_id = ? GROUP BY status
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[status] = n
	}

	return counts, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/dupelink/pkg/config"
	"github.com/autobrr/dupelink/pkg/consolidate"
	"github.com/autobrr/dupelink/pkg/dedupe"
	"github.com/autobrr/dupelink/pkg/linkfs"
	"github.com/autobrr/dupelink/pkg/report"
)

// strandingFS fails every hardlink and every rename back from a backup name.
type strandingFS struct {
	*linkfs.OS
}

func (strandingFS) Link(string, string) error {
	return errors.New("link failed")
}

func (f strandingFS) Rename(oldPath, newPath string) error {
	if strings.HasSuffix(oldPath, consolidate.DefaultBackupSuffix) {
		return errors.New("rename failed")
	}
	return f.OS.Rename(oldPath, newPath)
}

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Notifications.Color = false
	return cfg
}

func writeTree(t *testing.T) (string, map[string]string) {
	t.Helper()
	root := t.TempDir()
	content := strings.Repeat("payload ", 512)

	files := map[string]string{
		"a.bin":        content,
		"nested/b.bin": content,
		"c.bin":        strings.Repeat("different", 512),
		"small1.txt":   "tiny",
		"small2.txt":   "tiny",
	}

	full := make(map[string]string, len(files))
	for name, data := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
		full[name] = path
	}

	return root, full
}

func scanOptionsFor(t *testing.T, root string, cfg *config.Configuration, args ...string) *scanOptions {
	t.Helper()
	var flags scanFlags
	command := ScanCommand()
	command.ResetFlags()
	flags.register(command)
	require.NoError(t, command.ParseFlags(args))

	opts, err := resolveScanOptions(command, []string{root}, &flags, cfg)
	require.NoError(t, err)
	return opts
}

func sameFile(t *testing.T, a, b string) bool {
	t.Helper()
	fsys := linkfs.New()
	idA, okA := fsys.Identity(a)
	idB, okB := fsys.Identity(b)
	require.True(t, okA && okB)
	return idA == idB
}

func TestResolveScanOptions_FlagsOverrideConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Filter.Pattern = "*.mkv"
	cfg.Workers = 2
	cfg.Policy = "oldest"

	opts := scanOptionsFor(t, "/data", cfg)
	assert.Equal(t, "*.mkv", opts.filter.Pattern)
	assert.Equal(t, 2, opts.dedupe.Workers)
	assert.Equal(t, dedupe.PolicyOldest, opts.dedupe.Policy)
	assert.Equal(t, int64(1024), opts.dedupe.MinSize)

	opts = scanOptionsFor(t, "/data", cfg, "--pattern", "*.bin", "--workers", "6", "--policy", "shortest-path",
		"--min-size", "10", "--list")
	assert.Equal(t, "*.bin", opts.filter.Pattern)
	assert.Equal(t, 6, opts.dedupe.Workers)
	assert.Equal(t, dedupe.PolicyShortestPath, opts.dedupe.Policy)
	assert.Equal(t, int64(10), opts.dedupe.MinSize)
	assert.True(t, opts.list)
}

func TestResolveScanOptions_Invalid(t *testing.T) {
	cfg := testConfig(t)
	var flags scanFlags
	command := ScanCommand()

	cfg.Policy = "largest"
	_, err := resolveScanOptions(command, nil, &flags, cfg)
	assert.Error(t, err)

	cfg.Policy = "first-seen"
	cfg.Filter.Ignore = []string{"Size +"}
	_, err = resolveScanOptions(command, nil, &flags, cfg)
	assert.Error(t, err)

	cfg.Filter.Ignore = nil
	cfg.Filter.MinSize = 0
	_, err = resolveScanOptions(command, nil, &flags, cfg)
	assert.ErrorContains(t, err, "minimum size")
}

func TestResolveScanOptions_MinSizeFlagMustBePositive(t *testing.T) {
	cfg := testConfig(t)

	for _, value := range []string{"0", "-5"} {
		var flags scanFlags
		command := ScanCommand()
		command.ResetFlags()
		flags.register(command)
		require.NoError(t, command.ParseFlags([]string{"--min-size", value}))

		_, err := resolveScanOptions(command, []string{"/data"}, &flags, cfg)
		assert.Error(t, err, value)
	}
}

func TestRunScan_ListsSets(t *testing.T) {
	root, files := writeTree(t)
	opts := scanOptionsFor(t, root, testConfig(t), "--list")

	out := &bytes.Buffer{}
	res, err := runScan(context.Background(), opts, out)
	require.NoError(t, err)

	require.Len(t, res.Sets, 1)
	assert.Equal(t, []string{files["a.bin"], files["nested/b.bin"]}, res.Sets[0].Paths)
	assert.Equal(t, 2, res.Summary.SkippedSmall)
	assert.Contains(t, out.String(), "original: "+files["a.bin"])
	assert.Contains(t, out.String(), "dupe:     "+files["nested/b.bin"])
}

func TestRunLink_Confirmed(t *testing.T) {
	root, files := writeTree(t)
	cfg := testConfig(t)
	opts := scanOptionsFor(t, root, cfg)

	dbPath := filepath.Join(t.TempDir(), "report.db")
	metricsPath := filepath.Join(t.TempDir(), "dupelink.prom")

	lo := linkOptions{
		backupSuffix:  cfg.BackupSuffix,
		reportDB:      dbPath,
		metricsFile:   metricsPath,
		notifications: cfg.Notifications,
	}

	out := &bytes.Buffer{}
	require.NoError(t, runLink(context.Background(), opts, lo, strings.NewReader("y\n"), out))

	assert.True(t, sameFile(t, files["a.bin"], files["nested/b.bin"]))
	assert.False(t, sameFile(t, files["a.bin"], files["c.bin"]))
	assert.Contains(t, out.String(), "linked to "+files["a.bin"])

	_, err := os.Lstat(files["nested/b.bin"] + ".bak")
	assert.True(t, os.IsNotExist(err))

	metricsData, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metricsData), `dupelink_consolidation_outcomes{status="linked"} 1`)

	store, err := report.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Linked)
	assert.Equal(t, root, runs[0].Root)

	// a second run finds the pair already linked and has nothing to do
	out.Reset()
	require.NoError(t, runLink(context.Background(), opts, linkOptions{yes: true, notifications: cfg.Notifications},
		strings.NewReader(""), out))
	assert.NotContains(t, out.String(), "linked to")
}

func TestRunLink_Declined(t *testing.T) {
	root, files := writeTree(t)
	cfg := testConfig(t)
	opts := scanOptionsFor(t, root, cfg)

	out := &bytes.Buffer{}
	err := runLink(context.Background(), opts, linkOptions{backupSuffix: ".bak", notifications: cfg.Notifications},
		strings.NewReader("n\n"), out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "(y/n)")
	assert.False(t, sameFile(t, files["a.bin"], files["nested/b.bin"]))
}

func TestRunLink_DryRun(t *testing.T) {
	root, files := writeTree(t)
	cfg := testConfig(t)
	opts := scanOptionsFor(t, root, cfg)

	out := &bytes.Buffer{}
	err := runLink(context.Background(), opts, linkOptions{dryRun: true, backupSuffix: ".bak", notifications: cfg.Notifications},
		strings.NewReader(""), out)
	require.NoError(t, err)

	assert.NotContains(t, out.String(), "(y/n)")
	assert.Contains(t, out.String(), "(Dry Run)")
	assert.Contains(t, out.String(), "Would link 1 dupes in 1 sets")
	assert.NotContains(t, out.String(), "Linked 1 dupes")
	assert.Contains(t, out.String(), "would link to "+files["a.bin"])
	assert.False(t, sameFile(t, files["a.bin"], files["nested/b.bin"]))
}

func TestRunLink_BadReportPath(t *testing.T) {
	root, _ := writeTree(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	cfg := testConfig(t)
	err := runLink(context.Background(), scanOptionsFor(t, root, cfg),
		linkOptions{yes: true, reportDB: filepath.Join(blocker, "report.db"), notifications: cfg.Notifications},
		strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestRunLink_Stranded(t *testing.T) {
	root, files := writeTree(t)
	cfg := testConfig(t)
	opts := scanOptionsFor(t, root, cfg)
	opts.fs = strandingFS{OS: linkfs.New()}

	dbPath := filepath.Join(t.TempDir(), "report.db")
	out := &bytes.Buffer{}
	err := runLink(context.Background(), opts,
		linkOptions{yes: true, backupSuffix: cfg.BackupSuffix, reportDB: dbPath, notifications: cfg.Notifications},
		strings.NewReader(""), out)

	require.Error(t, err)
	assert.True(t, errors.Is(err, consolidate.ErrStranded))
	assert.Equal(t, 2, ExitCode(err))
	assert.Contains(t, out.String(), "STRANDED at "+files["nested/b.bin"]+".bak")

	// content is relocated under the backup name, not lost
	_, statErr := os.Lstat(files["nested/b.bin"])
	assert.True(t, os.IsNotExist(statErr))
	data, readErr := os.ReadFile(files["nested/b.bin"] + ".bak")
	require.NoError(t, readErr)
	assert.Equal(t, strings.Repeat("payload ", 512), string(data))

	store, err := report.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Stranded)
}

func TestRunLink_AbortedScanFinishesRun(t *testing.T) {
	cfg := testConfig(t)
	opts := scanOptionsFor(t, filepath.Join(t.TempDir(), "missing"), cfg)
	dbPath := filepath.Join(t.TempDir(), "report.db")

	err := runLink(context.Background(), opts, linkOptions{yes: true, reportDB: dbPath, notifications: cfg.Notifications},
		strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))

	store, err := report.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].FinishedAt.Valid)
	assert.Equal(t, 0, runs[0].Scanned)
}

func TestExitCode(t *testing.T) {
	stranded := fmt.Errorf("consolidate: %w", consolidate.ErrStranded)

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("enumerate files: no such directory")))
	assert.Equal(t, 2, ExitCode(stranded))
}

package consolidate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/dupelink/pkg/dedupe"
	"github.com/autobrr/dupelink/pkg/hasher"
	"github.com/autobrr/dupelink/pkg/linkfs"
)

// faultFS wraps the host filesystem and injects failures into selected primitives.
type faultFS struct {
	*linkfs.OS
	linkErr    error
	restoreErr error
	removeErr  error
	canLinkErr error
	linkCalls  int
}

func (f *faultFS) Link(existing, newPath string) error {
	f.linkCalls++
	if f.linkErr != nil {
		return f.linkErr
	}
	return f.OS.Link(existing, newPath)
}

func (f *faultFS) Rename(oldPath, newPath string) error {
	if f.restoreErr != nil && strings.HasSuffix(oldPath, DefaultBackupSuffix) {
		return f.restoreErr
	}
	return f.OS.Rename(oldPath, newPath)
}

func (f *faultFS) Remove(path string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.OS.Remove(path)
}

func (f *faultFS) CanLink(existing, newPath string) error {
	if f.canLinkErr != nil {
		return f.canLinkErr
	}
	return f.OS.CanLink(existing, newPath)
}

type fixture struct {
	dir      string
	original string
	dupe     string
	content  []byte
	set      dedupe.DuplicateSet
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	content := bytes.Repeat([]byte("duplicate "), 300)

	f := fixture{
		dir:      dir,
		original: filepath.Join(dir, "a.bin"),
		dupe:     filepath.Join(dir, "b.bin"),
		content:  content,
	}
	require.NoError(t, os.WriteFile(f.original, content, 0o644))
	require.NoError(t, os.WriteFile(f.dupe, content, 0o644))

	sum, err := hasher.NewSHA256().Hash(bytes.NewReader(content))
	require.NoError(t, err)

	f.set = dedupe.DuplicateSet{Size: int64(len(content)), Hash: sum, Paths: []string{f.original, f.dupe}}
	return f
}

func assertNoBackup(t *testing.T, path string) {
	t.Helper()
	_, err := os.Lstat(path + DefaultBackupSuffix)
	assert.True(t, os.IsNotExist(err), "backup should not exist for %s", path)
}

func sameIdentity(t *testing.T, a, b string) bool {
	t.Helper()
	fsys := linkfs.New()
	idA, ok := fsys.Identity(a)
	require.True(t, ok)
	idB, ok := fsys.Identity(b)
	require.True(t, ok)
	return idA == idB
}

func TestEngine_LinksDupe(t *testing.T) {
	f := newFixture(t)

	report, err := New(linkfs.New(), Options{}).ConsolidateAll(context.Background(), []dedupe.DuplicateSet{f.set})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, uint64(len(f.content)), report.ReclaimedBytes)
	assert.True(t, sameIdentity(t, f.original, f.dupe))
	assertNoBackup(t, f.dupe)

	data, err := os.ReadFile(f.dupe)
	require.NoError(t, err)
	assert.Equal(t, f.content, data)
}

func TestEngine_LinkFailureRestoresDupe(t *testing.T) {
	f := newFixture(t)
	fsys := &faultFS{OS: linkfs.New(), linkErr: errors.New("operation not permitted")}

	outcomes := New(fsys, Options{}).Consolidate(context.Background(), f.set)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusRestored, outcomes[0].Status)
	require.Error(t, outcomes[0].Err)

	data, err := os.ReadFile(f.dupe)
	require.NoError(t, err)
	assert.Equal(t, f.content, data)
	assert.False(t, sameIdentity(t, f.original, f.dupe))
	assertNoBackup(t, f.dupe)
}

func TestEngine_RestoreFailureIsStranded(t *testing.T) {
	f := newFixture(t)
	fsys := &faultFS{
		OS:         linkfs.New(),
		linkErr:    errors.New("link failed"),
		restoreErr: errors.New("rename failed"),
	}

	report, err := New(fsys, Options{}).ConsolidateAll(context.Background(), []dedupe.DuplicateSet{f.set})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStranded))
	assert.Equal(t, 1, report.Stranded)
	assert.Equal(t, 1, report.Failures())

	// content is relocated, not lost
	data, readErr := os.ReadFile(f.dupe + DefaultBackupSuffix)
	require.NoError(t, readErr)
	assert.Equal(t, f.content, data)
}

func TestEngine_SecondRunIsNoop(t *testing.T) {
	f := newFixture(t)
	engine := New(linkfs.New(), Options{})

	_, err := engine.ConsolidateAll(context.Background(), []dedupe.DuplicateSet{f.set})
	require.NoError(t, err)

	report, err := engine.ConsolidateAll(context.Background(), []dedupe.DuplicateSet{f.set})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Linked)
	assert.Equal(t, 1, report.AlreadyLinked)

	g := dedupe.NewGrouper(linkfs.New(), hasher.NewSHA256(), dedupe.Options{})
	res, err := g.Scan(context.Background(), []string{f.original, f.dupe})
	require.NoError(t, err)
	assert.Empty(t, res.Sets)
	assert.Equal(t, 1, res.Summary.PreExistingLinks)
}

func TestEngine_BackupNameTaken(t *testing.T) {
	f := newFixture(t)
	backup := f.dupe + DefaultBackupSuffix
	require.NoError(t, os.WriteFile(backup, []byte("unrelated"), 0o644))

	outcomes := New(linkfs.New(), Options{}).Consolidate(context.Background(), f.set)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, ErrBackupExists)

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "unrelated", string(data))
	assert.False(t, sameIdentity(t, f.original, f.dupe))
}

func TestEngine_ChangedDupeSkipped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.dupe, []byte("rewritten"), 0o644))

	outcomes := New(linkfs.New(), Options{}).Consolidate(context.Background(), f.set)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, ErrChanged)
}

func TestEngine_SameSizeRewriteSkipped(t *testing.T) {
	f := newFixture(t)
	edited := bytes.Repeat([]byte("different "), 300)
	require.Len(t, edited, len(f.content))
	require.NoError(t, os.WriteFile(f.dupe, edited, 0o644))

	for _, dryRun := range []bool{true, false} {
		outcomes := New(linkfs.New(), Options{DryRun: dryRun}).Consolidate(context.Background(), f.set)

		require.Len(t, outcomes, 1)
		assert.Equal(t, StatusSkipped, outcomes[0].Status)
		assert.ErrorIs(t, outcomes[0].Err, ErrChanged)
	}

	data, err := os.ReadFile(f.dupe)
	require.NoError(t, err)
	assert.Equal(t, edited, data)
	assert.False(t, sameIdentity(t, f.original, f.dupe))
	assertNoBackup(t, f.dupe)
}

func TestEngine_ChangedOriginalSkipsSet(t *testing.T) {
	f := newFixture(t)
	third := filepath.Join(f.dir, "c.bin")
	require.NoError(t, os.WriteFile(third, f.content, 0o644))
	require.NoError(t, os.WriteFile(f.original, bytes.Repeat([]byte("different "), 300), 0o644))

	set := f.set
	set.Paths = []string{f.original, f.dupe, third}

	report, err := New(linkfs.New(), Options{}).ConsolidateAll(context.Background(), []dedupe.DuplicateSet{set})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Linked)
	for _, o := range report.Outcomes {
		assert.ErrorIs(t, o.Err, ErrChanged)
	}
	assert.False(t, sameIdentity(t, f.original, f.dupe))
	assert.False(t, sameIdentity(t, f.original, third))
}

func TestEngine_UnhashedSetComparesWithOriginal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.dupe, bytes.Repeat([]byte("different "), 300), 0o644))

	set := f.set
	set.Hash = ""

	outcomes := New(linkfs.New(), Options{}).Consolidate(context.Background(), set)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, ErrChanged)
	assert.False(t, sameIdentity(t, f.original, f.dupe))
}

func TestEngine_UnsupportedNeverAttempted(t *testing.T) {
	f := newFixture(t)
	fsys := &faultFS{OS: linkfs.New(), canLinkErr: linkfs.ErrLinkUnsupported}

	outcomes := New(fsys, Options{}).Consolidate(context.Background(), f.set)

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusSkipped, outcomes[0].Status)
	assert.ErrorIs(t, outcomes[0].Err, linkfs.ErrLinkUnsupported)
	assert.Equal(t, 0, fsys.linkCalls)
	assertNoBackup(t, f.dupe)
}

func TestEngine_BackupRemoveFailure(t *testing.T) {
	f := newFixture(t)
	fsys := &faultFS{OS: linkfs.New(), removeErr: errors.New("busy")}

	report, err := New(fsys, Options{}).ConsolidateAll(context.Background(), []dedupe.DuplicateSet{f.set})
	require.NoError(t, err)

	assert.Equal(t, 1, report.BackupKept)
	assert.Equal(t, uint64(0), report.ReclaimedBytes)
	assert.True(t, sameIdentity(t, f.original, f.dupe))
}

func TestEngine_DryRun(t *testing.T) {
	f := newFixture(t)

	report, err := New(linkfs.New(), Options{DryRun: true}).ConsolidateAll(context.Background(), []dedupe.DuplicateSet{f.set})
	require.NoError(t, err)

	assert.Equal(t, 1, report.DryRun)
	assert.Equal(t, uint64(len(f.content)), report.ReclaimedBytes)
	assert.False(t, sameIdentity(t, f.original, f.dupe))
	assertNoBackup(t, f.dupe)
}

func TestEngine_FailureIsolatedPerDupe(t *testing.T) {
	f := newFixture(t)
	third := filepath.Join(f.dir, "c.bin")
	require.NoError(t, os.WriteFile(third, f.content, 0o644))
	require.NoError(t, os.WriteFile(f.dupe+DefaultBackupSuffix, []byte("taken"), 0o644))

	set := dedupe.DuplicateSet{Size: f.set.Size, Hash: f.set.Hash, Paths: []string{f.original, f.dupe, third}}

	var seen []Status
	engine := New(linkfs.New(), Options{OnOutcome: func(o Outcome) { seen = append(seen, o.Status) }})
	report, err := engine.ConsolidateAll(context.Background(), []dedupe.DuplicateSet{set})
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusSkipped, StatusLinked}, seen)
	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, 1, report.Skipped)
	assert.True(t, sameIdentity(t, f.original, third))
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "linked", StatusLinked.String())
	assert.Equal(t, "stranded", StatusStranded.String())
	assert.Equal(t, "status(99)", Status(99).String())
}

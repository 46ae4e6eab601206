package paths

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"

	"github.com/autobrr/dupelink/pkg/logger"
)

/* Structs */

type Path struct {
	Path         string
	FileName     string
	Directory    string
	Size         int64
	ModifiedTime time.Time
}

// Filter narrows the files returned by InFolder.
type Filter struct {
	// Pattern is matched against the file name. Empty means "*".
	Pattern string
	// Exclude patterns are matched against the slash-separated path relative to the root.
	// A matching directory is not descended into.
	Exclude []string
}

/* Vars */

var (
	log = logger.GetLogger("paths")
)

/* Public */

// InFolder walks folder concurrently and returns every regular file accepted by filter,
// sorted by path, together with their total size. Symlinks are never followed nor returned.
// Entries that cannot be read are logged and skipped.
func InFolder(folder string, filter Filter) ([]Path, uint64, error) {
	pattern := filter.Pattern
	if pattern == "" {
		pattern = "*"
	}

	if !doublestar.ValidatePattern(pattern) {
		return nil, 0, fmt.Errorf("invalid pattern: %q", pattern)
	}
	for _, p := range filter.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, 0, fmt.Errorf("invalid exclude pattern: %q", p)
		}
	}

	root, err := filepath.Abs(folder)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %s: %w", folder, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, 0, fmt.Errorf("not a directory: %s", root)
	}

	var (
		paths []Path
		size  uint64
		mu    sync.Mutex
	)

	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.WithError(err).Warnf("Failed reading %s, skipping", path)
			return nil
		}

		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if IsIgnored(filepath.ToSlash(rel), filter.Exclude) {
			log.Tracef("Skipping excluded path: %s", path)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			if !d.IsDir() {
				log.Tracef("Skipping non-regular file: %s", path)
			}
			return nil
		}

		if ok, _ := doublestar.Match(pattern, d.Name()); !ok {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			log.WithError(err).Warnf("Failed to get file info for %s", path)
			return nil
		}

		mu.Lock()
		paths = append(paths, Path{
			Path:         path,
			FileName:     d.Name(),
			Directory:    filepath.Dir(path),
			Size:         fi.Size(),
			ModifiedTime: fi.ModTime(),
		})
		size += uint64(fi.Size())
		mu.Unlock()

		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i].Path < paths[j].Path })

	return paths, size, nil
}

// IsIgnored reports whether path matches any of the glob patterns.
func IsIgnored(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}

	return false
}

// Names returns the Path field of every entry, preserving order.
func Names(paths []Path) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.Path
	}

	return out
}

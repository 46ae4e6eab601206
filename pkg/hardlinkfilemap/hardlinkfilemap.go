package hardlinkfilemap

import (
	"github.com/autobrr/dupelink/pkg/linkfs"
	"github.com/autobrr/dupelink/pkg/logger"
)

func New(fsys linkfs.FS) *HardlinkFileMap {
	return &HardlinkFileMap{
		hardlinkFileMap: make(map[linkfs.FileID][]string),
		fs:              fsys,
		log:             logger.GetLogger("hardlinkmap"),
	}
}

// Observe records path under its file identity. seen reports that another path with the
// same identity was recorded earlier, meaning path is already a hardlink of it. ok is false
// when the identity could not be obtained, in which case nothing is recorded.
func (t *HardlinkFileMap) Observe(path string) (seen bool, ok bool) {
	id, ok := t.fs.Identity(path)

	t.mu.Lock()
	defer t.mu.Unlock()

	if !ok {
		t.unavailable++
		t.log.Tracef("File identity unavailable, falling back to hashing: %s", path)
		return false, false
	}

	paths, exists := t.hardlinkFileMap[id]
	if !exists {
		// file id has not been seen before, create id entry
		t.hardlinkFileMap[id] = []string{path}
		return false, true
	}

	for _, existingPath := range paths {
		if existingPath == path {
			// same path presented twice is not a hardlink
			return false, true
		}
	}

	t.hardlinkFileMap[id] = append(paths, path)
	t.preExisting++
	t.log.Debugf("Already hardlinked to %s: %s", paths[0], path)
	return true, true
}

// PreExisting returns how many observed paths were already hardlinked to an earlier path.
func (t *HardlinkFileMap) PreExisting() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.preExisting
}

// Unavailable returns how many observed paths had no obtainable identity.
func (t *HardlinkFileMap) Unavailable() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.unavailable
}

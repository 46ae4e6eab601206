//go:build !windows

package linkfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// getFileID returns the unique file identifier (device + inode) for a file.
// The file is opened read-only and released as soon as fstat returns.
func getFileID(path string) (FileID, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileID{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var stat unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &stat); err != nil {
		return FileID{}, fmt.Errorf("stat file: %w", err)
	}

	return FileID{
		Volume: uint64(stat.Dev), //nolint:unconvert
		Index:  uint64(stat.Ino), //nolint:unconvert
	}, nil
}

func deviceOf(path string) (uint64, error) {
	var stat unix.Stat_t
	if err := unix.Stat(path, &stat); err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}

	return uint64(stat.Dev), nil //nolint:unconvert
}

// canLink compares the device of the existing file with the directory that will hold the link.
func canLink(existing, newPath string) error {
	src, err := deviceOf(existing)
	if err != nil {
		return err
	}

	dst, err := deviceOf(filepath.Dir(newPath))
	if err != nil {
		return err
	}

	if src != dst {
		return ErrCrossVolume
	}

	return nil
}

func classifyLinkError(err error) error {
	switch {
	case errors.Is(err, unix.EXDEV):
		return fmt.Errorf("%w: %w", ErrCrossVolume, err)
	case errors.Is(err, unix.EOPNOTSUPP), errors.Is(err, unix.ENOTSUP):
		return fmt.Errorf("%w: %w", ErrLinkUnsupported, err)
	}

	return err
}

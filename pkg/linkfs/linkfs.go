// Package linkfs abstracts the filesystem primitives needed to detect and create hardlinks:
// file identity queries, hardlink creation, rename and delete.
package linkfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

var (
	// ErrLinkUnsupported is returned when the volume cannot hold hardlinks.
	ErrLinkUnsupported = errors.New("hardlinks not supported by filesystem")
	// ErrCrossVolume is returned when a hardlink would span two volumes.
	ErrCrossVolume = errors.New("paths are on different volumes")
)

// FileID represents a unique on-disk file identifier within a volume.
type FileID struct {
	Volume uint64 // Device ID or volume serial number
	Index  uint64 // Inode number or (FileIndexHigh << 32) | FileIndexLow
}

// String returns a string representation of the FileID.
func (f FileID) String() string {
	return fmt.Sprintf("%d:%d", f.Volume, f.Index)
}

// IndexHigh returns the upper half of the file index.
func (f FileID) IndexHigh() uint32 {
	return uint32(f.Index >> 32)
}

// IndexLow returns the lower half of the file index.
func (f FileID) IndexLow() uint32 {
	return uint32(f.Index)
}

// FS is the set of filesystem capabilities the dedupe and consolidate packages rely on.
type FS interface {
	// Identity returns the on-disk identity of path. The second return value is false when
	// the identity cannot be obtained; callers fall back to content hashing.
	Identity(path string) (FileID, bool)
	// CanLink reports whether newPath could be created as a hardlink of existing.
	CanLink(existing, newPath string) error
	Link(existing, newPath string) error
	Rename(oldPath, newPath string) error
	Remove(path string) error
	Lstat(path string) (fs.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
}

// OS implements FS on top of the host operating system.
type OS struct{}

// New returns the host filesystem implementation.
func New() *OS {
	return &OS{}
}

func (OS) Identity(path string) (FileID, bool) {
	id, err := getFileID(path)
	if err != nil {
		return FileID{}, false
	}

	return id, true
}

func (OS) CanLink(existing, newPath string) error {
	return canLink(existing, newPath)
}

func (OS) Link(existing, newPath string) error {
	if err := os.Link(existing, newPath); err != nil {
		return classifyLinkError(err)
	}

	return nil
}

func (OS) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (OS) Remove(path string) error {
	return os.Remove(path)
}

func (OS) Lstat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

func (OS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

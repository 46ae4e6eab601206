package linkfs

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// FILE_SUPPORTS_HARD_LINKS volume flag.
const fileSupportsHardLinks = 0x00400000

// getFileID returns the unique file identifier (volume serial + file index) for a file on
// Windows. The handle is opened with shared read access and closed immediately.
func getFileID(path string) (FileID, error) {
	pathp, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return FileID{}, fmt.Errorf("convert path to UTF16: %w", err)
	}

	h, err := windows.CreateFile(pathp, windows.GENERIC_READ, windows.FILE_SHARE_READ, nil,
		windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return FileID{}, fmt.Errorf("open file: %w", err)
	}
	defer windows.CloseHandle(h)

	var info windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &info); err != nil {
		return FileID{}, fmt.Errorf("get file info: %w", err)
	}

	fileID := FileID{
		Volume: uint64(info.VolumeSerialNumber),
		Index:  (uint64(info.FileIndexHigh) << 32) | uint64(info.FileIndexLow),
	}

	return fileID, nil
}

type volumeInfo struct {
	serial uint32
	flags  uint32
}

func volumeOf(path string) (volumeInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return volumeInfo{}, fmt.Errorf("resolve path: %w", err)
	}

	root := filepath.VolumeName(abs) + `\`
	rootp, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return volumeInfo{}, fmt.Errorf("convert path to UTF16: %w", err)
	}

	var vi volumeInfo
	if err := windows.GetVolumeInformation(rootp, nil, 0, &vi.serial, nil, &vi.flags, nil, 0); err != nil {
		return volumeInfo{}, fmt.Errorf("get volume info for %s: %w", root, err)
	}

	return vi, nil
}

// canLink checks that both paths share a volume and that the volume supports hardlinks.
func canLink(existing, newPath string) error {
	src, err := volumeOf(existing)
	if err != nil {
		return err
	}

	dst, err := volumeOf(filepath.Dir(newPath))
	if err != nil {
		return err
	}

	if src.serial != dst.serial {
		return ErrCrossVolume
	}

	if src.flags&fileSupportsHardLinks == 0 {
		return ErrLinkUnsupported
	}

	return nil
}

func classifyLinkError(err error) error {
	switch {
	case errors.Is(err, windows.ERROR_NOT_SAME_DEVICE):
		return fmt.Errorf("%w: %w", ErrCrossVolume, err)
	case errors.Is(err, windows.ERROR_NOT_SUPPORTED), errors.Is(err, windows.ERROR_INVALID_FUNCTION):
		return fmt.Errorf("%w: %w", ErrLinkUnsupported, err)
	}

	return err
}

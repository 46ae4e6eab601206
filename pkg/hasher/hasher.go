package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

const bufferSize = 1024 * 1024

// Hasher computes a content digest over the full byte stream of a reader.
type Hasher interface {
	Hash(r io.Reader) (string, error)
}

// OpenFunc opens a path for reading.
type OpenFunc func(path string) (io.ReadCloser, error)

type sha256Hasher struct {
	buffers sync.Pool
}

// NewSHA256 returns a Hasher producing lowercase hex SHA-256 digests. It is safe for
// concurrent use.
func NewSHA256() Hasher {
	return &sha256Hasher{
		buffers: sync.Pool{
			New: func() any {
				b := make([]byte, bufferSize)
				return &b
			},
		},
	}
}

func (h *sha256Hasher) Hash(r io.Reader) (string, error) {
	buf := h.buffers.Get().(*[]byte)
	defer h.buffers.Put(buf)

	hash := sha256.New()
	if _, err := io.CopyBuffer(hash, r, *buf); err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// HashFile opens path with open and hashes its entire content.
func HashFile(h Hasher, open OpenFunc, path string) (string, error) {
	f, err := open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := h.Hash(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return sum, nil
}

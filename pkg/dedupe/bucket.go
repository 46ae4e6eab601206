package dedupe

import "sync"

type bucketState int

const (
	bucketEmpty bucketState = iota
	bucketPending
	bucketActive
)

func (s bucketState) String() string {
	switch s {
	case bucketPending:
		return "pending"
	case bucketActive:
		return "active"
	default:
		return "empty"
	}
}

// candidate is a file admitted to a size bucket; seq is its position in the scan.
type candidate struct {
	path string
	seq  int
}

// sizeBucket groups the candidates sharing one file size. It starts empty, holds a single
// unhashed representative while pending, and becomes active with a hash map once a second
// file of the same size arrives.
type sizeBucket struct {
	mu      sync.Mutex
	state   bucketState
	pending candidate
	hashes  map[string][]candidate
	order   []string
}

// admit transitions the bucket for c and returns the candidates that now need hashing.
func (b *sizeBucket) admit(c candidate) []candidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case bucketEmpty:
		b.state = bucketPending
		b.pending = c
		return nil
	case bucketPending:
		b.state = bucketActive
		b.hashes = make(map[string][]candidate)
		first := b.pending
		b.pending = candidate{}
		return []candidate{first, c}
	default:
		return []candidate{c}
	}
}

func (b *sizeBucket) insert(hash string, c candidate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.hashes[hash]; !exists {
		b.order = append(b.order, hash)
	}
	b.hashes[hash] = append(b.hashes[hash], c)
}

// groups returns the hash groups of an active bucket with at least two members.
func (b *sizeBucket) groups() map[string][]candidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string][]candidate)
	for _, hash := range b.order {
		if members := b.hashes[hash]; len(members) > 1 {
			out[hash] = append([]candidate(nil), members...)
		}
	}

	return out
}

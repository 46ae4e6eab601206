package dedupe

// DuplicateSet is a group of paths with identical size and content. Paths[0] is the
// original that the remaining paths will be hardlinked to.
type DuplicateSet struct {
	Size  int64
	Hash  string
	Paths []string
}

func (s DuplicateSet) Original() string {
	if len(s.Paths) == 0 {
		return ""
	}

	return s.Paths[0]
}

// Dupes returns every member after the original.
func (s DuplicateSet) Dupes() []string {
	if len(s.Paths) < 2 {
		return nil
	}

	return s.Paths[1:]
}

// Reclaimable returns the bytes freed by linking every dupe to the original.
func (s DuplicateSet) Reclaimable() uint64 {
	if len(s.Paths) < 2 || s.Size <= 0 {
		return 0
	}

	return uint64(len(s.Paths)-1) * uint64(s.Size)
}

type Unit uint64

const (
	Byte Unit = 1
	KiB       = Byte << 10
	MiB       = KiB << 10
	GiB       = MiB << 10
	TiB       = GiB << 10
)

// Summary holds the statistics of one scan.
type Summary struct {
	// Scanned is the number of candidate paths presented to the grouper.
	Scanned int
	// Unique is Scanned minus the files that ended up in a duplicate set.
	Unique           int
	Sets             int
	FilesInSets      int
	PreExistingLinks int
	ReclaimableBytes uint64
	SkippedSmall     int
	Failed           int

	// IdentityUnavailable counts files whose on-disk identity could not be queried. They
	// are grouped by content alone.
	IdentityUnavailable int
}

// ReclaimableIn converts the reclaimable byte count to whole units.
func (s Summary) ReclaimableIn(unit Unit) uint64 {
	return s.ReclaimableBytes / uint64(unit)
}

// Result is the outcome of a scan.
type Result struct {
	Sets     []DuplicateSet
	Summary  Summary
	Failures []error
}

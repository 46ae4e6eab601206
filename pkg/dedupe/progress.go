package dedupe

import "sync/atomic"

// Progress holds live counters updated while a scan runs. All fields are atomic so a
// reporter can read them from another goroutine.
type Progress struct {
	Total   atomic.Int64
	Scanned atomic.Int64
	Hashed  atomic.Int64
	Failed  atomic.Int64
}

// Percent returns the share of scanned candidates, 0-100.
func (p *Progress) Percent() int {
	total := p.Total.Load()
	if total <= 0 {
		return 100
	}

	return int(100 * p.Scanned.Load() / total)
}

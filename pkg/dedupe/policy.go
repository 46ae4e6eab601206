package dedupe

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/autobrr/dupelink/pkg/linkfs"
)

// Policy selects which member of a duplicate set becomes the original.
type Policy string

const (
	// PolicyFirstSeen keeps the path encountered first during the scan.
	PolicyFirstSeen Policy = "first-seen"
	// PolicyShortestPath keeps the path with the fewest characters, ties broken by scan order.
	PolicyShortestPath Policy = "shortest-path"
	// PolicyOldest keeps the path with the earliest modification time, ties broken by scan order.
	PolicyOldest Policy = "oldest"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyFirstSeen, nil
	case PolicyFirstSeen, PolicyShortestPath, PolicyOldest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown original policy %q (want %s, %s or %s)", s,
			PolicyFirstSeen, PolicyShortestPath, PolicyOldest)
	}
}

// order returns paths (already in scan order) rearranged so the chosen original comes
// first. The remaining members keep their scan order.
func (p Policy) order(fsys linkfs.FS, paths []string) []string {
	if len(paths) < 2 {
		return paths
	}

	pick := 0
	switch p {
	case PolicyShortestPath:
		for i, path := range paths {
			if len(path) < len(paths[pick]) {
				pick = i
			}
		}
	case PolicyOldest:
		mtimes := make([]time.Time, len(paths))
		for i, path := range paths {
			info, err := fsys.Lstat(path)
			if err != nil {
				// unknown mtime never wins
				continue
			}
			mtimes[i] = info.ModTime()
		}

		idx := make([]int, len(paths))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			ta, tb := mtimes[idx[a]], mtimes[idx[b]]
			if ta.IsZero() != tb.IsZero() {
				return !ta.IsZero()
			}
			return ta.Before(tb)
		})
		pick = idx[0]
	}

	if pick == 0 {
		return paths
	}

	out := make([]string, 0, len(paths))
	out = append(out, paths[pick])
	out = append(out, paths[:pick]...)
	out = append(out, paths[pick+1:]...)
	return out
}

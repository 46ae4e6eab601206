package consolidate

import "fmt"

type Status int

const (
	// StatusLinked means the dupe now shares the original's data and the backup is gone.
	StatusLinked Status = iota + 1
	// StatusLinkedBackupKept means the link succeeded but the backup could not be deleted.
	StatusLinkedBackupKept
	// StatusAlreadyLinked means the dupe already shared the original's identity.
	StatusAlreadyLinked
	// StatusRestored means link creation failed and the dupe was renamed back in place.
	StatusRestored
	// StatusSkipped means a precheck or the backup rename failed; the dupe was not touched.
	StatusSkipped
	// StatusStranded means link creation and the restore rename both failed. The dupe's
	// content only exists under the backup name.
	StatusStranded
	// StatusDryRun means the dupe passed every precheck and would have been linked.
	StatusDryRun
)

func (s Status) String() string {
	switch s {
	case StatusLinked:
		return "linked"
	case StatusLinkedBackupKept:
		return "linked_backup_kept"
	case StatusAlreadyLinked:
		return "already_linked"
	case StatusRestored:
		return "restored"
	case StatusSkipped:
		return "skipped"
	case StatusStranded:
		return "stranded"
	case StatusDryRun:
		return "dry_run"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of replacing one dupe with a hardlink to its original.
type Outcome struct {
	Original string
	Dupe     string
	Backup   string
	Size     int64
	Status   Status
	Err      error
}

// Report tallies the outcomes of a consolidation run.
type Report struct {
	Linked         int
	BackupKept     int
	AlreadyLinked  int
	Restored       int
	Skipped        int
	Stranded       int
	DryRun         int
	ReclaimedBytes uint64
	Outcomes       []Outcome
}

func (r *Report) add(o Outcome) {
	switch o.Status {
	case StatusLinked:
		r.Linked++
		r.ReclaimedBytes += uint64(o.Size)
	case StatusLinkedBackupKept:
		r.BackupKept++
	case StatusAlreadyLinked:
		r.AlreadyLinked++
	case StatusRestored:
		r.Restored++
	case StatusSkipped:
		r.Skipped++
	case StatusStranded:
		r.Stranded++
	case StatusDryRun:
		r.DryRun++
		r.ReclaimedBytes += uint64(o.Size)
	}

	r.Outcomes = append(r.Outcomes, o)
}

// Failures returns the number of dupes that were not linked.
func (r *Report) Failures() int {
	return r.Restored + r.Skipped + r.Stranded
}

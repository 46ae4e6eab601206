package notification

import (
	"time"

	"github.com/autobrr/dupelink/pkg/consolidate"
)

type Action int

const (
	ActionLink Action = iota + 1
	ActionAlreadyLinked
	ActionRestore
	ActionSkip
	ActionStrand
	ActionDryRun
)

type Sender interface {
	CanSend() bool
	Send(title string, description string, runTime time.Duration, fields []Field, dryRun bool) error
	BuildField(action Action, options BuildOptions) Field
	Name() string
}

type Field struct {
	Action Action
	Name   string
	Value  string
}

type BuildOptions struct {
	Original string
	Dupe     string
	Backup   string
	Size     int64
	Reason   string
}

// FromOutcome maps a consolidation outcome to the action and options a Sender builds a
// field from.
func FromOutcome(o consolidate.Outcome) (Action, BuildOptions) {
	opts := BuildOptions{
		Original: o.Original,
		Dupe:     o.Dupe,
		Backup:   o.Backup,
		Size:     o.Size,
	}
	if o.Err != nil {
		opts.Reason = o.Err.Error()
	}

	switch o.Status {
	case consolidate.StatusLinked, consolidate.StatusLinkedBackupKept:
		return ActionLink, opts
	case consolidate.StatusAlreadyLinked:
		return ActionAlreadyLinked, opts
	case consolidate.StatusRestored:
		return ActionRestore, opts
	case consolidate.StatusStranded:
		return ActionStrand, opts
	case consolidate.StatusDryRun:
		return ActionDryRun, opts
	default:
		return ActionSkip, opts
	}
}

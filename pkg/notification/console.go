package notification

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/autobrr/dupelink/pkg/config"
)

// hardcoded limit of detailed lines to keep the terminal readable
const maxTotalFields = 250

type consoleSender struct {
	log    *logrus.Entry
	config config.NotificationsConfig
	out    io.Writer

	bold   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color
	gray   *color.Color
}

func NewConsoleSender(log *logrus.Entry, cfg config.NotificationsConfig, out io.Writer) Sender {
	s := &consoleSender{
		log:    log.WithField("sender", "console"),
		config: cfg,
		out:    out,
		bold:   color.New(color.Bold),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed, color.Bold),
		gray:   color.New(color.FgHiBlack),
	}

	for _, c := range []*color.Color{s.bold, s.green, s.yellow, s.red, s.gray} {
		if cfg.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return s
}

func (c *consoleSender) Name() string {
	return "console"
}

func (c *consoleSender) CanSend() bool {
	return c.out != nil
}

func (c *consoleSender) Send(title string, description string, runTime time.Duration, fields []Field, dryRun bool) error {
	totalFields := len(fields)

	// if the config setting "skip_empty_run" is set to true, and there are no fields,
	// skip sending the message entirely.
	if totalFields == 0 && c.config.SkipEmptyRun {
		return nil
	}

	if dryRun {
		title = title + " (Dry Run)"
	}

	if _, err := c.bold.Fprintf(c.out, "\n%s\n", title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}

	if c.config.Detailed && totalFields <= maxTotalFields {
		for _, field := range fields {
			if _, err := c.colorFor(field.Action).Fprintf(c.out, "  %s\n", field.Name); err != nil {
				return fmt.Errorf("write field: %w", err)
			}
			if field.Value != "" {
				if _, err := c.gray.Fprintf(c.out, "    %s\n", field.Value); err != nil {
					return fmt.Errorf("write field: %w", err)
				}
			}
		}
	}

	if _, err := fmt.Fprintf(c.out, "%s\n", description); err != nil {
		return fmt.Errorf("write description: %w", err)
	}

	footer := fmt.Sprintf("%d outcomes | took %s", totalFields, runTime.Truncate(time.Millisecond))
	if _, err := c.gray.Fprintf(c.out, "%s\n", footer); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}

	c.log.Debugf("Printed %d fields", totalFields)
	return nil
}

func (c *consoleSender) colorFor(action Action) *color.Color {
	switch action {
	case ActionLink, ActionDryRun:
		return c.green
	case ActionRestore, ActionSkip:
		return c.yellow
	case ActionStrand:
		return c.red
	default:
		return c.gray
	}
}

// BuildField constructs a Field based on the provided action and build options.
func (c *consoleSender) BuildField(action Action, opt BuildOptions) Field {
	name := fmt.Sprintf("%s (%s)", opt.Dupe, humanize.IBytes(uint64(opt.Size)))

	var value string
	switch action {
	case ActionLink:
		value = fmt.Sprintf("linked to %s", opt.Original)
		if opt.Reason != "" {
			value = fmt.Sprintf("%s, backup kept at %s: %s", value, opt.Backup, opt.Reason)
		}
	case ActionAlreadyLinked:
		value = fmt.Sprintf("already linked to %s", opt.Original)
	case ActionDryRun:
		value = fmt.Sprintf("would link to %s", opt.Original)
	case ActionRestore:
		value = fmt.Sprintf("restored after failed link: %s", opt.Reason)
	case ActionSkip:
		value = fmt.Sprintf("skipped: %s", opt.Reason)
	case ActionStrand:
		value = fmt.Sprintf("STRANDED at %s, move it back manually: %s", opt.Backup, opt.Reason)
	}

	return Field{
		Action: action,
		Name:   name,
		Value:  value,
	}
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/autobrr/dupelink/pkg/config"
	"github.com/autobrr/dupelink/pkg/consolidate"
	"github.com/autobrr/dupelink/pkg/logger"
	"github.com/autobrr/dupelink/pkg/tracing"
)

var (
	// Global flags
	FlagLogLevel     = 0
	FlagConfigFile   = "config.yaml"
	FlagConfigFolder = config.GetDefaultConfigDirectory("dupelink", FlagConfigFile)
	FlagLogFile      = "activity.log"
	FlagDryRun       bool
	FlagTraceFile    string

	// Global vars
	log           = logger.GetLogger("app")
	initialized   bool
	traceShutdown = func(context.Context) error { return nil }
)

func initCore() error {
	if initialized {
		return nil
	}

	logFile := FlagLogFile
	if logFile != "" && !filepath.IsAbs(logFile) {
		logFile = filepath.Join(FlagConfigFolder, logFile)
	}

	if err := logger.Init(FlagLogLevel, logFile); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	configFile := FlagConfigFile
	if !filepath.IsAbs(configFile) {
		configFile = filepath.Join(FlagConfigFolder, configFile)
	}

	if err := config.Init(configFile); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}

	shutdown, err := tracing.Init(FlagTraceFile)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	traceShutdown = shutdown

	log.Debugf("Using config file: %s", configFile)
	initialized = true
	return nil
}

// Shutdown flushes anything buffered during the run.
func Shutdown(ctx context.Context) {
	if err := traceShutdown(ctx); err != nil {
		log.WithError(err).Error("Failed shutting down tracer")
	}
}

// ExitCode maps the error returned by a command to the process exit status. Content left
// under a backup name needs manual attention and gets its own status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, consolidate.ErrStranded):
		return 2
	default:
		return 1
	}
}

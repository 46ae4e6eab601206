package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

const prefixLen = 12

var rootLogger = newRoot()

func newRoot() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceFormatting: true,
	})
	return l
}

// Init configures the shared logger. A verbosity of 1 enables debug output and 2 or more
// enables trace output. When logFile is set, output is also written to a rotating file.
func Init(verbosity int, logFile string) error {
	switch {
	case verbosity >= 2:
		rootLogger.SetLevel(logrus.TraceLevel)
	case verbosity == 1:
		rootLogger.SetLevel(logrus.DebugLevel)
	default:
		rootLogger.SetLevel(logrus.InfoLevel)
	}

	if logFile == "" {
		rootLogger.SetOutput(os.Stderr)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    5,
		MaxAge:     14,
		MaxBackups: 5,
	}
	rootLogger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return nil
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	rootLogger.SetOutput(w)
}

// GetLogger returns an entry tagged with the given component prefix.
func GetLogger(prefix string) *logrus.Entry {
	if len(prefix) > prefixLen {
		prefix = prefix[:prefixLen]
	} else {
		prefix += strings.Repeat(" ", prefixLen-len(prefix))
	}

	return rootLogger.WithField("prefix", prefix)
}

// Package logging provides the structured logger used while the TUI
// owns the terminal: stderr belongs to bubbletea, so debug output goes
// to a file when MEMSCAN_LOG_TO_FILE is set.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup.
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
	path   string
}

// Close closes the underlying writer if it's closeable.
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// Path returns the log file path, or "" when logging to stderr.
func (lc *LoggerCloser) Path() string { return lc.path }

// NewLoggerWithWriter creates a new logger with the provided writer.
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})

	switch os.Getenv("MEMSCAN_LOG_LEVEL") {
	case "debug":
		lg.SetLevel(log.DebugLevel)
	case "warn":
		lg.SetLevel(log.WarnLevel)
	case "error":
		lg.SetLevel(log.ErrorLevel)
	default:
		lg.SetLevel(log.InfoLevel)
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix("memscan"),
		closer: closer,
	}
}

// DefaultLogPath is where NewLogger writes when file logging is on.
func DefaultLogPath() string {
	return "memscan-debug.log"
}

// NewLogger creates a logger based on environment variables:
//
//	MEMSCAN_LOG_LEVEL:   debug, info, warn, error (default info)
//	MEMSCAN_LOG_TO_FILE: "1" logs to a file instead of stderr
func NewLogger() *LoggerCloser {
	output := io.Writer(os.Stderr)
	path := ""

	if os.Getenv("MEMSCAN_LOG_TO_FILE") == "1" {
		logFile := DefaultLogPath()

		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			output = f
			path = logFile
		} else {
			fmt.Fprintf(os.Stderr, "falling back to stderr logging: %v\n", err)
		}
	}

	lc := NewLoggerWithWriter(output)
	lc.path = path
	return lc
}

// NewTUILogger is NewLogger for code that owns the terminal: without
// MEMSCAN_LOG_TO_FILE the output is discarded rather than written to
// stderr, which would tear the alt screen.
func NewTUILogger() *LoggerCloser {
	if os.Getenv("MEMSCAN_LOG_TO_FILE") == "1" {
		return NewLogger()
	}
	return NewLoggerWithWriter(io.Discard)
}

// IsDebug returns true if debug logging is enabled.
func IsDebug() bool {
	return os.Getenv("MEMSCAN_LOG_LEVEL") == "debug"
}

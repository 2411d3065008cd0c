// Package logging builds the process logger: structured key/value lines on
// stderr, optionally mirrored to a rotated log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ritsu/ipset-fail2ban/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger for cfg. verbose forces debug level. The returned
// closer releases the log file, if any.
func New(cfg config.LogConfig, verbose bool, stderr io.Writer) (*log.Logger, io.Closer, error) {
	if stderr == nil {
		stderr = os.Stderr
	}

	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	if verbose {
		level = log.DebugLevel
	}

	var out io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(stderr, file)
		closer = file
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           level,
		ReportTimestamp: true,
		Prefix:          "ipset-fail2ban",
	})
	return logger, closer, nil
}

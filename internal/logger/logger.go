// Package logger configures the process-wide structured logger used by
// every AegisFS component. It wraps log/slog with a rotating file
// sink so a long-running mount doesn't grow one log file without bound.
package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how verbosely the logger writes.
type Config struct {
	// Path is the log file path. Empty means stderr only.
	Path string
	// Debug enables slog.LevelDebug; otherwise slog.LevelInfo is used.
	Debug bool
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to retain.
	MaxBackups int
	// MaxAgeDays is how long to retain rotated files.
	MaxAgeDays int
}

// New builds a slog.Logger per cfg. When cfg.Path is set, output goes to
// a lumberjack-rotated file; otherwise it goes to stderr. Both cases use
// slog's text handler, matching the line-oriented log most operators
// expect to tail.
func New(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if cfg.Path != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
	}

	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Package logger builds toda's process-wide structured logger: a log/slog
// logger writing through a bounded AsyncLogger in front of a rotating file
// (or, interactively, stderr).
package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how verbosely toda logs.
type Config struct {
	// Level selects the minimum level, populated from the --verbose CLI flag.
	Level slog.Level
	// FilePath receives rotated log output. Empty means log to stderr.
	FilePath string
	// AsyncBufferSize bounds the number of buffered log entries.
	AsyncBufferSize int
}

// closeable is satisfied by the AsyncLogger returned by New so the caller
// (cmd/toda) can flush pending entries on shutdown.
type closeable interface {
	io.Writer
	Close() error
}

// New builds a logger per cfg. The returned closer must be closed during
// teardown so buffered entries are flushed before the process exits.
func New(cfg Config) (*slog.Logger, io.Closer) {
	var sink io.Writer = os.Stderr
	if cfg.FilePath != "" {
		sink = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	bufSize := cfg.AsyncBufferSize
	if bufSize <= 0 {
		bufSize = 1024
	}
	var async closeable = NewAsyncLogger(sink, bufSize)

	handler := slog.NewJSONHandler(async, &slog.HandlerOptions{Level: cfg.Level})
	return slog.New(handler), async
}

// LevelFromVerbosity maps the CLI's integer --verbose level onto a slog
// level: 0 warn-and-above, 1 info-and-above, 2+ debug-and-above.
func LevelFromVerbosity(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelWarn
	case v == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

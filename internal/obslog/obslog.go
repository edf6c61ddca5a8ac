// Package obslog builds the engine's structured JSON logger: a slog.Logger
// backed by a lumberjack-rotated file, or stdout when no file path is set.
package obslog

import (
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config mirrors the rotation knobs lumberjack exposes.
type Config struct {
	FilePath   string
	Level      string // DEBUG, INFO, WARN, ERROR
	MaxSize    int    // megabytes
	MaxBackups int
	MaxAge     int // days
}

// New builds a logger writing JSON lines to FilePath (rotated) or stdout
// when FilePath is empty.
func New(cfg Config) (*slog.Logger, error) {
	var w *lumberjack.Logger
	if cfg.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		if w.MaxSize == 0 {
			w.MaxSize = 100
		}
		if w.MaxBackups == 0 {
			w.MaxBackups = 3
		}
		if w.MaxAge == 0 {
			w.MaxAge = 28
		}
	}

	var level slog.Level
	switch cfg.Level {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if w != nil {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), nil
}

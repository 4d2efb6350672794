// Package logging builds the application logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"redline-go/internal/config"
)

// New creates the logger described by cfg and installs it as the slog default.
// When cfg.File is set, output goes to stdout and to a rotating log file.
// The returned closer releases the log file and is never nil.
func New(cfg config.LoggerConfig) (*slog.Logger, io.Closer, error) {
	level := ParseLevel(cfg.Level)

	var (
		writer io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
		toFile bool
	)

	if file := strings.TrimSpace(cfg.File); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
		}

		logFile := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		writer = io.MultiWriter(os.Stdout, logFile)
		closer = logFile
		toFile = true
	}

	logger := slog.New(newHandler(writer, cfg.Format, level, toFile))
	slog.SetDefault(logger)

	if toFile {
		logger.Info("file logging enabled", "path", cfg.File)
	}

	return logger, closer, nil
}

func newHandler(w io.Writer, format string, level slog.Level, noColor bool) slog.Handler {
	if format == "text" {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
			NoColor:    noColor,
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// ParseLevel maps a configured level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

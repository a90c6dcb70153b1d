// Package logging installs the process-wide slog logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/menta2k/read-segments/internal/config"
)

// multiHandler dispatches log records to multiple handlers based on level.
type multiHandler struct {
	console slog.Handler
	file    slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level) || h.file.Enabled(ctx, level)
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.file.Enabled(ctx, r.Level) {
		if err := h.file.Handle(ctx, r); err != nil {
			return err
		}
	}
	if h.console.Enabled(ctx, r.Level) {
		if err := h.console.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &multiHandler{
		console: h.console.WithAttrs(attrs),
		file:    h.file.WithAttrs(attrs),
	}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	return &multiHandler{
		console: h.console.WithGroup(name),
		file:    h.file.WithGroup(name),
	}
}

// ParseLevel maps debug, info, warn and error to slog levels. Empty means
// fallback.
func ParseLevel(s string, fallback slog.Level) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return fallback, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return fallback, fmt.Errorf("unknown log level %q", s)
}

// New builds a logger writing text to console and JSON to a rotating file.
// With no file configured only the console sink is used. The returned
// cleanup closes the log file.
func New(cfg config.LogConfig, console io.Writer) (*slog.Logger, func(), error) {
	consoleLevel, err := ParseLevel(cfg.ConsoleLevel, slog.LevelError)
	if err != nil {
		return nil, nil, err
	}
	fileLevel, err := ParseLevel(cfg.FileLevel, slog.LevelDebug)
	if err != nil {
		return nil, nil, err
	}

	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: consoleLevel})
	if cfg.File == "" {
		return slog.New(consoleHandler), func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, err
	}

	// lumberjack handles log rotation
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		LocalTime:  true,
	}

	fileHandler := slog.NewJSONHandler(lj, &slog.HandlerOptions{
		Level:     fileLevel,
		AddSource: true,
	})

	logger := slog.New(&multiHandler{console: consoleHandler, file: fileHandler})
	cleanup := func() {
		if err := lj.Close(); err != nil {
			logger.Error("Failed to close log file", "error", err)
		}
	}
	return logger, cleanup, nil
}

// Init builds the logger for cfg, writing console output to stderr, and
// installs it as the slog default.
func Init(cfg config.LogConfig) (func(), error) {
	logger, cleanup, err := New(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

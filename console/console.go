// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package console builds the client's loggers on top of slog.
//
// Two audiences share one pipeline: user-facing lines (cache hits and
// misses, what changed) and internal diagnostics (analysis failures,
// store errors). Internal problems are never the user's fault and the
// client fails open past them, so they are tagged "internal" and kept
// out of the way rather than raised.
//
// Default output is stderr text. When a log directory is configured,
// entries also land in a daily JSON file for machine processing.
package console

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config configures the logger. The zero value logs Info and above to
// stderr as text.
type Config struct {
	// Level is "debug", "info", "warn" or "error". Unknown means info.
	Level string

	// LogDir enables JSON file logging named hitsave_{date}.log.
	LogDir string

	// JSON switches stderr output to JSON.
	JSON bool

	// Quiet disables stderr output. With no LogDir either, logs are
	// discarded.
	Quiet bool
}

// ParseLevel maps a config string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger from cfg. The returned close function flushes and
// closes the log file when one was opened; it is never nil.
func New(cfg Config) (*slog.Logger, func() error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	closeFn := func() error { return nil }
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0750); err == nil {
			name := "hitsave_" + time.Now().Format("2006-01-02") + ".log"
			file, err := os.OpenFile(filepath.Join(cfg.LogDir, name),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
			if err == nil {
				handlers = append(handlers, slog.NewJSONHandler(file, opts))
				closeFn = func() error {
					if err := file.Sync(); err != nil {
						return err
					}
					return file.Close()
				}
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = discardHandler{}
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	return slog.New(handler), closeFn
}

// Default returns a stderr text logger at Info level.
func Default() *slog.Logger {
	log, _ := New(Config{})
	return log
}

// UserInfo logs a line addressed to the user, like a cache-miss
// explanation.
func UserInfo(log *slog.Logger, msg string, args ...any) {
	log.Info(msg, args...)
}

// InternalError logs a failure inside hitsave itself. The wrapped user
// function still runs; these lines exist for bug reports, not for the
// user to act on.
func InternalError(log *slog.Logger, msg string, args ...any) {
	log.Error(msg, append([]any{slog.Bool("internal", true)}, args...)...)
}

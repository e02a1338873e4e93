// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package console

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNewWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	log, closeLog := New(Config{Level: "debug", LogDir: dir, Quiet: true})

	log.Info("memoized call", "fn", "demo:triple")
	if err := closeLog(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		t.Fatalf("no log file written: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "memoized call") {
		t.Errorf("log file missing record:\n%s", data)
	}
	if !strings.Contains(string(data), `"fn"`) {
		t.Errorf("log file not JSON:\n%s", data)
	}
}

func TestInternalErrorTagsRecord(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	InternalError(log, "store write failed", "error", "disk full")
	if !strings.Contains(buf.String(), "internal=true") {
		t.Errorf("internal attribute missing: %s", buf.String())
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	}}
	log := slog.New(h)

	log.Info("hello")
	if !strings.Contains(a.String(), "hello") || !strings.Contains(b.String(), "hello") {
		t.Errorf("record not fanned out: a=%q b=%q", a.String(), b.String())
	}
}

func TestMultiHandlerLevelFiltering(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}
	log := slog.New(h)

	log.Info("routine")
	if strings.Contains(a.String(), "routine") {
		t.Error("error-level handler received info record")
	}
	if !strings.Contains(b.String(), "routine") {
		t.Error("debug-level handler missed info record")
	}
}

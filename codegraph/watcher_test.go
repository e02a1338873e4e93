// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegraph

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitsave-io/hitsave/symbol"
)

func newTestWatcher(t *testing.T, root string, handler SourceChangeHandler) (*SourceWatcher, *symbol.Loader) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	loader := symbol.NewLoader(log)
	graph := NewGraph(loader, Options{Logger: log})

	opts := DefaultWatcherOptions()
	opts.DebounceWindow = 20 * time.Millisecond
	opts.Handler = handler
	opts.Logger = log
	w, err := NewSourceWatcher(root, loader, graph, &opts)
	if err != nil {
		t.Fatalf("NewSourceWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, loader
}

func waitForBatch(t *testing.T, ch <-chan []SourceChange) []SourceChange {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("no invalidation observed")
		return nil
	}
}

func TestWatcherInvalidatesOnSourceEdit(t *testing.T) {
	root := t.TempDir()
	batches := make(chan []SourceChange, 8)
	_, loader := newTestWatcher(t, root, func(c []SourceChange) { batches <- c })
	epoch := loader.Epoch()

	path := filepath.Join(root, "lib.go")
	if err := os.WriteFile(path, []byte("package lib\n"), 0644); err != nil {
		t.Fatal(err)
	}

	batch := waitForBatch(t, batches)
	if len(batch) == 0 {
		t.Fatal("empty change batch")
	}
	if batch[0].Path != path {
		t.Errorf("changed path = %q, want %q", batch[0].Path, path)
	}
	if loader.Epoch() == epoch {
		t.Error("loader epoch did not advance")
	}
}

func TestWatcherIgnoresNonGoFiles(t *testing.T) {
	root := t.TempDir()
	batches := make(chan []SourceChange, 8)
	newTestWatcher(t, root, func(c []SourceChange) { batches <- c })

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case batch := <-batches:
		t.Errorf("non-Go edit triggered invalidation: %v", batch)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherIgnoresConfiguredDirs(t *testing.T) {
	root := t.TempDir()
	vendored := filepath.Join(root, "vendor")
	if err := os.MkdirAll(vendored, 0755); err != nil {
		t.Fatal(err)
	}
	batches := make(chan []SourceChange, 8)
	newTestWatcher(t, root, func(c []SourceChange) { batches <- c })

	if err := os.WriteFile(filepath.Join(vendored, "dep.go"), []byte("package dep\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case batch := <-batches:
		t.Errorf("vendored edit triggered invalidation: %v", batch)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	batches := make(chan []SourceChange, 8)
	newTestWatcher(t, root, func(c []SourceChange) { batches <- c })

	path := filepath.Join(root, "burst.go")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("package burst\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	batch := waitForBatch(t, batches)
	// Repeated writes to one path collapse to a single change.
	for _, c := range batch {
		if c.Path != path {
			t.Errorf("unexpected path in batch: %q", c.Path)
		}
	}
	if len(batch) != 1 {
		t.Errorf("batch not deduplicated: %d entries", len(batch))
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w, _ := newTestWatcher(t, root, nil)
	if !w.IsWatching() {
		t.Fatal("watcher not active after Start")
	}
	w.Stop()
	w.Stop()
	if w.IsWatching() {
		t.Error("watcher still active after Stop")
	}
}

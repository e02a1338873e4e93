// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegraph

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hitsave-io/hitsave/symbol"
)

// SourceChange is one observed change to a watched Go source file.
type SourceChange struct {
	Path string
	Time time.Time
}

// SourceChangeHandler is called with a debounced, deduplicated batch of
// source changes after the loader and graph have been invalidated.
type SourceChangeHandler func(changes []SourceChange)

// SourceWatcher watches a module tree for edits to Go source files.
// On a change it bumps the loader epoch and clears the code graph, so
// the next version hash re-derives from current source. Without a
// watcher a long-lived process memoizes stale digests forever.
type SourceWatcher struct {
	root     string
	loader   *symbol.Loader
	graph    *Graph
	watcher  *fsnotify.Watcher
	handler  SourceChangeHandler
	debounce time.Duration
	ignore   []string
	log      *slog.Logger

	changes  chan SourceChange
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// WatcherOptions configures a SourceWatcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for more changes before
	// invalidating. Default 100ms.
	DebounceWindow time.Duration

	// IgnorePatterns name files and directories to skip.
	IgnorePatterns []string

	// BufferSize is the change channel capacity. Default 1000.
	BufferSize int

	// Handler, if set, is called after each invalidation with the batch
	// that triggered it.
	Handler SourceChangeHandler

	// Logger receives watch lifecycle events. Nil means slog.Default.
	Logger *slog.Logger
}

// DefaultWatcherOptions returns the defaults.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 100 * time.Millisecond,
		IgnorePatterns: []string{".git", "vendor", "testdata", "node_modules", "*.swp", "*.tmp"},
		BufferSize:     1000,
	}
}

// NewSourceWatcher creates a watcher over root that keeps loader and
// graph consistent with on-disk source. Call Start to begin watching.
func NewSourceWatcher(root string, loader *symbol.Loader, graph *Graph, opts *WatcherOptions) (*SourceWatcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &SourceWatcher{
		root:     root,
		loader:   loader,
		graph:    graph,
		watcher:  watcher,
		handler:  opts.Handler,
		debounce: opts.DebounceWindow,
		ignore:   opts.IgnorePatterns,
		log:      log,
		changes:  make(chan SourceChange, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching root and all subdirectories. Two goroutines run
// until Stop or context cancellation: one converting filesystem events
// to source changes, one debouncing batches into invalidations.
func (w *SourceWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	w.log.Debug("watching source tree", "root", w.root)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *SourceWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *SourceWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

func (w *SourceWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *SourceWatcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.ignore {
		if base == pattern {
			return true
		}
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// processEvents filters filesystem events down to Go source changes.
func (w *SourceWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.shouldIgnore(event.Name) {
				continue
			}

			// Newly created directories need watching too.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.watcher.Add(event.Name)
					continue
				}
			}

			if !strings.HasSuffix(event.Name, ".go") {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			change := SourceChange{Path: event.Name, Time: time.Now()}
			select {
			case w.changes <- change:
			default:
				// Buffer full. Dropping is safe: any retained change in
				// the batch still triggers a full invalidation.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("source watcher error", "error", err)
		}
	}
}

// debounceLoop batches changes and invalidates once per quiet window.
func (w *SourceWatcher) debounceLoop(ctx context.Context) {
	var batch []SourceChange
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := w.deduplicate(batch)
			w.invalidate(deduped)
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// invalidate drops every cached artifact derived from source. Coarse but
// correct: partial re-analysis would have to track reverse edges across
// packages, and a full re-parse of a module is cheap next to the user
// computations being memoized.
func (w *SourceWatcher) invalidate(changes []SourceChange) {
	w.loader.Invalidate()
	if w.graph != nil {
		w.graph.Clear()
	}
	w.log.Info("source changed, dependency caches invalidated", "files", len(changes))
	if w.handler != nil {
		w.handler(changes)
	}
}

// deduplicate keeps the most recent change per path.
func (w *SourceWatcher) deduplicate(changes []SourceChange) []SourceChange {
	seen := make(map[string]int)
	result := make([]SourceChange, 0, len(changes))
	for _, change := range changes {
		if idx, ok := seen[change.Path]; ok {
			result[idx] = change
		} else {
			seen[change.Path] = len(result)
			result = append(result, change)
		}
	}
	return result
}

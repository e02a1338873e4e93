// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memo wraps functions so their results are memoized against a
// cache key derived from the function's code, its dependency closure,
// and a deep hash of its arguments. A wrapped function re-executes only
// when its arguments are new or its code (or any code it depends on)
// has changed.
package memo

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hitsave-io/hitsave/codegraph"
	"github.com/hitsave-io/hitsave/config"
	"github.com/hitsave-io/hitsave/console"
	"github.com/hitsave-io/hitsave/storage/badger"
	"github.com/hitsave-io/hitsave/store"
	"github.com/hitsave-io/hitsave/symbol"
)

// Session ties together everything a memoized call needs: the store,
// the dependency analyzer, configuration, and logging. Most programs
// use the implicit Current session; tests build their own.
type Session struct {
	Store  store.Store
	Loader *symbol.Loader
	Graph  *codegraph.Graph
	Config config.Config
	Log    *slog.Logger

	sf       singleflight.Group
	watcher  *codegraph.SourceWatcher
	closeLog func() error
}

var (
	currentMu sync.Mutex
	current   *Session
)

// Current returns the process-wide session, building it from the
// loaded configuration on first use. Construction failures degrade to
// an in-memory session rather than breaking the user's program.
func Current() *Session {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == nil {
		current = open()
	}
	return current
}

// SetCurrent replaces the process-wide session. Passing nil makes the
// next Current call rebuild from configuration.
func SetCurrent(s *Session) {
	currentMu.Lock()
	defer currentMu.Unlock()
	current = s
}

func open() *Session {
	cfg, cfgErr := config.Load()
	log, closeLog := console.New(console.Config{
		Level:  cfg.LogLevel,
		LogDir: filepath.Join(cfg.Dir, "logs"),
	})
	if cfgErr != nil {
		console.InternalError(log, "config load failed, using defaults", "error", cfgErr)
	}

	loader := symbol.NewLoader(log)
	graph := codegraph.NewGraph(loader, codegraph.Options{
		Sensitivity: codegraph.ParseSensitivity(cfg.VersionSensitivity),
		Logger:      log,
	})

	var st store.Store
	if cfg.NoLocal {
		st = store.NewMemoryStore()
	} else {
		bcfg := badger.DefaultConfig()
		bcfg.Path = filepath.Join(cfg.Dir, "store")
		bcfg.Logger = log
		es, err := badger.Open(bcfg)
		if err != nil {
			console.InternalError(log, "local store unavailable, memoizing in memory only", "error", err)
			st = store.NewMemoryStore()
		} else {
			st = es
		}
	}

	s := &Session{
		Store:    st,
		Loader:   loader,
		Graph:    graph,
		Config:   cfg,
		Log:      log,
		closeLog: closeLog,
	}

	if cfg.WatchSources {
		if w, err := codegraph.NewSourceWatcher(".", loader, graph, &codegraph.WatcherOptions{Logger: log}); err == nil {
			if err := w.Start(context.Background()); err == nil {
				s.watcher = w
			}
		} else {
			console.InternalError(log, "source watcher unavailable", "error", err)
		}
	}
	return s
}

// NewSession builds a session from explicit parts, for tests and
// embedders. Nil fields get in-memory or default implementations.
func NewSession(st store.Store, cfg config.Config, log *slog.Logger) *Session {
	if st == nil {
		st = store.NewMemoryStore()
	}
	if log == nil {
		log = console.Default()
	}
	loader := symbol.NewLoader(log)
	return &Session{
		Store:  st,
		Loader: loader,
		Graph: codegraph.NewGraph(loader, codegraph.Options{
			Sensitivity: codegraph.ParseSensitivity(cfg.VersionSensitivity),
			Logger:      log,
		}),
		Config: cfg,
		Log:    log,
	}
}

// Close releases the session's store, watcher, and log file.
func (s *Session) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	err := s.Store.Close()
	if s.closeLog != nil {
		if cerr := s.closeLog(); err == nil {
			err = cerr
		}
	}
	return err
}

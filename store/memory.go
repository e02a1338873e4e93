// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a Store held entirely in process memory. It implements
// the same miss classification as the persistent store and is the
// default when the local store is disabled, as well as the test double.
type MemoryStore struct {
	mu     sync.Mutex
	closed bool
	evals  map[string]*memEval // EvalKey string → record
	byID   map[string]*memEval
}

type memEval struct {
	eval   Eval
	status Status
	result Result
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		evals: map[string]*memEval{},
		byID:  map[string]*memEval{},
	}
}

// Poll classifies a lookup. Preference order: an exact resolved hit;
// otherwise, if the same function and arguments resolved under another
// function version, the miss is CodeChanged carrying the stored
// bindings; otherwise, if this function version has resolved for other
// arguments, the miss is "new arguments"; otherwise the key was never
// evaluated.
func (s *MemoryStore) Poll(_ context.Context, key EvalKey) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	if e, ok := s.evals[key.String()]; ok && e.status == StatusResolved {
		res := e.result
		return &res, nil
	}

	var sameArgs *memEval
	sameFnHash := false
	for _, e := range s.evals {
		if e.status != StatusResolved || e.eval.Key.Fn != key.Fn {
			continue
		}
		if e.eval.Key.ArgsHash == key.ArgsHash && e.eval.Key.FnHash != key.FnHash {
			sameArgs = e
		}
		if e.eval.Key.FnHash == key.FnHash {
			sameFnHash = true
		}
	}
	if sameArgs != nil {
		old := map[string]string{}
		for _, b := range sameArgs.eval.Bindings {
			old[b.Symbol] = b.DiffStr
		}
		return nil, &CodeChanged{Old: old}
	}
	if sameFnHash {
		return nil, &Miss{Reason: ReasonNewArguments}
	}
	return nil, &Miss{Reason: ReasonNoEvaluation}
}

func (s *MemoryStore) Start(_ context.Context, eval Eval) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	if eval.ID == "" {
		eval.ID = uuid.NewString()
	}
	e := &memEval{eval: eval, status: StatusStarted}
	s.evals[eval.Key.String()] = e
	s.byID[eval.ID] = e
	return eval.ID, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e, ok := s.byID[id]
	if !ok || e.status != StatusStarted {
		return ErrNotStarted
	}
	e.status = StatusResolved
	e.result = res
	return nil
}

func (s *MemoryStore) Reject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e, ok := s.byID[id]
	if !ok || e.status != StatusStarted {
		return ErrNotStarted
	}
	e.status = StatusRejected
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

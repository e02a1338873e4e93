// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store defines the evaluation store contract: keyed persistence
// of memoized function results, with a miss taxonomy rich enough to tell
// a user whether they are seeing new arguments, changed code, or a value
// that was simply never computed.
package store

import (
	"context"
	"time"

	"github.com/hitsave-io/hitsave/symbol"
)

// EvalKey identifies one memoized evaluation: which function, which
// version of its code, which arguments.
type EvalKey struct {
	Fn       symbol.Symbol
	FnHash   string
	ArgsHash string
}

func (k EvalKey) String() string {
	return k.Fn.String() + "|" + k.FnHash + "|" + k.ArgsHash
}

// Status is the lifecycle state of an evaluation record.
type Status int

const (
	// StatusStarted means execution began but no result has landed.
	StatusStarted Status = iota

	// StatusResolved means the result is stored and servable.
	StatusResolved

	// StatusRejected means execution failed; the record is dead.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusResolved:
		return "resolved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// BindingRecord is the persisted form of one dependency binding: enough
// to explain, later, what a dependency meant when a result was computed.
type BindingRecord struct {
	Symbol  string
	Kind    string
	Digest  string
	DiffStr string
}

// Eval is the metadata recorded when an evaluation starts.
type Eval struct {
	// ID is assigned by Start when empty.
	ID string

	Key EvalKey

	// Deps maps dependency vertex strings to their digests at call time.
	Deps map[string]string

	// Bindings carry the diff strings behind Deps, for later
	// explanations.
	Bindings []BindingRecord

	// Args is a printable rendering of the bound arguments.
	Args map[string]string

	StartTime    time.Time
	IsExperiment bool
}

// Result is a stored evaluation outcome: opaque encoded bytes plus the
// content digest of the value they encode.
type Result struct {
	Data    []byte
	Digest  string
	Elapsed time.Duration
}

// Store persists evaluations. Implementations own their I/O semantics;
// callers treat every failure as a cache miss (fail-open), so a Store
// error must never carry user-facing control flow.
type Store interface {
	// Poll looks up a servable result for key. On miss the error is a
	// *Miss or *CodeChanged describing why.
	Poll(ctx context.Context, key EvalKey) (*Result, error)

	// Start records that an evaluation is underway and returns its id.
	Start(ctx context.Context, eval Eval) (string, error)

	// Resolve attaches the result to a started evaluation.
	Resolve(ctx context.Context, id string, res Result) error

	// Reject marks a started evaluation as failed.
	Reject(ctx context.Context, id string) error

	Close() error
}

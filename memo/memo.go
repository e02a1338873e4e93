// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memo

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/hitsave-io/hitsave/codegraph"
	"github.com/hitsave-io/hitsave/console"
	"github.com/hitsave-io/hitsave/deephash"
	"github.com/hitsave-io/hitsave/store"
	"github.com/hitsave-io/hitsave/symbol"
)

// Option configures a memoized function.
type Option func(*options)

type options struct {
	session    *Session
	experiment bool
}

// WithSession pins the wrapper to a specific session instead of the
// process-wide one.
func WithSession(s *Session) Option {
	return func(o *options) { o.session = s }
}

// Experiment marks recorded evaluations as experiments, so stores and
// UIs surface them for inspection rather than treating them as plain
// cache entries.
func Experiment() Option {
	return func(o *options) { o.experiment = true }
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) sessionOrCurrent() *Session {
	if o.session != nil {
		return o.session
	}
	return Current()
}

// Memo1 memoizes a one-argument function. The returned function has the
// same signature; on a cache hit the stored result is returned without
// running fn.
func Memo1[A, R any](fn func(A) R, opts ...Option) func(A) R {
	o := newOptions(opts)
	return func(a A) R {
		return saved(o, fn, []any{a}, func() R { return fn(a) })
	}
}

// Memo2 memoizes a two-argument function.
func Memo2[A, B, R any](fn func(A, B) R, opts ...Option) func(A, B) R {
	o := newOptions(opts)
	return func(a A, b B) R {
		return saved(o, fn, []any{a, b}, func() R { return fn(a, b) })
	}
}

// Memo3 memoizes a three-argument function.
func Memo3[A, B, C, R any](fn func(A, B, C) R, opts ...Option) func(A, B, C) R {
	o := newOptions(opts)
	return func(a A, b B, c C) R {
		return saved(o, fn, []any{a, b, c}, func() R { return fn(a, b, c) })
	}
}

// saved is the per-call state machine: derive the key, poll the store,
// execute on miss, record the result. Every internal failure fails
// open: the user's function runs and its result is returned, with the
// problem logged as an internal error (propagated as a panic in debug
// mode).
func saved[R any](o *options, fn any, args []any, exec func() R) R {
	s := o.sessionOrCurrent()
	ctx := context.Background()

	key, version, bound, err := s.deriveKey(fn, args)
	if err != nil {
		s.failOpen("cache key derivation failed", err)
		return exec()
	}

	v, err, _ := s.sf.Do(key.String(), func() (any, error) {
		res, err := s.Store.Poll(ctx, *key)
		if err == nil {
			var out R
			if derr := gob.NewDecoder(bytes.NewReader(res.Data)).Decode(&out); derr != nil {
				s.failOpen("stored result could not be decoded", derr)
				return exec(), nil
			}
			recordHit(ctx)
			console.UserInfo(s.Log, "cache hit", "fn", key.Fn.String())
			return out, nil
		}
		if !store.IsMiss(err) {
			s.failOpen("store poll failed", err)
			return exec(), nil
		}
		recordMissMetric(ctx)
		s.explainMiss(key, version, err)
		return s.executeAndRecord(ctx, key, version, bound, o.experiment,
			func() any { return exec() }), nil
	})
	if err != nil {
		// The singleflight closure never returns an error; this is
		// unreachable short of a runtime fault.
		s.failOpen("memoized call failed", err)
		return exec()
	}
	return v.(R)
}

// deriveKey computes the EvalKey for one call: function version via the
// code graph, argument hash via deep hashing of arguments bound to
// their declared parameter names.
func (s *Session) deriveKey(fn any, args []any) (*store.EvalKey, *versionInfo, map[string]any, error) {
	hashStart := time.Now()
	version, err := s.Graph.FunctionVersion(fn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("analyze function: %w", err)
	}

	bound := s.bindArgs(fn, version.Symbol, args)
	argsRes, err := deephash.Hash(bound)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("hash arguments: %w", err)
	}
	for _, w := range argsRes.Warnings {
		s.Log.Warn("argument hashing degraded", "type", w.Type, "reason", w.Reason)
	}
	recordHashLatency(context.Background(), time.Since(hashStart))

	key := &store.EvalKey{Fn: version.Symbol, FnHash: version.Hash, ArgsHash: argsRes.Digest}
	return key, &versionInfo{version: version}, bound, nil
}

// bindArgs pairs positional arguments with the parameter names from the
// function's declaration. When the declaration cannot be consulted the
// names degrade to arg0..argN, which keeps the hash deterministic but
// renames on signature edits.
func (s *Session) bindArgs(fn any, sym symbol.Symbol, args []any) map[string]any {
	names := make([]string, len(args))
	for i := range names {
		names[i] = fmt.Sprintf("arg%d", i)
	}
	if file, _, err := symbol.FuncSource(fn); err == nil {
		if pkg, err := s.Loader.PackageForFile(file); err == nil {
			if declared, err := pkg.ParamNames(sym.Decl); err == nil {
				for i := range names {
					if i < len(declared) {
						names[i] = declared[i]
					}
				}
			}
		}
	}
	bound := make(map[string]any, len(args))
	for i, a := range args {
		bound[names[i]] = a
	}
	return bound
}

// explainMiss writes the user-facing cache-miss line, distinguishing
// never-evaluated, new arguments, and changed code with a dependency
// diff.
func (s *Session) explainMiss(key *store.EvalKey, v *versionInfo, missErr error) {
	var changed *store.CodeChanged
	if errors.As(missErr, &changed) {
		changed.New = map[string]string{}
		for dep, info := range v.version.Deps {
			changed.New[dep] = info.DiffStr
		}
		console.UserInfo(s.Log, "cache miss: dependencies changed",
			"fn", key.Fn.String(), "diff", changed.Explain())
		return
	}
	var miss *store.Miss
	if errors.As(missErr, &miss) {
		console.UserInfo(s.Log, "cache miss: "+miss.Reason, "fn", key.Fn.String())
	}
}

// executeAndRecord runs the wrapped function, then persists the
// evaluation and its encoded result. Store failures are logged and the
// freshly computed value is returned regardless.
func (s *Session) executeAndRecord(ctx context.Context, key *store.EvalKey, v *versionInfo, bound map[string]any, experiment bool, exec func() any) any {
	eval := store.Eval{
		Key:          *key,
		Deps:         v.depDigests(),
		Bindings:     v.bindingRecords(),
		Args:         renderArgs(bound),
		StartTime:    time.Now(),
		IsExperiment: experiment,
	}
	id, startErr := s.Store.Start(ctx, eval)

	started := time.Now()
	result := exec()
	elapsed := time.Since(started)

	if startErr != nil {
		s.failOpen("store could not record evaluation start", startErr)
		return result
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(result); err != nil {
		s.failOpen("result could not be encoded for storage", err)
		if rerr := s.Store.Reject(ctx, id); rerr != nil {
			console.InternalError(s.Log, "evaluation could not be rejected", "error", rerr)
		}
		return result
	}
	digest, err := deephash.Hash(result)
	if err != nil {
		s.failOpen("result could not be hashed", err)
		if rerr := s.Store.Reject(ctx, id); rerr != nil {
			console.InternalError(s.Log, "evaluation could not be rejected", "error", rerr)
		}
		return result
	}

	if err := s.Store.Resolve(ctx, id, store.Result{
		Data:    buf.Bytes(),
		Digest:  digest.Digest,
		Elapsed: elapsed,
	}); err != nil {
		s.failOpen("store could not record result", err)
	}
	return result
}

// failOpen logs an internal error, or panics in debug mode so tests and
// bug reports see the real failure instead of a silent recompute.
func (s *Session) failOpen(msg string, err error) {
	if s.Config.DebugMode {
		panic(fmt.Sprintf("hitsave: %s: %v", msg, err))
	}
	console.InternalError(s.Log, msg, "error", err)
}

func renderArgs(bound map[string]any) map[string]string {
	out := make(map[string]string, len(bound))
	for name, v := range bound {
		out[name] = fmt.Sprintf("%v", v)
	}
	return out
}

// versionInfo adapts a code-graph version to the store's record types.
type versionInfo struct {
	version *codegraph.Version
}

func (v *versionInfo) depDigests() map[string]string {
	out := make(map[string]string, len(v.version.Deps))
	for dep, info := range v.version.Deps {
		out[dep] = info.Digest
	}
	return out
}

func (v *versionInfo) bindingRecords() []store.BindingRecord {
	out := make([]store.BindingRecord, 0, len(v.version.Deps))
	for dep, info := range v.version.Deps {
		out = append(out, store.BindingRecord{
			Symbol:  dep,
			Kind:    info.Kind.String(),
			Digest:  info.Digest,
			DiffStr: info.DiffStr,
		})
	}
	return out
}

// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitsave-io/hitsave/store"
	"github.com/hitsave-io/hitsave/symbol"
)

func testKey(fnHash, argsHash string) store.EvalKey {
	return store.EvalKey{
		Fn:       symbol.Symbol{Pkg: "example.com/app", Decl: "F"},
		FnHash:   fnHash,
		ArgsHash: argsHash,
	}
}

func openTestStore(t *testing.T) *EvalStore {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEvalStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	key := testKey("fn1", "args1")

	_, err := s.Poll(ctx, key)
	var miss *store.Miss
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, store.ReasonNoEvaluation, miss.Reason)

	id, err := s.Start(ctx, store.Eval{
		Key:       key,
		Deps:      map[string]string{"example.com/app:F": "d0"},
		Args:      map[string]string{"x": "3"},
		StartTime: time.Now(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// A started evaluation is not servable.
	_, err = s.Poll(ctx, key)
	assert.True(t, store.IsMiss(err), "poll of started eval = %v", err)

	require.NoError(t, s.Resolve(ctx, id, store.Result{
		Data:    []byte("payload"),
		Digest:  "digest1",
		Elapsed: 2 * time.Second,
	}))

	res, err := s.Poll(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), res.Data)
	assert.Equal(t, "digest1", res.Digest)
	assert.Equal(t, 2*time.Second, res.Elapsed)
}

func TestEvalStoreMissTaxonomy(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	id, err := s.Start(ctx, store.Eval{
		Key:  testKey("fnOld", "argsA"),
		Deps: map[string]string{"example.com/app:F": "digestOld"},
		Bindings: []store.BindingRecord{
			{Symbol: "example.com/app:F", Kind: "func", Digest: "digestOld", DiffStr: "func F() { old }"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.Resolve(ctx, id, store.Result{Data: []byte("x"), Digest: "d"}))

	t.Run("code changed", func(t *testing.T) {
		_, err := s.Poll(ctx, testKey("fnNew", "argsA"))
		var changed *store.CodeChanged
		require.ErrorAs(t, err, &changed)
		assert.Equal(t, "func F() { old }", changed.Old["example.com/app:F"])
	})

	t.Run("new arguments", func(t *testing.T) {
		_, err := s.Poll(ctx, testKey("fnOld", "argsB"))
		var miss *store.Miss
		require.ErrorAs(t, err, &miss)
		assert.Equal(t, store.ReasonNewArguments, miss.Reason)
	})

	t.Run("never evaluated", func(t *testing.T) {
		key := store.EvalKey{Fn: symbol.Symbol{Pkg: "example.com/app", Decl: "G"}, FnHash: "f", ArgsHash: "a"}
		_, err := s.Poll(ctx, key)
		var miss *store.Miss
		require.ErrorAs(t, err, &miss)
		assert.Equal(t, store.ReasonNoEvaluation, miss.Reason)
	})
}

func TestEvalStoreReject(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	key := testKey("fn", "args")

	id, err := s.Start(ctx, store.Eval{Key: key})
	require.NoError(t, err)
	require.NoError(t, s.Reject(ctx, id))

	// A rejected evaluation does not shadow a retry.
	_, err = s.Poll(ctx, key)
	var miss *store.Miss
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, store.ReasonNoEvaluation, miss.Reason)

	assert.True(t, errors.Is(s.Resolve(ctx, id, store.Result{}), store.ErrNotStarted))
}

func TestEvalStoreCleansStaleStarted(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := InMemoryConfig()
	cfg.InMemory = false
	cfg.Path = dir

	s, err := Open(cfg)
	require.NoError(t, err)
	key := testKey("fn", "args")
	_, err = s.Start(ctx, store.Eval{Key: key, StartTime: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening simulates a process that died mid-evaluation.
	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()

	_, err = s2.Poll(ctx, key)
	var miss *store.Miss
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, store.ReasonNoEvaluation, miss.Reason)
}

func TestEvalStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := InMemoryConfig()
	cfg.InMemory = false
	cfg.Path = dir

	s, err := Open(cfg)
	require.NoError(t, err)
	key := testKey("fn", "args")
	id, err := s.Start(ctx, store.Eval{Key: key, StartTime: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.Resolve(ctx, id, store.Result{Data: []byte("kept"), Digest: "d"}))
	require.NoError(t, s.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()

	res, err := s2.Poll(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), res.Data)
}

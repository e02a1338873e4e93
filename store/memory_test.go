// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitsave-io/hitsave/symbol"
)

func testKey(fnHash, argsHash string) EvalKey {
	return EvalKey{
		Fn:       symbol.Symbol{Pkg: "example.com/app", Decl: "F"},
		FnHash:   fnHash,
		ArgsHash: argsHash,
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()
	key := testKey("fn1", "args1")

	// Never evaluated.
	_, err := s.Poll(ctx, key)
	var miss *Miss
	if !errors.As(err, &miss) || miss.Reason != ReasonNoEvaluation {
		t.Fatalf("first poll error = %v", err)
	}

	id, err := s.Start(ctx, Eval{Key: key, StartTime: time.Now()})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty eval id")
	}

	// Started but unresolved records are not servable.
	if _, err := s.Poll(ctx, key); !IsMiss(err) {
		t.Fatalf("poll of started eval = %v", err)
	}

	want := Result{Data: []byte("payload"), Digest: "d1", Elapsed: time.Second}
	if err := s.Resolve(ctx, id, want); err != nil {
		t.Fatal(err)
	}

	got, err := s.Poll(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Data) != "payload" || got.Digest != "d1" || got.Elapsed != time.Second {
		t.Errorf("Poll = %+v", got)
	}
}

func TestMemoryStoreMissTaxonomy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	resolve := func(t *testing.T, eval Eval) {
		t.Helper()
		id, err := s.Start(ctx, eval)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Resolve(ctx, id, Result{Data: []byte("x"), Digest: "d"}); err != nil {
			t.Fatal(err)
		}
	}

	resolve(t, Eval{
		Key:  testKey("fnOld", "argsA"),
		Deps: map[string]string{"example.com/app:F": "digestOld"},
		Bindings: []BindingRecord{
			{Symbol: "example.com/app:F", Digest: "digestOld", DiffStr: "func F() { old }"},
		},
	})

	t.Run("same args, different code", func(t *testing.T) {
		_, err := s.Poll(ctx, testKey("fnNew", "argsA"))
		var changed *CodeChanged
		if !errors.As(err, &changed) {
			t.Fatalf("error = %v, want CodeChanged", err)
		}
		if changed.Old["example.com/app:F"] != "func F() { old }" {
			t.Errorf("Old = %v", changed.Old)
		}
	})

	t.Run("same code, different args", func(t *testing.T) {
		_, err := s.Poll(ctx, testKey("fnOld", "argsB"))
		var miss *Miss
		if !errors.As(err, &miss) || miss.Reason != ReasonNewArguments {
			t.Fatalf("error = %v, want new-arguments miss", err)
		}
	})

	t.Run("different function entirely", func(t *testing.T) {
		key := EvalKey{Fn: symbol.Symbol{Pkg: "example.com/app", Decl: "G"}, FnHash: "f", ArgsHash: "a"}
		_, err := s.Poll(ctx, key)
		var miss *Miss
		if !errors.As(err, &miss) || miss.Reason != ReasonNoEvaluation {
			t.Fatalf("error = %v, want no-evaluation miss", err)
		}
	})
}

func TestMemoryStoreReject(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()
	key := testKey("fn", "args")

	id, err := s.Start(ctx, Eval{Key: key})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Reject(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := s.Resolve(ctx, id, Result{}); !errors.Is(err, ErrNotStarted) {
		t.Errorf("resolve after reject = %v", err)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	s.Close()
	if _, err := s.Poll(context.Background(), testKey("f", "a")); !errors.Is(err, ErrClosed) {
		t.Errorf("error = %v, want ErrClosed", err)
	}
}

func TestCodeChangedExplain(t *testing.T) {
	c := &CodeChanged{
		Old: map[string]string{"example.com/app:F": "func F() int {\n\treturn 1\n}"},
		New: map[string]string{"example.com/app:F": "func F() int {\n\treturn 2\n}"},
	}
	diff := c.Explain()
	if !strings.Contains(diff, "-\treturn 1") || !strings.Contains(diff, "+\treturn 2") {
		t.Errorf("Explain() = %q", diff)
	}
}

func TestEvalKeyString(t *testing.T) {
	key := testKey("fnhash", "argshash")
	want := "example.com/app:F|fnhash|argshash"
	if key.String() != want {
		t.Errorf("String() = %q, want %q", key.String(), want)
	}
}

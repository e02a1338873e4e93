// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package deep

import (
	"reflect"
	"testing"
	"time"
)

type point struct {
	X, Y int
}

type secret struct {
	hidden int //nolint:unused
}

func TestReduceOpaqueLeaves(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"nil", nil},
		{"int", 42},
		{"string", "hello"},
		{"bool", true},
		{"float", 3.14},
		{"complex", complex(1, 2)},
		{"bytes", []byte("raw")},
		{"nil pointer", (*int)(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv, err := Reduce(tt.value)
			if err != nil {
				t.Fatalf("Reduce(%v) error: %v", tt.value, err)
			}
			if rv != nil {
				t.Errorf("Reduce(%v) = %v, want opaque", tt.value, rv)
			}
		})
	}
}

func TestReduceComposites(t *testing.T) {
	t.Run("slice becomes sequence extension", func(t *testing.T) {
		rv, err := Reduce([]int{1, 2, 3})
		if err != nil {
			t.Fatal(err)
		}
		if len(rv.Seq) != 3 || len(rv.Args) != 0 {
			t.Errorf("slice reduction = %+v, want 3 seq items", rv)
		}
	})

	t.Run("array becomes constructor args", func(t *testing.T) {
		rv, err := Reduce([2]string{"a", "b"})
		if err != nil {
			t.Fatal(err)
		}
		if len(rv.Args) != 2 || len(rv.Seq) != 0 {
			t.Errorf("array reduction = %+v, want 2 args", rv)
		}
	})

	t.Run("map entries are sorted", func(t *testing.T) {
		rv, err := Reduce(map[string]int{"b": 2, "a": 1, "c": 3})
		if err != nil {
			t.Fatal(err)
		}
		if len(rv.Map) != 3 {
			t.Fatalf("map reduction has %d entries", len(rv.Map))
		}
		if rv.Map[0].Key != "a" || rv.Map[1].Key != "b" || rv.Map[2].Key != "c" {
			t.Errorf("map entries not sorted: %+v", rv.Map)
		}
	})

	t.Run("pointer unwraps to element", func(t *testing.T) {
		n := 7
		rv, err := Reduce(&n)
		if err != nil {
			t.Fatal(err)
		}
		if len(rv.Args) != 1 || rv.Args[0] != 7 {
			t.Errorf("pointer reduction = %+v", rv)
		}
	})

	t.Run("struct exposes exported fields in order", func(t *testing.T) {
		rv, err := Reduce(point{X: 1, Y: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(rv.Args) != 2 || rv.Args[0] != 1 || rv.Args[1] != 2 {
			t.Errorf("struct reduction = %+v", rv)
		}
	})

	t.Run("all-unexported struct is irreducible", func(t *testing.T) {
		_, err := Reduce(secret{hidden: 1})
		if !IsIrreducible(err) {
			t.Errorf("want IrreducibleError, got %v", err)
		}
	})

	t.Run("func is irreducible", func(t *testing.T) {
		_, err := Reduce(func() {})
		if !IsIrreducible(err) {
			t.Errorf("want IrreducibleError, got %v", err)
		}
	})
}

func TestReduceNoSelfContainment(t *testing.T) {
	values := []any{
		[]int{1, 2},
		map[string]int{"a": 1},
		point{X: 3, Y: 4},
		[]any{[]any{1}, "s"},
	}
	for _, v := range values {
		rv, err := Reduce(v)
		if err != nil {
			t.Fatalf("Reduce(%v): %v", v, err)
		}
		if rv == nil {
			continue
		}
		for _, c := range rv.Children() {
			cv := reflect.ValueOf(c.Value)
			pv := reflect.ValueOf(v)
			if cv.Kind() == pv.Kind() && cv.Kind() == reflect.Slice &&
				cv.Len() == pv.Len() && cv.Len() > 0 &&
				cv.Pointer() == pv.Pointer() {
				t.Errorf("child of %v is the value itself", v)
			}
		}
	}
}

func TestReconstructRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"slice", []int{1, 2, 3}},
		{"empty slice", []string{}},
		{"array", [3]int{4, 5, 6}},
		{"map", map[string]int{"a": 1, "b": 2}},
		{"struct", point{X: 9, Y: -1}},
		{"nested", []map[string]int{{"k": 1}, {"j": 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv, err := Reduce(tt.value)
			if err != nil {
				t.Fatal(err)
			}
			got, err := Reconstruct(rv)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.value) {
				t.Errorf("round trip = %#v, want %#v", got, tt.value)
			}
		})
	}

	t.Run("pointer round trip", func(t *testing.T) {
		n := 11
		rv, err := Reduce(&n)
		if err != nil {
			t.Fatal(err)
		}
		got, err := Reconstruct(rv)
		if err != nil {
			t.Fatal(err)
		}
		p, ok := got.(*int)
		if !ok || *p != 11 {
			t.Errorf("pointer round trip = %#v", got)
		}
	})
}

func TestRegisteredTimeReducer(t *testing.T) {
	orig := time.Date(2024, 5, 1, 12, 30, 0, 250, time.FixedZone("X", 3600))
	rv, err := Reduce(orig)
	if err != nil {
		t.Fatal(err)
	}
	if rv == nil || len(rv.Args) != 2 {
		t.Fatalf("time reduction = %+v", rv)
	}
	got, err := Reconstruct(rv)
	if err != nil {
		t.Fatal(err)
	}
	if !got.(time.Time).Equal(orig) {
		t.Errorf("round trip = %v, want instant %v", got, orig)
	}

	// Same instant in different zones must reduce identically.
	other := orig.In(time.UTC)
	rv2, err := Reduce(other)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(rv.Args, rv2.Args) {
		t.Errorf("zone leaked into reduction: %v vs %v", rv.Args, rv2.Args)
	}
}

type pair struct{ a, b int }

func TestRegisterReducer(t *testing.T) {
	pairType := reflect.TypeOf(pair{})
	RegisterReducer(pairType,
		func(v any) (*ReductionValue, error) {
			p := v.(pair)
			return &ReductionValue{Type: pairType, Args: []any{p.a, p.b}}, nil
		},
		func(rv *ReductionValue) (any, error) {
			return pair{a: rv.Args[0].(int), b: rv.Args[1].(int)}, nil
		},
	)

	rv, err := Reduce(pair{a: 1, b: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(rv.Args) != 2 {
		t.Fatalf("registered reducer not used: %+v", rv)
	}
	got, err := Reconstruct(rv)
	if err != nil {
		t.Fatal(err)
	}
	if got != (pair{a: 1, b: 2}) {
		t.Errorf("round trip = %#v", got)
	}
}

type handle struct{ fd uintptr }

func TestRegisterOpaque(t *testing.T) {
	RegisterOpaque(reflect.TypeOf(handle{}))
	rv, err := Reduce(handle{fd: 3})
	if err != nil {
		t.Fatal(err)
	}
	if rv != nil {
		t.Errorf("opaque type was decomposed: %+v", rv)
	}
}

func TestChildrenOrdering(t *testing.T) {
	rv := &ReductionValue{
		Type:  reflect.TypeOf(struct{}{}),
		Args:  []any{1, 2},
		State: map[string]any{"z": 26, "a": 1},
		Seq:   []any{"x"},
		Map:   []KV{{Key: "k", Value: "v"}},
	}
	var parts []Part
	var keys []any
	for _, c := range rv.Children() {
		parts = append(parts, c.Part)
		keys = append(keys, c.Key)
	}
	want := []Part{PartArgs, PartArgs, PartState, PartState, PartSeq, PartMap}
	if !reflect.DeepEqual(parts, want) {
		t.Errorf("child part order = %v, want %v", parts, want)
	}
	// State children sort by key name.
	if keys[2] != "a" || keys[3] != "z" {
		t.Errorf("state keys not sorted: %v", keys)
	}
}

// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package deep

import (
	"fmt"
	"reflect"
	"sort"
)

// Part names the component of a ReductionValue a child came from.
type Part string

const (
	// PartArgs marks positional constructor components.
	PartArgs Part = "args"

	// PartState marks named components applied after construction.
	PartState Part = "state"

	// PartSeq marks sequence-extension items.
	PartSeq Part = "seq"

	// PartMap marks mapping-extension entries.
	PartMap Part = "map"
)

// KV is one mapping-extension entry.
type KV struct {
	Key   any
	Value any
}

// Child is one immediate component of a reduced value, tagged with the
// part it belongs to and its key within that part (an int index for
// args/seq, the entry key for state/map).
type Child struct {
	Part  Part
	Key   any
	Value any
}

// ReductionValue is the canonical decomposition of a composite value:
// a constructor type tag, positional components, optional named state,
// and optional sequence/mapping extensions.
type ReductionValue struct {
	// Type is the concrete type the reduction reconstructs to.
	Type reflect.Type

	// Args are positional components, in construction order.
	Args []any

	// State maps named components applied after construction. Iteration
	// sorts keys; insertion order is irrelevant.
	State map[string]any

	// Seq holds sequence-extension items, in sequence order.
	Seq []any

	// Map holds mapping-extension entries. Iteration sorts by a stable
	// key ordering; insertion order is irrelevant.
	Map []KV
}

// Len returns the total number of immediate children.
func (rv *ReductionValue) Len() int {
	return len(rv.Args) + len(rv.State) + len(rv.Seq) + len(rv.Map)
}

// Children returns every immediate component in one deterministic order:
// args in order, state sorted by key, seq in order, map entries sorted by
// the canonical sort key. The order never depends on map iteration order.
func (rv *ReductionValue) Children() []Child {
	out := make([]Child, 0, rv.Len())
	for i, a := range rv.Args {
		out = append(out, Child{Part: PartArgs, Key: i, Value: a})
	}
	if len(rv.State) > 0 {
		keys := make([]string, 0, len(rv.State))
		for k := range rv.State {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, Child{Part: PartState, Key: k, Value: rv.State[k]})
		}
	}
	for i, item := range rv.Seq {
		out = append(out, Child{Part: PartSeq, Key: i, Value: item})
	}
	if len(rv.Map) > 0 {
		kvs := make([]KV, len(rv.Map))
		copy(kvs, rv.Map)
		sortKVs(kvs)
		for _, kv := range kvs {
			out = append(out, Child{Part: PartMap, Key: kv.Key, Value: kv.Value})
		}
	}
	return out
}

// WalkChildren rebuilds the reduction with fn applied to every child
// value. Keys and structure are preserved.
func (rv *ReductionValue) WalkChildren(fn func(v any, c Child) any) *ReductionValue {
	out := &ReductionValue{Type: rv.Type}
	if rv.Args != nil {
		out.Args = make([]any, len(rv.Args))
		for i, a := range rv.Args {
			out.Args[i] = fn(a, Child{Part: PartArgs, Key: i, Value: a})
		}
	}
	if rv.State != nil {
		out.State = make(map[string]any, len(rv.State))
		for k, v := range rv.State {
			out.State[k] = fn(v, Child{Part: PartState, Key: k, Value: v})
		}
	}
	if rv.Seq != nil {
		out.Seq = make([]any, len(rv.Seq))
		for i, item := range rv.Seq {
			out.Seq[i] = fn(item, Child{Part: PartSeq, Key: i, Value: item})
		}
	}
	if rv.Map != nil {
		out.Map = make([]KV, len(rv.Map))
		for i, kv := range rv.Map {
			out.Map[i] = KV{Key: kv.Key, Value: fn(kv.Value, Child{Part: PartMap, Key: kv.Key, Value: kv.Value})}
		}
	}
	return out
}

// sortKey produces the stable ordering key for unordered children.
// Hashes are not usable here: Go map iteration and interface hashing are
// not stable across runs, so entries order by (type name, textual repr).
func sortKey(v any) (string, string) {
	return fmt.Sprintf("%T", v), fmt.Sprintf("%#v", v)
}

func sortKVs(kvs []KV) {
	sort.Slice(kvs, func(i, j int) bool {
		ti, ri := sortKey(kvs[i].Key)
		tj, rj := sortKey(kvs[j].Key)
		if ti != tj {
			return ti < tj
		}
		return ri < rj
	})
}

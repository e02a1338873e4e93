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
	"sync"
	"time"
)

// Reducible is the reduction hook: a type may describe its own canonical
// decomposition instead of relying on the built-in structural paths.
type Reducible interface {
	ReduceValue() (*ReductionValue, error)
}

// Reducer decomposes a value of a registered type. Returning a nil
// ReductionValue with a nil error classifies the value opaque.
type Reducer func(v any) (*ReductionValue, error)

// Reconstructor rebuilds a value of a registered type from its reduction.
type Reconstructor func(rv *ReductionValue) (any, error)

type registration struct {
	reduce      Reducer
	reconstruct Reconstructor
}

var (
	regMu     sync.RWMutex
	reducers  = map[reflect.Type]registration{}
	opaqueSet = map[reflect.Type]bool{}
)

var bytesType = reflect.TypeOf([]byte(nil))

// RegisterReducer installs an exact-type reducer and its inverse.
// reconstruct may be nil for types that only need hashing and equality.
func RegisterReducer(t reflect.Type, reduce Reducer, reconstruct Reconstructor) {
	regMu.Lock()
	defer regMu.Unlock()
	reducers[t] = registration{reduce: reduce, reconstruct: reconstruct}
}

// RegisterOpaque classifies an exact type as a leaf: it is never
// decomposed, and compares and hashes by its primitive encoding.
// Subtype checking is not done; a distinct named type must be registered
// separately.
func RegisterOpaque(t reflect.Type) {
	regMu.Lock()
	defer regMu.Unlock()
	opaqueSet[t] = true
}

func lookupReducer(t reflect.Type) (registration, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	r, ok := reducers[t]
	return r, ok
}

func isRegisteredOpaque(t reflect.Type) bool {
	regMu.RLock()
	defer regMu.RUnlock()
	return opaqueSet[t]
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

// Reduce decomposes a value into its canonical ReductionValue, or returns
// (nil, nil) when the value is opaque — a leaf whose internal structure is
// irrelevant. It fails with an IrreducibleError when no dispatch path
// accepts the value's type.
func Reduce(v any) (*ReductionValue, error) {
	if v == nil {
		return nil, nil
	}
	rt := reflect.TypeOf(v)

	if reg, ok := lookupReducer(rt); ok {
		return reg.reduce(v)
	}
	if isRegisteredOpaque(rt) || isScalarKind(rt.Kind()) || rt == bytesType {
		return nil, nil
	}

	rv := reflect.ValueOf(v)
	switch rt.Kind() {
	case reflect.Slice:
		seq := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			seq[i] = rv.Index(i).Interface()
		}
		return &ReductionValue{Type: rt, Seq: seq}, nil

	case reflect.Array:
		// Fixed-size: the elements are constructor components.
		args := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			args[i] = rv.Index(i).Interface()
		}
		return &ReductionValue{Type: rt, Args: args}, nil

	case reflect.Map:
		kvs := make([]KV, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			kvs = append(kvs, KV{Key: iter.Key().Interface(), Value: iter.Value().Interface()})
		}
		sortKVs(kvs)
		return &ReductionValue{Type: rt, Map: kvs}, nil

	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return &ReductionValue{Type: rt, Args: []any{rv.Elem().Interface()}}, nil

	case reflect.Struct:
		if red, ok := v.(Reducible); ok {
			return red.ReduceValue()
		}
		return reduceRecord(rt, rv)
	}

	if red, ok := v.(Reducible); ok {
		return red.ReduceValue()
	}
	return nil, &IrreducibleError{Type: rt}
}

// reduceRecord handles record-like structs: (type, exported field values)
// in declared order, not sorted. Unexported fields are invisible to the
// engine; a struct with nothing but unexported fields needs a registered
// reducer or a Reducible hook.
func reduceRecord(rt reflect.Type, rv reflect.Value) (*ReductionValue, error) {
	var args []any
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		args = append(args, rv.Field(i).Interface())
	}
	if args == nil && rt.NumField() > 0 {
		return nil, &IrreducibleError{Type: rt}
	}
	return &ReductionValue{Type: rt, Args: args}, nil
}

// Reconstruct is the inverse of Reduce: it rebuilds a value from its
// reduction. Plain sequence and mapping reductions short-circuit to a
// direct build instead of construct-then-extend.
func Reconstruct(rv *ReductionValue) (any, error) {
	if rv.Type == nil {
		return nil, ErrNotReconstructible
	}
	if reg, ok := lookupReducer(rv.Type); ok {
		if reg.reconstruct == nil {
			return nil, fmt.Errorf("%w: no reconstructor registered for %s", ErrNotReconstructible, rv.Type)
		}
		return reg.reconstruct(rv)
	}

	switch rv.Type.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(rv.Type, 0, len(rv.Seq))
		for _, item := range rv.Seq {
			out = reflect.Append(out, convert(item, rv.Type.Elem()))
		}
		return out.Interface(), nil

	case reflect.Array:
		out := reflect.New(rv.Type).Elem()
		if len(rv.Args) != rv.Type.Len() {
			return nil, fmt.Errorf("%w: array %s wants %d components, got %d",
				ErrNotReconstructible, rv.Type, rv.Type.Len(), len(rv.Args))
		}
		for i, a := range rv.Args {
			out.Index(i).Set(convert(a, rv.Type.Elem()))
		}
		return out.Interface(), nil

	case reflect.Map:
		out := reflect.MakeMapWithSize(rv.Type, len(rv.Map))
		for _, kv := range rv.Map {
			out.SetMapIndex(convert(kv.Key, rv.Type.Key()), convert(kv.Value, rv.Type.Elem()))
		}
		return out.Interface(), nil

	case reflect.Pointer:
		out := reflect.New(rv.Type.Elem())
		if len(rv.Args) != 1 {
			return nil, fmt.Errorf("%w: pointer %s wants 1 component, got %d",
				ErrNotReconstructible, rv.Type, len(rv.Args))
		}
		out.Elem().Set(convert(rv.Args[0], rv.Type.Elem()))
		return out.Interface(), nil

	case reflect.Struct:
		out := reflect.New(rv.Type).Elem()
		i := 0
		for fi := 0; fi < rv.Type.NumField(); fi++ {
			f := rv.Type.Field(fi)
			if !f.IsExported() {
				continue
			}
			if i >= len(rv.Args) {
				return nil, fmt.Errorf("%w: struct %s missing component for field %s",
					ErrNotReconstructible, rv.Type, f.Name)
			}
			out.Field(fi).Set(convert(rv.Args[i], f.Type))
			i++
		}
		// Named state wins over positional components when both name a field.
		for k, v := range rv.State {
			f := out.FieldByName(k)
			if f.IsValid() && f.CanSet() {
				f.Set(convert(v, f.Type()))
			}
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotReconstructible, rv.Type)
}

func convert(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	val := reflect.ValueOf(v)
	if val.Type() != t && val.Type().ConvertibleTo(t) && t.Kind() != reflect.Interface {
		return val.Convert(t)
	}
	return val
}

func init() {
	// time.Time carries unexported state and a monotonic clock reading
	// that must not leak into digests.
	timeType := reflect.TypeOf(time.Time{})
	RegisterReducer(timeType,
		func(v any) (*ReductionValue, error) {
			t := v.(time.Time).UTC()
			return &ReductionValue{
				Type: timeType,
				Args: []any{t.Unix(), int64(t.Nanosecond())},
			}, nil
		},
		func(rv *ReductionValue) (any, error) {
			if len(rv.Args) != 2 {
				return nil, fmt.Errorf("%w: time.Time wants 2 components", ErrNotReconstructible)
			}
			sec, ok1 := rv.Args[0].(int64)
			nsec, ok2 := rv.Args[1].(int64)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("%w: time.Time components must be int64", ErrNotReconstructible)
			}
			return time.Unix(sec, nsec).UTC(), nil
		},
	)
}

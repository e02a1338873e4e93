// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package deep implements the structural reduction engine that underpins
// content hashing and structural equality.
//
// A composite value is decomposed into a ReductionValue: a constructor type
// tag plus an ordered collection of child components. The decomposition is
// canonical — iterating the children of a reduction always yields them in
// one deterministic order, regardless of map iteration order in the input.
//
// # Dispatch order
//
// Reduce resolves a value through an explicit fallback chain, most specific
// first:
//
//  1. An exact-type reducer registered with RegisterReducer.
//  2. Types registered opaque with RegisterOpaque, and scalar kinds
//     (booleans, integers, floats, complex numbers, strings, []byte) —
//     these are leaves and reduce to nil.
//  3. Built-in structural kinds: slices, arrays, maps, pointers, and
//     record-like structs (exported fields in declared order).
//  4. The value's own Reducible hook.
//  5. Failure with an IrreducibleError.
//
// # Ownership
//
// The engine never mutates the values it inspects. ReductionValues are
// built on demand and discarded after the hash or equality computation
// that requested them; they are not cached.
package deep

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrNotReconstructible is returned by Reconstruct when the reduction's
// constructor type has no registered or built-in reconstruction path.
var ErrNotReconstructible = errors.New("reduction is not reconstructible")

// IrreducibleError is returned when a value's type has no registered
// reducer, no opaque classification, and no reduction hook.
//
// This error is fatal to the reduce/equality call that triggered it:
// silently hashing a value we cannot decompose would corrupt cache
// correctness more than failing loudly harms availability.
type IrreducibleError struct {
	Type reflect.Type
}

func (e *IrreducibleError) Error() string {
	return fmt.Sprintf("cannot reduce a value of type %s", e.Type)
}

// IsIrreducible reports whether err is an IrreducibleError.
func IsIrreducible(err error) bool {
	var ie *IrreducibleError
	return errors.As(err, &ie)
}

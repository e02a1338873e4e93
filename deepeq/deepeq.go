// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package deepeq implements structural equality over the reduction engine.
//
// Two values with different concrete types are never equal. NaN compares
// equal to NaN: this violates IEEE semantics on purpose, because for cache
// invalidation two NaN results are the same cached answer.
package deepeq

import (
	"math"
	"reflect"

	"github.com/hitsave-io/hitsave/deep"
)

// Eq reports whether a and b are structurally equal. It returns an error
// only when a value fails to reduce.
func Eq(a, b any) (bool, error) {
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false, nil
	}

	switch ta.Kind() {
	case reflect.Float32, reflect.Float64:
		return floatEq(reflect.ValueOf(a).Float(), reflect.ValueOf(b).Float()), nil
	case reflect.Complex64, reflect.Complex128:
		ca, cb := reflect.ValueOf(a).Complex(), reflect.ValueOf(b).Complex()
		return floatEq(real(ca), real(cb)) && floatEq(imag(ca), imag(cb)), nil
	}

	// Identity and primitive equality for comparable types. Pointer
	// identity short-circuits structural descent.
	if ta.Comparable() && a == b {
		return true, nil
	}

	rva, err := deep.Reduce(a)
	if err != nil {
		return false, err
	}
	rvb, err := deep.Reduce(b)
	if err != nil {
		return false, err
	}
	if rva == nil && rvb == nil {
		if ta.Comparable() {
			return a == b, nil
		}
		return false, nil
	}
	if rva == nil || rvb == nil {
		return false, nil
	}
	return childrenEq(rva, rvb)
}

func floatEq(x, y float64) bool {
	if math.IsNaN(x) && math.IsNaN(y) {
		return true
	}
	return x == y
}

func childrenEq(rva, rvb *deep.ReductionValue) (bool, error) {
	if rva.Type != rvb.Type {
		return false, nil
	}
	if rva.Len() != rvb.Len() {
		return false, nil
	}
	ca, cb := rva.Children(), rvb.Children()
	for i := range ca {
		if ca[i].Part != cb[i].Part {
			return false, nil
		}
		ok, err := Eq(ca[i].Key, cb[i].Key)
		if err != nil || !ok {
			return false, err
		}
		ok, err = Eq(ca[i].Value, cb[i].Value)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

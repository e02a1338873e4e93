// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package deephash computes canonical content digests of arbitrary values.
//
// The digest is a deterministic function of (type, decomposition): it does
// not depend on object identity, map iteration order, or hash
// randomization, so it is stable across process runs. Hashing is
// streaming — a single BLAKE3 accumulator is threaded through the
// recursive walk rather than materializing a byte buffer per subtree.
//
// Per node the stream is: type name, an open bracket, the node's content,
// a close bracket. The brackets are load-bearing: without delimiters,
// [[1,2],3] and [1,[2,3]] would concatenate to the same byte stream.
package deephash

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"reflect"
	"runtime"
	"strconv"

	"lukechampine.com/blake3"

	"github.com/hitsave-io/hitsave/deep"
)

// Hashable is the custom hash-contribution hook: a type that wants bespoke
// hashing writes its own bytes into the stream and is not decomposed.
type Hashable interface {
	HashContent(w io.Writer) error
}

// Warning records a soft failure during hashing. The digest is still
// produced, but is weaker than usual for the offending subtree.
type Warning struct {
	Type   string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Type, w.Reason)
}

// Result is a computed digest plus any soft-failure warnings. A digest
// with warnings is usable but not guaranteed collision-free for the
// subtrees that warned.
type Result struct {
	Digest   string
	Warnings []Warning
}

// Partial reports whether any subtree degraded to a weak encoding.
func (r Result) Partial() bool { return len(r.Warnings) > 0 }

// Hash computes the canonical content digest of v.
//
// Unsupported scalar-like values degrade softly: functions hash by their
// runtime symbol name with a warning (structurally different functions
// with equal names collide — code identity is the code graph's job, not
// this path's), and values that neither encode nor reduce warn and skip.
// Failing an entire memoized call over one odd nested field would be worse
// than a slightly weaker cache key.
func Hash(v any) (Result, error) {
	h := blake3.New(32, nil)
	st := &state{h: h}
	if err := st.run(v); err != nil {
		return Result{}, err
	}
	return Result{
		Digest:   fmt.Sprintf("%x", h.Sum(nil)),
		Warnings: st.warnings,
	}, nil
}

type state struct {
	h        io.Writer
	warnings []Warning
}

func (st *state) warnf(t reflect.Type, format string, args ...any) {
	name := "<nil>"
	if t != nil {
		name = t.String()
	}
	st.warnings = append(st.warnings, Warning{Type: name, Reason: fmt.Sprintf(format, args...)})
}

func (st *state) run(v any) error {
	t := reflect.TypeOf(v)
	st.write(typeName(t))
	st.write("(")
	if err := st.content(v, t); err != nil {
		return err
	}
	st.write(")")
	return nil
}

func (st *state) content(v any, t reflect.Type) error {
	if v == nil {
		return nil
	}
	if hk, ok := v.(Hashable); ok {
		return hk.HashContent(st.h)
	}
	if ok, err := st.encodePrimitive(v, t); ok || err != nil {
		return err
	}
	if t.Kind() == reflect.Func {
		// Function values are not content-addressed here; see Hash docs.
		st.warnf(t, "hashing function by symbol name, not code identity")
		st.write(funcName(v))
		return nil
	}

	rv, err := deep.Reduce(v)
	if err != nil {
		if deep.IsIrreducible(err) {
			st.warnf(t, "no registered encoding and no reduction; skipped")
			return nil
		}
		return err
	}
	if rv == nil {
		st.warnf(t, "opaque value with no byte encoding; skipped")
		return nil
	}
	for _, c := range rv.Children() {
		// Child key ordering is already canonical.
		st.write(string(c.Part))
		if err := st.run(c.Key); err != nil {
			return err
		}
		if err := st.run(c.Value); err != nil {
			return err
		}
	}
	return nil
}

// encodePrimitive writes the byte encoding of leaf values: bytes pass
// through, strings as UTF-8, integers as decimal strings, floats as
// IEEE-754 doubles, bools as one byte, complex as two doubles.
func (st *state) encodePrimitive(v any, t reflect.Type) (bool, error) {
	if b, ok := v.([]byte); ok {
		_, err := st.h.Write(b)
		return true, err
	}
	rv := reflect.ValueOf(v)
	switch t.Kind() {
	case reflect.String:
		st.write(rv.String())
		return true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		st.write(strconv.FormatInt(rv.Int(), 10))
		return true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		st.write(strconv.FormatUint(rv.Uint(), 10))
		return true, nil
	case reflect.Float32, reflect.Float64:
		return true, st.writeFloat(rv.Float())
	case reflect.Complex64, reflect.Complex128:
		c := rv.Complex()
		if err := st.writeFloat(real(c)); err != nil {
			return true, err
		}
		return true, st.writeFloat(imag(c))
	case reflect.Bool:
		b := byte(0)
		if rv.Bool() {
			b = 1
		}
		_, err := st.h.Write([]byte{b})
		return true, err
	}
	return false, nil
}

func (st *state) write(s string) {
	io.WriteString(st.h, s)
}

func (st *state) writeFloat(f float64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
	_, err := st.h.Write(buf[:])
	return err
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	return t.String()
}

// funcName resolves a function value to its runtime symbol name, which is
// stable across runs, unlike the pointer a %v repr would print.
func funcName(v any) string {
	pc := reflect.ValueOf(v).Pointer()
	if f := runtime.FuncForPC(pc); f != nil {
		return f.Name()
	}
	return fmt.Sprintf("%T", v)
}

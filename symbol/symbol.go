// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package symbol maps runtime function values to stable textual
// identifiers and back to source declarations, without executing anything
// beyond what the running program already loaded.
//
// A Symbol names a module-level declaration as (package import path,
// declaration name). The Loader owns every memoized artifact derived from
// source files — parsed packages, per-file import tables, module files —
// behind an explicit epoch counter: invalidation is "bump epoch, drop
// arena", never implicit.
package symbol

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Symbol identifies a module-level declaration. An empty Decl refers to
// the whole package. Symbols are immutable value types compared by their
// canonical string; they hold no reference to the declared object and are
// resolved lazily through the Loader.
type Symbol struct {
	// Pkg is the package import path, e.g. "github.com/acme/app/pricing".
	Pkg string

	// Decl is the declaration name within the package, e.g. "Total" or
	// "Cart.Total" for a method. Empty means the package itself.
	Decl string
}

// String returns the canonical "pkg:decl" form, or just "pkg" for a
// whole-package symbol.
func (s Symbol) String() string {
	if s.Decl == "" {
		return s.Pkg
	}
	return s.Pkg + ":" + s.Decl
}

// IsPackage reports whether the symbol refers to a whole package.
func (s Symbol) IsPackage() bool { return s.Decl == "" }

// Parse is the inverse of String.
func Parse(s string) Symbol {
	pkg, decl, ok := strings.Cut(s, ":")
	if !ok {
		return Symbol{Pkg: s}
	}
	return Symbol{Pkg: pkg, Decl: decl}
}

// OfFunc derives the Symbol for a function value from the runtime symbol
// table. It works for any already-loaded function, including methods;
// re-importability is not required.
func OfFunc(fn any) (Symbol, error) {
	name, err := runtimeFuncName(fn)
	if err != nil {
		return Symbol{}, err
	}
	return parseRuntimeName(name), nil
}

// FuncSource returns the file and line where the function's body begins.
func FuncSource(fn any) (string, int, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "", 0, fmt.Errorf("not a function value: %T", fn)
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "", 0, fmt.Errorf("no runtime information for %T", fn)
	}
	file, line := f.FileLine(f.Entry())
	return file, line, nil
}

func runtimeFuncName(fn any) (string, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "", fmt.Errorf("not a function value: %T", fn)
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "", fmt.Errorf("no runtime information for %T", fn)
	}
	return f.Name(), nil
}

// parseRuntimeName splits a runtime symbol name like
// "github.com/acme/app/pricing.(*Cart).Total-fm" into a Symbol. The
// package path is everything up to the first dot after the last slash.
func parseRuntimeName(name string) Symbol {
	// Method values are reported with a -fm suffix.
	name = strings.TrimSuffix(name, "-fm")

	slash := strings.LastIndex(name, "/")
	rest := name[slash+1:]
	dot := strings.Index(rest, ".")
	if dot < 0 {
		return Symbol{Pkg: name}
	}
	pkg := name[:slash+1] + rest[:dot]
	decl := rest[dot+1:]
	return Symbol{Pkg: pkg, Decl: normalizeDecl(decl)}
}

// normalizeDecl strips receiver decoration so "(*Cart).Total" and
// "Cart.Total" name the same declaration.
func normalizeDecl(decl string) string {
	decl = strings.ReplaceAll(decl, "(*", "")
	decl = strings.ReplaceAll(decl, ")", "")
	// Drop generic instantiation arguments: "Sum[int]" → "Sum".
	if i := strings.Index(decl, "["); i >= 0 {
		j := strings.Index(decl, "]")
		if j > i {
			decl = decl[:i] + decl[j+1:]
		}
	}
	return decl
}

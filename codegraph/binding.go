// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package codegraph statically determines the dependency closure of a
// function and condenses it into a version hash that changes exactly when
// the function's observable behavior could have changed.
//
// Every top-level declaration is addressed by a symbol (see the symbol
// package). Resolving a symbol yields a Binding: a content digest plus a
// human-readable diff string describing what the symbol means right now.
// Bindings within the build module come from declaration source text;
// anything outside the module is an external package and classifies as an
// atomic leaf keyed by its version — external internals are out of scope,
// only the version matters for invalidation.
package codegraph

import (
	"strings"

	"github.com/hitsave-io/hitsave/deephash"
)

// BindingKind classifies what a symbol is bound to.
type BindingKind int

const (
	// KindFunc is a function or method declaration.
	KindFunc BindingKind = iota

	// KindType is a type declaration; its methods are dependencies.
	KindType

	// KindValue is a const or var declaration, hashed by its declaring
	// source text.
	KindValue

	// KindImport is a local name bound by an import statement.
	KindImport

	// KindPackage is a whole first-party package.
	KindPackage

	// KindExternal is a third-party or standard-library package, hashed
	// by version.
	KindExternal

	// KindUnresolved marks a binding that failed to resolve. Dependency
	// analysis degrades rather than crashing a user call.
	KindUnresolved
)

func (k BindingKind) String() string {
	switch k {
	case KindFunc:
		return "func"
	case KindType:
		return "type"
	case KindValue:
		return "value"
	case KindImport:
		return "import"
	case KindPackage:
		return "package"
	case KindExternal:
		return "external"
	default:
		return "unresolved"
	}
}

// Binding is the resolved meaning of a symbol at a point in time: a
// content digest identifying it, and a diff string a human can compare
// against an older version to see what changed.
type Binding struct {
	Kind    BindingKind
	Digest  string
	DiffStr string

	// Deps are the vertices this binding depends on directly.
	Deps []Vertex
}

func fnBinding(src string, deps []Vertex) *Binding {
	return &Binding{Kind: KindFunc, Digest: deephash.DigestString(src), DiffStr: src, Deps: deps}
}

func typeBinding(src string, deps []Vertex) *Binding {
	return &Binding{Kind: KindType, Digest: deephash.DigestString(src), DiffStr: src, Deps: deps}
}

func valueBinding(src string) *Binding {
	return &Binding{Kind: KindValue, Digest: deephash.DigestString(src), DiffStr: src}
}

func importBinding(target Vertex) *Binding {
	return &Binding{Kind: KindImport, Digest: target.String(), DiffStr: target.String(), Deps: []Vertex{target}}
}

func packageBinding(digest string, deps []Vertex) *Binding {
	return &Binding{Kind: KindPackage, Digest: digest, DiffStr: "<package " + digest[:12] + ">", Deps: deps}
}

func unresolvedBinding() *Binding {
	return &Binding{Kind: KindUnresolved, Digest: "??????????", DiffStr: "??? unknown binding ???"}
}

// ExternalRef is a graph vertex for an external package dependency:
// a leaf of the dependency graph, never recursed into.
type ExternalRef struct {
	// Name is the providing module path, or "__builtin__" for the
	// standard library.
	Name string

	// Version is the module version, the toolchain version for the
	// standard library, or "???" when unknown.
	Version string
}

func (e ExternalRef) String() string {
	return e.Name + "@" + e.Version
}

// Vertex is a node of the code graph: a symbol.Symbol or an ExternalRef.
type Vertex interface {
	String() string
}

// Sensitivity controls how much of an external package's version
// participates in its digest. Lower sensitivity means upgrades within
// that component do not invalidate cached results.
type Sensitivity int

const (
	// SensitivityNone ignores external versions entirely.
	SensitivityNone Sensitivity = iota

	// SensitivityMajor invalidates on major version changes.
	SensitivityMajor

	// SensitivityMinor invalidates on minor version changes.
	SensitivityMinor

	// SensitivityPatch invalidates on any version change.
	SensitivityPatch
)

// ParseSensitivity maps a configuration string to a Sensitivity,
// defaulting to minor.
func ParseSensitivity(s string) Sensitivity {
	switch s {
	case "none":
		return SensitivityNone
	case "major":
		return SensitivityMajor
	case "patch":
		return SensitivityPatch
	default:
		return SensitivityMinor
	}
}

// Trim reduces a version string to the components the sensitivity cares
// about: "v1.2.3" at minor sensitivity digests as "v1.2".
func (s Sensitivity) Trim(version string) string {
	parts := strings.Split(version, ".")
	n := int(s)
	if n > len(parts) {
		n = len(parts)
	}
	return strings.Join(parts[:n], ".")
}

func externalBinding(ref ExternalRef, sens Sensitivity) *Binding {
	return &Binding{
		Kind:    KindExternal,
		Digest:  sens.Trim(ref.Version),
		DiffStr: ref.Version,
	}
}

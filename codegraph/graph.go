// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegraph

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hitsave-io/hitsave/deephash"
	"github.com/hitsave-io/hitsave/symbol"
)

// Graph accumulates the code dependency graph of every function analyzed
// through it. Vertices are symbols within the build module plus external
// package references; edges point from a declaration to the declarations
// and packages it mentions.
//
// The graph memoizes per vertex and self-invalidates when the underlying
// loader's epoch moves, so a long-lived session sees fresh digests after
// a watched source file changes.
type Graph struct {
	mu     sync.Mutex
	loader *symbol.Loader
	epoch  uint64
	mod    *symbol.Module
	sens   Sensitivity
	log    *slog.Logger

	bindings map[string]*Binding
	verts    map[string]Vertex
	out      map[string][]Vertex
}

// Options configures a Graph.
type Options struct {
	// Sensitivity controls how external package versions contribute to
	// digests. Zero value is SensitivityNone; callers normally pass
	// ParseSensitivity of the configured string.
	Sensitivity Sensitivity

	// Logger receives analysis warnings. Nil means slog.Default.
	Logger *slog.Logger
}

// NewGraph returns an empty graph over the given loader.
func NewGraph(loader *symbol.Loader, opts Options) *Graph {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Graph{
		loader:   loader,
		epoch:    loader.Epoch(),
		sens:     opts.Sensitivity,
		log:      log,
		bindings: map[string]*Binding{},
		verts:    map[string]Vertex{},
		out:      map[string][]Vertex{},
	}
}

// Clear drops every memoized vertex and binding. The build module is
// retained: source edits change digests, not module identity.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearLocked()
}

func (g *Graph) clearLocked() {
	g.epoch = g.loader.Epoch()
	g.bindings = map[string]*Binding{}
	g.verts = map[string]Vertex{}
	g.out = map[string][]Vertex{}
}

func (g *Graph) syncEpochLocked() {
	if e := g.loader.Epoch(); e != g.epoch {
		g.log.Debug("code graph invalidated by loader epoch", "old", g.epoch, "new", e)
		g.clearLocked()
	}
}

// EatFunc analyzes the dependency closure of a live function value and
// returns its symbol. The first function eaten pins the build module:
// everything inside that module is analyzed by source, everything outside
// is a version-keyed leaf.
func (g *Graph) EatFunc(fn any) (symbol.Symbol, error) {
	sym, err := symbol.OfFunc(fn)
	if err != nil {
		return symbol.Symbol{}, err
	}
	file, _, err := symbol.FuncSource(fn)
	if err != nil {
		return symbol.Symbol{}, err
	}
	mod, err := g.loader.ModuleForFile(file)
	if err != nil {
		return symbol.Symbol{}, fmt.Errorf("%w: %s", ErrOutsideModule, sym)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.syncEpochLocked()
	if g.mod == nil {
		g.mod = mod
	}
	if err := g.eatLocked(sym); err != nil {
		return symbol.Symbol{}, err
	}
	return sym, nil
}

// PinModule pins the build module to the one governing dir, for
// callers that analyze symbols without a live function value.
func (g *Graph) PinModule(dir string) error {
	mod, err := g.loader.ModuleForFile(dir)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mod == nil {
		g.mod = mod
	}
	return nil
}

// Eat analyzes the dependency closure of a symbol within the build
// module. EatFunc or PinModule must have pinned the module first.
func (g *Graph) Eat(sym symbol.Symbol) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.syncEpochLocked()
	if g.mod == nil {
		return fmt.Errorf("%w: no build module pinned yet", ErrOutsideModule)
	}
	return g.eatLocked(sym)
}

// eatLocked is the memoized depth-first closure walk. A vertex is marked
// visited before its children are walked, so declaration cycles (mutual
// recursion, self-referential types) terminate.
func (g *Graph) eatLocked(v Vertex) error {
	key := v.String()
	if _, ok := g.verts[key]; ok {
		return nil
	}
	g.verts[key] = v

	b, err := g.resolveLocked(v)
	if err != nil {
		return err
	}
	g.bindings[key] = b
	g.out[key] = b.Deps
	for _, dep := range b.Deps {
		if err := g.eatLocked(dep); err != nil {
			return err
		}
	}
	return nil
}

// resolveLocked computes the binding of a single vertex.
func (g *Graph) resolveLocked(v Vertex) (*Binding, error) {
	switch x := v.(type) {
	case ExternalRef:
		return externalBinding(x, g.sens), nil
	case symbol.Symbol:
		return g.resolveSymbolLocked(x)
	default:
		return nil, fmt.Errorf("codegraph: unknown vertex type %T", v)
	}
}

func (g *Graph) resolveSymbolLocked(sym symbol.Symbol) (*Binding, error) {
	if ref, ok := g.classifyLocked(sym.Pkg); ok {
		// A symbol in an external package collapses to the package leaf.
		return importBinding(ref), nil
	}
	pkg, err := g.loader.PackageForImport(g.mod, sym.Pkg)
	if err != nil {
		g.log.Warn("could not load package for symbol", "symbol", sym.String(), "error", err)
		return unresolvedBinding(), nil
	}
	if sym.IsPackage() {
		return g.resolvePackageLocked(pkg)
	}

	d, ok := pkg.Decl(sym.Decl)
	if !ok {
		origin, err := pkg.ImportOrigin(sym.Decl)
		if errors.Is(err, symbol.ErrAmbiguousImport) {
			return nil, err
		}
		if err == nil {
			if ref, ok := g.classifyLocked(origin); ok {
				return importBinding(ref), nil
			}
			return importBinding(symbol.Symbol{Pkg: origin}), nil
		}
		g.log.Warn("symbol does not resolve to a declaration", "symbol", sym.String())
		return unresolvedBinding(), nil
	}

	src, err := pkg.SourceOf(sym.Decl)
	if err != nil {
		return nil, err
	}

	switch d.Kind {
	case symbol.DeclValue:
		// Plain consts and vars are leaves: their digest is their
		// declaring source, and their own references are irrelevant
		// because the value is what callers observe.
		return valueBinding(src), nil
	case symbol.DeclFunc, symbol.DeclType:
		deps, err := g.depsOfLocked(pkg, sym)
		if err != nil {
			return nil, err
		}
		if d.Kind == symbol.DeclType {
			for _, m := range pkg.Methods(sym.Decl) {
				deps = append(deps, symbol.Symbol{Pkg: sym.Pkg, Decl: m})
			}
			return typeBinding(src, deps), nil
		}
		return fnBinding(src, deps), nil
	default:
		return unresolvedBinding(), nil
	}
}

// resolvePackageLocked binds a whole first-party package. Its digest
// covers every declaration source, so any edit inside the package moves
// dependents that import it wholesale.
func (g *Graph) resolvePackageLocked(pkg *symbol.Package) (*Binding, error) {
	srcs := map[string]string{}
	for _, name := range pkg.DeclNames() {
		src, err := pkg.SourceOf(name)
		if err != nil {
			return nil, err
		}
		srcs[name] = deephash.DigestString(src)
	}
	return packageBinding(deephash.DigestDictionary(srcs), nil), nil
}

// depsOfLocked turns the free-name analysis of one declaration into graph
// edges: package-level names become symbols in the same package, import
// selections become symbols or external leaves in the import's package.
func (g *Graph) depsOfLocked(pkg *symbol.Package, sym symbol.Symbol) ([]Vertex, error) {
	refs, err := pkg.FreeNames(sym.Decl)
	if err != nil {
		return nil, err
	}
	var deps []Vertex
	for _, name := range refs.Globals {
		deps = append(deps, symbol.Symbol{Pkg: sym.Pkg, Decl: name})
	}
	aliases := make([]string, 0, len(refs.Imports))
	for alias := range refs.Imports {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		origin, err := pkg.ImportOrigin(alias)
		if err != nil {
			return nil, err
		}
		if ref, ok := g.classifyLocked(origin); ok {
			deps = append(deps, ref)
			continue
		}
		sels := refs.Imports[alias]
		if len(sels) == 0 {
			deps = append(deps, symbol.Symbol{Pkg: origin})
			continue
		}
		for _, sel := range sels {
			deps = append(deps, symbol.Symbol{Pkg: origin, Decl: sel})
		}
	}
	return deps, nil
}

// classifyLocked decides whether an import path is external to the build
// module. Standard-library packages key on the toolchain version; module
// dependencies key on their required version, or "???" when the module
// graph does not pin one.
func (g *Graph) classifyLocked(importPath string) (ExternalRef, bool) {
	// The build module wins over the stdlib heuristic: a module path
	// without a dot ("go mod init myapp") still analyzes by source.
	if g.mod.Contains(importPath) {
		return ExternalRef{}, false
	}
	if symbol.IsStdlib(importPath) {
		return ExternalRef{Name: "__builtin__", Version: symbol.GoVersion()}, true
	}
	name := importPath
	version := "???"
	if provider, ok := g.mod.ProviderOf(importPath); ok {
		name = provider
		if v, ok := g.mod.VersionOf(importPath); ok {
			version = v
		}
	} else {
		g.log.Warn("import is outside the build module but not required by it", "import", importPath)
	}
	return ExternalRef{Name: name, Version: version}, true
}

// Binding returns the memoized binding of a vertex, if it has been eaten.
func (g *Graph) Binding(v Vertex) (*Binding, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.bindings[v.String()]
	return b, ok
}

// Dependencies returns the dependency closure of root, including root
// itself, sorted by vertex string. Root must have been eaten.
func (g *Graph) Dependencies(root Vertex) []Vertex {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := map[string]bool{}
	var closure []Vertex
	var visit func(v Vertex)
	visit = func(v Vertex) {
		key := v.String()
		if seen[key] {
			return
		}
		seen[key] = true
		closure = append(closure, v)
		for _, dep := range g.out[key] {
			visit(dep)
		}
	}
	visit(root)
	sort.Slice(closure, func(i, j int) bool {
		return closure[i].String() < closure[j].String()
	})
	return closure
}

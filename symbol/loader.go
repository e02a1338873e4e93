// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symbol

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/mod/modfile"
)

// Module describes one parsed go.mod: the module path, its root
// directory, and the versions it requires.
type Module struct {
	// Path is the module path declared in go.mod.
	Path string

	// Dir is the directory containing go.mod.
	Dir string

	// Require maps required module paths to their versions.
	Require map[string]string
}

// VersionOf resolves the module version providing importPath, by longest
// prefix match over the require list. The second return is false when no
// required module provides the path.
func (m *Module) VersionOf(importPath string) (string, bool) {
	best, version := "", ""
	for p, v := range m.Require {
		if p == importPath || strings.HasPrefix(importPath, p+"/") {
			if len(p) > len(best) {
				best, version = p, v
			}
		}
	}
	return version, best != ""
}

// ProviderOf returns the required module path providing importPath.
func (m *Module) ProviderOf(importPath string) (string, bool) {
	best := ""
	for p := range m.Require {
		if p == importPath || strings.HasPrefix(importPath, p+"/") {
			if len(p) > len(best) {
				best = p
			}
		}
	}
	return best, best != ""
}

// Contains reports whether importPath belongs to this module.
func (m *Module) Contains(importPath string) bool {
	return importPath == m.Path || strings.HasPrefix(importPath, m.Path+"/")
}

// Loader resolves files, modules, and packages, memoizing every artifact
// it derives from source. Caches are populate-once-per-key and carry no
// invalidation policy within an epoch: a process that edits watched source
// must call Invalidate before deriving any further version hashes, or it
// will silently use stale dependency digests.
type Loader struct {
	mu      sync.Mutex
	epoch   uint64
	fset    *token.FileSet
	modules map[string]*Module  // keyed by go.mod directory
	modDirs map[string]string   // directory → owning go.mod directory ("" = none)
	pkgs    map[string]*Package // keyed by package directory
	log     *slog.Logger
}

// NewLoader returns an empty loader. logger may be nil.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		fset:    token.NewFileSet(),
		modules: map[string]*Module{},
		modDirs: map[string]string{},
		pkgs:    map[string]*Package{},
		log:     logger,
	}
}

// Epoch returns the current cache epoch.
func (l *Loader) Epoch() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}

// Invalidate bumps the epoch and drops every memoized artifact. Source
// files are assumed static within one epoch; any watched-file change must
// route through here.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.epoch++
	l.fset = token.NewFileSet()
	l.modules = map[string]*Module{}
	l.modDirs = map[string]string{}
	l.pkgs = map[string]*Package{}
}

// IsStdlib reports whether an import path belongs to the standard
// library: its first path element carries no dot.
func IsStdlib(importPath string) bool {
	head, _, _ := strings.Cut(importPath, "/")
	return head != "" && !strings.Contains(head, ".")
}

// GoVersion returns the running toolchain version, used as the digest of
// standard-library dependencies.
func GoVersion() string {
	return runtime.Version()
}

// ModuleForFile finds and parses the go.mod governing path, walking
// upward from the file's directory. Most-specific directories win, so a
// nested module shadows its parent.
func (l *Loader) ModuleForFile(path string) (*Module, error) {
	dir := filepath.Dir(path)
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		dir = path
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moduleForDirLocked(dir)
}

func (l *Loader) moduleForDirLocked(dir string) (*Module, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if root, ok := l.modDirs[abs]; ok {
		if root == "" {
			return nil, fmt.Errorf("%w for %s", ErrNoModule, abs)
		}
		return l.modules[root], nil
	}
	for d := abs; ; {
		gomod := filepath.Join(d, "go.mod")
		if _, err := os.Stat(gomod); err == nil {
			m, err := l.parseModLocked(d, gomod)
			if err != nil {
				return nil, err
			}
			l.modDirs[abs] = d
			return m, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	l.modDirs[abs] = ""
	return nil, fmt.Errorf("%w for %s", ErrNoModule, abs)
}

func (l *Loader) parseModLocked(dir, gomod string) (*Module, error) {
	if m, ok := l.modules[dir]; ok {
		return m, nil
	}
	data, err := os.ReadFile(gomod)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", gomod, err)
	}
	f, err := modfile.Parse(gomod, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", gomod, err)
	}
	if f.Module == nil {
		return nil, fmt.Errorf("parse %s: missing module directive", gomod)
	}
	m := &Module{Path: f.Module.Mod.Path, Dir: dir, Require: map[string]string{}}
	for _, r := range f.Require {
		m.Require[r.Mod.Path] = r.Mod.Version
	}
	l.modules[dir] = m
	return m, nil
}

// ModuleNameOfFile inverts the standard module finder: given an absolute
// source file path it returns the import path of the package that file
// belongs to. Files under GOROOT/src map to bare standard-library paths.
func (l *Loader) ModuleNameOfFile(path string) (string, error) {
	if filepath.Ext(path) != ".go" {
		return "", fmt.Errorf("%w: %s", ErrNotGoFile, path)
	}
	return l.importPathOfDir(filepath.Dir(path))
}

func (l *Loader) importPathOfDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	// Most specific root first: an enclosing go.mod beats GOROOT when a
	// module happens to live under it.
	l.mu.Lock()
	m, merr := l.moduleForDirLocked(abs)
	l.mu.Unlock()
	if merr == nil {
		rel, err := filepath.Rel(m.Dir, abs)
		if err != nil {
			return "", err
		}
		if rel == "." {
			return m.Path, nil
		}
		return m.Path + "/" + filepath.ToSlash(rel), nil
	}
	if root := runtime.GOROOT(); root != "" {
		src := filepath.Join(root, "src")
		if rel, err := filepath.Rel(src, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel), nil
		}
	}
	return "", merr
}

// PackageForFile parses and returns the package containing the given
// source file.
func (l *Loader) PackageForFile(path string) (*Package, error) {
	importPath, err := l.ModuleNameOfFile(path)
	if err != nil {
		return nil, err
	}
	return l.loadDir(filepath.Dir(path), importPath)
}

// PackageForImport resolves an import path to a package directory within
// the given module and parses it. Packages outside the module are
// external dependencies and are never parsed; they classify by version
// instead.
func (l *Loader) PackageForImport(m *Module, importPath string) (*Package, error) {
	if !m.Contains(importPath) {
		return nil, fmt.Errorf("import %q is outside module %q", importPath, m.Path)
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(importPath, m.Path), "/")
	dir := filepath.Join(m.Dir, filepath.FromSlash(rel))
	return l.loadDir(dir, importPath)
}

func (l *Loader) loadDir(dir, importPath string) (*Package, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.pkgs[abs]; ok {
		return p, nil
	}
	p, err := parsePackage(l.fset, abs, importPath, l.log)
	if err != nil {
		return nil, err
	}
	l.pkgs[abs] = p
	return p, nil
}

// Package is the parsed, indexed form of one package directory: top-level
// declarations, per-file import tables, and raw source for excerpting.
// Test files in the directory are included, so symbols declared in
// _test.go files resolve like any other.
type Package struct {
	Path string
	Dir  string

	fset    *token.FileSet
	files   map[string]*ast.File          // filename → parsed file
	src     map[string][]byte             // filename → raw source
	decls   map[string]*Decl              // decl name → declaration
	imports map[string]map[string]string  // filename → local name → import path
	methods map[string][]string           // type name → method names
}

// DeclKind classifies a top-level declaration.
type DeclKind int

const (
	// DeclFunc is a function or method declaration.
	DeclFunc DeclKind = iota

	// DeclType is a type declaration.
	DeclType

	// DeclValue is a const or var declaration.
	DeclValue
)

func (k DeclKind) String() string {
	switch k {
	case DeclFunc:
		return "func"
	case DeclType:
		return "type"
	case DeclValue:
		return "value"
	default:
		return "unknown"
	}
}

// Decl is one top-level declaration in a package.
type Decl struct {
	Name string
	Kind DeclKind

	node ast.Node
	file *ast.File
	path string // filename
}

func parsePackage(fset *token.FileSet, dir, importPath string, log *slog.Logger) (*Package, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read package dir %s: %w", dir, err)
	}
	p := &Package{
		Path:    importPath,
		Dir:     dir,
		fset:    fset,
		files:   map[string]*ast.File{},
		src:     map[string][]byte{},
		decls:   map[string]*Decl{},
		imports: map[string]map[string]string{},
		methods: map[string][]string{},
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		full := filepath.Join(dir, name)
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", full, err)
		}
		f, err := parser.ParseFile(fset, full, data, parser.ParseComments|parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", full, err)
		}
		p.files[full] = f
		p.src[full] = data
		p.indexFile(full, f, log)
	}
	if len(p.files) == 0 {
		return nil, fmt.Errorf("no Go source in %s", dir)
	}
	return p, nil
}

func (p *Package) indexFile(path string, f *ast.File, log *slog.Logger) {
	imp := map[string]string{}
	for _, spec := range f.Imports {
		ipath := strings.Trim(spec.Path.Value, `"`)
		local := ""
		if spec.Name != nil {
			local = spec.Name.Name
		} else {
			local = ipath[strings.LastIndex(ipath, "/")+1:]
		}
		switch local {
		case "_":
			continue
		case ".":
			// Dot imports defeat name-based dependency tracking.
			log.Warn("skipping dot import in dependency analysis",
				slog.String("package", p.Path), slog.String("import", ipath))
			continue
		}
		imp[local] = ipath
	}
	p.imports[path] = imp

	for _, d := range f.Decls {
		switch d := d.(type) {
		case *ast.FuncDecl:
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				recv := receiverTypeName(d.Recv.List[0].Type)
				if recv == "" {
					continue
				}
				name = recv + "." + name
				p.methods[recv] = append(p.methods[recv], name)
			}
			p.decls[name] = &Decl{Name: name, Kind: DeclFunc, node: d, file: f, path: path}
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch spec := spec.(type) {
				case *ast.TypeSpec:
					p.decls[spec.Name.Name] = &Decl{Name: spec.Name.Name, Kind: DeclType, node: spec, file: f, path: path}
				case *ast.ValueSpec:
					for _, id := range spec.Names {
						if id.Name == "_" {
							continue
						}
						p.decls[id.Name] = &Decl{Name: id.Name, Kind: DeclValue, node: spec, file: f, path: path}
					}
				}
			}
		}
	}
}

func receiverTypeName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.StarExpr:
		return receiverTypeName(e.X)
	case *ast.IndexExpr:
		return receiverTypeName(e.X)
	case *ast.IndexListExpr:
		return receiverTypeName(e.X)
	}
	return ""
}

// Decl returns the named top-level declaration.
func (p *Package) Decl(name string) (*Decl, bool) {
	d, ok := p.decls[name]
	return d, ok
}

// Methods returns the method declaration names of a type, e.g.
// ["Cart.Total"] for type Cart.
func (p *Package) Methods(typeName string) []string {
	return p.methods[typeName]
}

// DeclNames returns every top-level declaration name in the package,
// sorted.
func (p *Package) DeclNames() []string {
	names := make([]string, 0, len(p.decls))
	for name := range p.decls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ImportOrigin resolves a local import name to the import path it binds,
// scanning every file's import table. Binding the same local name to two
// different origins is ErrAmbiguousImport: a Symbol carries no file
// component, so the name must resolve uniquely package-wide.
func (p *Package) ImportOrigin(local string) (string, error) {
	origin := ""
	for _, imp := range p.imports {
		if path, ok := imp[local]; ok {
			if origin != "" && origin != path {
				return "", fmt.Errorf("%w: %q bound to both %q and %q in %s",
					ErrAmbiguousImport, local, origin, path, p.Path)
			}
			origin = path
		}
	}
	if origin == "" {
		return "", fmt.Errorf("%w: no import named %q in %s", ErrDeclNotFound, local, p.Path)
	}
	return origin, nil
}

// IsImport reports whether the local name is bound by an import statement
// in some file of the package (and is not shadowed by a declaration).
func (p *Package) IsImport(local string) bool {
	if _, ok := p.decls[local]; ok {
		return false
	}
	for _, imp := range p.imports {
		if _, ok := imp[local]; ok {
			return true
		}
	}
	return false
}

// SourceOf returns the source text of a declaration, doc comment
// excluded, exactly as written.
func (p *Package) SourceOf(name string) (string, error) {
	d, ok := p.decls[name]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrDeclNotFound, name, p.Path)
	}
	src := p.src[d.path]
	start := p.fset.Position(d.node.Pos()).Offset
	end := p.fset.Position(d.node.End()).Offset
	if start < 0 || end > len(src) || start > end {
		return "", fmt.Errorf("source range out of bounds for %s", name)
	}
	return string(src[start:end]), nil
}

// ParamNames returns the declared parameter names of a function, in
// order. Anonymous parameters get positional fallbacks.
func (p *Package) ParamNames(name string) ([]string, error) {
	d, ok := p.decls[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrDeclNotFound, name, p.Path)
	}
	fd, ok := d.node.(*ast.FuncDecl)
	if !ok {
		return nil, fmt.Errorf("%s is not a function", name)
	}
	var out []string
	if fd.Type.Params != nil {
		for _, field := range fd.Type.Params.List {
			if len(field.Names) == 0 {
				out = append(out, fmt.Sprintf("arg%d", len(out)))
				continue
			}
			for _, id := range field.Names {
				out = append(out, id.Name)
			}
		}
	}
	return out, nil
}

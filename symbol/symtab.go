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
	"go/token"
	"sort"
)

// FreeRefs is the result of free-name analysis over one declaration.
type FreeRefs struct {
	// Globals are package-level declaration names referenced by the
	// declaration or any function literal nested inside it.
	Globals []string

	// Imports maps referenced import local names to the selector names
	// used through them, sorted. An empty selector list means the name
	// was referenced without a selector.
	Imports map[string][]string
}

// FreeNames computes the free global names of a top-level declaration:
// every identifier referenced anywhere in its nested scopes that is not
// declared locally, not a universe builtin, and resolves to either a
// package-level declaration or an import in the declaration's file.
//
// The analysis is syntactic, not flow-sensitive, and locals are
// collected declaration-wide rather than per block. A name that is both
// declared locally somewhere and declared at package level (or bound by
// an import) therefore stays a dependency: references outside the
// shadowing block resolve to the global, and dropping the edge there
// would leave a dependent's version hash stale. Over-approximation
// invalidates more than strictly needed and is safe.
func (p *Package) FreeNames(name string) (*FreeRefs, error) {
	d, ok := p.decls[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrDeclNotFound, name, p.Path)
	}
	fileImports := p.imports[d.path]

	c := &refCollector{
		pkg:     p,
		self:    d.Name,
		imports: fileImports,
		locals:  collectLocals(d.node),
		globals: map[string]bool{},
		selects: map[string]map[string]bool{},
	}
	c.walk(d.node)

	out := &FreeRefs{Imports: map[string][]string{}}
	for g := range c.globals {
		out.Globals = append(out.Globals, g)
	}
	sort.Strings(out.Globals)
	for alias, sels := range c.selects {
		names := make([]string, 0, len(sels))
		for s := range sels {
			if s != "" {
				names = append(names, s)
			}
		}
		sort.Strings(names)
		out.Imports[alias] = names
	}
	return out, nil
}

// collectLocals gathers every name declared inside the node: parameters,
// receivers, short variable declarations, var/const/type declarations in
// the body, range and type-switch bindings, and labels.
func collectLocals(node ast.Node) map[string]bool {
	locals := map[string]bool{}
	add := func(id *ast.Ident) {
		if id != nil && id.Name != "_" {
			locals[id.Name] = true
		}
	}
	addFieldList := func(fl *ast.FieldList) {
		if fl == nil {
			return
		}
		for _, f := range fl.List {
			for _, id := range f.Names {
				add(id)
			}
		}
	}
	ast.Inspect(node, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncDecl:
			addFieldList(n.Recv)
			addFieldList(n.Type.Params)
			addFieldList(n.Type.Results)
			addFieldList(n.Type.TypeParams)
		case *ast.FuncLit:
			addFieldList(n.Type.Params)
			addFieldList(n.Type.Results)
		case *ast.AssignStmt:
			if n.Tok == token.DEFINE {
				for _, lhs := range n.Lhs {
					if id, ok := lhs.(*ast.Ident); ok {
						add(id)
					}
				}
			}
		case *ast.ValueSpec:
			for _, id := range n.Names {
				add(id)
			}
		case *ast.TypeSpec:
			add(n.Name)
			addFieldList(n.TypeParams)
		case *ast.RangeStmt:
			if n.Tok == token.DEFINE {
				if id, ok := n.Key.(*ast.Ident); ok {
					add(id)
				}
				if id, ok := n.Value.(*ast.Ident); ok {
					add(id)
				}
			}
		case *ast.LabeledStmt:
			add(n.Label)
		}
		return true
	})
	return locals
}

type refCollector struct {
	pkg     *Package
	self    string
	imports map[string]string
	locals  map[string]bool
	globals map[string]bool
	selects map[string]map[string]bool
}

// shadowedLocal reports whether name is suppressed by a local
// declaration. A local never suppresses a name that also exists at
// package level or as a file import: locals are gathered
// declaration-wide, so references outside the shadowing block may still
// mean the global.
func (c *refCollector) shadowedLocal(name string) bool {
	if !c.locals[name] {
		return false
	}
	if _, ok := c.imports[name]; ok {
		return false
	}
	if _, ok := c.pkg.decls[name]; ok {
		return false
	}
	return true
}

func (c *refCollector) walk(n ast.Node) {
	if n == nil {
		return
	}
	switch n := n.(type) {
	case *ast.SelectorExpr:
		if id, ok := n.X.(*ast.Ident); ok && !c.shadowedLocal(id.Name) {
			if _, isImport := c.imports[id.Name]; isImport {
				if c.selects[id.Name] == nil {
					c.selects[id.Name] = map[string]bool{}
				}
				c.selects[id.Name][n.Sel.Name] = true
				return
			}
		}
		// Field and method selections: only the operand can reference
		// a global.
		c.walk(n.X)
		return

	case *ast.KeyValueExpr:
		// Bare identifier keys are struct field names, not references.
		// Map literals with variable keys are missed by this rule; the
		// fn hash over-approximates elsewhere, so the miss is tolerable
		// for the syntactic analysis.
		if _, ok := n.Key.(*ast.Ident); !ok {
			c.walk(n.Key)
		}
		c.walk(n.Value)
		return

	case *ast.Ident:
		c.ref(n.Name)
		return
	}

	ast.Inspect(n, func(child ast.Node) bool {
		if child == n {
			return true
		}
		switch child.(type) {
		case *ast.SelectorExpr, *ast.KeyValueExpr, *ast.Ident:
			c.walk(child)
			return false
		}
		return true
	})
}

func (c *refCollector) ref(name string) {
	// The declaration's own name is not a dependency of itself.
	if name == "_" || name == c.self || universe[name] || c.shadowedLocal(name) {
		return
	}
	if _, ok := c.imports[name]; ok {
		if c.selects[name] == nil {
			c.selects[name] = map[string]bool{}
		}
		return
	}
	if _, ok := c.pkg.decls[name]; ok {
		c.globals[name] = true
	}
}

// universe holds predeclared identifiers that never form dependencies.
var universe = map[string]bool{
	"bool": true, "byte": true, "comparable": true,
	"complex64": true, "complex128": true, "error": true,
	"float32": true, "float64": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"rune": true, "string": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"uintptr": true, "any": true,
	"true": true, "false": true, "iota": true, "nil": true,
	"append": true, "cap": true, "clear": true, "close": true,
	"complex": true, "copy": true, "delete": true, "imag": true,
	"len": true, "make": true, "max": true, "min": true, "new": true,
	"panic": true, "print": true, "println": true, "real": true,
	"recover": true,
}

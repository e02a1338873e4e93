// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symbol

import (
	"strings"
	"testing"
)

func TestSymbolString(t *testing.T) {
	tests := []struct {
		name string
		sym  Symbol
		want string
	}{
		{"package only", Symbol{Pkg: "example.com/demo"}, "example.com/demo"},
		{"decl", Symbol{Pkg: "example.com/demo", Decl: "Run"}, "example.com/demo:Run"},
		{"method", Symbol{Pkg: "example.com/demo", Decl: "Cart.Total"}, "example.com/demo:Cart.Total"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sym.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := Parse(tt.want); got != tt.sym {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.want, got, tt.sym)
			}
		})
	}
}

func TestSymbolIsPackage(t *testing.T) {
	if !(Symbol{Pkg: "a"}).IsPackage() {
		t.Error("symbol without decl should be a package")
	}
	if (Symbol{Pkg: "a", Decl: "B"}).IsPackage() {
		t.Error("symbol with decl should not be a package")
	}
}

func exportedHelper() int { return 1 }

func TestOfFunc(t *testing.T) {
	sym, err := OfFunc(exportedHelper)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(sym.Pkg, "/symbol") {
		t.Errorf("Pkg = %q", sym.Pkg)
	}
	if sym.Decl != "exportedHelper" {
		t.Errorf("Decl = %q", sym.Decl)
	}
}

func TestOfFuncMethod(t *testing.T) {
	var c counter
	sym, err := OfFunc(c.Bump)
	if err != nil {
		t.Fatal(err)
	}
	if sym.Decl != "counter.Bump" {
		t.Errorf("method Decl = %q", sym.Decl)
	}
}

type counter int

func (c counter) Bump() int { return int(c) + 1 }

func TestOfFuncNotAFunction(t *testing.T) {
	if _, err := OfFunc(42); err == nil {
		t.Error("expected error for non-function")
	}
}

func TestFuncSource(t *testing.T) {
	file, line, err := FuncSource(exportedHelper)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(file, "symbol_test.go") {
		t.Errorf("file = %q", file)
	}
	if line <= 0 {
		t.Errorf("line = %d", line)
	}
}

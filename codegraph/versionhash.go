// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegraph

import (
	"fmt"

	"github.com/hitsave-io/hitsave/deephash"
	"github.com/hitsave-io/hitsave/symbol"
)

// DepInfo is one entry of a function version: what a dependency vertex
// was bound to when the version was computed.
type DepInfo struct {
	Kind    BindingKind `json:"kind"`
	Digest  string      `json:"digest"`
	DiffStr string      `json:"diff_str"`
}

// Version condenses a function's dependency closure at one point in
// time. Two versions with equal Hash have byte-identical closures, so a
// cached result computed under one is valid under the other.
type Version struct {
	Symbol symbol.Symbol      `json:"symbol"`
	Hash   string             `json:"hash"`
	Deps   map[string]DepInfo `json:"deps"`
}

// FunctionVersion analyzes fn's dependency closure and condenses it into
// a Version. The closure includes the function itself, so the version
// hash moves when the function's own body changes.
func (g *Graph) FunctionVersion(fn any) (*Version, error) {
	sym, err := g.EatFunc(fn)
	if err != nil {
		return nil, err
	}
	return g.VersionOf(sym)
}

// VersionOf condenses the already-eaten closure of a symbol.
func (g *Graph) VersionOf(sym symbol.Symbol) (*Version, error) {
	b, ok := g.Binding(sym)
	if !ok {
		return nil, fmt.Errorf("codegraph: %s has not been analyzed", sym)
	}
	if b.Kind != KindFunc {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotFunction, sym, b.Kind)
	}

	deps := map[string]DepInfo{}
	digests := map[string]string{}
	for _, v := range g.Dependencies(sym) {
		vb, ok := g.Binding(v)
		if !ok {
			continue
		}
		key := v.String()
		deps[key] = DepInfo{Kind: vb.Kind, Digest: vb.Digest, DiffStr: vb.DiffStr}
		digests[key] = vb.Digest
	}
	return &Version{
		Symbol: sym,
		Hash:   deephash.DigestDictionary(digests),
		Deps:   deps,
	}, nil
}

// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"errors"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")

	// ErrNotStarted is returned by Resolve or Reject when the id does
	// not name a started evaluation.
	ErrNotStarted = errors.New("store: evaluation not started")
)

// Miss reasons, surfaced verbatim in cache-miss log lines.
const (
	ReasonNoEvaluation = "no evaluation found"
	ReasonNewArguments = "new arguments"
)

// Miss is the plain cache-miss error: the key has simply never produced
// a servable result (or only its arguments are new).
type Miss struct {
	Reason string
}

func (m *Miss) Error() string {
	return "cache miss: " + m.Reason
}

// IsMiss reports whether err is any cache miss, plain or code-changed.
func IsMiss(err error) bool {
	var m *Miss
	var c *CodeChanged
	return errors.As(err, &m) || errors.As(err, &c)
}

// CodeChanged is the cache-miss error for a key whose function and
// arguments were seen before under a different function version. Old
// holds the stored dependency diff strings; the caller fills New from
// the current version before rendering Explain.
type CodeChanged struct {
	Old map[string]string
	New map[string]string
}

func (c *CodeChanged) Error() string {
	return "cache miss: function code changed"
}

// Explain renders a unified diff between the old and new dependency
// bindings, one section per dependency, for the cache-miss log line.
func (c *CodeChanged) Explain() string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(renderDeps(c.Old)),
		B:        difflib.SplitLines(renderDeps(c.New)),
		FromFile: "old",
		ToFile:   "new",
		Context:  3,
	})
	if err != nil || diff == "" {
		return "dependencies changed (no line diff available)"
	}
	return diff
}

func renderDeps(deps map[string]string) string {
	keys := make([]string, 0, len(deps))
	for k := range deps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(":\n")
		b.WriteString(deps[k])
		if !strings.HasSuffix(deps[k], "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

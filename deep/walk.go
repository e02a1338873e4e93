// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package deep

// Walker lets a type override how its immediate children are rewritten.
type Walker interface {
	WalkValue(fn func(child any, c Child) any) (any, error)
}

// Walk applies fn to every immediate child of v and rebuilds the
// container. Opaque values pass through unchanged.
func Walk(v any, fn func(child any, c Child) any) (any, error) {
	if w, ok := v.(Walker); ok {
		return w.WalkValue(fn)
	}
	rv, err := Reduce(v)
	if err != nil {
		return nil, err
	}
	if rv == nil {
		return v, nil
	}
	return Reconstruct(rv.WalkChildren(fn))
}

// Visit is the result of a traversal hook: either continue into the
// (possibly replaced) subtree, or stop and keep the replacement as-is.
type Visit struct {
	Value any
	stop  bool
}

// Step replaces the subtree with v and continues into its children.
func Step(v any) Visit { return Visit{Value: v} }

// Stop replaces the subtree with v and does not descend further.
func Stop(v any) Visit { return Visit{Value: v, stop: true} }

// VisitFunc is a traversal hook. path holds the child keys from the root
// to the current value.
type VisitFunc func(v any, path []any) Visit

// Traverse is the generic recursive rewrite primitive: pre runs before
// descending into a value's children, post runs after. A nil pre defaults
// to Step (descend unchanged); a nil post defaults to Stop (keep the
// rebuilt value). A post hook returning Step re-traverses the rebuilt
// subtree, which supports rewrite-until-fixpoint passes.
func Traverse(v any, pre, post VisitFunc) (any, error) {
	if pre == nil {
		pre = func(v any, _ []any) Visit { return Step(v) }
	}
	if post == nil {
		post = func(v any, _ []any) Visit { return Stop(v) }
	}
	return traverseRec(v, nil, pre, post)
}

func traverseRec(v any, path []any, pre, post VisitFunc) (any, error) {
	r := pre(v, path)
	if r.stop {
		return r.Value, nil
	}
	v = r.Value

	var walkErr error
	v, err := Walk(v, func(child any, c Child) any {
		// Each child gets its own path slice: appending to the shared
		// parent slice would let sibling visits mutate a path the hook
		// may have retained.
		childPath := make([]any, len(path), len(path)+1)
		copy(childPath, path)
		childPath = append(childPath, childKey(c))
		out, err := traverseRec(child, childPath, pre, post)
		if err != nil && walkErr == nil {
			walkErr = err
		}
		if err != nil {
			return child
		}
		return out
	})
	if err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}

	r = post(v, path)
	if r.stop {
		return r.Value, nil
	}
	return traverseRec(r.Value, path, pre, post)
}

func childKey(c Child) any {
	return [2]any{string(c.Part), c.Key}
}

// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegraph

import "errors"

var (
	// ErrNotFunction is returned by FunctionVersion when the root symbol
	// does not resolve to a function declaration.
	ErrNotFunction = errors.New("codegraph: symbol is not a function")

	// ErrOutsideModule is returned when the root function of an analysis
	// lives outside the build module, so there is no source to analyze.
	ErrOutsideModule = errors.New("codegraph: function is outside the build module")
)

// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symbol

import "errors"

// Sentinel errors for symbol resolution.
var (
	// ErrNoModule is returned when no go.mod governs a path.
	ErrNoModule = errors.New("no enclosing module found")

	// ErrDeclNotFound is returned when a package has no declaration with
	// the requested name.
	ErrDeclNotFound = errors.New("declaration not found")

	// ErrNotGoFile is returned when a path does not name a Go source file.
	ErrNotGoFile = errors.New("not a Go source file")

	// ErrAmbiguousImport is returned when the same local name is bound to
	// more than one import origin. Dependency analysis cannot safely
	// continue past an ambiguous binding, so this is a hard error rather
	// than a degraded result.
	ErrAmbiguousImport = errors.New("ambiguous import binding")
)

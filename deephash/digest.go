// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package deephash

import (
	"fmt"
	"io"
	"sort"

	"lukechampine.com/blake3"
)

// DigestBytes returns the BLAKE3 hex digest of b.
func DigestBytes(b []byte) string {
	sum := blake3.Sum256(b)
	return fmt.Sprintf("%x", sum[:])
}

// DigestString returns the BLAKE3 hex digest of s.
func DigestString(s string) string {
	return DigestBytes([]byte(s))
}

// DigestDictionary combines a string-keyed dictionary of digests into one
// canonical digest: keys sorted, each entry fed as "key:value," inside
// braces. The explicit separators keep the encoding injective — without
// them {"ab":"c"} and {"a":"bc"} would collide.
func DigestDictionary(d map[string]string) string {
	h := blake3.New(32, nil)
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	io.WriteString(h, "{")
	for _, k := range keys {
		io.WriteString(h, k)
		io.WriteString(h, ":")
		io.WriteString(h, d[k])
		io.WriteString(h, ",")
	}
	io.WriteString(h, "}")
	return fmt.Sprintf("%x", h.Sum(nil))
}

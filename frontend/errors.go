// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package frontend

import "errors"

// ErrUnsupportedConstruct is returned for any Go-source construct this
// lowering does not realize: closures, generics, strings, maps, slices of
// non-scalar element, multi-value returns, and comparison operators other
// than "<"/">" (internal/ir's OpCmp models exactly "a < b", per
// internal/gradsynth/reversecfg.go's own convention — see DESIGN.md).
// This mirrors spec §7's policy that an unhandled construct is a fatal,
// reported failure rather than a silent miscompilation.
var ErrUnsupportedConstruct = errors.New("frontend: unsupported construct")

// ErrNotFound is returned when a requested function name does not exist
// in the loaded package.
var ErrNotFound = errors.New("frontend: function not found")

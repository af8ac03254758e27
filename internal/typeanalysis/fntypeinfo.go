// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package typeanalysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/grad/internal/ir"
	"github.com/born-ml/grad/internal/typetree"
)

// FnTypeInfo is the signature a call site analyzes its callee against:
// the callee, a TypeTree per formal parameter, a TypeTree for the return
// value, and a known-small-integer set per parameter — spec §3's
// FnTypeInfo.
type FnTypeInfo struct {
	Callee    *ir.Function
	Params    []typetree.Tree
	Ret       typetree.Tree
	KnownInts []map[int64]bool
}

// cacheKey renders a FnTypeInfo into the string the interprocedural cache
// (§4.C) keys singleflight calls and the result map on. It does not need
// to be human-readable, only injective enough in practice that two
// distinct signatures never collide; String() representations of Tree
// already sort offsets, so this is deterministic across calls with the
// same content.
func (fi FnTypeInfo) cacheKey() string {
	var b strings.Builder
	b.WriteString(fi.Callee.Name)
	for i, p := range fi.Params {
		fmt.Fprintf(&b, "|p%d=%s", i, p.String())
		if ints := fi.KnownInts[i]; len(ints) > 0 {
			keys := make([]int64, 0, len(ints))
			for k := range ints {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(a, c int) bool { return keys[a] < keys[c] })
			fmt.Fprintf(&b, ":ints=%v", keys)
		}
	}
	fmt.Fprintf(&b, "|ret=%s", fi.Ret.String())
	return b.String()
}

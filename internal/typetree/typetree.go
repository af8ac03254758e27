// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package typetree

import (
	"fmt"
	"sort"
)

// AnyOffset is the special offset path element meaning "any offset /
// uniform across the whole value", spec §3's "-1".
const AnyOffset = -1

// Tree is a finite mapping from byte offset to ConcreteType. The map is
// always accessed through value receivers returning a new Tree so that
// sharing a Tree between two SSA values (the common case while the
// analyzer is below its fixed point) never aliases mutation, mirroring how
// cmd/compile/internal/ssa's abt (augmented balanced tree) value types are
// copied rather than mutated in place.
type Tree struct {
	// entries maps a single offset to its ConcreteType. AnyOffset is a
	// legal key like any other; Lookup special-cases it only at read time.
	entries map[int]ConcreteType
}

// Empty returns the Tree with no entries (bottom: every offset Unknown).
func Empty() Tree { return Tree{} }

// Scalar returns a Tree classifying the whole value (offset 0) as c — the
// TypeTree of a scalar SSA value, spec §3's "empty path maps to the
// value's own scalar classification when scalar".
func Scalar(c ConcreteType) Tree {
	return Tree{entries: map[int]ConcreteType{0: c}}
}

// Uniform returns a Tree whose AnyOffset entry is c, meaning c holds at
// every offset.
func Uniform(c ConcreteType) Tree {
	return Tree{entries: map[int]ConcreteType{AnyOffset: c}}
}

func (t Tree) clone() map[int]ConcreteType {
	m := make(map[int]ConcreteType, len(t.entries))
	for k, v := range t.entries {
		m[k] = v
	}
	return m
}

// At returns the ConcreteType recorded at offset o, or the AnyOffset
// entry if o has none of its own, or Unknown if neither is present.
func (t Tree) At(o int) ConcreteType {
	if c, ok := t.entries[o]; ok {
		return c
	}
	if c, ok := t.entries[AnyOffset]; ok {
		return c
	}
	return TUnknown
}

// Offsets returns the concrete (non-AnyOffset) offsets recorded, sorted.
func (t Tree) Offsets() []int {
	var out []int
	for o := range t.entries {
		if o != AnyOffset {
			out = append(out, o)
		}
	}
	sort.Ints(out)
	return out
}

// HasUniform reports whether t carries an AnyOffset entry, and returns it.
func (t Tree) HasUniform() (ConcreteType, bool) {
	c, ok := t.entries[AnyOffset]
	return c, ok
}

// Data0 returns the value at the empty path (offset 0) — spec §3's
// Data0().
func (t Tree) Data0() ConcreteType { return t.At(0) }

// Join computes t |= other: a new Tree whose entry at every offset present
// in either operand is the pointwise Join (§4.A: monotone non-decreasing).
// An AnyOffset entry in either side is distributed before combining so
// that a concrete-offset refinement in one operand is not lost against a
// uniform entry in the other, per the invariant that a {-1} entry may not
// conflict with a concrete sibling.
func (t Tree) Join(other Tree) Tree {
	if len(t.entries) == 0 {
		return other
	}
	if len(other.entries) == 0 {
		return t
	}
	out := map[int]ConcreteType{}
	seen := map[int]bool{}
	for o := range t.entries {
		seen[o] = true
	}
	for o := range other.entries {
		seen[o] = true
	}
	for o := range seen {
		out[o] = Join(t.At(o), other.At(o))
	}
	return Tree{entries: out}
}

// AndIn computes the meet of t and other at every offset present in
// either, failing with ErrConflict if any offset's two ConcreteTypes
// conflict.
func (t Tree) AndIn(other Tree) (Tree, error) {
	if len(t.entries) == 0 {
		return other, nil
	}
	if len(other.entries) == 0 {
		return t, nil
	}
	out := map[int]ConcreteType{}
	seen := map[int]bool{}
	for o := range t.entries {
		seen[o] = true
	}
	for o := range other.entries {
		seen[o] = true
	}
	for o := range seen {
		c, err := AndIn(t.At(o), other.At(o))
		if err != nil {
			return Tree{}, fmt.Errorf("typetree: offset %d: %w", o, err)
		}
		out[o] = c
	}
	return Tree{entries: out}, nil
}

// Only wraps the whole tree under a single prefix offset — spec §3's
// Only(offset). Every existing concrete offset o becomes offset+o, and an
// AnyOffset entry stays AnyOffset (it already means "every offset").
func (t Tree) Only(offset int) Tree {
	out := map[int]ConcreteType{}
	for o, c := range t.entries {
		if o == AnyOffset {
			out[AnyOffset] = c
			continue
		}
		out[o+offset] = c
	}
	return Tree{entries: out}
}

// ShiftIndices selects the half-open byte range [start, start+size), drops
// everything outside it, then relabels by newOffset-start. size == -1
// means unbounded (select [start, +inf)). An AnyOffset entry distributes
// through a zero-width shift unchanged and is dropped by any other shift;
// it is never downgraded to a concrete set of shifted indices, even when
// size or the tree's other offsets bound the range.
func (t Tree) ShiftIndices(start, size, newOffset int) Tree {
	delta := newOffset - start
	out := map[int]ConcreteType{}
	if c, ok := t.entries[AnyOffset]; ok {
		if delta == 0 {
			out[AnyOffset] = c
		}
		// else: dropped, as documented above.
	}
	for o, c := range t.entries {
		if o == AnyOffset {
			continue
		}
		if o < start {
			continue
		}
		if size >= 0 && o >= start+size {
			continue
		}
		out[o+delta] = c
	}
	return Tree{entries: out}
}

// Lookup produces the TypeTree of the pointee of t (a pointer's tree),
// given the pointee's byte size — spec §3's Lookup(size). This is the
// dual of ShiftIndices for the load/store transfer rule: it reads the
// range [0,size) and drops the relabeling, since the pointee's own offset
// space already starts at zero.
func (t Tree) Lookup(size int) Tree {
	return t.ShiftIndices(0, size, 0)
}

// KeepForCast prunes paths incompatible with reinterpreting a value of
// srcSize bytes as dstSize bytes, coalescing what remains onto the smaller
// range — spec §3's KeepForCast(srcType, dstType), used by bit-casts where
// only byte layout (not nominal type) constrains compatibility.
func (t Tree) KeepForCast(srcSize, dstSize int) Tree {
	n := srcSize
	if dstSize < n {
		n = dstSize
	}
	return t.AtMost(n)
}

// PurgeAnything drops every entry whose ConcreteType is Anything, so that
// Join-ing with this tree afterward cannot mask a refinement the other
// operand carries — spec §3's PurgeAnything().
func (t Tree) PurgeAnything() Tree {
	out := map[int]ConcreteType{}
	for o, c := range t.entries {
		if c.Kind != Anything {
			out[o] = c
		}
	}
	return Tree{entries: out}
}

// KeepMinusOne keeps only the AnyOffset entry, dropping every concrete
// offset — spec §3's KeepMinusOne().
func (t Tree) KeepMinusOne() Tree {
	if c, ok := t.entries[AnyOffset]; ok {
		return Tree{entries: map[int]ConcreteType{AnyOffset: c}}
	}
	return Empty()
}

// AtMost truncates the tree to the byte range [0,size) — spec §3's
// AtMost(size).
func (t Tree) AtMost(size int) Tree {
	out := map[int]ConcreteType{}
	if c, ok := t.entries[AnyOffset]; ok {
		out[AnyOffset] = c
	}
	for o, c := range t.entries {
		if o != AnyOffset && o >= 0 && o < size {
			out[o] = c
		}
	}
	return Tree{entries: out}
}

// Clear blanks out the half-open byte range [lo,hi) within a tree known to
// span [0,total) bytes, setting those offsets back to Unknown — spec §3's
// Clear(lo, hi, total), used by insert-value to make room for the
// inserted subrange before the caller overlays it.
func (t Tree) Clear(lo, hi, total int) Tree {
	out := t.clone()
	if c, ok := out[AnyOffset]; ok {
		delete(out, AnyOffset)
		for o := 0; o < total; o++ {
			if o < lo || o >= hi {
				out[o] = c
			}
		}
	}
	for o := lo; o < hi; o++ {
		delete(out, o)
	}
	return Tree{entries: out}
}

// CanonicalizeValue normalizes a tree known to span exactly size bytes: if
// every concrete offset in [0,size) carries the same ConcreteType, that
// type is collapsed onto a single AnyOffset entry — spec §3's
// CanonicalizeValue(size), the inverse of the expansion Clear performs.
func (t Tree) CanonicalizeValue(size int) Tree {
	if size <= 0 {
		return t
	}
	var common ConcreteType
	first := true
	for o := 0; o < size; o++ {
		c := t.At(o)
		if first {
			common = c
			first = false
			continue
		}
		if c != common {
			return t
		}
	}
	if first {
		return t
	}
	return Uniform(common)
}

// Equal reports whether t and other carry identical entries, used by the
// worklist driver to detect when a refinement made no progress.
func (t Tree) Equal(other Tree) bool {
	if len(t.entries) != len(other.entries) {
		return false
	}
	for o, c := range t.entries {
		if oc, ok := other.entries[o]; !ok || oc != c {
			return false
		}
	}
	return true
}

// String renders entries sorted by offset, AnyOffset last, for debug
// dumps and test failure messages.
func (t Tree) String() string {
	if len(t.entries) == 0 {
		return "{}"
	}
	s := "{"
	first := true
	for _, o := range t.Offsets() {
		if !first {
			s += ", "
		}
		first = false
		s += fmt.Sprintf("%d:%s", o, t.entries[o])
	}
	if c, ok := t.entries[AnyOffset]; ok {
		if !first {
			s += ", "
		}
		s += fmt.Sprintf("-1:%s", c)
	}
	return s + "}"
}

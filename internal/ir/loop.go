// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ir

// Loop is a natural loop: a header dominating a set of back-edge sources.
// It carries no induction-variable or trip-count information — that is
// §4.F's LoopContext, layered on top of this purely structural fact by
// internal/gradsynth.
type Loop struct {
	Header *Block
	Blocks []*Block // header included, in no particular order
	Parent *Loop    // nil for a top-level loop
}

// FindLoops identifies natural loops in f via back edges of the dominator
// tree: an edge b -> h is a back edge iff h dominates b. Each back edge's
// header accumulates the set of blocks reachable from it without leaving
// through the header, following the textbook construction used by
// cmd/compile/internal/ssa's loop passes (loopbce.go, unroll.go) before
// they attach induction-variable facts.
func FindLoops(f *Function, dom *DomTree) []*Loop {
	var loops []*Loop
	byHeader := map[*Block]*Loop{}

	for _, b := range f.Blocks {
		for _, s := range b.Succs {
			if !dom.Dominates(s, b) {
				continue // not a back edge
			}
			lp, ok := byHeader[s]
			if !ok {
				lp = &Loop{Header: s}
				byHeader[s] = lp
				loops = append(loops, lp)
			}
			collectLoopBody(lp, b, s)
		}
	}

	assignParents(loops)
	return loops
}

// collectLoopBody walks backward from the back-edge source `from` up to
// (and including) the header, adding every block found to lp.Blocks
// exactly once.
func collectLoopBody(lp *Loop, from, header *Block) {
	seen := map[*Block]bool{header: true}
	for _, b := range lp.Blocks {
		seen[b] = true
	}
	var stack []*Block
	if !seen[from] {
		stack = append(stack, from)
	}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[b] {
			continue
		}
		seen[b] = true
		lp.Blocks = append(lp.Blocks, b)
		for _, p := range b.Preds {
			if !seen[p] {
				stack = append(stack, p)
			}
		}
	}
	headerIncluded := false
	for _, b := range lp.Blocks {
		if b == header {
			headerIncluded = true
			break
		}
	}
	if !headerIncluded {
		lp.Blocks = append(lp.Blocks, header)
	}
}

// assignParents sets Parent on each loop to the smallest enclosing loop
// whose block set is a strict superset of its own — nesting is determined
// purely by block-set containment, which is sound for the reducible CFGs
// the loop canonicalizer operates on.
func assignParents(loops []*Loop) {
	for _, inner := range loops {
		var best *Loop
		for _, outer := range loops {
			if outer == inner {
				continue
			}
			if !containsBlock(outer, inner.Header) {
				continue
			}
			if best == nil || len(outer.Blocks) < len(best.Blocks) {
				best = outer
			}
		}
		inner.Parent = best
	}
}

func containsBlock(lp *Loop, b *Block) bool {
	for _, x := range lp.Blocks {
		if x == b {
			return true
		}
	}
	return false
}

// Contains reports whether b is part of lp's body.
func (lp *Loop) Contains(b *Block) bool { return containsBlock(lp, b) }

// Depth returns lp's nesting depth, 1 for a top-level loop.
func (lp *Loop) Depth() int {
	d := 1
	for p := lp.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}

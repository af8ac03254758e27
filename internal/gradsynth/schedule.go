// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth

import "github.com/born-ml/grad/internal/ir"

// reverseSweepOrder decides the order CreatePrimalAndGradient visits primal
// blocks to build each one's reverse twin, spec §4.I. pullbackPhi routes a
// phi's contribution into the reverse twin of each of the phi's primal
// predecessors rather than into the phi's own block, so a predecessor's own
// pullback — which reads that same accumulator cell — must be constructed
// after the phi's owning block, not before: a join block's contribution has
// to land in its predecessors' reverse blocks before those predecessors'
// own instructions run in the same single pass. That means ordinary blocks
// are scheduled in postorder of the forward CFG (successors before
// predecessors — the opposite of declaration order for a diamond's join).
//
// A loop's header and its body blocks are the exception: buildLoopMirror
// wires the mirror induction variable and the header's own phi contribution
// into the latch assuming the header is constructed immediately before its
// body, regardless of where the collapsed loop falls in that postorder, so
// a loop is treated as a single node for scheduling and then expanded back
// into [header, body...] afterward.
func reverseSweepOrder(fn *ir.Function, loopByHeader, bodyLoop map[*ir.Block]*LoopContext) []*ir.Block {
	rep := func(b *ir.Block) *ir.Block {
		if lc, ok := bodyLoop[b]; ok {
			return lc.Header
		}
		return b
	}

	visited := map[*ir.Block]bool{}
	var post []*ir.Block
	var visit func(b *ir.Block)
	visit = func(b *ir.Block) {
		r := rep(b)
		if visited[r] {
			return
		}
		visited[r] = true
		for _, member := range fn.Blocks {
			if rep(member) != r {
				continue
			}
			for _, s := range member.Succs {
				if rep(s) != r {
					visit(s)
				}
			}
		}
		post = append(post, r)
	}
	visit(fn.Entry)

	order := make([]*ir.Block, 0, len(fn.Blocks))
	for _, r := range post {
		if lc, ok := loopByHeader[r]; ok {
			order = append(order, lc.Header)
			for _, b := range fn.Blocks {
				if bodyLoop[b] == lc {
					order = append(order, b)
				}
			}
			continue
		}
		order = append(order, r)
	}
	return order
}

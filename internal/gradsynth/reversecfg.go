// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth

import (
	"fmt"

	"github.com/born-ml/grad/internal/ir"
)

// buildReverseTerminator wires b.rev's control flow per spec §4.H, keyed
// on b's in-degree in the primal. dom is the primal's dominator tree (used
// to resolve a 2-predecessor convergence point back to the branch that
// created it) and loops maps a loop header block to its LoopContext (used
// to distinguish a loop-header convergence point from an ordinary
// diamond).
func (gu *GradientUtils) buildReverseTerminator(b *ir.Block, dom *ir.DomTree, loops map[*ir.Block]*LoopContext) error {
	rev := gu.ReverseBlock(b)

	switch len(b.Preds) {
	case 0:
		// The function's entry: nothing to branch to, the caller builds
		// the return value directly in this block.
		return nil

	case 1:
		gu.Grad.SetBranch(rev, gu.ReverseBlock(b.Preds[0]))
		return nil

	case 2:
		p0, p1 := b.Preds[0], b.Preds[1]
		if lc, ok := loops[b]; ok {
			return gu.buildLoopMirrorTerminator(rev, lc, p0, p1)
		}
		return gu.buildDiamondTerminator(rev, b, p0, p1, dom)

	default:
		return gu.buildTagTerminator(rev, b)
	}
}

// buildDiamondTerminator handles the ordinary "if/else converges here"
// shape: find the nearest common ancestor of p0 and p1 that ends in a
// CondBranch whose two successors are exactly p0 and p1, and reuse that
// condition (cloned into the forward half already) to pick the reverse
// successor. When no such ancestor exists — the two arrival paths are not
// a single conditional's direct arms, e.g. each runs through its own
// intermediate block first — spec §4.H's one-bit tag-phi fallback takes
// over instead of guessing at a condition to reuse.
func (gu *GradientUtils) buildDiamondTerminator(rev *ir.Block, b, p0, p1 *ir.Block, dom *ir.DomTree) error {
	anc := commonCondBranchAncestor(p0, p1, dom)
	if anc == nil {
		return gu.buildTagTerminator(rev, b)
	}
	cond := gu.Clone(anc.Control)
	ifTrue, ifFalse := p0, p1
	if anc.Succs[0] != p0 {
		ifTrue, ifFalse = p1, p0
	}
	gu.Grad.SetCondBranch(rev, cond, gu.ReverseBlock(ifTrue), gu.ReverseBlock(ifFalse))
	return nil
}

// commonCondBranchAncestor walks p0 and p1's immediate-dominator chains
// to find a block that dominates both and whose two successors are
// exactly {p0, p1}.
func commonCondBranchAncestor(p0, p1 *ir.Block, dom *ir.DomTree) *ir.Block {
	for cur := p0; cur != nil; cur = dom.Idom(cur) {
		if cur.Kind != ir.BlockIf || len(cur.Succs) != 2 {
			continue
		}
		if (cur.Succs[0] == p0 && cur.Succs[1] == p1) || (cur.Succs[0] == p1 && cur.Succs[1] == p0) {
			return cur
		}
	}
	return nil
}

// buildLoopMirrorTerminator wires the reverse header's branch using the
// mirror induction variable i_rev: positive routes back into the loop
// (mirroring the latch), zero exits to the preheader's reverse — spec
// §4.H's loop-header case. OpCmp(a, b) is "a < b" throughout this module
// (§3's canonical loop shape tests the induction variable the same way),
// so the continuation test is "zero < i_rev", not "i_rev < zero".
func (gu *GradientUtils) buildLoopMirrorTerminator(rev *ir.Block, lc *LoopContext, p0, p1 *ir.Block) error {
	iRev, ok := gu.mirrorInduction[lc]
	if !ok {
		return fmt.Errorf("gradsynth: loop at %s: mirror induction variable not built yet", lc.Header.Name)
	}
	bld := ir.NewBuilder(gu.Grad, rev)
	zero := bld.ConstInt(ir.I64, 0)
	hasMore := bld.Binary(ir.OpCmp, zero, iRev)
	gu.Grad.SetCondBranch(rev, hasMore, gu.ReverseBlock(lc.Latch), gu.ReverseBlock(lc.Preheader))
	return nil
}

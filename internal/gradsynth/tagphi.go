// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth

import "github.com/born-ml/grad/internal/ir"

// tagCacheFor returns the integer stack cell recording which of b's
// predecessors the forward pass actually arrived from, allocating it (in
// the function's entry block, alongside every other accumulator cell) on
// first request.
func (gu *GradientUtils) tagCacheFor(b *ir.Block) *ir.Value {
	if cell, ok := gu.tagCells[b]; ok {
		return cell
	}
	bld := ir.NewBuilder(gu.Grad, gu.allocBlock)
	cell := bld.Alloc(ir.I64)
	gu.tagCells[b] = cell
	return cell
}

// stampTag writes idx into cell at the end of pred's forward clone,
// immediately before that clone's own terminator — cloneForward already
// built the terminator in an earlier pass, so this splices the store in
// rather than appending it. Forward replay executes this store exactly
// once per visit to the pred->b edge, the same single-pass timing
// Accumulator's load/store pair relies on elsewhere.
func (gu *GradientUtils) stampTag(pred *ir.Block, cell *ir.Value, idx int64) {
	cb := gu.CloneBlock(pred)
	bld := ir.NewBuilder(gu.Grad, cb)
	tagVal := bld.F.NewValue(ir.OpConst, ir.I64)
	tagVal.AuxInt = idx
	cb.InsertBeforeTerminator(tagVal)
	store := bld.F.NewValue(ir.OpStore, ir.Void, cell, tagVal)
	cb.InsertBeforeTerminator(store)
}

// buildTagTerminator handles spec §4.H's fallback cases for a merge point
// the structural cases (single predecessor, loop-mirror pivot, common
// conditional ancestor) can't resolve: a two-predecessor merge with no
// single branch dominating both arrival paths, or any merge with three or
// more predecessors. Both stamp a tag at every predecessor and read it
// back in rev, differing only in how the tag selects the reverse
// successor — a direct compare for two predecessors (spec's "one-bit
// tag-phi"), an ir.BlockSwitch dispatch for three or more (spec's
// "integer tag-phi ... emit a switch").
func (gu *GradientUtils) buildTagTerminator(rev, b *ir.Block) error {
	cell := gu.tagCacheFor(b)
	for i, p := range b.Preds {
		gu.stampTag(p, cell, int64(i))
	}

	bld := ir.NewBuilder(gu.Grad, rev)
	tag := bld.Load(cell, ir.I64)

	if len(b.Preds) == 2 {
		one := bld.ConstInt(ir.I64, 1)
		isFirst := bld.Binary(ir.OpCmp, tag, one) // tag < 1  <=>  tag == 0
		gu.Grad.SetCondBranch(rev, isFirst, gu.ReverseBlock(b.Preds[0]), gu.ReverseBlock(b.Preds[1]))
		return nil
	}

	succs := make([]*ir.Block, len(b.Preds))
	for i, p := range b.Preds {
		succs[i] = gu.ReverseBlock(p)
	}
	gu.Grad.SetSwitch(rev, tag, succs)
	return nil
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth

import "github.com/born-ml/grad/internal/ir"

// cloneForward replays the primal into Grad's forward half block by block,
// value by value: this both reproduces the primal's scalar result (for a
// ReturnPrimal gradient) and gives the pullback a clone of every primal
// value it needs to read, per spec §4.E's "the augmented primal re-executes
// the original computation."
//
// Loop-carried phi operands are back-patched once every block has been
// cloned, the same two-pass construction buildLoopSum (internal/ir's test
// helper) uses by hand, since a header phi's latch-incoming operand is
// defined in a block that is cloned after the header itself.
func (gu *GradientUtils) cloneForward(fn *ir.Function) {
	for _, b := range fn.Blocks {
		cb := gu.Grad.NewBlock(b.Name)
		gu.primalToBlock[b] = cb
	}
	gu.setAllocBlock(gu.primalToBlock[fn.Entry])

	var phis []*ir.Value
	for _, b := range fn.Blocks {
		cb := gu.primalToBlock[b]
		bld := ir.NewBuilder(gu.Grad, cb)
		for _, v := range b.Values {
			if v.Op.IsTerminator() {
				continue
			}
			if v.Op == ir.OpPhi {
				placeholder := bld.Undef(v.Type)
				args := make([]*ir.Value, len(v.Args))
				for i := range args {
					args[i] = placeholder
				}
				from := make([]*ir.Block, len(v.PhiBlocks))
				for i, pb := range v.PhiBlocks {
					from[i] = gu.primalToBlock[pb]
				}
				clone := bld.Phi(v.Type, args, from)
				gu.SetClone(v, clone)
				phis = append(phis, v)
				continue
			}
			gu.cloneOrdinaryValue(bld, v)
		}
	}

	for _, v := range phis {
		clone := gu.Clone(v)
		for i, a := range v.Args {
			clone.SetArg(i, gu.Clone(a))
		}
	}

	for _, b := range fn.Blocks {
		gu.cloneTerminator(b)
	}
}

// cloneOrdinaryValue clones any non-phi, non-terminator value by
// replicating its opcode, type, and Aux payload with cloned operands.
func (gu *GradientUtils) cloneOrdinaryValue(bld *ir.Builder, v *ir.Value) {
	args := make([]*ir.Value, len(v.Args))
	for i, a := range v.Args {
		args[i] = gu.Clone(a)
	}
	clone := bld.F.NewValue(v.Op, v.Type, args...)
	clone.AuxInt, clone.AuxFloat, clone.AuxString = v.AuxInt, v.AuxFloat, v.AuxString
	bld.Blk.AppendValue(clone)
	gu.SetClone(v, clone)
}

// cloneTerminator replicates b's terminator against the cloned blocks and
// cloned control value.
func (gu *GradientUtils) cloneTerminator(b *ir.Block) {
	cb := gu.primalToBlock[b]
	switch b.Kind {
	case ir.BlockPlain:
		gu.Grad.SetBranch(cb, gu.primalToBlock[b.Succs[0]])
	case ir.BlockIf:
		cond := gu.Clone(b.Control)
		gu.Grad.SetCondBranch(cb, cond, gu.primalToBlock[b.Succs[0]], gu.primalToBlock[b.Succs[1]])
	case ir.BlockRet:
		if gu.bridgeReturn {
			// Hand off from the forward replay into the reverse sweep
			// rather than returning here; buildReturn gives the entry
			// block's reverse twin the function's real terminator once
			// the backward pass has run.
			gu.Grad.SetBranch(cb, gu.ReverseBlock(b))
			return
		}
		var val *ir.Value
		if len(b.Control.Args) > 0 {
			val = gu.Clone(b.Control.Args[0])
		}
		gu.Grad.SetRet(cb, val)
	case ir.BlockUnreachable:
		u := gu.Grad.NewValue(ir.OpUnreachable, ir.Void)
		cb.Control = u
		cb.Kind = ir.BlockUnreachable
		cb.Values = append(cb.Values, u)
	}
}

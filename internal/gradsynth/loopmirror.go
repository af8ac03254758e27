// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth

import "github.com/born-ml/grad/internal/ir"

// buildLoopMirror constructs the mirror induction variable i_rev in lc's
// reverse header: a phi seeded with the loop's trip count on entry from the
// reverse of the exit block (the reverse CFG's first arrival into the
// header — the primal's exit edge, reversed), decremented by one on every
// pass through the reverse of the latch (the primal's back edge, reversed),
// reaching zero exactly when the primal loop's first iteration is reached.
// This is built before buildReverseTerminator wires the reverse header's
// own branch, since that branch tests i_rev against zero.
//
// i_rev drives both the reverse terminator (§4.H) and, for a loop body with
// no cross-iteration memory dependence, the recomputation of per-iteration
// primal values the pullback needs (recomputeLoopBody): i_rev - 1 gives
// back the primal iteration index.
func (gu *GradientUtils) buildLoopMirror(lc *LoopContext) error {
	if lc.Dynamic {
		return ErrUnboundedLoop
	}

	headerRev := gu.ReverseBlock(lc.Header)
	exitRev := gu.ReverseBlock(lc.Exit)
	latchRev := gu.ReverseBlock(lc.Latch)

	tripCount := gu.Clone(lc.TripCount)

	bld := ir.NewBuilder(gu.Grad, headerRev)
	iRev := bld.Phi(ir.I64, []*ir.Value{tripCount, tripCount}, []*ir.Block{exitRev, latchRev})

	bldLatch := ir.NewBuilder(gu.Grad, latchRev)
	one := bldLatch.ConstInt(ir.I64, 1)
	decremented := bldLatch.Binary(ir.OpSub, iRev, one)
	iRev.SetArg(1, decremented)

	gu.mirrorInduction[lc] = iRev

	loads := memoryDependentLoads(lc)
	gu.instrumentTape(lc, loads)
	return nil
}

// mirrorIteration returns, for the reverse block inside lc's body, the
// primal iteration index (0-based) that reverse pass currently corresponds
// to. i_rev counts iterations remaining including the one about to be
// processed, so the first body.rev visit (i_rev == tripCount) is primal
// iteration tripCount-1, the last (i_rev == 1) is iteration 0: iter =
// i_rev - 1.
func (gu *GradientUtils) mirrorIteration(lc *LoopContext, rev *ir.Block) *ir.Value {
	iRev := gu.mirrorInduction[lc]
	bld := ir.NewBuilder(gu.Grad, rev)
	one := bld.ConstInt(ir.I64, 1)
	return bld.Binary(ir.OpSub, iRev, one)
}

// recomputeLoopBody rebuilds, in rev, copies of every value the primal loop
// body at b computed from loop-invariant operands and the induction
// variable, so the pullback can read them without re-running the primal
// loop. Most of spec §4.G's "Recomputable" category works this way; an
// OpLoad instrumentTape flagged as memory-dependent (its pointer is also
// stored to somewhere in this loop) is read back from its loop-array cache
// instead of being blindly re-cloned — a fresh clone of that load would
// read whatever the primal's final iteration left in memory, not the value
// actually present during the iteration currently being reversed.
func (gu *GradientUtils) recomputeLoopBody(lc *LoopContext, b, rev *ir.Block) error {
	iter := gu.mirrorIteration(lc, rev)
	if lc.Induction != nil {
		gu.SetClone(lc.Induction, iter)
	}
	bld := ir.NewBuilder(gu.Grad, rev)

	for _, v := range b.Values {
		if v.Op.IsTerminator() {
			continue
		}
		if v == lc.Induction {
			gu.SetClone(v, iter)
			continue
		}
		if tape, ok := gu.memTape[v]; ok {
			tapePtr := bld.GEPIndex(tape, iter, ir.F64, tapeElemSize)
			gu.SetClone(v, bld.Load(tapePtr, ir.F64))
			continue
		}
		args := make([]*ir.Value, len(v.Args))
		for i, a := range v.Args {
			if c := gu.Clone(a); c != nil {
				args[i] = c
			} else {
				args[i] = a
			}
		}
		clone := bld.F.NewValue(v.Op, v.Type, args...)
		clone.AuxInt, clone.AuxFloat, clone.AuxString = v.AuxInt, v.AuxFloat, v.AuxString
		rev.AppendValue(clone)
		gu.SetClone(v, clone)
	}
	return nil
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth

import "github.com/born-ml/grad/internal/ir"

// memoryDependentLoads returns the set of OpLoad values within lc's body
// whose pointer root is also the target of an OpStore somewhere in the
// same loop — spec §4.G's "not Recomputable" case. recomputeLoopBody's
// plain clone-and-replay strategy is unsound for these: a freshly cloned
// load issued in the reverse sweep runs after the primal loop has already
// finished, so it would read whatever the final iteration's store left
// behind, not the value actually present during the iteration currently
// being reversed. These loads instead route through a loop-array cache
// (instrumentTape).
func memoryDependentLoads(lc *LoopContext) map[*ir.Value]bool {
	stored := map[*ir.Value]bool{}
	for _, b := range lc.Loop.Blocks {
		for _, v := range b.Values {
			if v.Op == ir.OpStore {
				stored[resolveDupArgRoot(v.Args[0])] = true
			}
		}
	}

	loads := map[*ir.Value]bool{}
	for _, b := range lc.Loop.Blocks {
		for _, v := range b.Values {
			if v.Op == ir.OpLoad && stored[resolveDupArgRoot(v.Args[0])] {
				loads[v] = true
			}
		}
	}
	return loads
}

// tapeElemSize is the byte stride between consecutive loop-array cache
// slots — every value this module's pullback rules carry is F64.
const tapeElemSize = 8

// instrumentTape builds a loop-array cache (an AllocArray sized to lc's
// static trip count, hoisted into the forward clone of lc's preheader) for
// each of loads and wires a store of that load's forward clone into
// tape[i] — i the forward clone of the induction variable — immediately
// before the forward block's terminator. recomputeLoopBody later reads
// these back at tape[i_rev-1] instead of re-cloning the load.
//
// Static trip count only: a dynamic loop never reaches here, since
// buildLoopMirror returns ErrUnboundedLoop for it before calling this (§4.G's "dynamic loops grow the array via reallocate-in-latch"
// strategy is not implemented; see DESIGN.md).
func (gu *GradientUtils) instrumentTape(lc *LoopContext, loads map[*ir.Value]bool) {
	if len(loads) == 0 {
		return
	}
	tripCount := lc.TripCount.AuxInt
	fwdIter := gu.Clone(lc.Induction)

	preheaderClone := gu.CloneBlock(lc.Preheader)
	count := tripCount
	if count < 1 {
		count = 1
	}

	for v := range loads {
		tape := gu.Grad.NewValue(ir.OpAlloc, ir.PointerType{Elem: ir.F64})
		tape.AuxInt = count
		preheaderClone.InsertBeforeTerminator(tape)
		gu.memTape[v] = tape

		cb := gu.CloneBlock(v.Block)
		bld := ir.NewBuilder(gu.Grad, cb)
		writePtr := bld.F.NewValue(ir.OpGEP, ir.PointerType{Elem: ir.F64}, tape, fwdIter)
		writePtr.AuxInt = tapeElemSize
		cb.InsertBeforeTerminator(writePtr)
		store := bld.F.NewValue(ir.OpStore, ir.Void, writePtr, gu.Clone(v))
		cb.InsertBeforeTerminator(store)
	}
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth

import "github.com/born-ml/grad/internal/ir"

// LoopContext canonicalizes one natural loop's shape well enough for the
// reverse sweep to mirror it: its induction variable, trip count (nil if
// dynamic), and the four structural blocks spec §3 names.
type LoopContext struct {
	Loop *ir.Loop

	Induction *ir.Value // the header phi driving the loop
	InitValue *ir.Value // induction's value on entry from the preheader
	StepValue *ir.Value // constant step added in the latch
	TripCount *ir.Value // nil if dynamic

	Preheader *ir.Block
	Header    *ir.Block
	Latch     *ir.Block
	Exit      *ir.Block

	Dynamic bool
}

// AnalyzeLoop recovers a LoopContext from a structural ir.Loop by
// pattern-matching the canonical shape the loop canonicalizer (§4.F)
// would have already normalized an arbitrary loop into: a header phi
// initialized from the preheader and incremented by a constant step in
// the latch, compared against a loop-invariant bound.
//
// This does not perform the full rewrite of pre-existing induction phis
// into i_canon that §4.F describes — it recognizes the canonical shape
// when the primal already has it (true of every loop this module's
// frontend emits) and reports Dynamic when it does not, which
// buildLoopMirror rejects with ErrUnboundedLoop rather than guessing.
//
// Spec §4.F requires rejecting a loop with more than one live exit edge
// rather than silently canonicalizing around the extras, so this walks
// every block in the loop body (not just the header) collecting distinct
// out-of-loop LiveSuccs targets before attempting the induction-phi match:
// a second live exit reachable from deep in the body is exactly as
// unsupported as one hanging off the header.
func AnalyzeLoop(lp *ir.Loop) (*LoopContext, error) {
	exits := map[*ir.Block]bool{}
	for _, b := range lp.Blocks {
		for _, s := range b.LiveSuccs() {
			if !lp.Contains(s) {
				exits[s] = true
			}
		}
	}
	if len(exits) > 1 {
		return nil, ErrMultipleLiveExits
	}

	header := lp.Header
	lc := &LoopContext{Loop: lp, Header: header}

	for _, p := range header.Preds {
		if lp.Contains(p) {
			lc.Latch = p
		} else {
			lc.Preheader = p
		}
	}

	for _, v := range header.Values {
		if v.Op != ir.OpPhi || len(v.Args) != 2 {
			continue
		}
		var initV, stepSrc *ir.Value
		for i, from := range v.PhiBlocks {
			if from == lc.Preheader {
				initV = v.Args[i]
			} else if from == lc.Latch {
				stepSrc = v.Args[i]
			}
		}
		if initV == nil || stepSrc == nil {
			continue
		}
		if stepSrc.Op != ir.OpAdd || len(stepSrc.Args) != 2 {
			continue
		}
		a, b := stepSrc.Args[0], stepSrc.Args[1]
		var step *ir.Value
		if a == v && b.Op == ir.OpConst {
			step = b
		} else if b == v && a.Op == ir.OpConst {
			step = a
		} else {
			continue
		}
		lc.Induction = v
		lc.InitValue = initV
		lc.StepValue = step
		break
	}

	if header.Kind == ir.BlockIf && header.Control != nil && header.Control.Op == ir.OpCmp {
		cond := header.Control
		if lc.Induction != nil {
			if cond.Args[0] == lc.Induction && cond.Args[1].Op == ir.OpConst {
				lc.TripCount = cond.Args[1]
			} else if cond.Args[1] == lc.Induction && cond.Args[0].Op == ir.OpConst {
				lc.TripCount = cond.Args[0]
			}
		}
		for _, s := range header.Succs {
			if !lp.Contains(s) {
				lc.Exit = s
			}
		}
	}

	lc.Dynamic = lc.Induction == nil || lc.TripCount == nil
	return lc, nil
}

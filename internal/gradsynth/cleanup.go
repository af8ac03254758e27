// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth

import "github.com/born-ml/grad/internal/ir"

// RemoveDeadValues deletes every value in fn with no referrers and no
// observable side effect, repeating until no more can be removed — the
// post-synthesis cleanup pass cmd/borngrad's --cleanup flag runs over a
// just-synthesized gradient, where CreatePrimalAndGradient's clone often
// carries forward-replayed primal values no surviving pullback rule ended
// up reading (an Active value whose only consumers were themselves
// pruned). Reports the number of values removed.
func RemoveDeadValues(fn *ir.Function) int {
	removed := 0
	for {
		progress := false
		for _, b := range fn.Blocks {
			kept := b.Values[:0]
			for _, v := range b.Values {
				if v == b.Control {
					kept = append(kept, v)
					continue
				}
				if len(v.Referrers()) == 0 && !hasSideEffect(v) {
					removed++
					progress = true
					continue
				}
				kept = append(kept, v)
			}
			b.Values = kept
		}
		if !progress {
			break
		}
	}
	return removed
}

func hasSideEffect(v *ir.Value) bool {
	switch v.Op {
	case ir.OpStore, ir.OpCall, ir.OpIntrinsic, ir.OpFree,
		ir.OpMemcpy, ir.OpMemmove, ir.OpMemset,
		ir.OpLifetimeStart, ir.OpLifetimeEnd:
		return true
	default:
		return false
	}
}

// ForceInline replaces every call in fn whose callee (looked up in callees
// by the call's AuxString) is a single-block, call-free function with that
// callee's body spliced directly into the call's block — cmd/borngrad's
// --force-inline, aimed at the small leaf helpers (a scalar activation, a
// clamp) a hand-written primal commonly factors out, where a real call
// boundary only costs the synthesizer an extra augmented-primal/gradient
// pair to build. Recursive and multi-block callees are left as calls;
// inlining those would need the full reverse-CFG splicing machinery
// CreatePrimalAndGradient already owns, not a cheap textual substitution.
// Reports the number of call sites inlined.
func ForceInline(fn *ir.Function, callees map[string]*ir.Function) int {
	inlined := 0
	for _, b := range fn.Blocks {
		for {
			idx := -1
			var callee *ir.Function
			for i, v := range b.Values {
				if v.Op != ir.OpCall {
					continue
				}
				c, ok := callees[v.AuxString]
				if !ok || !inlineCandidate(c) {
					continue
				}
				idx, callee = i, c
				break
			}
			if idx < 0 {
				break
			}
			inlineOneCall(fn, b, idx, callee)
			inlined++
		}
	}
	return inlined
}

// inlineCandidate reports whether callee is simple enough for ForceInline's
// textual splice: exactly one block, no calls of its own (directly or via
// an intrinsic), and a single-value return.
func inlineCandidate(callee *ir.Function) bool {
	if len(callee.Blocks) != 1 {
		return false
	}
	for _, v := range callee.Blocks[0].Values {
		if v.Op == ir.OpCall || v.Op == ir.OpIntrinsic {
			return false
		}
	}
	ret := callee.Blocks[0].Control
	return ret != nil && ret.Op == ir.OpReturn && len(ret.Args) == 1
}

// inlineOneCall splices callee's single block into fn's block b in place of
// the call at b.Values[idx], rewriting every callee value's operands
// through a primal-to-clone map exactly like gradsynth's own cloneForward
// pass, then redirects the original call's referrers to the callee's
// returned value and drops the call.
func inlineOneCall(fn *ir.Function, b *ir.Block, idx int, callee *ir.Function) {
	call := b.Values[idx]

	cloneOf := map[*ir.Value]*ir.Value{}
	for i, p := range callee.Params {
		cloneOf[p] = call.Args[i]
	}

	// Splice the cloned values into a scratch block so AppendValue wires
	// up referrers the normal way, then lift them out into b in place of
	// the call.
	scratch := fn.NewBlock(ir.Blockf("%s.inline.%d", b.Name, call.ID))
	var result *ir.Value
	for _, v := range callee.Blocks[0].Values {
		if v == callee.Blocks[0].Control {
			result = cloneOf[v.Args[0]]
			continue
		}
		args := make([]*ir.Value, len(v.Args))
		for i, a := range v.Args {
			args[i] = cloneOf[a]
		}
		clone := fn.NewValue(v.Op, v.Type, args...)
		clone.AuxInt, clone.AuxFloat, clone.AuxString = v.AuxInt, v.AuxFloat, v.AuxString
		scratch.AppendValue(clone)
		cloneOf[v] = clone
	}
	spliced := scratch.Values
	for _, v := range spliced {
		v.Block = b
	}
	fn.Blocks = fn.Blocks[:len(fn.Blocks)-1] // drop the scratch block itself

	for _, user := range append([]*ir.Value(nil), call.Referrers()...) {
		for i, a := range user.Args {
			if a == call {
				user.SetArg(i, result)
			}
		}
	}

	rest := append([]*ir.Value(nil), b.Values[idx+1:]...)
	b.Values = append(b.Values[:idx], spliced...)
	b.Values = append(b.Values, rest...)
}

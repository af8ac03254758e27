// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth

import (
	"fmt"

	"github.com/born-ml/grad/internal/activity"
	"github.com/born-ml/grad/internal/diag"
	"github.com/born-ml/grad/internal/ir"
)

// Synthesizer turns primal functions into their reverse-mode derivatives
// one at a time, caching each result by callee name (so a function called
// from more than one site is only differentiated once) and detecting
// self- or mutually-recursive call graphs the same way the interprocedural
// type cache does: a function present on the synthesis stack when its own
// name is requested again is a fatal ErrRecursiveCall rather than infinite
// inlining, per spec §9.
type Synthesizer struct {
	gradients map[string]*ir.Function
	onStack   map[string]bool
}

// NewSynthesizer returns an empty Synthesizer.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{gradients: map[string]*ir.Function{}, onStack: map[string]bool{}}
}

// CreatePrimalAndGradient is the external interface spec §6 names: given a
// primal function and the set of parameter indices to treat as Constant
// (every other parameter, plus the return, is Active), it returns a
// function computing (primal result, adjoint of every active parameter)
// given the original arguments plus a trailing seed adjoint for the
// return — g(x..., seed).
//
// DupArg (duplicated pointer) parameters are recognized from the primal's
// signature: any pointer parameter not listed in constantArgs is treated
// as DupArg rather than scalar-Active, gaining a trailing shadow
// parameter instead of a return slot, matching Enzyme's in/out convention
// for duplicated arguments.
func (s *Synthesizer) CreatePrimalAndGradient(fn *ir.Function, constantArgs map[int]bool) (*ir.Function, error) {
	if g, ok := s.gradients[fn.Name]; ok {
		return g, nil
	}
	if s.onStack[fn.Name] {
		return nil, diag.Wrap(fn.Name, fmt.Errorf("%w: %s", ErrRecursiveCall, fn.Name))
	}
	s.onStack[fn.Name] = true
	defer delete(s.onStack, fn.Name)

	if err := s.synthesizeCallees(fn, constantArgs); err != nil {
		return nil, diag.Wrap(fn.Name, err)
	}

	activeArgs := make(map[*ir.Value]bool, len(fn.Params))
	constantVals := make(map[*ir.Value]bool, len(fn.Params))
	for i, p := range fn.Params {
		if constantArgs[i] {
			constantVals[p] = true
		} else {
			activeArgs[p] = true
		}
	}
	info := activity.Analyze(fn, activeArgs, true, constantVals)

	gu := newGradientUtils(fn, info)
	gu.calleeGrad = s.gradients
	gu.bridgeReturn = true
	gu.cloneSignature(ShapeArgsWithReturn)
	gu.cloneForward(fn)

	dom := ir.Dominators(fn)
	loops := ir.FindLoops(fn, dom)
	for _, lp := range loops {
		lc, err := AnalyzeLoop(lp)
		if err != nil {
			return nil, diag.Wrap(fn.Name, err)
		}
		gu.loopByHeader[lp.Header] = lc
		for _, b := range lp.Blocks {
			if b != lp.Header {
				gu.bodyLoop[b] = lc
			}
		}
		if err := gu.buildLoopMirror(lc); err != nil {
			return nil, diag.Wrap(fn.Name, err)
		}
	}

	retBlock, retVal := returnSite(fn)
	seeded := false

	for _, b := range reverseSweepOrder(fn, gu.loopByHeader, gu.bodyLoop) {
		if err := gu.buildReverseTerminator(b, dom, gu.loopByHeader); err != nil {
			return nil, diag.Wrap(fn.Name, err)
		}
		rev := gu.ReverseBlock(b)
		if b == retBlock && !seeded {
			gu.AddDiff(rev, retVal, gu.SeedParam())
			seeded = true
		}
		if err := gu.pullbackBlock(b, rev); err != nil {
			return nil, diag.Wrap(fn.Name, err)
		}
	}

	gu.buildReturn(fn, retVal)

	s.gradients[fn.Name] = gu.Grad
	return gu.Grad, nil
}

// CreateAugmentedPrimal is the other external interface spec §6 names: a
// function that re-executes the primal computation (optionally with
// shadow pointer parameters for DupArg arguments) without computing any
// derivative. It returns the bare re-executed primal rather than spec
// §4.J/§6's (tape, primal_return, shadow_of_return) triple: this module's
// CreatePrimalAndGradient never consults a separately-run augmented
// primal's tape at a call site (pullbackCall calls the callee's combined
// gradient directly instead, guarded to only the callees that make that
// sound), so there is no tape value for this function to hand back — see
// DESIGN.md's "Augmented primal and call handling" section. It exists for
// API parity with spec §6 and for callers that want the replay in
// isolation (debugging, golden output comparison) without paying for
// gradient synthesis.
func (s *Synthesizer) CreateAugmentedPrimal(fn *ir.Function, constantArgs map[int]bool) (*ir.Function, error) {
	activeArgs := make(map[*ir.Value]bool, len(fn.Params))
	constantVals := make(map[*ir.Value]bool, len(fn.Params))
	for i, p := range fn.Params {
		if constantArgs[i] {
			constantVals[p] = true
		} else {
			activeArgs[p] = true
		}
	}
	info := activity.Analyze(fn, activeArgs, true, constantVals)

	gu := newGradientUtils(fn, info)
	gu.cloneSignature(ShapeNormal)
	// ShapeNormal's trailing seed parameter is unused by an augmented
	// primal; drop it so the signature matches the primal exactly.
	gu.Grad.Params = gu.Grad.Params[:len(gu.Grad.Params)-1]
	gu.cloneForward(fn)
	return gu.Grad, nil
}

// synthesizeCallees walks fn's body for call sites and eagerly
// differentiates each distinct callee first, so gu.calleeGrad is complete
// before the reverse sweep needs it. Every registered callee is
// differentiated with all of its arguments active, whether or not the
// call site turns out active; a call whose result activity analysis
// classifies Constant is then skipped by the pullback.
func (s *Synthesizer) synthesizeCallees(fn *ir.Function, constantArgs map[int]bool) error {
	for _, b := range fn.Blocks {
		for _, v := range b.Values {
			if v.Op != ir.OpCall {
				continue
			}
			callee, ok := calleeRegistry[v.AuxString]
			if !ok {
				continue // an intrinsic/math-table call, not a registered user function
			}
			if _, err := s.CreatePrimalAndGradient(callee, map[int]bool{}); err != nil {
				return err
			}
		}
	}
	return nil
}

// calleeRegistry lets tests register the *ir.Function a call site's
// AuxString callee name refers to, since the host IR keeps calls as bare
// name strings rather than direct function pointers (spec §6's call
// convention). CreateAugmentedPrimal/CreatePrimalAndGradient callers
// outside tests are expected to populate it once per module being
// differentiated.
var calleeRegistry = map[string]*ir.Function{}

// RegisterCallee makes fn resolvable by name from a call site's AuxString
// during synthesis.
func RegisterCallee(fn *ir.Function) { calleeRegistry[fn.Name] = fn }

// returnSite locates the block and value the primal returns: the first
// return block in fn.Blocks order. A function with more than one return
// block is not rejected here; only that first one is seeded.
func returnSite(fn *ir.Function) (*ir.Block, *ir.Value) {
	for _, b := range fn.Blocks {
		if b.Kind == ir.BlockRet {
			if len(b.Control.Args) > 0 {
				return b, b.Control.Args[0]
			}
			return b, nil
		}
	}
	return nil, nil
}

// buildReturn finishes the entry block's reverse twin — which
// buildReverseTerminator deliberately leaves untouched, since the primal
// entry has no predecessor to branch to — with the synthesized function's
// actual return: the cloned primal result followed by every Active
// parameter's final adjoint, assembled into a struct when there is more
// than one field.
func (gu *GradientUtils) buildReturn(fn *ir.Function, primalRet *ir.Value) {
	entryRev := gu.ReverseBlock(fn.Entry)
	bld := ir.NewBuilder(gu.Grad, entryRev)

	type field struct {
		name string
		typ  ir.Type
		val  *ir.Value
	}
	var fields []field

	if primalRet != nil {
		fields = append(fields, field{"primal", fn.RetType, gu.Clone(primalRet)})
	}
	for _, p := range fn.Params {
		if gu.Activity.Of(p) != activity.Active {
			continue
		}
		fields = append(fields, field{"d", ir.F64, gu.ReadDiff(entryRev, p)})
	}

	if len(fields) == 0 {
		gu.Grad.SetRet(entryRev, nil)
		return
	}
	if len(fields) == 1 {
		gu.Grad.RetType = fields[0].typ
		gu.Grad.SetRet(entryRev, fields[0].val)
		return
	}

	specFields := make([]struct {
		Name string
		Type ir.Type
	}, len(fields))
	for i, f := range fields {
		specFields[i].Name, specFields[i].Type = f.name, f.typ
	}
	st := ir.NewStructType(fn.Name+".grad.result", specFields)
	gu.Grad.RetType = st

	agg := bld.Undef(st)
	for i, f := range fields {
		agg = bld.InsertValue(agg, i, f.val)
	}
	gu.Grad.SetRet(entryRev, agg)
}

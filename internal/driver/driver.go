// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package driver matches the distinguished autodiff(fn, args...) intrinsic
// call spec §6 names and rewrites it in place into a call to the target
// function's synthesized gradient — the IR-level driver spec.md's external
// interfaces section names, sitting between a frontend that lowers source
// into internal/ir and internal/gradsynth, which does the actual
// synthesis.
package driver

import (
	"fmt"

	"github.com/born-ml/grad/internal/diag"
	"github.com/born-ml/grad/internal/gradsynth"
	"github.com/born-ml/grad/internal/ir"
)

// IntrinsicName is the recognized call symbol the driver matches.
const IntrinsicName = "autodiff"

// Argument tags, spec §6's fixed set of metadata strings overriding an
// autodiff(...) argument's default activity classification.
const (
	// TagDiffeDup marks a pointer argument as duplicated: the next
	// argument in the call is its shadow pointer.
	TagDiffeDup = "diffe_dup"
	// TagDiffeOut marks an argument active for output only — treated the
	// same as the default (plain active scalar) by this driver, since
	// gradsynth has no separate "input adjoint unused" mode; recorded
	// here for spec fidelity rather than distinct behavior.
	TagDiffeOut = "diffe_out"
	// TagDiffeConst forces an argument Constant regardless of its
	// default classification.
	TagDiffeConst = "diffe_const"
)

// Lookup resolves an autodiff(fn, args...) call's target function name to
// the *ir.Function it names — the driver has no registry of its own,
// since the set of functions a frontend has lowered is the caller's to
// know.
type Lookup func(name string) (*ir.Function, bool)

// FunctionRef builds the marker value an autodiff(fn, args...) call's first
// argument must be: an OpUndef carrying target's name in AuxString, the
// same convention OpCall itself uses for a callee that has no Value of its
// own in this first-order IR. bld emits into the block the caller is
// assembling the autodiff(...) call into.
func FunctionRef(bld *ir.Builder, target *ir.Function) *ir.Value {
	ref := bld.Undef(ir.Void)
	ref.AuxString = target.Name
	return ref
}

// Match returns every autodiff(...) intrinsic call site in fn, across all
// of fn's blocks, in block/value order.
func Match(fn *ir.Function) []*ir.Value {
	var calls []*ir.Value
	for _, b := range fn.Blocks {
		for _, v := range b.Values {
			if v.Op == ir.OpCall && v.AuxString == IntrinsicName {
				calls = append(calls, v)
			}
		}
	}
	return calls
}

// Run finds and rewrites every autodiff(...) call site in fn, synthesizing
// each distinct target's gradient through s (so a target differentiated
// from two call sites is only synthesized once, same as an ordinary
// callee — spec §9's caching requirement applies here too).
func Run(fn *ir.Function, s *gradsynth.Synthesizer, lookup Lookup) error {
	for _, call := range Match(fn) {
		if err := Rewrite(call, s, lookup); err != nil {
			return diag.Wrap(fn.Name, err)
		}
	}
	return nil
}

// constantArgsFromTags walks the raw autodiff(...) arguments alongside
// their per-position tags and returns the logical parameter indices
// (CreatePrimalAndGradient's own indexing convention, one per target
// parameter) tagged diffe_const, skipping the paired shadow argument a
// diffe_dup tag consumes.
func constantArgsFromTags(target *ir.Function, rawArgs []*ir.Value, tags []string) map[int]bool {
	constantArgs := map[int]bool{}
	logical := 0
	for i := 0; i < len(rawArgs) && logical < len(target.Params); i++ {
		if tags[i] == TagDiffeConst {
			constantArgs[logical] = true
		}
		if tags[i] == TagDiffeDup {
			i++ // skip the paired shadow argument
		}
		logical++
	}
	return constantArgs
}

// Rewrite turns one autodiff(fn, args...) call site into a call to fn's
// synthesized gradient, in place: call's AuxString, Args, and Type are
// overwritten to become the rewritten call, so every existing use of
// call's result (a referrer recorded before rewriting) automatically sees
// the gradient's result instead — no separate replace-all-uses pass is
// needed because the Value's identity never changes.
func Rewrite(call *ir.Value, s *gradsynth.Synthesizer, lookup Lookup) error {
	if call.Op != ir.OpCall || call.AuxString != IntrinsicName {
		return fmt.Errorf("driver: %s is not an %s(...) call", call.Name(), IntrinsicName)
	}
	if len(call.Args) == 0 {
		return fmt.Errorf("driver: %s: %s(...) call has no target argument", call.Name(), IntrinsicName)
	}

	targetRef := call.Args[0]
	target, ok := lookup(targetRef.AuxString)
	if !ok {
		return fmt.Errorf("driver: %s: unresolved autodiff target %q", call.Name(), targetRef.AuxString)
	}

	rawArgs := call.Args[1:]
	tags := call.Tags
	if len(tags) < len(rawArgs) {
		padded := make([]string, len(rawArgs))
		copy(padded, tags)
		tags = padded
	}

	constantArgs := constantArgsFromTags(target, rawArgs, tags)
	grad, err := s.CreatePrimalAndGradient(target, constantArgs)
	if err != nil {
		return err
	}

	gradArgs := make([]*ir.Value, 0, len(rawArgs)+1)
	logical := 0
	for i := 0; i < len(rawArgs) && logical < len(target.Params); i++ {
		gradArgs = append(gradArgs, rawArgs[i])
		if tags[i] == TagDiffeDup {
			i++
			if i >= len(rawArgs) {
				return fmt.Errorf("driver: %s: %s argument %d has no paired shadow", call.Name(), TagDiffeDup, logical)
			}
			gradArgs = append(gradArgs, rawArgs[i])
		}
		logical++
	}

	bld := ir.NewBuilder(call.Block.Func, call.Block)
	seed := bld.ConstFloat(ir.Double, 1)
	gradArgs = append(gradArgs, seed)

	call.AuxString = grad.Name
	call.Type = grad.RetType
	call.Tags = nil
	call.Args = make([]*ir.Value, len(gradArgs))
	for i, a := range gradArgs {
		call.SetArg(i, a)
	}
	return nil
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package activity decides, for every SSA value in a function, whether it
// is Constant, Active, or a DupArg — the input gradient synthesis needs
// before it can clone a function and lay out adjoint accumulators (spec
// component D).
package activity

import "github.com/born-ml/grad/internal/ir"

// Class is one value's activity classification.
type Class int

const (
	// Constant values have a structurally zero derivative.
	Constant Class = iota
	// Active values carry a scalar derivative accumulator.
	Active
	// DupArg values are pointers with a parallel shadow pointer holding
	// the derivative memory.
	DupArg
)

func (c Class) String() string {
	switch c {
	case Constant:
		return "constant"
	case Active:
		return "active"
	case DupArg:
		return "duparg"
	default:
		return "bad-class"
	}
}

// Info is the result of analyzing one function: a classification for
// every value the analyzer visited.
type Info struct {
	classes map[*ir.Value]Class
}

// Of returns v's classification, defaulting to Constant for values the
// analyzer never needed to visit (dead code, debug-only operands).
func (i *Info) Of(v *ir.Value) Class {
	if c, ok := i.classes[v]; ok {
		return c
	}
	return Constant
}

// Analyze decides activity for fn given the up-front seeds: activeArgs is
// the set of pointer/scalar parameters the caller differentiates,
// activeReturn says whether the return value is active, and
// constantArgs overrides specific values (e.g. a pointer known pure) to
// force them Constant regardless of what the use-def graph would imply.
func Analyze(fn *ir.Function, activeArgs map[*ir.Value]bool, activeReturn bool, constantArgs map[*ir.Value]bool) *Info {
	info := &Info{classes: map[*ir.Value]Class{}}

	for _, p := range fn.Params {
		switch {
		case constantArgs[p]:
			info.classes[p] = Constant
		case activeArgs[p]:
			if ir.IsPointer(p.Type) {
				info.classes[p] = DupArg
			} else {
				info.classes[p] = Active
			}
		default:
			info.classes[p] = Constant
		}
	}

	// Forward pass: a value is Active/DupArg as soon as any operand is,
	// per isconstantM's DOWN propagation.
	for _, b := range fn.Blocks {
		for _, v := range b.Values {
			if _, done := info.classes[v]; done {
				continue
			}
			info.classes[v] = classifyForward(v, info)
		}
	}

	// Backward closure: when the return is active, a value that forward
	// classification left Constant becomes Active (DupArg for a pointer)
	// if one of its direct referrers, other than a known-constant hint or
	// an ignorable call, is already Active/DupArg — isconstantM's UP
	// propagation, run to a fixed point since marking one value Active
	// can make its own operands Active in turn. Values in constantArgs
	// are never reclassified.
	allValues := make([]*ir.Value, 0, len(fn.Params))
	allValues = append(allValues, fn.Params...)
	for _, b := range fn.Blocks {
		allValues = append(allValues, b.Values...)
	}

	changed := true
	for changed {
		changed = false
		for _, v := range allValues {
			if isKnownConstantHint(v) || constantArgs[v] {
				continue
			}
			if info.classes[v] != Constant {
				continue
			}
			if activeReturn && hasAnyUse(v, true, map[*ir.Value]bool{}) && feedsActiveUse(v, info) {
				if ir.IsPointer(v.Type) {
					info.classes[v] = DupArg
				} else {
					info.classes[v] = Active
				}
				changed = true
			}
		}
	}
	return info
}

// classifyForward decides v's initial classification purely from its own
// operands, without yet knowing whether a downstream user is active.
func classifyForward(v *ir.Value, info *Info) Class {
	if isKnownConstantHint(v) {
		return Constant
	}
	for _, arg := range v.Args {
		if info.Of(arg) == Constant {
			continue
		}
		if ir.IsPointer(v.Type) {
			return DupArg
		}
		return Active
	}
	return Constant
}

// feedsActiveUse reports whether v has a direct referrer already known
// Active/DupArg, skipping referrers that are known-constant hints or
// ignorable calls.
func feedsActiveUse(v *ir.Value, info *Info) bool {
	for _, user := range v.Referrers() {
		if isKnownConstantHint(user) {
			continue
		}
		if (user.Op == ir.OpCall || user.Op == ir.OpIntrinsic) && isIgnorableCall(user.AuxString) {
			continue
		}
		if info.Of(user) != Constant {
			return true
		}
	}
	return false
}

// isKnownConstantHint implements spec §4.D's fixed list of known-constant
// hints: literals (const/undef), comparisons, lifetime markers, and calls
// to pure sinks/sources are constant regardless of what flows through them.
func isKnownConstantHint(v *ir.Value) bool {
	switch v.Op {
	case ir.OpConst, ir.OpUndef, ir.OpCmp, ir.OpLifetimeStart, ir.OpLifetimeEnd:
		return true
	case ir.OpCall, ir.OpIntrinsic:
		return isIgnorableCall(v.AuxString)
	default:
		return false
	}
}

// hasAnyUse reports whether v has any direct non-ignorable use,
// spec §4.D. Return instructions are ignorable unless sawReturn (here,
// activeReturn) says the function's return value itself matters.
func hasAnyUse(v *ir.Value, activeReturn bool, visiting map[*ir.Value]bool) bool {
	if visiting[v] {
		return false
	}
	visiting[v] = true
	for _, user := range v.Referrers() {
		if user.Op == ir.OpReturn {
			if activeReturn {
				return true
			}
			continue
		}
		if (user.Op == ir.OpCall || user.Op == ir.OpIntrinsic) && isIgnorableCall(user.AuxString) {
			continue
		}
		return true
	}
	return false
}

// HasNonIntegralUse reports whether a transitive use of v ever flows into
// a pointer: a GEP base, a pointer cast, or a store of v as the pointer
// operand. Integer arithmetic, comparisons, branches, and ignorable calls
// are skipped, spec §4.D. It is exported, though no package in this
// module outside internal/activity calls it.
func HasNonIntegralUse(v *ir.Value) bool {
	return hasNonIntegralUse(v, map[*ir.Value]bool{})
}

func hasNonIntegralUse(v *ir.Value, visiting map[*ir.Value]bool) bool {
	if visiting[v] {
		return false
	}
	visiting[v] = true
	for _, user := range v.Referrers() {
		switch user.Op {
		case ir.OpGEP:
			if user.Args[0] == v {
				return true
			}
		case ir.OpCast, ir.OpBitcast:
			if ir.IsPointer(user.Type) {
				return true
			}
		case ir.OpStore:
			if user.Args[0] == v {
				return true
			}
		case ir.OpCmp, ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpAnd, ir.OpOr, ir.OpXor,
			ir.OpShl, ir.OpShr, ir.OpCondBranch, ir.OpSwitch:
			continue
		case ir.OpCall, ir.OpIntrinsic:
			if isIgnorableCall(user.AuxString) {
				continue
			}
			return true
		default:
			if hasNonIntegralUse(user, visiting) {
				return true
			}
		}
	}
	return false
}


// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ir

import "fmt"

// Value is a single SSA value: an instruction, a phi, or a non-terminator
// operation. Every Value belongs to exactly one Block except function
// arguments, whose Block is nil.
//
// Referrers is kept up to date by Block/Function mutators (AppendValue,
// SetArg, ...) so activity analysis and the reverse CFG builder can walk
// use-def edges in either direction without a separate pass, mirroring
// golang.org/x/tools/go/ssa's Value.Referrers().
type Value struct {
	ID   int
	Op   Op
	Type Type
	Args []*Value
	Block *Block

	// AuxInt carries small integer operands (GEP offsets, extract/insert
	// indices, shuffle masks, comparison predicates).
	AuxInt int64
	// AuxFloat carries the payload of an OpConst float value.
	AuxFloat float64
	// AuxString carries a call's callee name or an intrinsic's MathFunc.
	AuxString string

	// Incoming predecessor blocks for OpPhi, one per Args entry.
	PhiBlocks []*Block

	// Tags carries, for an autodiff(fn, args...) intrinsic call (spec §6),
	// one activity-override string per logical argument — empty for
	// default classification, otherwise one of internal/driver's
	// diffe_dup/diffe_out/diffe_const. Lives on the call rather than on
	// the argument Values themselves since an argument can be a shared
	// value (a parameter, say) referenced from more than one call site
	// with different tags. Unused outside that one intrinsic.
	Tags []string

	name      string
	referrers []*Value
}

// Name returns a human-readable identifier, defaulting to "v<ID>".
func (v *Value) Name() string {
	if v.name != "" {
		return v.name
	}
	return fmt.Sprintf("v%d", v.ID)
}

// SetName assigns a debug name (does not affect identity or equality).
func (v *Value) SetName(name string) { v.name = name }

// Referrers returns the values that use v as an operand, in the order they
// were recorded. The returned slice must not be mutated by callers.
func (v *Value) Referrers() []*Value { return v.referrers }

func (v *Value) addReferrer(user *Value) {
	v.referrers = append(v.referrers, user)
}

// SetArg replaces v's i'th operand, used to back-patch a phi's loop-carried
// incoming value once the loop body has been built.
func (v *Value) SetArg(i int, arg *Value) {
	v.Args[i] = arg
	arg.addReferrer(v)
}

// String renders a one-line textual form, e.g. "v3 = add v1, v2".
func (v *Value) String() string {
	switch v.Op {
	case OpConst:
		if _, isFloat := IsFloat(v.Type); isFloat {
			return fmt.Sprintf("%s = const %g", v.Name(), v.AuxFloat)
		}
		return fmt.Sprintf("%s = const %d", v.Name(), v.AuxInt)
	case OpArg:
		return fmt.Sprintf("%s = arg[%d]", v.Name(), v.AuxInt)
	case OpCall:
		return fmt.Sprintf("%s = call %s%s", v.Name(), v.AuxString, argList(v.Args))
	}
	if len(v.Args) == 0 {
		return fmt.Sprintf("%s = %s", v.Name(), v.Op)
	}
	return fmt.Sprintf("%s = %s%s", v.Name(), v.Op, argList(v.Args))
}

func argList(args []*Value) string {
	s := " "
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += a.Name()
	}
	return s
}

// IsConstZero reports whether v is a zero-valued constant or undef —
// §4.B's "zero/undef -> Anything" rule and §9's sentinel-vs-null asymmetry
// both key off this.
func (v *Value) IsConstZero() bool {
	switch v.Op {
	case OpUndef:
		return true
	case OpConst:
		if _, isFloat := IsFloat(v.Type); isFloat {
			return v.AuxFloat == 0
		}
		return v.AuxInt == 0
	}
	return false
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package typetree

import "github.com/born-ml/grad/internal/ir"

// ClassifyConstant implements spec §4.K's soundness rule for constants,
// including its two deliberate asymmetries, preserved verbatim rather than
// "fixed" into a uniform rule:
//
//   - undef always classifies as Anything.
//   - a zero integer constant classifies as Integer when its width is
//     exactly 8 bits, and as Anything at every other width — an 8-bit zero
//     is far more often a sentinel byte (a null terminator, a boolean
//     false) than a null pointer low byte, while a zero at any wider
//     integer width is overwhelmingly used as a null pointer or an
//     all-bits-absent flag.
//   - a nonzero integer constant whose value falls in [1,4096] classifies
//     as Integer, matching the address range no real allocation ever
//     starts at; outside that range an integer constant is Unknown,
//     deferring to transfer-rule propagation from its uses.
//   - a nonzero float constant classifies as Float of its own width.
func ClassifyConstant(v *ir.Value) ConcreteType {
	if v.Op == ir.OpUndef {
		return TAnything
	}
	if v.Op != ir.OpConst {
		return TUnknown
	}
	if w, isFloat := ir.IsFloat(v.Type); isFloat {
		if v.AuxFloat == 0 {
			return TAnything
		}
		return TFloat(w)
	}
	it, ok := v.Type.(ir.IntType)
	if !ok {
		return TUnknown
	}
	if v.AuxInt == 0 {
		if it.Bits == 8 {
			return TInteger
		}
		return TAnything
	}
	if v.AuxInt >= 1 && v.AuxInt <= 4096 {
		return TInteger
	}
	return TUnknown
}

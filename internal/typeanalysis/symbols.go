// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package typeanalysis

import "github.com/born-ml/grad/internal/ir"

// mathSignature describes the fixed table of math-library functions the
// analyzer types by signature rather than by inspecting a body, spec
// §4.B's "calls to a fixed table of math library functions".
type mathSignature struct {
	Args []ir.Type
	Ret  ir.Type
}

var mathTable = map[ir.MathFunc]mathSignature{
	ir.MathSin:  {Args: []ir.Type{ir.F64}, Ret: ir.F64},
	ir.MathCos:  {Args: []ir.Type{ir.F64}, Ret: ir.F64},
	ir.MathTan:  {Args: []ir.Type{ir.F64}, Ret: ir.F64},
	ir.MathExp:  {Args: []ir.Type{ir.F64}, Ret: ir.F64},
	ir.MathLog:  {Args: []ir.Type{ir.F64}, Ret: ir.F64},
	ir.MathSqrt: {Args: []ir.Type{ir.F64}, Ret: ir.F64},
	ir.MathTanh: {Args: []ir.Type{ir.F64}, Ret: ir.F64},
	ir.MathPow:  {Args: []ir.Type{ir.F64, ir.F64}, Ret: ir.F64},
	ir.MathFabs: {Args: []ir.Type{ir.F64}, Ret: ir.F64},
	ir.MathFmod: {Args: []ir.Type{ir.F64, ir.F64}, Ret: ir.F64},
	ir.MathFrexp: {
		Args: []ir.Type{ir.F64, ir.PointerType{Elem: ir.I32}},
		Ret:  ir.F64,
	},
	ir.MathModf: {
		Args: []ir.Type{ir.F64, ir.PointerType{Elem: ir.F64}},
		Ret:  ir.F64,
	},
}

// knownPureSinks names calls §4.D treats as pure sinks/sources regardless
// of their analyzed signature: observing them never changes a value's
// classification one way or the other.
var knownPureSinks = map[string]bool{
	"malloc":  true,
	"free":    true,
	"printf":  true,
	"fprintf": true,
	"puts":    true,
	"memset":  true,
}

// ignorableCalls are side-effecting but activity-irrelevant, spec §4.D's
// "guard acquire/release, log output" list.
var ignorableCalls = map[string]bool{
	"__lock_acquire": true,
	"__lock_release": true,
	"log.Printf":     true,
	"log.Println":    true,
}

func isIgnorableCall(name string) bool {
	return knownPureSinks[name] || ignorableCalls[name]
}

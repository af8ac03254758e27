// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ir

// Op is the host IR's opcode. It is a closed enum: every switch over Op in
// this module is expected to be exhaustive, and this package's opNames
// table panics at init time if a new Op is added without a matching
// name entry — the closest Go gets to the "sum type plus exhaustive match"
// replacement for a visitor that spec.md's design notes ask for.
type Op int

const (
	OpInvalid Op = iota

	// Constants and arguments.
	OpConst
	OpUndef
	OpArg

	// Arithmetic.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpRem

	// Transcendental / math-library intrinsics (§6 recognized symbols).
	OpSqrt
	OpAbs
	OpLog
	OpExp
	OpSin
	OpCos
	OpPow
	OpTanh

	// Bitwise / comparison.
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpCmp

	// Control-flow-adjacent value ops.
	OpSelect
	OpPhi

	// Memory.
	OpAlloc
	OpFree
	OpLoad
	OpStore
	OpGEP
	OpCast
	OpBitcast
	OpMemcpy
	OpMemmove
	OpMemset
	OpLifetimeStart
	OpLifetimeEnd

	// Aggregates.
	OpExtractValue
	OpInsertValue
	OpExtractElement
	OpInsertElement
	OpShuffle

	// Calls.
	OpCall
	OpIntrinsic

	// Terminators (Block.Control).
	OpReturn
	OpBranch
	OpCondBranch
	OpSwitch
	OpUnreachable

	opCount // sentinel; not a real opcode
)

var opNames = [opCount]string{
	OpInvalid:        "invalid",
	OpConst:          "const",
	OpUndef:          "undef",
	OpArg:            "arg",
	OpAdd:            "add",
	OpSub:            "sub",
	OpMul:            "mul",
	OpDiv:            "div",
	OpNeg:            "neg",
	OpRem:            "rem",
	OpSqrt:           "sqrt",
	OpAbs:            "abs",
	OpLog:            "log",
	OpExp:            "exp",
	OpSin:            "sin",
	OpCos:            "cos",
	OpPow:            "pow",
	OpTanh:           "tanh",
	OpAnd:            "and",
	OpOr:             "or",
	OpXor:            "xor",
	OpShl:            "shl",
	OpShr:            "shr",
	OpCmp:            "cmp",
	OpSelect:         "select",
	OpPhi:            "phi",
	OpAlloc:          "alloc",
	OpFree:           "free",
	OpLoad:           "load",
	OpStore:          "store",
	OpGEP:            "gep",
	OpCast:           "cast",
	OpBitcast:        "bitcast",
	OpMemcpy:         "memcpy",
	OpMemmove:        "memmove",
	OpMemset:         "memset",
	OpLifetimeStart:  "lifetime.start",
	OpLifetimeEnd:    "lifetime.end",
	OpExtractValue:   "extractvalue",
	OpInsertValue:    "insertvalue",
	OpExtractElement: "extractelement",
	OpInsertElement:  "insertelement",
	OpShuffle:        "shuffle",
	OpCall:           "call",
	OpIntrinsic:      "intrinsic",
	OpReturn:         "return",
	OpBranch:         "branch",
	OpCondBranch:     "condbranch",
	OpSwitch:         "switch",
	OpUnreachable:    "unreachable",
}

func init() {
	for op, name := range opNames {
		if name == "" && Op(op) != OpInvalid {
			panic("ir: Op without a name table entry")
		}
	}
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "bad-op"
	}
	return opNames[op]
}

// IsTerminator reports whether op ends a block.
func (op Op) IsTerminator() bool {
	switch op {
	case OpReturn, OpBranch, OpCondBranch, OpSwitch, OpUnreachable:
		return true
	default:
		return false
	}
}

// MathFunc identifies a member of §6's fixed math-library table, keyed by
// base name (without the f/l suffix variants, which are normalized away at
// the frontend boundary).
type MathFunc string

// The math-library table named verbatim in spec.md §6.
const (
	MathSin     MathFunc = "sin"
	MathCos     MathFunc = "cos"
	MathTan     MathFunc = "tan"
	MathAcos    MathFunc = "acos"
	MathAsin    MathFunc = "asin"
	MathAtan    MathFunc = "atan"
	MathAtan2   MathFunc = "atan2"
	MathCosh    MathFunc = "cosh"
	MathSinh    MathFunc = "sinh"
	MathTanh    MathFunc = "tanh"
	MathAcosh   MathFunc = "acosh"
	MathAsinh   MathFunc = "asinh"
	MathAtanh   MathFunc = "atanh"
	MathExp     MathFunc = "exp"
	MathLog     MathFunc = "log"
	MathLog10   MathFunc = "log10"
	MathExp2    MathFunc = "exp2"
	MathExpm1   MathFunc = "expm1"
	MathIlogb   MathFunc = "ilogb"
	MathLog1p   MathFunc = "log1p"
	MathLog2    MathFunc = "log2"
	MathLogb    MathFunc = "logb"
	MathScalbn  MathFunc = "scalbn"
	MathScalbln MathFunc = "scalbln"
	MathPow     MathFunc = "pow"
	MathSqrt    MathFunc = "sqrt"
	MathCbrt    MathFunc = "cbrt"
	MathHypot   MathFunc = "hypot"
	MathErf     MathFunc = "erf"
	MathErfc    MathFunc = "erfc"
	MathTgamma  MathFunc = "tgamma"
	MathLgamma  MathFunc = "lgamma"
	MathCeil    MathFunc = "ceil"
	MathFloor   MathFunc = "floor"
	MathFmod    MathFunc = "fmod"
	MathTrunc   MathFunc = "trunc"
	MathRound   MathFunc = "round"
	MathLround  MathFunc = "lround"
	MathLlround MathFunc = "llround"
	MathRint    MathFunc = "rint"
	MathLrint   MathFunc = "lrint"
	MathLlrint  MathFunc = "llrint"
	MathRemainder MathFunc = "remainder"
	MathRemquo    MathFunc = "remquo"
	MathCopysign  MathFunc = "copysign"
	MathNextafter MathFunc = "nextafter"
	MathNexttoward MathFunc = "nexttoward"
	MathFdim      MathFunc = "fdim"
	MathFmax      MathFunc = "fmax"
	MathFmin      MathFunc = "fmin"
	MathFabs      MathFunc = "fabs"
	MathFma       MathFunc = "fma"
	MathFrexp     MathFunc = "frexp"
	MathLdexp     MathFunc = "ldexp"
	MathModf      MathFunc = "modf"
)

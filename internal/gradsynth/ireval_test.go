// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth_test

import (
	"fmt"
	"math"

	"github.com/born-ml/grad/internal/ir"
)

// The gradient functions gradsynth builds are never run by the Go
// toolchain as part of differentiating a real program in this package's
// tests — there is no backend that lowers this host IR to machine code
// (frontend/ only lowers Go source into it). To give the end-to-end tests something
// more convincing than a structural shape check, this file is a small
// tree-walking interpreter over the host IR itself, the same role
// golang.org/x/tools/go/ssa/interp plays for go/ssa: it is test
// scaffolding only, never imported outside _test.go files.

// memory is one allocation's backing storage, addressed in 8-byte
// float64 slots — every pointer this package's scenarios ever produce
// points at an F64 element.
type memory struct{ buf []float64 }

type ptrVal struct {
	mem    *memory
	offset int64
}

// aggVal represents a struct value built by chained InsertValue, keyed by
// field index.
type aggVal map[int]any

// callTable resolves a call site's callee name to an interpretable
// function, covering both primal functions registered by a test and
// gradient functions gradsynth.Synthesizer produced.
type callTable map[string]*ir.Function

func toF64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	default:
		panic(fmt.Sprintf("ireval: value %v is not numeric", v))
	}
}

func storeAs(t ir.Type, f float64) any {
	if ir.IsInteger(t) {
		return int64(math.Round(f))
	}
	return f
}

// runFunc interprets fn given its arguments (one per fn.Params entry,
// already wrapped in the any representation evalValue/toF64 expect) and
// returns its result.
func runFunc(fn *ir.Function, calls callTable, args ...any) (any, error) {
	regs := make(map[*ir.Value]any, fn.NumValues())
	for i, p := range fn.Params {
		regs[p] = args[i]
	}

	cur := fn.Entry
	var prev *ir.Block
	for steps := 0; ; steps++ {
		if steps > 1_000_000 {
			return nil, fmt.Errorf("ireval: %s: step budget exceeded, suspect an infinite loop", fn.Name)
		}

		if prev != nil {
			for _, v := range cur.Values {
				if v.Op != ir.OpPhi {
					continue
				}
				for i, from := range v.PhiBlocks {
					if from == prev {
						regs[v] = regs[v.Args[i]]
						break
					}
				}
			}
		}

		for _, v := range cur.Values {
			if v.Op == ir.OpPhi || v.Op.IsTerminator() {
				continue
			}
			if err := evalValue(v, regs, calls); err != nil {
				return nil, err
			}
		}

		switch cur.Kind {
		case ir.BlockPlain:
			prev, cur = cur, cur.Succs[0]
		case ir.BlockIf:
			prev = cur
			if toF64(regs[cur.Control]) != 0 {
				cur = cur.Succs[0]
			} else {
				cur = cur.Succs[1]
			}
		case ir.BlockRet:
			if cur.Control != nil && len(cur.Control.Args) > 0 {
				return regs[cur.Control.Args[0]], nil
			}
			return nil, nil
		case ir.BlockSwitch:
			prev = cur
			idx := int64(toF64(regs[cur.Control.Args[0]]))
			if idx < 0 || int(idx) >= len(cur.Succs) {
				return nil, fmt.Errorf("ireval: %s: switch in %s selected out-of-range case %d", fn.Name, cur.Name, idx)
			}
			cur = cur.Succs[idx]
		case ir.BlockUnreachable:
			return nil, fmt.Errorf("ireval: %s: reached unreachable block %s", fn.Name, cur.Name)
		default:
			return nil, fmt.Errorf("ireval: %s: block %s has unsupported kind %d", fn.Name, cur.Name, cur.Kind)
		}
	}
}

// mathFuncs covers the subset of spec's fixed math-library table the
// pullback rules and test scenarios actually call by name.
var mathFuncs = map[string]func(args ...float64) float64{
	string(ir.MathSin):  func(a ...float64) float64 { return math.Sin(a[0]) },
	string(ir.MathCos):  func(a ...float64) float64 { return math.Cos(a[0]) },
	string(ir.MathTanh): func(a ...float64) float64 { return math.Tanh(a[0]) },
	string(ir.MathExp):  func(a ...float64) float64 { return math.Exp(a[0]) },
	string(ir.MathLog):  func(a ...float64) float64 { return math.Log(a[0]) },
	string(ir.MathSqrt): func(a ...float64) float64 { return math.Sqrt(a[0]) },
	string(ir.MathPow):  func(a ...float64) float64 { return math.Pow(a[0], a[1]) },
}

func evalValue(v *ir.Value, regs map[*ir.Value]any, calls callTable) error {
	arg := func(i int) any { return regs[v.Args[i]] }
	f := func(i int) float64 { return toF64(arg(i)) }

	switch v.Op {
	case ir.OpConst:
		if _, isFloat := ir.IsFloat(v.Type); isFloat {
			regs[v] = v.AuxFloat
		} else {
			regs[v] = v.AuxInt
		}

	case ir.OpUndef:
		if _, ok := v.Type.(ir.StructType); ok {
			regs[v] = aggVal{}
		} else {
			regs[v] = 0.0
		}

	case ir.OpAdd:
		regs[v] = storeAs(v.Type, f(0)+f(1))
	case ir.OpSub:
		regs[v] = storeAs(v.Type, f(0)-f(1))
	case ir.OpMul:
		regs[v] = storeAs(v.Type, f(0)*f(1))
	case ir.OpDiv:
		regs[v] = storeAs(v.Type, f(0)/f(1))
	case ir.OpNeg:
		regs[v] = storeAs(v.Type, -f(0))
	case ir.OpSqrt:
		regs[v] = math.Sqrt(f(0))
	case ir.OpAbs:
		regs[v] = math.Abs(f(0))
	case ir.OpLog:
		regs[v] = math.Log(f(0))
	case ir.OpExp:
		regs[v] = math.Exp(f(0))
	case ir.OpSin:
		regs[v] = math.Sin(f(0))
	case ir.OpCos:
		regs[v] = math.Cos(f(0))
	case ir.OpTanh:
		regs[v] = math.Tanh(f(0))
	case ir.OpPow:
		regs[v] = math.Pow(f(0), f(1))
	case ir.OpCmp:
		// Every comparison gradsynth and its tests emit is "a < b".
		regs[v] = storeAs(v.Type, boolF(f(0) < f(1)))
	case ir.OpSelect:
		if f(0) != 0 {
			regs[v] = arg(1)
		} else {
			regs[v] = arg(2)
		}
	case ir.OpCast, ir.OpBitcast:
		regs[v] = storeAs(v.Type, f(0))

	case ir.OpAlloc:
		count := v.AuxInt
		if count < 1 {
			count = 1
		}
		regs[v] = ptrVal{mem: &memory{buf: make([]float64, count)}}
	case ir.OpLoad:
		p := arg(0).(ptrVal)
		regs[v] = p.mem.buf[p.offset/8]
	case ir.OpStore:
		p := arg(0).(ptrVal)
		p.mem.buf[p.offset/8] = f(1)
	case ir.OpGEP:
		p := arg(0).(ptrVal)
		if len(v.Args) == 2 {
			// Dynamic-index GEP (ir.Builder.GEPIndex): AuxInt is the
			// per-element byte size, not a static byte offset.
			regs[v] = ptrVal{mem: p.mem, offset: p.offset + int64(f(1))*v.AuxInt}
		} else {
			regs[v] = ptrVal{mem: p.mem, offset: p.offset + v.AuxInt}
		}

	case ir.OpExtractValue:
		regs[v] = arg(0).(aggVal)[int(v.AuxInt)]
	case ir.OpInsertValue:
		src := arg(0).(aggVal)
		next := make(aggVal, len(src)+1)
		for k, val := range src {
			next[k] = val
		}
		next[int(v.AuxInt)] = arg(1)
		regs[v] = next

	case ir.OpCall:
		args := make([]float64, len(v.Args))
		for i := range v.Args {
			args[i] = f(i)
		}
		if fn, ok := mathFuncs[v.AuxString]; ok {
			regs[v] = fn(args...)
			return nil
		}
		callee, ok := calls[v.AuxString]
		if !ok {
			return fmt.Errorf("ireval: call to unregistered function %q", v.AuxString)
		}
		rawArgs := make([]any, len(v.Args))
		for i := range v.Args {
			rawArgs[i] = arg(i)
		}
		result, err := runFunc(callee, calls, rawArgs...)
		if err != nil {
			return err
		}
		regs[v] = result

	case ir.OpFree, ir.OpLifetimeStart, ir.OpLifetimeEnd:
		// no runtime effect

	default:
		return fmt.Errorf("ireval: unhandled op %s", v.Op)
	}
	return nil
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

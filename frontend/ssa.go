// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package frontend gives this module a realistic front door: it lowers
// real Go source into internal/ir so cmd/borngrad can differentiate an
// actual function end to end, the "how does a real program reach this
// pass" role original_source/'s Enzyme gets for free from being an LLVM
// pass fed by clang. This is a supplement (spec.md starts from an
// already-built IR function) rather than part of the distilled spec, so
// its scope is deliberately narrower than a general Go compiler
// front-end: scalar float64/int arithmetic, calls to a handful of
// math-library functions and to other functions in the same loaded
// package, "<"/">" comparisons, and single-result returns. Anything else
// — closures, generics, strings, maps, multi-value returns, "==" and its
// siblings — is a fatal ErrUnsupportedConstruct rather than a silent
// miscompilation, matching spec §7's policy for every other unsupported
// construct in this module.
package frontend

import (
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/born-ml/grad/internal/ir"
)

// ErrRecursiveCall mirrors gradsynth.ErrRecursiveCall at the lowering
// boundary: a self- or mutually-recursive call graph in the loaded source
// cannot be lowered into a first-order SSA function table at all (there
// would be no fixed function to register under the recursive name),
// independently of gradsynth's own later recursion check over the
// already-lowered IR.
var ErrRecursiveCall = errors.New("frontend: recursive call graph")

// Load loads the Go package(s) matching pattern, builds its SSA form the
// way golang.org/x/tools/go/analysis/passes/buildssa does
// (other_examples/golang-tools__buildssa.go: NewProgram, CreatePackage,
// Build), and lowers funcName — plus every user-defined function it
// calls, transitively — from ssa.Function into internal/ir.Function. The
// returned map contains every lowered function (including the root)
// keyed by name, ready to hand to autodiff.RegisterCallee.
func Load(pattern, funcName string) (*ir.Function, map[string]*ir.Function, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedImports |
			packages.NeedTypes | packages.NeedTypesInfo | packages.NeedSyntax | packages.NeedDeps,
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("frontend: loading %q: %w", pattern, err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		return nil, nil, fmt.Errorf("frontend: %q has type errors", pattern)
	}

	prog, ssapkgs := ssautil.AllPackages(pkgs, ssa.SanityCheckFunctions)
	prog.Build()

	var root *ssa.Function
	for _, p := range ssapkgs {
		if p == nil {
			continue
		}
		if fn := p.Func(funcName); fn != nil {
			root = fn
			break
		}
	}
	if root == nil {
		return nil, nil, fmt.Errorf("%w: %s in %s", ErrNotFound, funcName, pattern)
	}

	l := &lowerer{done: map[string]*ir.Function{}, pending: map[*ssa.Function]bool{}}
	top, err := l.lowerFunction(root)
	if err != nil {
		return nil, nil, err
	}
	return top, l.done, nil
}

// lowerer holds the state of one Load call: every function lowered so
// far (by name, so a function called from two sites is only lowered
// once, the same caching discipline gradsynth.Synthesizer uses for
// gradients) and the set of functions currently being lowered, to turn a
// recursive call graph into ErrRecursiveCall instead of infinite descent.
type lowerer struct {
	done    map[string]*ir.Function
	pending map[*ssa.Function]bool
}

// pendingPhi records a phi edge whose source value was not yet lowered
// when the phi itself was created (a loop-carried back edge), to be
// backpatched once the whole function has been lowered — the same
// "placeholder now, SetArg later" pattern
// internal/gradsynth/endtoend_test.go's buildLoopWeightedSum uses by
// hand.
type pendingPhi struct {
	irPhi *ir.Value
	edge  int
	ssaV  ssa.Value
}

func (l *lowerer) lowerFunction(fn *ssa.Function) (*ir.Function, error) {
	if g, ok := l.done[fn.Name()]; ok {
		return g, nil
	}
	if l.pending[fn] {
		return nil, fmt.Errorf("%w: %s", ErrRecursiveCall, fn.Name())
	}
	l.pending[fn] = true
	defer delete(l.pending, fn)

	sig := fn.Signature
	if sig.Results().Len() != 1 {
		return nil, fmt.Errorf("%w: %s must return exactly one scalar", ErrUnsupportedConstruct, fn.Name())
	}
	retType, err := irType(sig.Results().At(0).Type())
	if err != nil {
		return nil, err
	}

	irfn := ir.NewFunction(fn.Name(), retType)
	// Registering fn before lowering its body — mirroring
	// typeanalysis.Cache's "insertion happens before body synthesis" —
	// is what turns a recursive call below into an ErrRecursiveCall via
	// l.pending rather than an infinite l.lowerFunction descent; the
	// real cache entry under l.done is only installed on success, once
	// the body is fully lowered.

	valueOf := map[ssa.Value]*ir.Value{}
	for _, p := range fn.Params {
		t, err := irType(p.Type())
		if err != nil {
			return nil, err
		}
		valueOf[p] = irfn.AddParam(t)
	}

	blockOf := make(map[*ssa.BasicBlock]*ir.Block, len(fn.Blocks))
	for _, b := range fn.Blocks {
		blockOf[b] = irfn.NewBlock(fmt.Sprintf("bb%d", b.Index))
	}

	var pending []pendingPhi
	for _, b := range fn.Blocks {
		bld := ir.NewBuilder(irfn, blockOf[b])
		for _, instr := range b.Instrs {
			if err := l.lowerInstr(irfn, bld, blockOf, valueOf, &pending, b, instr); err != nil {
				return nil, err
			}
		}
	}

	for _, pp := range pending {
		v, ok := valueOf[pp.ssaV]
		if !ok {
			return nil, fmt.Errorf("%w: %s: unresolved phi edge", ErrUnsupportedConstruct, fn.Name())
		}
		pp.irPhi.SetArg(pp.edge, v)
	}

	l.done[fn.Name()] = irfn
	return irfn, nil
}

func (l *lowerer) lowerInstr(
	irfn *ir.Function,
	bld *ir.Builder,
	blockOf map[*ssa.BasicBlock]*ir.Block,
	valueOf map[ssa.Value]*ir.Value,
	pending *[]pendingPhi,
	b *ssa.BasicBlock,
	instr ssa.Instruction,
) error {
	switch in := instr.(type) {
	case *ssa.DebugRef:
		return nil // never emitted at the default BuilderMode; skip defensively

	case *ssa.Phi:
		t, err := irType(in.Type())
		if err != nil {
			return err
		}
		incoming := make([]*ir.Value, len(in.Edges))
		from := make([]*ir.Block, len(in.Edges))
		for i, e := range in.Edges {
			from[i] = blockOf[b.Preds[i]]
			if v, ok := valueOf[e]; ok {
				incoming[i] = v
				continue
			}
			incoming[i] = zeroOf(bld, t)
		}
		phi := bld.Phi(t, incoming, from)
		for i, e := range in.Edges {
			if _, ok := valueOf[e]; !ok {
				*pending = append(*pending, pendingPhi{irPhi: phi, edge: i, ssaV: e})
			}
		}
		valueOf[in] = phi
		return nil

	case *ssa.BinOp:
		x, err := operand(bld, valueOf, in.X)
		if err != nil {
			return err
		}
		y, err := operand(bld, valueOf, in.Y)
		if err != nil {
			return err
		}
		switch in.Op {
		case token.ADD:
			valueOf[in] = bld.Binary(ir.OpAdd, x, y)
		case token.SUB:
			valueOf[in] = bld.Binary(ir.OpSub, x, y)
		case token.MUL:
			valueOf[in] = bld.Binary(ir.OpMul, x, y)
		case token.QUO:
			valueOf[in] = bld.Binary(ir.OpDiv, x, y)
		case token.REM:
			valueOf[in] = bld.Binary(ir.OpRem, x, y)
		case token.LSS:
			valueOf[in] = bld.Binary(ir.OpCmp, x, y)
		case token.GTR:
			valueOf[in] = bld.Binary(ir.OpCmp, y, x)
		default:
			return fmt.Errorf("%w: binary operator %s", ErrUnsupportedConstruct, in.Op)
		}
		return nil

	case *ssa.UnOp:
		x, err := operand(bld, valueOf, in.X)
		if err != nil {
			return err
		}
		switch in.Op {
		case token.SUB:
			valueOf[in] = bld.Unary(ir.OpNeg, x)
		case token.MUL:
			elem, err := irType(in.Type())
			if err != nil {
				return err
			}
			valueOf[in] = bld.Load(x, elem)
		default:
			return fmt.Errorf("%w: unary operator %s", ErrUnsupportedConstruct, in.Op)
		}
		return nil

	case *ssa.Convert:
		x, err := operand(bld, valueOf, in.X)
		if err != nil {
			return err
		}
		t, err := irType(in.Type())
		if err != nil {
			return err
		}
		valueOf[in] = bld.Cast(x, t)
		return nil

	case *ssa.Call:
		return l.lowerCall(irfn, bld, valueOf, in)

	case *ssa.Jump:
		irfn.SetBranch(bld.Blk, blockOf[b.Succs[0]])
		return nil

	case *ssa.If:
		cond, err := operand(bld, valueOf, in.Cond)
		if err != nil {
			return err
		}
		irfn.SetCondBranch(bld.Blk, cond, blockOf[b.Succs[0]], blockOf[b.Succs[1]])
		return nil

	case *ssa.Return:
		if len(in.Results) != 1 {
			return fmt.Errorf("%w: multi-value return", ErrUnsupportedConstruct)
		}
		v, err := operand(bld, valueOf, in.Results[0])
		if err != nil {
			return err
		}
		irfn.SetRet(bld.Blk, v)
		return nil

	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedConstruct, instr)
	}
}

// operand resolves an already-lowered ssa.Value, lowering it in place if
// it is an *ssa.Const not yet seen (constants are ssa.Values, not
// ssa.Instructions, so they never go through lowerInstr directly).
func operand(bld *ir.Builder, valueOf map[ssa.Value]*ir.Value, sv ssa.Value) (*ir.Value, error) {
	if v, ok := valueOf[sv]; ok {
		return v, nil
	}
	if c, ok := sv.(*ssa.Const); ok {
		v, err := lowerConst(bld, c)
		if err != nil {
			return nil, err
		}
		valueOf[c] = v
		return v, nil
	}
	return nil, fmt.Errorf("%w: operand %v used before definition", ErrUnsupportedConstruct, sv)
}

func lowerConst(bld *ir.Builder, c *ssa.Const) (*ir.Value, error) {
	t, err := irType(c.Type())
	if err != nil {
		return nil, err
	}
	if c.Value == nil { // the zero value of t (e.g. a nil-typed "zero" const)
		return zeroOf(bld, t), nil
	}
	switch tt := t.(type) {
	case ir.FloatType:
		f, _ := constant.Float64Val(c.Value)
		return bld.ConstFloat(tt.Width, f), nil
	case ir.IntType:
		if c.Value.Kind() == constant.Bool {
			if constant.BoolVal(c.Value) {
				return bld.ConstInt(tt, 1), nil
			}
			return bld.ConstInt(tt, 0), nil
		}
		i, _ := constant.Int64Val(c.Value)
		return bld.ConstInt(tt, i), nil
	}
	return nil, fmt.Errorf("%w: constant of type %s", ErrUnsupportedConstruct, t)
}

func zeroOf(bld *ir.Builder, t ir.Type) *ir.Value {
	switch tt := t.(type) {
	case ir.FloatType:
		return bld.ConstFloat(tt.Width, 0)
	case ir.IntType:
		return bld.ConstInt(tt, 0)
	default:
		return bld.Undef(t)
	}
}

// mathUnary is the subset of spec §6's recognized math-library table this
// lowering maps directly to an internal/ir transcendental opcode rather
// than an opaque OpCall, so gradsynth's pullback table (which only has
// rules for these as first-class ops, not as calls) can differentiate
// them without a callee to descend into.
var mathUnary = map[string]ir.Op{
	"Sin":  ir.OpSin,
	"Cos":  ir.OpCos,
	"Sqrt": ir.OpSqrt,
	"Exp":  ir.OpExp,
	"Log":  ir.OpLog,
	"Abs":  ir.OpAbs,
	"Tanh": ir.OpTanh,
}

func (l *lowerer) lowerCall(irfn *ir.Function, bld *ir.Builder, valueOf map[ssa.Value]*ir.Value, call *ssa.Call) error {
	callee := call.Call.StaticCallee()
	if callee == nil {
		return fmt.Errorf("%w: dynamic or builtin call %s", ErrUnsupportedConstruct, call)
	}

	args := make([]*ir.Value, len(call.Call.Args))
	for i, a := range call.Call.Args {
		v, err := operand(bld, valueOf, a)
		if err != nil {
			return err
		}
		args[i] = v
	}

	if pkg := callee.Package(); pkg != nil && pkg.Pkg.Path() == "math" {
		name := callee.Name()
		if op, ok := mathUnary[name]; ok {
			if len(args) != 1 {
				return fmt.Errorf("%w: math.%s with %d arguments", ErrUnsupportedConstruct, name, len(args))
			}
			valueOf[call] = bld.Unary(op, args[0])
			return nil
		}
		if name == "Pow" {
			if len(args) != 2 {
				return fmt.Errorf("%w: math.Pow with %d arguments", ErrUnsupportedConstruct, len(args))
			}
			valueOf[call] = bld.Binary(ir.OpPow, args[0], args[1])
			return nil
		}
		return fmt.Errorf("%w: math.%s", ErrUnsupportedConstruct, name)
	}

	sub, err := l.lowerFunction(callee)
	if err != nil {
		return err
	}
	t, err := irType(call.Type())
	if err != nil {
		return err
	}
	valueOf[call] = bld.Call(sub.Name, t, args...)
	return nil
}

// irType maps a Go type to this module's host IR type, per spec §0's
// "minimal constructible SSA IR" scope: scalar float64/float32/int/int32,
// bool, and pointers to any of those. Anything else (strings, slices,
// maps, structs, interfaces, channels, function types) is out of scope.
func irType(t types.Type) (ir.Type, error) {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch u.Kind() {
		case types.Float64:
			return ir.F64, nil
		case types.Float32:
			return ir.F32, nil
		case types.Int, types.Int64:
			return ir.I64, nil
		case types.Int32:
			return ir.I32, nil
		case types.Bool:
			return ir.I1, nil
		}
	case *types.Pointer:
		elem, err := irType(u.Elem())
		if err != nil {
			return nil, err
		}
		return ir.PointerType{Elem: elem}, nil
	}
	return nil, fmt.Errorf("%w: Go type %s", ErrUnsupportedConstruct, t)
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/grad/internal/gradsynth"
	"github.com/born-ml/grad/internal/ir"
)

// buildThreeWaySwitch builds a three-predecessor merge:
//
//	f(x) = x < 0 ? x*10 : (x < 5 ? x*20 : x*30)
//
// entry branches to a second test block T on x<0; T itself branches on
// x<5; the three leaves A, B, C all join at M. M has three predecessors
// with no dominating single branch between any two of them, forcing
// buildReverseTerminator's integer tag-phi + ir.BlockSwitch fallback.
func buildThreeWaySwitch() *ir.Function {
	f := ir.NewFunction("three_way_switch", ir.F64)
	x := f.AddParam(ir.F64)

	entry := f.NewBlock("entry")
	t := f.NewBlock("t")
	a := f.NewBlock("a")
	b := f.NewBlock("b")
	c := f.NewBlock("c")
	m := f.NewBlock("m")

	bEntry := ir.NewBuilder(f, entry)
	zero := bEntry.ConstFloat(ir.Double, 0)
	isNeg := bEntry.Binary(ir.OpCmp, x, zero)
	f.SetCondBranch(entry, isNeg, a, t)

	bT := ir.NewBuilder(f, t)
	five := bT.ConstFloat(ir.Double, 5)
	isSmall := bT.Binary(ir.OpCmp, x, five)
	f.SetCondBranch(t, isSmall, b, c)

	bA := ir.NewBuilder(f, a)
	ten := bA.ConstFloat(ir.Double, 10)
	va := bA.Binary(ir.OpMul, x, ten)
	f.SetBranch(a, m)

	bB := ir.NewBuilder(f, b)
	twenty := bB.ConstFloat(ir.Double, 20)
	vb := bB.Binary(ir.OpMul, x, twenty)
	f.SetBranch(b, m)

	bC := ir.NewBuilder(f, c)
	thirty := bC.ConstFloat(ir.Double, 30)
	vc := bC.Binary(ir.OpMul, x, thirty)
	f.SetBranch(c, m)

	bM := ir.NewBuilder(f, m)
	phi := bM.Phi(ir.F64, []*ir.Value{va, vb, vc}, []*ir.Block{a, b, c})
	f.SetRet(m, phi)

	return f
}

// buildTagPhiDiamond builds a two-predecessor merge with no common
// conditional-branch ancestor: entry branches on x<0 into X1 or Y1, each
// an unconditional pass-through into its own computation block X or Y,
// which then fall through to a shared merge M. p0=X, p1=Y here are not
// directly the two arms of one CondBranch (their immediate dominators
// are X1/Y1, not entry, and entry's own successors are {X1, Y1} rather
// than {X, Y}), so commonCondBranchAncestor's dominator-chain walk finds
// no match, forcing buildDiamondTerminator's tag-phi fallback (spec
// §4.H's "one-bit tag-phi" case).
func buildTagPhiDiamond() *ir.Function {
	f := ir.NewFunction("tag_phi_diamond", ir.F64)
	x := f.AddParam(ir.F64)

	entry := f.NewBlock("entry")
	x1 := f.NewBlock("x1")
	y1 := f.NewBlock("y1")
	xBlk := f.NewBlock("x")
	yBlk := f.NewBlock("y")
	m := f.NewBlock("m")

	bEntry := ir.NewBuilder(f, entry)
	zero := bEntry.ConstFloat(ir.Double, 0)
	cond := bEntry.Binary(ir.OpCmp, x, zero)
	f.SetCondBranch(entry, cond, x1, y1)

	ir.NewBuilder(f, x1)
	f.SetBranch(x1, xBlk)

	ir.NewBuilder(f, y1)
	f.SetBranch(y1, yBlk)

	bX := ir.NewBuilder(f, xBlk)
	two := bX.ConstFloat(ir.Double, 2)
	ax := bX.Binary(ir.OpMul, x, two)
	f.SetBranch(xBlk, m)

	bY := ir.NewBuilder(f, yBlk)
	three := bY.ConstFloat(ir.Double, 3)
	by := bY.Binary(ir.OpMul, x, three)
	f.SetBranch(yBlk, m)

	bM := ir.NewBuilder(f, m)
	phi := bM.Phi(ir.F64, []*ir.Value{ax, by}, []*ir.Block{xBlk, yBlk})
	f.SetRet(m, phi)

	return f
}

// buildDynamicLoop builds a loop whose trip count is itself a runtime
// argument (n), not a compile-time constant, so AnalyzeLoop reports
// Dynamic and buildLoopMirror must reject it with ErrUnboundedLoop rather
// than guess a trip count.
func buildDynamicLoop() *ir.Function {
	f := ir.NewFunction("dynamic_loop", ir.F64)
	x := f.AddParam(ir.F64)
	n := f.AddParam(ir.I64)

	entry := f.NewBlock("entry")
	header := f.NewBlock("loop.header")
	body := f.NewBlock("loop.body")
	exit := f.NewBlock("exit")

	bEntry := ir.NewBuilder(f, entry)
	zero := bEntry.ConstFloat(ir.Double, 0)
	zeroI := bEntry.ConstInt(ir.I64, 0)
	f.SetBranch(entry, header)

	bHeader := ir.NewBuilder(f, header)
	i := bHeader.Phi(ir.I64, []*ir.Value{zeroI, zeroI}, []*ir.Block{entry, body})
	sum := bHeader.Phi(ir.F64, []*ir.Value{zero, zero}, []*ir.Block{entry, body})
	cond := bHeader.Binary(ir.OpCmp, i, n)
	f.SetCondBranch(header, cond, body, exit)

	bBody := ir.NewBuilder(f, body)
	newSum := bBody.Binary(ir.OpAdd, sum, x)
	one := bBody.ConstInt(ir.I64, 1)
	newI := bBody.Binary(ir.OpAdd, i, one)
	f.SetBranch(body, header)

	i.SetArg(1, newI)
	sum.SetArg(1, newSum)

	f.SetRet(exit, sum)
	return f
}

// buildDupArgCallee builds g(p) = p[0] * 2, a callee taking a single
// duplicated-pointer parameter.
func buildDupArgCallee() *ir.Function {
	f := ir.NewFunction("dup_arg_callee", ir.F64)
	p := f.AddParam(ir.PointerType{Elem: ir.F64})
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	load := bld.Load(p, ir.F64)
	two := bld.ConstFloat(ir.Double, 2)
	doubled := bld.Binary(ir.OpMul, load, two)
	f.SetRet(b, doubled)
	return f
}

// buildCallsDupArgCallee builds h(p) = g(p), forwarding its own
// duplicated-pointer parameter straight through to a callee that also
// takes one — the call-site shape pullbackCall's pointer-argument guard
// must reject.
func buildCallsDupArgCallee(callee *ir.Function) *ir.Function {
	f := ir.NewFunction("calls_dup_arg_callee", ir.F64)
	p := f.AddParam(ir.PointerType{Elem: ir.F64})
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	c := bld.Call(callee.Name, ir.F64, p)
	f.SetRet(b, c)
	return f
}

// buildMultiExitLoop builds a loop with two distinct live exit edges: the
// header's own loop-continuation test, and a second early-exit branch
// inside the body on x<0. AnalyzeLoop must reject this with
// ErrMultipleLiveExits rather than canonicalize around the extra exit.
func buildMultiExitLoop() *ir.Function {
	f := ir.NewFunction("multi_exit_loop", ir.F64)
	x := f.AddParam(ir.F64)

	entry := f.NewBlock("entry")
	header := f.NewBlock("loop.header")
	body := f.NewBlock("loop.body")
	cont := f.NewBlock("loop.cont")
	earlyExit := f.NewBlock("early.exit")
	exit := f.NewBlock("exit")

	bEntry := ir.NewBuilder(f, entry)
	zero := bEntry.ConstFloat(ir.Double, 0)
	zeroI := bEntry.ConstInt(ir.I64, 0)
	f.SetBranch(entry, header)

	bHeader := ir.NewBuilder(f, header)
	i := bHeader.Phi(ir.I64, []*ir.Value{zeroI, zeroI}, []*ir.Block{entry, cont})
	sum := bHeader.Phi(ir.F64, []*ir.Value{zero, zero}, []*ir.Block{entry, cont})
	ten := bHeader.ConstInt(ir.I64, 10)
	loopCond := bHeader.Binary(ir.OpCmp, i, ten)
	f.SetCondBranch(header, loopCond, body, exit)

	bBody := ir.NewBuilder(f, body)
	earlyCond := bBody.Binary(ir.OpCmp, x, zero)
	f.SetCondBranch(body, earlyCond, earlyExit, cont)

	bCont := ir.NewBuilder(f, cont)
	newSum := bCont.Binary(ir.OpAdd, sum, x)
	one := bCont.ConstInt(ir.I64, 1)
	newI := bCont.Binary(ir.OpAdd, i, one)
	f.SetBranch(cont, header)

	i.SetArg(1, newI)
	sum.SetArg(1, newSum)

	ir.NewBuilder(f, earlyExit)
	f.SetRet(earlyExit, x)

	f.SetRet(exit, sum)
	return f
}

func TestThreeWaySwitchGradient(t *testing.T) {
	fn := buildThreeWaySwitch()
	s := gradsynth.NewSynthesizer()
	grad, err := s.CreatePrimalAndGradient(fn, map[int]bool{})
	require.NoError(t, err)

	result, err := runFunc(grad, callTable{}, -2.0, 1.0)
	require.NoError(t, err)
	agg := result.(aggVal)
	require.InDelta(t, -20.0, toF64(agg[0]), 1e-9, "primal at x=-2 (A: x*10)")
	require.InDelta(t, 10.0, toF64(agg[1]), 1e-9, "d/dx at x=-2")

	result, err = runFunc(grad, callTable{}, 2.0, 1.0)
	require.NoError(t, err)
	agg = result.(aggVal)
	require.InDelta(t, 40.0, toF64(agg[0]), 1e-9, "primal at x=2 (B: x*20)")
	require.InDelta(t, 20.0, toF64(agg[1]), 1e-9, "d/dx at x=2")

	result, err = runFunc(grad, callTable{}, 8.0, 1.0)
	require.NoError(t, err)
	agg = result.(aggVal)
	require.InDelta(t, 240.0, toF64(agg[0]), 1e-9, "primal at x=8 (C: x*30)")
	require.InDelta(t, 30.0, toF64(agg[1]), 1e-9, "d/dx at x=8")
}

func TestTagPhiDiamondGradient(t *testing.T) {
	fn := buildTagPhiDiamond()
	s := gradsynth.NewSynthesizer()
	grad, err := s.CreatePrimalAndGradient(fn, map[int]bool{})
	require.NoError(t, err)

	result, err := runFunc(grad, callTable{}, -1.0, 1.0)
	require.NoError(t, err)
	agg := result.(aggVal)
	require.InDelta(t, -2.0, toF64(agg[0]), 1e-9, "primal at x=-1 (x*2)")
	require.InDelta(t, 2.0, toF64(agg[1]), 1e-9, "d/dx at x=-1")

	result, err = runFunc(grad, callTable{}, 1.0, 1.0)
	require.NoError(t, err)
	agg = result.(aggVal)
	require.InDelta(t, 3.0, toF64(agg[0]), 1e-9, "primal at x=1 (x*3)")
	require.InDelta(t, 3.0, toF64(agg[1]), 1e-9, "d/dx at x=1")
}

func TestDynamicLoopRejected(t *testing.T) {
	fn := buildDynamicLoop()
	s := gradsynth.NewSynthesizer()
	_, err := s.CreatePrimalAndGradient(fn, map[int]bool{})
	require.ErrorIs(t, err, gradsynth.ErrUnboundedLoop)
}

func TestDupArgCallRejected(t *testing.T) {
	callee := buildDupArgCallee()
	gradsynth.RegisterCallee(callee)
	h := buildCallsDupArgCallee(callee)

	s := gradsynth.NewSynthesizer()
	_, err := s.CreatePrimalAndGradient(h, map[int]bool{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "DupArg")
}

func TestMultipleLiveExitsRejected(t *testing.T) {
	fn := buildMultiExitLoop()
	s := gradsynth.NewSynthesizer()
	_, err := s.CreatePrimalAndGradient(fn, map[int]bool{})
	require.ErrorIs(t, err, gradsynth.ErrMultipleLiveExits)
}

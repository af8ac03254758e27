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

// buildLoopArrayCacheSum builds f(x) = sum_{i=0}^{4} x * load(store(cell,
// float(i))), a loop whose body overwrites a single scalar allocation with
// the (x-independent) loop index every iteration and immediately reads it
// back before multiplying by x. cell is a single address reused by every
// iteration — by the time the reverse sweep runs, the primal loop has
// already finished and cell holds only its last write (float(4)) — so the
// loaded value's pointer root is also an OpStore target elsewhere in the
// loop, and memoryDependentLoads flags it: recomputeLoopBody must route it
// through the loop-array cache (instrumentTape) rather than re-cloning the
// load. OpMul's pullback rule needs this loaded value's iteration-specific
// primal reading (via gu.Clone) to scale x's adjoint correctly; a naive
// re-clone of the load would instead re-read cell's final state — float(4)
// — on every iteration of the reverse sweep, overstating every adjoint
// contribution but the one for i=4.
func buildLoopArrayCacheSum() *ir.Function {
	f := ir.NewFunction("loop_array_cache_sum", ir.F64)
	x := f.AddParam(ir.F64)

	entry := f.NewBlock("entry")
	header := f.NewBlock("loop.header")
	body := f.NewBlock("loop.body")
	exit := f.NewBlock("exit")

	bEntry := ir.NewBuilder(f, entry)
	zero := bEntry.ConstFloat(ir.Double, 0)
	zeroI := bEntry.ConstInt(ir.I64, 0)
	cell := bEntry.Alloc(ir.F64)
	f.SetBranch(entry, header)

	bHeader := ir.NewBuilder(f, header)
	i := bHeader.Phi(ir.I64, []*ir.Value{zeroI, zeroI}, []*ir.Block{entry, body})
	sum := bHeader.Phi(ir.F64, []*ir.Value{zero, zero}, []*ir.Block{entry, body})
	five := bHeader.ConstInt(ir.I64, 5)
	cond := bHeader.Binary(ir.OpCmp, i, five)
	f.SetCondBranch(header, cond, body, exit)

	bBody := ir.NewBuilder(f, body)
	iFloat := bBody.Cast(i, ir.F64)
	bBody.Store(cell, iFloat)
	loadedConst := bBody.Load(cell, ir.F64)
	term := bBody.Binary(ir.OpMul, x, loadedConst)
	newSum := bBody.Binary(ir.OpAdd, sum, term)
	one := bBody.ConstInt(ir.I64, 1)
	newI := bBody.Binary(ir.OpAdd, i, one)
	f.SetBranch(body, header)

	i.SetArg(1, newI)
	sum.SetArg(1, newSum)

	f.SetRet(exit, sum)
	return f
}

// buildLoopIndexedArrayCacheSum builds the same f(x) = sum_{i=0}^{4} x *
// load(store(buf[i], float(i))) as buildLoopArrayCacheSum, but through a
// genuine array allocation (ir.Builder.AllocArray) indexed by the
// induction variable (ir.Builder.GEPIndex) rather than one address reused
// every iteration. Each iteration addresses its own distinct slot, so this
// shape exercises the same memoryDependentLoads/instrumentTape path as a
// user-written indexed tape rather than gradsynth's own internal one.
func buildLoopIndexedArrayCacheSum() *ir.Function {
	f := ir.NewFunction("loop_indexed_array_cache_sum", ir.F64)
	x := f.AddParam(ir.F64)

	entry := f.NewBlock("entry")
	header := f.NewBlock("loop.header")
	body := f.NewBlock("loop.body")
	exit := f.NewBlock("exit")

	bEntry := ir.NewBuilder(f, entry)
	zero := bEntry.ConstFloat(ir.Double, 0)
	zeroI := bEntry.ConstInt(ir.I64, 0)
	buf := bEntry.AllocArray(ir.F64, 5)
	f.SetBranch(entry, header)

	bHeader := ir.NewBuilder(f, header)
	i := bHeader.Phi(ir.I64, []*ir.Value{zeroI, zeroI}, []*ir.Block{entry, body})
	sum := bHeader.Phi(ir.F64, []*ir.Value{zero, zero}, []*ir.Block{entry, body})
	five := bHeader.ConstInt(ir.I64, 5)
	cond := bHeader.Binary(ir.OpCmp, i, five)
	f.SetCondBranch(header, cond, body, exit)

	bBody := ir.NewBuilder(f, body)
	iFloat := bBody.Cast(i, ir.F64)
	ptr := bBody.GEPIndex(buf, i, ir.F64, 8)
	bBody.Store(ptr, iFloat)
	loadedConst := bBody.Load(ptr, ir.F64)
	term := bBody.Binary(ir.OpMul, x, loadedConst)
	newSum := bBody.Binary(ir.OpAdd, sum, term)
	one := bBody.ConstInt(ir.I64, 1)
	newI := bBody.Binary(ir.OpAdd, i, one)
	f.SetBranch(body, header)

	i.SetArg(1, newI)
	sum.SetArg(1, newSum)

	f.SetRet(exit, sum)
	return f
}

func TestLoopArrayCacheGradient(t *testing.T) {
	fn := buildLoopArrayCacheSum()
	s := gradsynth.NewSynthesizer()
	grad, err := s.CreatePrimalAndGradient(fn, map[int]bool{})
	require.NoError(t, err)

	result, err := runFunc(grad, callTable{}, 2.0, 1.0)
	require.NoError(t, err)
	agg := result.(aggVal)
	require.InDelta(t, 20.0, toF64(agg[0]), 1e-9, "primal: x * sum(0..4)")
	require.InDelta(t, 10.0, toF64(agg[1]), 1e-9, "d/dx: sum(0..4)")
}

func TestLoopIndexedArrayCacheGradient(t *testing.T) {
	fn := buildLoopIndexedArrayCacheSum()
	s := gradsynth.NewSynthesizer()
	grad, err := s.CreatePrimalAndGradient(fn, map[int]bool{})
	require.NoError(t, err)

	result, err := runFunc(grad, callTable{}, 2.0, 1.0)
	require.NoError(t, err)
	agg := result.(aggVal)
	require.InDelta(t, 20.0, toF64(agg[0]), 1e-9, "primal: x * sum(0..4)")
	require.InDelta(t, 10.0, toF64(agg[1]), 1e-9, "d/dx: sum(0..4)")
}

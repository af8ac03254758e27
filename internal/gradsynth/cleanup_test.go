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

func TestRemoveDeadValuesDropsUnreferencedArithmetic(t *testing.T) {
	f := ir.NewFunction("f", ir.F64)
	x := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)

	dead := bld.Binary(ir.OpMul, x, x) // computed, never used
	_ = dead
	kept := bld.Binary(ir.OpAdd, x, x)
	f.SetRet(b, kept)

	before := len(b.Values)
	removed := gradsynth.RemoveDeadValues(f)
	require.Equal(t, 1, removed)
	require.Equal(t, before-1, len(b.Values))
	require.NoError(t, f.Verify())
}

func TestRemoveDeadValuesKeepsSideEffects(t *testing.T) {
	f := ir.NewFunction("f", ir.Void)
	p := f.AddParam(ir.PointerType{Elem: ir.F64})
	v := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	bld.Store(p, v) // result unused by anything, but has a side effect
	f.SetRet(b, nil)

	removed := gradsynth.RemoveDeadValues(f)
	require.Equal(t, 0, removed)
}

// buildDouble builds double(x) = x + x, a single-block, call-free leaf
// function eligible for ForceInline.
func buildDouble() *ir.Function {
	f := ir.NewFunction("double", ir.F64)
	x := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	sum := bld.Binary(ir.OpAdd, x, x)
	f.SetRet(b, sum)
	return f
}

func TestForceInlineSplicesCallBody(t *testing.T) {
	callee := buildDouble()

	f := ir.NewFunction("caller", ir.F64)
	x := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	call := bld.Call("double", ir.F64, x)
	result := bld.Binary(ir.OpAdd, call, call)
	f.SetRet(b, result)

	inlined := gradsynth.ForceInline(f, map[string]*ir.Function{"double": callee})
	require.Equal(t, 1, inlined)
	require.NoError(t, f.Verify())

	for _, v := range b.Values {
		require.NotEqual(t, ir.OpCall, v.Op)
	}
}

func TestForceInlineLeavesMultiBlockCalleesAlone(t *testing.T) {
	callee := ir.NewFunction("branchy", ir.F64)
	cx := callee.AddParam(ir.F64)
	entry := callee.NewBlock("entry")
	exit := callee.NewBlock("exit")
	eb := ir.NewBuilder(callee, entry)
	zero := eb.ConstFloat(ir.Double, 0)
	cond := eb.Binary(ir.OpCmp, cx, zero)
	callee.SetCondBranch(entry, cond, exit, exit)
	xb := ir.NewBuilder(callee, exit)
	callee.SetRet(exit, xb.Unary(ir.OpNeg, cx))

	f := ir.NewFunction("caller", ir.F64)
	x := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	bld.Call("branchy", ir.F64, x)
	f.SetRet(b, x)

	inlined := gradsynth.ForceInline(f, map[string]*ir.Function{"branchy": callee})
	require.Equal(t, 0, inlined)
}

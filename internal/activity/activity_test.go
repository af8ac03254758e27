// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package activity_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/grad/internal/activity"
	"github.com/born-ml/grad/internal/ir"
)

// f(x, y) = x*x + y, where only x is active: y should be Constant even
// though it participates in the same add as an active value... except it
// feeds the (active) return, so it must in fact be classified Active
// through the backward closure. This mirrors the classic "every operand
// of a final active add is active" case gradient synthesis depends on.
func buildMixedActivity() (*ir.Function, *ir.Value, *ir.Value) {
	f := ir.NewFunction("mixed", ir.F64)
	x := f.AddParam(ir.F64)
	y := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	sq := bld.Binary(ir.OpMul, x, x)
	sum := bld.Binary(ir.OpAdd, sq, y)
	f.SetRet(b, sum)
	return f, x, y
}

func TestActivityPropagatesThroughActiveReturn(t *testing.T) {
	f, x, y := buildMixedActivity()
	info := activity.Analyze(f, map[*ir.Value]bool{x: true}, true, nil)

	require.Equal(t, activity.Active, info.Of(x))
	require.Equal(t, activity.Active, info.Of(y))

	sq := f.Entry.Values[0]
	require.Equal(t, activity.Active, info.Of(sq))
}

func TestActivityConstantWhenNoActiveSeed(t *testing.T) {
	f, x, y := buildMixedActivity()
	info := activity.Analyze(f, nil, false, nil)

	require.Equal(t, activity.Constant, info.Of(x))
	require.Equal(t, activity.Constant, info.Of(y))
}

func TestActivityComparisonIsAlwaysConstant(t *testing.T) {
	f := ir.NewFunction("cmp_user", ir.F64)
	x := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	zero := bld.ConstFloat(ir.Double, 0)
	cond := bld.Binary(ir.OpCmp, x, zero)
	f.SetRet(b, x)

	info := activity.Analyze(f, map[*ir.Value]bool{x: true}, true, nil)
	require.Equal(t, activity.Constant, info.Of(cond))
}

func TestDupArgForActivePointerParam(t *testing.T) {
	f := ir.NewFunction("ptr_user", ir.Void)
	ptr := f.AddParam(ir.PointerType{Elem: ir.F64})
	b := f.NewBlock("entry")
	f.SetRet(b, nil)

	info := activity.Analyze(f, map[*ir.Value]bool{ptr: true}, false, nil)
	require.Equal(t, activity.DupArg, info.Of(ptr))
}

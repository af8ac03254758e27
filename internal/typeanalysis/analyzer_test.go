// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package typeanalysis_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/grad/internal/ir"
	"github.com/born-ml/grad/internal/typeanalysis"
	"github.com/born-ml/grad/internal/typetree"
)

func buildSquare() *ir.Function {
	f := ir.NewFunction("square", ir.F64)
	x := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	sq := bld.Binary(ir.OpMul, x, x)
	f.SetRet(b, sq)
	return f
}

func TestAnalyzeSquareInfersFloat(t *testing.T) {
	f := buildSquare()
	info := typeanalysis.FnTypeInfo{
		Callee: f,
		Params: []typetree.Tree{typetree.Empty()},
		Ret:    typetree.Scalar(typetree.TFloat(ir.Double)),
	}
	res, err := typeanalysis.Analyze(f, info, nil)
	require.NoError(t, err)

	x := f.Params[0]
	require.Equal(t, typetree.TFloat(ir.Double), res.Query(x).Data0())

	sq := f.Entry.Values[0]
	require.Equal(t, typetree.TFloat(ir.Double), res.Query(sq).Data0())
}

func buildLoadStore() *ir.Function {
	f := ir.NewFunction("store_then_load", ir.F64)
	ptr := f.AddParam(ir.PointerType{Elem: ir.F64})
	val := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	bld.Store(ptr, val)
	loaded := bld.Load(ptr, ir.F64)
	f.SetRet(b, loaded)
	return f
}

func TestAnalyzeLoadStoreRoundTrips(t *testing.T) {
	f := buildLoadStore()
	info := typeanalysis.FnTypeInfo{
		Callee: f,
		Params: []typetree.Tree{typetree.Empty(), typetree.Empty()},
		Ret:    typetree.Empty(),
	}
	res, err := typeanalysis.Analyze(f, info, nil)
	require.NoError(t, err)

	ptr := f.Params[0]
	require.Equal(t, typetree.TPointer, res.Query(ptr).Data0())
}

func buildCaller(callee *ir.Function) *ir.Function {
	f := ir.NewFunction("caller", ir.F64)
	x := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	r := bld.Call("square", ir.F64, x)
	f.SetRet(b, r)
	return f
}

func TestAnalyzeInterproceduralCache(t *testing.T) {
	callee := buildSquare()
	caller := buildCaller(callee)

	cache := typeanalysis.NewCache(map[string]*ir.Function{"square": callee})
	info := typeanalysis.FnTypeInfo{
		Callee: caller,
		Params: []typetree.Tree{typetree.Empty()},
		Ret:    typetree.Scalar(typetree.TFloat(ir.Double)),
	}
	res, err := typeanalysis.Analyze(caller, info, cache)
	require.NoError(t, err)

	x := caller.Params[0]
	require.Equal(t, typetree.TFloat(ir.Double), res.Query(x).Data0())
}

func TestAnalyzeRecursiveCallFails(t *testing.T) {
	f := ir.NewFunction("recur", ir.F64)
	x := f.AddParam(ir.F64)
	b := f.NewBlock("entry")
	bld := ir.NewBuilder(f, b)
	r := bld.Call("recur", ir.F64, x)
	f.SetRet(b, r)

	cache := typeanalysis.NewCache(map[string]*ir.Function{"recur": f})
	info := typeanalysis.FnTypeInfo{
		Callee: f,
		Params: []typetree.Tree{typetree.Empty()},
		Ret:    typetree.Empty(),
	}
	_, err := typeanalysis.Analyze(f, info, cache)
	require.Error(t, err)
}

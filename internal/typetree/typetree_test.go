// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package typetree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/grad/internal/ir"
	"github.com/born-ml/grad/internal/typetree"
)

func TestAndInConflict(t *testing.T) {
	_, err := typetree.AndIn(typetree.TInteger, typetree.TPointer)
	require.ErrorIs(t, err, typetree.ErrConflict)

	c, err := typetree.AndIn(typetree.TUnknown, typetree.TInteger)
	require.NoError(t, err)
	require.Equal(t, typetree.TInteger, c)
}

func TestJoinAnythingIsTop(t *testing.T) {
	require.Equal(t, typetree.TAnything, typetree.Join(typetree.TAnything, typetree.TInteger))
	require.Equal(t, typetree.TInteger, typetree.Join(typetree.TUnknown, typetree.TInteger))
	require.Equal(t, typetree.TAnything, typetree.Join(typetree.TPointer, typetree.TInteger))
}

func TestShiftIndicesDropsUniformOnNonzeroShift(t *testing.T) {
	tr := typetree.Uniform(typetree.TInteger)
	shifted := tr.ShiftIndices(0, 8, 4)
	_, ok := shifted.HasUniform()
	require.False(t, ok)

	same := tr.ShiftIndices(3, 8, 3)
	c, ok := same.HasUniform()
	require.True(t, ok)
	require.Equal(t, typetree.TInteger, c)
}

func TestLookupProjectsPointeeRange(t *testing.T) {
	pointee := typetree.Scalar(typetree.TFloat(ir.Double))
	ptrTree := pointee.Only(0)
	back := ptrTree.Lookup(8)
	require.Equal(t, typetree.TFloat(ir.Double), back.Data0())
}

func TestCanonicalizeValueCollapsesUniformRange(t *testing.T) {
	tr := typetree.Scalar(typetree.TInteger)
	for o := 1; o < 4; o++ {
		tr = tr.Join(typetree.Scalar(typetree.TInteger).Only(o))
	}
	canon := tr.CanonicalizeValue(4)
	c, ok := canon.HasUniform()
	require.True(t, ok)
	require.Equal(t, typetree.TInteger, c)
}

func TestPurgeAnythingDropsTopEntries(t *testing.T) {
	tr := typetree.Scalar(typetree.TAnything).Join(typetree.Scalar(typetree.TInteger).Only(1))
	purged := tr.PurgeAnything()
	require.Equal(t, typetree.TUnknown, purged.At(0))
	require.Equal(t, typetree.TInteger, purged.At(1))
}

func TestClassifyConstantAsymmetries(t *testing.T) {
	undef := &ir.Value{Op: ir.OpUndef, Type: ir.I32}
	require.Equal(t, typetree.TAnything, typetree.ClassifyConstant(undef))

	zeroI8 := &ir.Value{Op: ir.OpConst, Type: ir.I8, AuxInt: 0}
	require.Equal(t, typetree.TInteger, typetree.ClassifyConstant(zeroI8))

	zeroI64 := &ir.Value{Op: ir.OpConst, Type: ir.I64, AuxInt: 0}
	require.Equal(t, typetree.TAnything, typetree.ClassifyConstant(zeroI64))

	smallPositive := &ir.Value{Op: ir.OpConst, Type: ir.I64, AuxInt: 64}
	require.Equal(t, typetree.TInteger, typetree.ClassifyConstant(smallPositive))

	tooLarge := &ir.Value{Op: ir.OpConst, Type: ir.I64, AuxInt: 5000}
	require.Equal(t, typetree.TUnknown, typetree.ClassifyConstant(tooLarge))

	nonzeroFloat := &ir.Value{Op: ir.OpConst, Type: ir.F64, AuxFloat: 3.14}
	require.Equal(t, typetree.TFloat(ir.Double), typetree.ClassifyConstant(nonzeroFloat))

	zeroFloat := &ir.Value{Op: ir.OpConst, Type: ir.F64, AuxFloat: 0}
	require.Equal(t, typetree.TAnything, typetree.ClassifyConstant(zeroFloat))
}

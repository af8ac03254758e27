// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package frontend_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/grad/frontend"
	"github.com/born-ml/grad/internal/ir"
)

func TestReadTextSquare(t *testing.T) {
	fn, err := frontend.ReadText(`
		func square(x f64) f64 {
		entry:
		  v1 = mul x, x
		  ret v1
		}
	`)
	require.NoError(t, err)
	require.Equal(t, "square", fn.Name)
	require.NoError(t, fn.Verify())
	require.Len(t, fn.Blocks, 1)
	require.Equal(t, ir.OpMul, fn.Blocks[0].Values[0].Op)
}

func TestReadTextLoop(t *testing.T) {
	fn, err := frontend.ReadText(`
		func loop_sum(x f64) f64 {
		entry:
		  v0 = const i64 0
		  v1 = const f64 0.0
		  br header
		header:
		  i = phi i64 entry:v0, body:vnext
		  sum = phi f64 entry:v1, body:newsum
		  v2 = const i64 10
		  cond = cmp i, v2
		  if cond -> body, exit
		body:
		  ifl = cast f64 i
		  weighted = mul x, ifl
		  newsum = add sum, weighted
		  v3 = const i64 1
		  vnext = add i, v3
		  br header
		exit:
		  ret sum
		}
	`)
	require.NoError(t, err)
	require.NoError(t, fn.Verify())

	var phis int
	for _, b := range fn.Blocks {
		for _, v := range b.Values {
			if v.Op == ir.OpPhi {
				phis++
			}
		}
	}
	require.Equal(t, 2, phis)
}

func TestReadTextRejectsUnknownOp(t *testing.T) {
	_, err := frontend.ReadText(`
		func f(x f64) f64 {
		entry:
		  v1 = frobnicate x
		  ret v1
		}
	`)
	require.ErrorIs(t, err, frontend.ErrUnsupportedConstruct)
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package typeanalysis

import (
	"fmt"

	"github.com/born-ml/grad/internal/ir"
	"github.com/born-ml/grad/internal/typetree"
)

// Results is the output of one function's type analysis: a per-value
// TypeTree map plus the known-integral-values side table, spec §9's
// "results expose query/intType/firstPointer/knownIntegralValues".
type Results struct {
	trees     map[*ir.Value]typetree.Tree
	knownInts map[*ir.Value]map[int64]bool
}

// Query returns v's inferred TypeTree, Empty if v was never visited.
func (r *Results) Query(v *ir.Value) typetree.Tree {
	if t, ok := r.trees[v]; ok {
		return t
	}
	return typetree.Empty()
}

// IntType returns v's empty-path ConcreteType, expected to be Integer.
// errIfNotFound controls whether an Unknown classification is reported as
// an error (used at emission boundaries) or returned silently (used by
// speculative transfer rules that tolerate not-yet-converged state).
func (r *Results) IntType(v *ir.Value, errIfNotFound bool) (typetree.ConcreteType, error) {
	c := r.Query(v).Data0()
	if errIfNotFound && c.Kind == typetree.Unknown {
		return c, fmt.Errorf("typeanalysis: %s: no integer type found", v)
	}
	return c, nil
}

// FirstPointer returns the ConcreteType of the pointee of v (a pointer
// value) projected to size bytes, per spec §9's firstPointer query.
// pointerIntSame treats a Pointer result the same as Integer when the
// caller does not distinguish address-space-sized integers from pointers
// (e.g. a GEP offset computation).
func (r *Results) FirstPointer(size int, v *ir.Value, errIfNotFound, pointerIntSame bool) (typetree.ConcreteType, error) {
	c := r.Query(v).Lookup(size).Data0()
	if pointerIntSame && c.Kind == typetree.Pointer {
		c = typetree.TInteger
	}
	if errIfNotFound && c.Kind == typetree.Unknown {
		return c, fmt.Errorf("typeanalysis: %s: no pointee type found", v)
	}
	return c, nil
}

// KnownIntegralValues returns the bounded set of small integers v is
// statically known to be able to take, or nil if none are known.
func (r *Results) KnownIntegralValues(v *ir.Value) map[int64]bool {
	return r.knownInts[v]
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package typeanalysis implements the worklist-driven fixed-point type
// analyzer (spec components B and C): it infers a typetree.Tree for every
// SSA value in a function, closes over unused integer-typed values, and
// caches interprocedural results keyed by call signature.
package typeanalysis

import (
	"fmt"

	"github.com/born-ml/grad/internal/ir"
	"github.com/born-ml/grad/internal/typetree"
)

// analyzer holds the mutable state of one Analyze call: the function
// under analysis, its call signature, a FIFO worklist of values still
// needing a transfer-function visit, and the cache used to resolve calls
// to other functions.
type analyzer struct {
	fn    *ir.Function
	info  FnTypeInfo
	cache *Cache
	trace *FixpointTrace

	trees     map[*ir.Value]typetree.Tree
	knownInts map[*ir.Value]map[int64]bool

	queue  []*ir.Value
	queued map[*ir.Value]bool
}

// Analyze runs the type analyzer over fn to a fixed point against the
// given call signature, using cache to resolve calls to other functions.
func Analyze(fn *ir.Function, info FnTypeInfo, cache *Cache) (*Results, error) {
	return AnalyzeTraced(fn, info, cache, nil)
}

// AnalyzeTraced is Analyze plus an optional FixpointTrace: when trace is
// non-nil, every worklist transfer-function application is tallied by the
// value's defining Op, for cmd/borngrad's --fixpoint-trace.
func AnalyzeTraced(fn *ir.Function, info FnTypeInfo, cache *Cache, trace *FixpointTrace) (*Results, error) {
	a := &analyzer{
		fn:        fn,
		info:      info,
		cache:     cache,
		trace:     trace,
		trees:     map[*ir.Value]typetree.Tree{},
		knownInts: map[*ir.Value]map[int64]bool{},
		queued:    map[*ir.Value]bool{},
	}
	a.seed()
	if err := a.run(); err != nil {
		return nil, err
	}
	a.closeUnusedValues()
	if err := a.run(); err != nil {
		return nil, err
	}
	a.propagateKnownIntegralValues()
	return &Results{trees: a.trees, knownInts: a.knownInts}, nil
}

// seed places every value on the worklist and pre-seeds parameter trees
// from the call signature.
func (a *analyzer) seed() {
	for i, p := range a.fn.Params {
		if i < len(a.info.Params) {
			a.trees[p] = a.info.Params[i]
		}
		if i < len(a.info.KnownInts) && a.info.KnownInts[i] != nil {
			a.knownInts[p] = a.info.KnownInts[i]
		}
		a.enqueue(p)
	}
	for _, b := range a.fn.Blocks {
		for _, v := range b.Values {
			a.enqueue(v)
			if v.Op == ir.OpConst || v.Op == ir.OpUndef {
				a.trees[v] = typetree.Scalar(typetree.ClassifyConstant(v))
			}
		}
	}
}

func (a *analyzer) enqueue(v *ir.Value) {
	if a.queued[v] {
		return
	}
	a.queued[v] = true
	a.queue = append(a.queue, v)
}

func (a *analyzer) refine(v *ir.Value, t typetree.Tree) error {
	cur := a.trees[v]
	merged, err := cur.AndIn(t)
	if err != nil {
		return &ConflictError{Value: v, Err: err}
	}
	joined := cur.Join(merged)
	if !joined.Equal(cur) {
		a.trees[v] = joined
		a.enqueue(v)
		for _, user := range v.Referrers() {
			a.enqueue(user)
		}
	}
	return nil
}

// run drains the worklist, applying the transfer function for each
// value's defining opcode until no more progress is made.
func (a *analyzer) run() error {
	for len(a.queue) > 0 {
		v := a.queue[0]
		a.queue = a.queue[1:]
		a.queued[v] = false
		a.trace.record(v.Op)
		if err := a.transfer(v); err != nil {
			return err
		}
	}
	return nil
}

// transfer applies the bidirectional transfer function for v's opcode:
// refine v's own tree from its operands, and refine its operands' trees
// from what v's tree implies. spec §4.B.
func (a *analyzer) transfer(v *ir.Value) error {
	switch v.Op {
	case ir.OpArg, ir.OpConst, ir.OpUndef:
		return nil

	case ir.OpCmp:
		return a.refine(v, typetree.Scalar(typetree.TInteger))

	case ir.OpAlloc:
		if err := a.refine(v, typetree.Scalar(typetree.TPointer)); err != nil {
			return err
		}
		return nil

	case ir.OpLoad:
		ptr := v.Args[0]
		size := v.Type.Size()
		pointee := a.trees[ptr].Lookup(size)
		if err := a.refine(v, pointee); err != nil {
			return err
		}
		return a.refine(ptr, a.trees[v].PurgeAnything().Only(0))

	case ir.OpStore:
		ptr, val := v.Args[0], v.Args[1]
		size := val.Type.Size()
		valTree := a.trees[val].PurgeAnything()
		return a.refine(ptr, valTree.Only(0).AtMost(size))

	case ir.OpGEP:
		base := v.Args[0]
		if err := a.refine(base, typetree.Scalar(typetree.TPointer)); err != nil {
			return err
		}
		shifted := a.trees[base].ShiftIndices(int(v.AuxInt), -1, 0)
		return a.refine(v, shifted.Only(0).Join(typetree.Scalar(typetree.TPointer)))

	case ir.OpAdd, ir.OpSub, ir.OpMul:
		return a.transferAddLike(v)

	case ir.OpDiv, ir.OpRem, ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpShr:
		// Demoted to Unknown: no transfer is applied, so neither v nor
		// its operands are refined and no pointer/int merger is
		// propagated to the operands.
		return nil

	case ir.OpNeg, ir.OpSqrt, ir.OpAbs, ir.OpLog, ir.OpExp, ir.OpSin, ir.OpCos, ir.OpTanh:
		w, isFloat := ir.IsFloat(v.Type)
		if !isFloat {
			return nil
		}
		for _, arg := range v.Args {
			if err := a.refine(arg, typetree.Scalar(typetree.TFloat(w))); err != nil {
				return err
			}
		}
		return a.refine(v, typetree.Scalar(typetree.TFloat(w)))

	case ir.OpPow:
		w, isFloat := ir.IsFloat(v.Type)
		if !isFloat {
			return nil
		}
		if err := a.refine(v.Args[0], typetree.Scalar(typetree.TFloat(w))); err != nil {
			return err
		}
		if err := a.refine(v, typetree.Scalar(typetree.TFloat(w))); err != nil {
			return err
		}
		if len(v.Args) > 1 {
			return a.refine(v.Args[1], typetree.Scalar(typetree.TInteger))
		}
		return nil

	case ir.OpSelect:
		cond, t1, t2 := v.Args[0], v.Args[1], v.Args[2]
		if err := a.refine(cond, typetree.Scalar(typetree.TInteger)); err != nil {
			return err
		}
		joined := a.trees[t1].Join(a.trees[t2])
		if err := a.refine(v, joined); err != nil {
			return err
		}
		if err := a.refine(t1, a.trees[v]); err != nil {
			return err
		}
		return a.refine(t2, a.trees[v])

	case ir.OpPhi:
		return a.transferPhi(v)

	case ir.OpCast, ir.OpBitcast:
		src := v.Args[0]
		srcSize, dstSize := src.Type.Size(), v.Type.Size()
		if ir.IsPointer(src.Type) == ir.IsPointer(v.Type) {
			if err := a.refine(v, a.trees[src].KeepForCast(srcSize, dstSize)); err != nil {
				return err
			}
			return a.refine(src, a.trees[v].KeepForCast(dstSize, srcSize))
		}
		// Integer<->pointer casts propagate both ways undecided, per
		// spec §4.B: "the cast is not decisive".
		if err := a.refine(v, a.trees[src]); err != nil {
			return err
		}
		return a.refine(src, a.trees[v])

	case ir.OpCall, ir.OpIntrinsic:
		return a.transferCall(v)

	case ir.OpReturn:
		if len(v.Args) == 0 {
			return nil
		}
		return a.refine(v.Args[0], a.info.Ret)

	case ir.OpExtractValue, ir.OpInsertValue, ir.OpExtractElement, ir.OpInsertElement, ir.OpShuffle:
		return a.transferAggregate(v)

	case ir.OpBranch, ir.OpCondBranch, ir.OpSwitch, ir.OpUnreachable:
		if v.Op == ir.OpCondBranch || v.Op == ir.OpSwitch {
			return a.refine(v.Args[0], typetree.Scalar(typetree.TInteger))
		}
		return nil

	default:
		return nil
	}
}

func (a *analyzer) transferAddLike(v *ir.Value) error {
	x, y := v.Args[0], v.Args[1]
	rc := a.trees[v].Data0()
	xc := a.trees[x].Data0()
	yc := a.trees[y].Data0()

	switch {
	case rc.Kind == typetree.Integer:
		if err := a.refine(x, typetree.Scalar(typetree.TInteger)); err != nil {
			return err
		}
		if err := a.refine(y, typetree.Scalar(typetree.TInteger)); err != nil {
			return err
		}
	case xc.Kind == typetree.Pointer && v.Op != ir.OpMul:
		if err := a.refine(y, typetree.Scalar(typetree.TInteger)); err != nil {
			return err
		}
		if err := a.refine(v, typetree.Scalar(typetree.TPointer)); err != nil {
			return err
		}
	case yc.Kind == typetree.Pointer && v.Op == ir.OpAdd:
		if err := a.refine(x, typetree.Scalar(typetree.TInteger)); err != nil {
			return err
		}
		if err := a.refine(v, typetree.Scalar(typetree.TPointer)); err != nil {
			return err
		}
	case xc.Kind == typetree.Pointer && yc.Kind == typetree.Pointer && v.Op == ir.OpSub:
		return a.refine(v, typetree.Scalar(typetree.TInteger))
	}

	if w, isFloat := ir.IsFloat(v.Type); isFloat {
		if err := a.refine(x, typetree.Scalar(typetree.TFloat(w))); err != nil {
			return err
		}
		if err := a.refine(y, typetree.Scalar(typetree.TFloat(w))); err != nil {
			return err
		}
		return a.refine(v, typetree.Scalar(typetree.TFloat(w)))
	}
	return nil
}

func (a *analyzer) transferPhi(v *ir.Value) error {
	joined := typetree.Empty()
	for _, in := range v.Args {
		joined = joined.Join(a.trees[in])
	}
	if err := a.refine(v, joined); err != nil {
		return err
	}
	for _, in := range v.Args {
		if err := a.refine(in, a.trees[v]); err != nil {
			return err
		}
	}
	return nil
}

func (a *analyzer) transferAggregate(v *ir.Value) error {
	base := v.Args[0]
	offset := int(v.AuxInt)
	switch v.Op {
	case ir.OpExtractValue, ir.OpExtractElement:
		proj := a.trees[base].ShiftIndices(offset, v.Type.Size(), 0)
		return a.refine(v, proj)
	default: // insert-shaped: base, inserted value
		if len(v.Args) < 2 {
			return nil
		}
		inserted := v.Args[1]
		total := v.Type.Size()
		cleared := a.trees[base].Clear(offset, offset+inserted.Type.Size(), total)
		merged := cleared.Join(a.trees[inserted].Only(offset))
		return a.refine(v, merged.CanonicalizeValue(total))
	}
}

// transferCall resolves a call's argument/return types either against the
// fixed math-library table, a pure-sink symbol, or by recursing into the
// interprocedural cache for a callee this package knows about.
func (a *analyzer) transferCall(v *ir.Value) error {
	name := v.AuxString
	if sig, ok := mathTable[ir.MathFunc(name)]; ok {
		for i, arg := range v.Args {
			if i >= len(sig.Args) {
				break
			}
			if ir.IsPointer(sig.Args[i]) {
				if err := a.refine(arg, typetree.Scalar(typetree.TPointer)); err != nil {
					return err
				}
				continue
			}
			if w, isFloat := ir.IsFloat(sig.Args[i]); isFloat {
				if err := a.refine(arg, typetree.Scalar(typetree.TFloat(w))); err != nil {
					return err
				}
			}
		}
		if w, isFloat := ir.IsFloat(sig.Ret); isFloat {
			return a.refine(v, typetree.Scalar(typetree.TFloat(w)))
		}
		return nil
	}
	if isIgnorableCall(name) {
		return nil
	}
	if a.cache == nil {
		return nil
	}
	callee := a.cache.Lookup(name)
	if callee == nil {
		return fmt.Errorf("%w", &UnknownCalleeError{Name: name})
	}
	paramTrees := make([]typetree.Tree, len(v.Args))
	knownInts := make([]map[int64]bool, len(v.Args))
	for i, arg := range v.Args {
		paramTrees[i] = a.trees[arg]
		knownInts[i] = a.knownInts[arg]
	}
	sub, err := a.cache.Analyze(FnTypeInfo{
		Callee:    callee,
		Params:    paramTrees,
		Ret:       a.trees[v],
		KnownInts: knownInts,
	})
	if err != nil {
		return err
	}
	for i, p := range callee.Params {
		if err := a.refine(v.Args[i], sub.Query(p)); err != nil {
			return err
		}
	}
	for _, b := range callee.Blocks {
		for _, val := range b.Values {
			if val.Op == ir.OpReturn && len(val.Args) > 0 {
				return a.refine(v, sub.Query(val.Args[0]))
			}
		}
	}
	return nil
}

// closeUnusedValues implements spec §4.B's unused-value closure: integer
// typed SSA values whose empty-path type is still Unknown after one
// fixpoint are classified Integer (or Anything) if no transitive use can
// observe them otherwise.
func (a *analyzer) closeUnusedValues() {
	for _, b := range a.fn.Blocks {
		for _, v := range b.Values {
			if !ir.IsInteger(v.Type) {
				continue
			}
			if a.trees[v].Data0().Kind != typetree.Unknown {
				continue
			}
			if len(v.Referrers()) == 0 {
				a.trees[v] = typetree.Scalar(typetree.TAnything)
				a.enqueue(v)
				continue
			}
			if !hasNonIntegralUse(v, map[*ir.Value]bool{}) {
				a.trees[v] = typetree.Scalar(typetree.TInteger)
				a.enqueue(v)
			}
		}
	}
}

// hasNonIntegralUse reports whether any transitive use of v observes it
// as anything but an integer — a GEP use, a pointer cast, v as a store's
// address, a non-ignorable call, or any op outside the integer
// arithmetic/compare/branch/phi set, which are followed transitively
// (storing v as the stored value is not counted). Mirrors the activity analyzer's
// hasNonIntegralUse (internal/activity) but only needs a yes/no answer
// here, not full activity bookkeeping.
func hasNonIntegralUse(v *ir.Value, visiting map[*ir.Value]bool) bool {
	if visiting[v] {
		return false
	}
	visiting[v] = true
	for _, user := range v.Referrers() {
		switch user.Op {
		case ir.OpCmp, ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpAnd, ir.OpOr, ir.OpXor,
			ir.OpShl, ir.OpShr, ir.OpCondBranch, ir.OpSwitch, ir.OpPhi:
			if hasNonIntegralUse(user, visiting) {
				return true
			}
		case ir.OpCast, ir.OpBitcast:
			if ir.IsPointer(user.Type) {
				return true
			}
			if hasNonIntegralUse(user, visiting) {
				return true
			}
		case ir.OpGEP:
			return true
		case ir.OpStore:
			if user.Args[0] == v {
				return true
			}
		case ir.OpCall, ir.OpIntrinsic:
			if !isIgnorableCall(user.AuxString) {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// propagateKnownIntegralValues runs the bounded known-integral-values
// propagator: constants and small arithmetic on them populate the
// per-value possibility set, capped at 100 entries, spec §4.B.
func (a *analyzer) propagateKnownIntegralValues() {
	const cap_ = 100
	for _, b := range a.fn.Blocks {
		for _, v := range b.Values {
			if v.Op == ir.OpConst && ir.IsInteger(v.Type) {
				a.knownInts[v] = map[int64]bool{v.AuxInt: true}
			}
		}
	}
	changed := true
	for changed {
		changed = false
		for _, b := range a.fn.Blocks {
			for _, v := range b.Values {
				if v.Op != ir.OpAdd && v.Op != ir.OpSub && v.Op != ir.OpMul {
					continue
				}
				xs, xok := a.knownInts[v.Args[0]]
				ys, yok := a.knownInts[v.Args[1]]
				if !xok || !yok {
					continue
				}
				out := a.knownInts[v]
				if out == nil {
					out = map[int64]bool{}
				}
				before := len(out)
				for x := range xs {
					for y := range ys {
						if len(out) >= cap_ {
							break
						}
						out[combine(v.Op, x, y)] = true
					}
				}
				if len(out) != before {
					a.knownInts[v] = out
					changed = true
				}
			}
		}
	}
}

func combine(op ir.Op, x, y int64) int64 {
	switch op {
	case ir.OpAdd:
		return x + y
	case ir.OpSub:
		return x - y
	case ir.OpMul:
		return x * y
	default:
		return 0
	}
}

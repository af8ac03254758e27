// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gradsynth turns an analyzed primal function into its reverse-mode
// derivative: it clones the primal, allocates a differential accumulator
// per active value, mirrors the control-flow graph in reverse, and emits
// the per-opcode pullback rules that add into those accumulators (spec
// components E through J).
package gradsynth

import (
	"github.com/born-ml/grad/internal/activity"
	"github.com/born-ml/grad/internal/ir"
)

// ReturnShape selects what the synthesized gradient function returns,
// spec §4.E's three shapes.
type ReturnShape int

const (
	// ShapeNormal returns the same type as the primal (an augmented
	// primal's shape).
	ShapeNormal ReturnShape = iota
	// ShapeArgsWithReturn returns (primal return, adjoints...).
	ShapeArgsWithReturn
	// ShapeArgs returns adjoints only.
	ShapeArgs
)

// GradientUtils is the per-invocation state threaded through cloning,
// reverse CFG construction, and pullback emission: the cloned function,
// primal-to-clone value maps, per-active-value accumulator cells, and the
// bookkeeping the reverse sweep needs to free shadow allocations last.
type GradientUtils struct {
	Primal *ir.Function
	Grad   *ir.Function

	Activity *activity.Info

	// primalToClone maps every primal value to its counterpart in Grad's
	// forward (primal-replaying) half.
	primalToClone map[*ir.Value]*ir.Value
	// primalToBlock maps every primal block to its clone.
	primalToBlock map[*ir.Block]*ir.Block
	// reverseOf maps every primal block to its reverse twin.
	reverseOf map[*ir.Block]*ir.Block

	// accumulator maps a primal Active value to the alloc cell holding
	// its adjoint. Populated lazily on first use.
	accumulator map[*ir.Value]*ir.Value
	// shadow maps a primal DupArg value to its shadow pointer parameter.
	shadow map[*ir.Value]*ir.Value

	allocBlock *ir.Block

	frees []*ir.Value

	// mirrorInduction maps a loop's LoopContext to its reverse header's
	// mirror induction variable, populated by buildLoopMirror before the
	// loop header's reverse terminator is wired.
	mirrorInduction map[*LoopContext]*ir.Value

	// loopByHeader maps a loop header block to its LoopContext, consulted
	// by buildReverseTerminator and by pullbackBlock to route a loop
	// body's pullback through recomputeLoopBody instead of plain clones.
	loopByHeader map[*ir.Block]*LoopContext
	// bodyLoop maps a block inside some loop's body (excluding the header)
	// back to that loop's LoopContext.
	bodyLoop map[*ir.Block]*LoopContext

	// memTape maps a primal OpLoad value that recomputeLoopBody cannot
	// safely re-clone (its pointer is also stored to within the same
	// loop) to the loop-array cache buildLoopMirror allocated for it —
	// spec §4.G's loop-array cache strategy, written at the forward
	// induction index and read back at the mirrored one.
	memTape map[*ir.Value]*ir.Value

	// tagCells maps a merge-point block with no structurally-recoverable
	// reverse dispatch (no loop-mirror pivot, no single common conditional
	// ancestor) to the integer stack cell recording which predecessor the
	// forward pass actually arrived from — spec §4.H's tag-phi, backed by
	// the same stack-cell cache mechanism as an accumulator cell rather
	// than a real SSA phi, since the reverse block reads it long after the
	// forward predecessors that wrote it have finished executing.
	tagCells map[*ir.Block]*ir.Value

	// calleeGrad maps a callee function name to its already-synthesized
	// gradient, populated by the Synthesizer before pullback runs so a
	// call site's pullback rule can invoke it directly instead of
	// re-deriving the augmented-primal/tape machinery inline.
	calleeGrad map[string]*ir.Function

	// bridgeReturn, when set, makes cloneForward's clone of the primal's
	// return block branch into that block's reverse twin instead of
	// actually returning — the handoff from the forward replay into the
	// reverse sweep. CreateAugmentedPrimal leaves this false: its forward
	// clone is the whole function, and should return normally.
	bridgeReturn bool
}

// newGradientUtils allocates the bookkeeping maps; callers still need to
// clone the primal body and build the signature.
func newGradientUtils(primal *ir.Function, info *activity.Info) *GradientUtils {
	return &GradientUtils{
		Primal:          primal,
		Activity:        info,
		primalToClone:   map[*ir.Value]*ir.Value{},
		primalToBlock:   map[*ir.Block]*ir.Block{},
		reverseOf:       map[*ir.Block]*ir.Block{},
		accumulator:     map[*ir.Value]*ir.Value{},
		shadow:          map[*ir.Value]*ir.Value{},
		tagCells:        map[*ir.Block]*ir.Value{},
		mirrorInduction: map[*LoopContext]*ir.Value{},
		loopByHeader:    map[*ir.Block]*LoopContext{},
		bodyLoop:        map[*ir.Block]*LoopContext{},
		memTape:         map[*ir.Value]*ir.Value{},
		calleeGrad:      map[string]*ir.Function{},
	}
}

// cloneSignature builds Grad's parameter list per §4.E: every DupArg
// primal parameter gets a trailing shadow parameter, every scalar Active
// parameter's adjoint is threaded in as a return (not a parameter — this
// core differentiates with an incoming seed adjoint on the return instead
// of per-argument input adjoints, matching the tested scenarios' calling
// convention `g(x..., seed)`).
func (gu *GradientUtils) cloneSignature(shape ReturnShape) {
	name := gu.Primal.Name + ".grad"
	gu.Grad = ir.NewFunction(name, gu.Primal.RetType)

	for _, p := range gu.Primal.Params {
		np := gu.Grad.AddParam(p.Type)
		gu.primalToClone[p] = np
		if gu.Activity.Of(p) == activity.DupArg {
			shadowParam := gu.Grad.AddParam(p.Type)
			gu.shadow[p] = shadowParam
		}
	}
	// Trailing seed adjoint for the (scalar-active) return.
	gu.Grad.AddParam(ir.F64)
}

// SeedParam returns the trailing incoming-adjoint parameter added by
// cloneSignature.
func (gu *GradientUtils) SeedParam() *ir.Value {
	return gu.Grad.Params[len(gu.Grad.Params)-1]
}

// Clone returns v's counterpart in the gradient function's forward half.
func (gu *GradientUtils) Clone(v *ir.Value) *ir.Value {
	return gu.primalToClone[v]
}

// SetClone records v's counterpart, used while the forward half of the
// gradient function is built value by value.
func (gu *GradientUtils) SetClone(v, clone *ir.Value) {
	gu.primalToClone[v] = clone
}

// CloneBlock returns b's counterpart in the gradient function's forward
// half.
func (gu *GradientUtils) CloneBlock(b *ir.Block) *ir.Block {
	return gu.primalToBlock[b]
}

// ReverseBlock returns b's reverse twin, creating it (named "<b>.rev") on
// first request.
func (gu *GradientUtils) ReverseBlock(b *ir.Block) *ir.Block {
	if r, ok := gu.reverseOf[b]; ok {
		return r
	}
	r := gu.Grad.NewBlock(b.Name + ".rev")
	gu.reverseOf[b] = r
	return r
}

// AllocBlock returns the block accumulator cells and shadow allocations
// are hoisted into — the primal's entry clone, matching how a real
// compiler places allocas in the function's first block.
func (gu *GradientUtils) AllocBlock() *ir.Block {
	return gu.allocBlock
}

func (gu *GradientUtils) setAllocBlock(b *ir.Block) { gu.allocBlock = b }

// Accumulator returns the F64 stack cell backing v's differential
// accumulator, allocating and zero-initializing it on first use — spec
// §3's "a per-value differential accumulator ... a stack cell initialized
// to zero".
func (gu *GradientUtils) Accumulator(v *ir.Value) *ir.Value {
	if cell, ok := gu.accumulator[v]; ok {
		return cell
	}
	bld := ir.NewBuilder(gu.Grad, gu.allocBlock)
	cell := bld.Alloc(ir.F64)
	zero := bld.ConstFloat(ir.Double, 0)
	bld.Store(cell, zero)
	gu.accumulator[v] = cell
	return cell
}

// isDifferentiable reports whether v's static type can hold a floating
// point adjoint at all — an accumulator cell is always F64, so an
// Active-classified value of integer or pointer type (e.g. a loop
// induction variable that also happens to feed a float product) still
// carries no adjoint. This gates independently of activity.Info.Of,
// standing in for a full TypeTree width check without threading
// internal/typetree through gradsynth.
func isDifferentiable(v *ir.Value) bool {
	_, ok := ir.IsFloat(v.Type)
	return ok
}

// AddDiff accumulates delta into v's differential accumulator:
// load-add-store against the cell Accumulator allocated. This is
// GradientUtils.AddDiff, the single choke point every pullback rule
// routes its contribution through.
func (gu *GradientUtils) AddDiff(b *ir.Block, v, delta *ir.Value) {
	if gu.Activity.Of(v) == activity.Constant || !isDifferentiable(v) {
		return
	}
	cell := gu.Accumulator(v)
	bld := ir.NewBuilder(gu.Grad, b)
	cur := bld.Load(cell, ir.F64)
	next := bld.Binary(ir.OpAdd, cur, delta)
	bld.Store(cell, next)
}

// ReadDiff loads v's current adjoint without clearing it.
func (gu *GradientUtils) ReadDiff(b *ir.Block, v *ir.Value) *ir.Value {
	if gu.Activity.Of(v) == activity.Constant || !isDifferentiable(v) {
		bld := ir.NewBuilder(gu.Grad, b)
		return bld.ConstFloat(ir.Double, 0)
	}
	cell := gu.Accumulator(v)
	bld := ir.NewBuilder(gu.Grad, b)
	return bld.Load(cell, ir.F64)
}

// ZeroDiff resets v's accumulator to 0, spec §4.I's "adds to operand
// adjoints and then zeros the result's adjoint".
func (gu *GradientUtils) ZeroDiff(b *ir.Block, v *ir.Value) {
	if gu.Activity.Of(v) == activity.Constant || !isDifferentiable(v) {
		return
	}
	cell := gu.Accumulator(v)
	bld := ir.NewBuilder(gu.Grad, b)
	bld.Store(cell, bld.ConstFloat(ir.Double, 0))
}

// Shadow returns the shadow pointer parameter for a DupArg primal value.
func (gu *GradientUtils) Shadow(v *ir.Value) (*ir.Value, bool) {
	s, ok := gu.shadow[v]
	return s, ok
}

// RecordFree remembers an allocation whose shadow must be freed once the
// reverse sweep completes.
func (gu *GradientUtils) RecordFree(ptr *ir.Value) {
	gu.frees = append(gu.frees, ptr)
}

// Frees returns every allocation queued for a trailing free, in the order
// they were recorded — spec §3's "the list of frees to be emitted last".
func (gu *GradientUtils) Frees() []*ir.Value { return gu.frees }

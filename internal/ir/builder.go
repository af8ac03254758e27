// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ir

// Builder provides a linear, cursor-based way to append Values to a single
// Block, the same convenience golang.org/x/tools/go/ssa's Builder and
// cmd/compile/internal/ssa's Value-emitting helpers give their callers so
// that the frontend lowering and tests don't have to call
// Function.NewValue/Block.AppendValue by hand for every instruction.
type Builder struct {
	F   *Function
	Blk *Block
}

// NewBuilder returns a Builder appending to b.
func NewBuilder(f *Function, b *Block) *Builder { return &Builder{F: f, Blk: b} }

// SetBlock redirects subsequent emission to b.
func (bld *Builder) SetBlock(b *Block) { bld.Blk = b }

func (bld *Builder) emit(op Op, t Type, args ...*Value) *Value {
	v := bld.F.NewValue(op, t, args...)
	bld.Blk.AppendValue(v)
	return v
}

// ConstFloat emits a floating-point constant of the given width.
func (bld *Builder) ConstFloat(w Width, val float64) *Value {
	v := bld.emit(OpConst, FloatType{Width: w})
	v.AuxFloat = val
	return v
}

// ConstInt emits an integer constant.
func (bld *Builder) ConstInt(t IntType, val int64) *Value {
	v := bld.emit(OpConst, t)
	v.AuxInt = val
	return v
}

// Undef emits an undef value of type t.
func (bld *Builder) Undef(t Type) *Value { return bld.emit(OpUndef, t) }

// Binary emits a two-operand arithmetic or bitwise op.
func (bld *Builder) Binary(op Op, x, y *Value) *Value { return bld.emit(op, x.Type, x, y) }

// Unary emits a one-operand op (neg, sqrt, sin, ...).
func (bld *Builder) Unary(op Op, x *Value) *Value { return bld.emit(op, x.Type, x) }

// Cast emits a conversion of x to t, the one op whose result type can
// legitimately differ from its operand's (an int-to-float induction
// variable feeding a float computation, say).
func (bld *Builder) Cast(x *Value, t Type) *Value { return bld.emit(OpCast, t, x) }

// Call emits a call to callee with the given arguments and result type.
func (bld *Builder) Call(callee string, retType Type, args ...*Value) *Value {
	v := bld.emit(OpCall, retType, args...)
	v.AuxString = callee
	return v
}

// ExtractValue emits a projection of agg's field at index.
func (bld *Builder) ExtractValue(agg *Value, index int, elem Type) *Value {
	v := bld.emit(OpExtractValue, elem, agg)
	v.AuxInt = int64(index)
	return v
}

// InsertValue emits agg with its field at index replaced by val.
func (bld *Builder) InsertValue(agg *Value, index int, val *Value) *Value {
	v := bld.emit(OpInsertValue, agg.Type, agg, val)
	v.AuxInt = int64(index)
	return v
}

// Select emits a select between a (cond nonzero) and b, typed like a.
func (bld *Builder) Select(cond, a, b *Value) *Value {
	return bld.emit(OpSelect, a.Type, cond, a, b)
}

// Phi emits a phi node over the given (value, predecessor) pairs.
func (bld *Builder) Phi(t Type, incoming []*Value, from []*Block) *Value {
	v := bld.emit(OpPhi, t, incoming...)
	v.PhiBlocks = from
	return v
}

// Alloc emits a stack allocation for one value of type elem.
func (bld *Builder) Alloc(elem Type) *Value {
	v := bld.emit(OpAlloc, PointerType{Elem: elem})
	v.AuxInt = 1
	return v
}

// AllocArray emits a stack allocation for count contiguous values of type
// elem, spec §4.G's loop-array cache: a tape sized to a loop's trip count
// (or the product of trip counts, for a nested loop), written at the
// primal's own induction index and read back at the mirrored one.
func (bld *Builder) AllocArray(elem Type, count int64) *Value {
	if count < 1 {
		count = 1
	}
	v := bld.emit(OpAlloc, PointerType{Elem: elem})
	v.AuxInt = count
	return v
}

// Load emits a load from ptr.
func (bld *Builder) Load(ptr *Value, elem Type) *Value { return bld.emit(OpLoad, elem, ptr) }

// Store emits a store of val to ptr.
func (bld *Builder) Store(ptr, val *Value) *Value { return bld.emit(OpStore, Void, ptr, val) }

// GEP emits a pointer offset by a constant byte amount.
func (bld *Builder) GEP(ptr *Value, byteOffset int64, elem Type) *Value {
	v := bld.emit(OpGEP, PointerType{Elem: elem}, ptr)
	v.AuxInt = byteOffset
	return v
}

// GEPIndex emits a pointer offset by index*elemSize bytes, index computed
// at runtime — the dynamic-index addressing spec §4.G's loop-array cache
// needs to read/write tape[i] for a mirrored induction value i rather
// than a compile-time-constant offset. Distinguished from GEP by argument
// count (two operands instead of one); AuxInt holds elemSize, not a byte
// offset.
func (bld *Builder) GEPIndex(ptr, index *Value, elem Type, elemSize int64) *Value {
	v := bld.emit(OpGEP, PointerType{Elem: elem}, ptr, index)
	v.AuxInt = elemSize
	return v
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ir defines the host intermediate representation that the type
// analyzer and gradient synthesizer consume. It models the same shape as
// golang.org/x/tools/go/ssa and cmd/compile/internal/ssa (a Value carries
// its own Op and Args; a Block carries Preds/Succs and a terminating
// Control value) but, unlike those, is built to be mutated: gradient
// synthesis clones a Function and appends new Blocks and Values to it.
package ir

import "fmt"

// Width identifies a floating-point precision, matching the set a real
// backend ABI distinguishes.
type Width int

const (
	Half Width = iota
	Single
	Double
	X86FP80
	Quad
)

func (w Width) String() string {
	switch w {
	case Half:
		return "half"
	case Single:
		return "float"
	case Double:
		return "double"
	case X86FP80:
		return "x86_fp80"
	case Quad:
		return "fp128"
	default:
		return "unknown-width"
	}
}

// Size returns the in-memory byte size of a value of this width.
func (w Width) Size() int {
	switch w {
	case Half:
		return 2
	case Single:
		return 4
	case Double:
		return 8
	case X86FP80:
		return 16 // padded
	case Quad:
		return 16
	default:
		return 0
	}
}

// Type is the host IR's static type system. It is deliberately small: just
// enough structure (width, element type, field layout) for the type
// analyzer to compute byte offsets against. It is sealed to the types
// listed below.
type Type interface {
	String() string
	Size() int
	sealed()
}

// IntType is a fixed-width integer type.
type IntType struct{ Bits int }

func (t IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }
func (t IntType) Size() int      { return (t.Bits + 7) / 8 }
func (IntType) sealed()          {}

// FloatType is a floating-point type of the given width.
type FloatType struct{ Width Width }

func (t FloatType) String() string { return t.Width.String() }
func (t FloatType) Size() int      { return t.Width.Size() }
func (FloatType) sealed()          {}

// PointerType is a pointer to Elem. The host IR does not track array
// bounds through pointers; that is TypeTree's job.
type PointerType struct{ Elem Type }

func (t PointerType) String() string { return "*" + t.Elem.String() }
func (t PointerType) Size() int      { return 8 }
func (PointerType) sealed()          {}

// StructField is one field of a StructType, at a fixed byte Offset.
type StructField struct {
	Name   string
	Type   Type
	Offset int
}

// StructType is a sequence of fields at known byte offsets.
type StructType struct {
	Name   string
	Fields []StructField
	size   int
}

// NewStructType lays fields out sequentially (no padding — the host IR's
// ABI is a design fiction, not a real calling convention) and returns the
// resulting type.
func NewStructType(name string, fieldTypes []struct {
	Name string
	Type Type
}) StructType {
	st := StructType{Name: name}
	off := 0
	for _, f := range fieldTypes {
		st.Fields = append(st.Fields, StructField{Name: f.Name, Type: f.Type, Offset: off})
		off += f.Type.Size()
	}
	st.size = off
	return st
}

func (t StructType) String() string { return "struct " + t.Name }
func (t StructType) Size() int      { return t.size }
func (StructType) sealed()          {}

// ArrayType is a fixed-length homogeneous array.
type ArrayType struct {
	Elem Type
	Len  int
}

func (t ArrayType) String() string { return fmt.Sprintf("[%d x %s]", t.Len, t.Elem) }
func (t ArrayType) Size() int      { return t.Elem.Size() * t.Len }
func (ArrayType) sealed()          {}

// VoidType is the type of instructions with no result (stores, branches).
type VoidType struct{}

func (VoidType) String() string { return "void" }
func (VoidType) Size() int      { return 0 }
func (VoidType) sealed()        {}

// Common convenience types.
var (
	I1  = IntType{Bits: 1}
	I8  = IntType{Bits: 8}
	I32 = IntType{Bits: 32}
	I64 = IntType{Bits: 64}
	F32 = FloatType{Width: Single}
	F64 = FloatType{Width: Double}
	Void Type = VoidType{}
)

// IsFloat reports whether t is a FloatType, and if so its width.
func IsFloat(t Type) (Width, bool) {
	f, ok := t.(FloatType)
	if !ok {
		return 0, false
	}
	return f.Width, true
}

// IsPointer reports whether t is a PointerType.
func IsPointer(t Type) bool {
	_, ok := t.(PointerType)
	return ok
}

// IsInteger reports whether t is an IntType.
func IsInteger(t Type) bool {
	_, ok := t.(IntType)
	return ok
}

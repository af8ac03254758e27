// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package typetree implements the type-analysis lattice: ConcreteType, the
// tagged value the analyzer assigns to one byte offset, and TypeTree, the
// offset-indexed map of ConcreteTypes that describes an entire SSA value.
// It is the data half of the type analyzer in internal/typeanalysis, in the
// same split cmd/compile/internal/types has between the "type" package
// (values) and the inference passes that populate them.
package typetree

import (
	"errors"
	"fmt"

	"github.com/born-ml/grad/internal/ir"
)

// Kind tags a ConcreteType.
type Kind int

const (
	Unknown Kind = iota
	Anything
	Integer
	Pointer
	Float
)

func (k Kind) String() string {
	switch k {
	case Unknown:
		return "unknown"
	case Anything:
		return "anything"
	case Integer:
		return "integer"
	case Pointer:
		return "pointer"
	case Float:
		return "float"
	default:
		return "bad-kind"
	}
}

// ConcreteType is the lattice's value type: Unknown and Anything at the
// bottom and top, Integer/Pointer/Float(width) incomparable concrete
// classifications in between.
type ConcreteType struct {
	Kind  Kind
	Width ir.Width // meaningful only when Kind == Float
}

var (
	TUnknown  = ConcreteType{Kind: Unknown}
	TAnything = ConcreteType{Kind: Anything}
	TInteger  = ConcreteType{Kind: Integer}
	TPointer  = ConcreteType{Kind: Pointer}
)

// TFloat returns the Float ConcreteType of the given width.
func TFloat(w ir.Width) ConcreteType { return ConcreteType{Kind: Float, Width: w} }

func (c ConcreteType) String() string {
	if c.Kind == Float {
		return "float(" + c.Width.String() + ")"
	}
	return c.Kind.String()
}

// ErrConflict is returned by AndIn when two ConcreteTypes are concrete,
// unequal, and neither is Anything — a proven type conflict in the sense
// of spec §4.B, fatal to the caller that discovers it.
var ErrConflict = errors.New("typetree: conflicting concrete types")

// AndIn computes the meet (∧) of a and b: equal types meet to themselves;
// Unknown is the identity; Anything is absorbed by the other operand;
// anything else is a conflict.
func AndIn(a, b ConcreteType) (ConcreteType, error) {
	if a == b {
		return a, nil
	}
	if a.Kind == Unknown {
		return b, nil
	}
	if b.Kind == Unknown {
		return a, nil
	}
	if a.Kind == Anything {
		return b, nil
	}
	if b.Kind == Anything {
		return a, nil
	}
	return TUnknown, fmt.Errorf("%w: %s vs %s", ErrConflict, a, b)
}

// Join computes a |= b: the meet of a and b with Anything acting as the
// lattice top rather than an absorbing identity, so that joining with
// Anything always yields Anything. Join never fails: an incompatible pair
// simply produces Unknown-less disagreement, modeled here as Anything,
// since a monotone, total join cannot reject an input the way AndIn can.
func Join(a, b ConcreteType) ConcreteType {
	if a.Kind == Anything || b.Kind == Anything {
		return TAnything
	}
	if a.Kind == Unknown {
		return b
	}
	if b.Kind == Unknown {
		return a
	}
	if a == b {
		return a
	}
	return TAnything
}

// LessEqual reports whether a is no more refined than b in the lattice
// order Unknown < {Integer, Pointer, Float(w)} < Anything, used by callers
// that must assert |= is monotone non-decreasing.
func LessEqual(a, b ConcreteType) bool {
	if a == b {
		return true
	}
	if a.Kind == Unknown {
		return true
	}
	if b.Kind == Anything {
		return true
	}
	return false
}

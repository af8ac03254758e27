// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package typeanalysis

import (
	"errors"
	"fmt"

	"github.com/born-ml/grad/internal/ir"
)

// Sentinel error kinds raised by the analyzer, matched by internal/driver
// and the CLI to decide exit codes and diagnostic rendering.
var (
	ErrTypeConflict         = errors.New("typeanalysis: type conflict")
	ErrIllegalPointerUpdate = errors.New("typeanalysis: illegal pointer update")
	ErrUnboundedLoop        = errors.New("typeanalysis: unbounded loop")
	ErrMultipleLiveExits    = errors.New("typeanalysis: multiple live loop exits")
	ErrUnknownCallee        = errors.New("typeanalysis: unknown callee")
	ErrRecursiveCall        = errors.New("typeanalysis: recursive call")
)

// ConflictError reports a TypeConflict at a specific value, spec §9's
// "two refinements of a TypeTree disagree at the same offset".
type ConflictError struct {
	Value *ir.Value
	Err   error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("typeanalysis: %s: %v", e.Value, e.Err)
}

func (e *ConflictError) Unwrap() error { return ErrTypeConflict }

// UnknownCalleeError reports a call whose callee could not be resolved to
// an ir.Function or a recognized math-library/pure-sink symbol.
type UnknownCalleeError struct {
	Name string
}

func (e *UnknownCalleeError) Error() string {
	return fmt.Sprintf("typeanalysis: unknown callee %q", e.Name)
}

func (e *UnknownCalleeError) Unwrap() error { return ErrUnknownCallee }

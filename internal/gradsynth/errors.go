// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gradsynth

import (
	"errors"
	"fmt"

	"github.com/born-ml/grad/internal/ir"
)

// Sentinel error kinds raised during gradient synthesis. ErrRecursiveCall,
// ErrUnboundedLoop and ErrMultipleLiveExits are gradsynth's own values,
// distinct from internal/typeanalysis's sentinels of the same names.
var (
	ErrRecursiveCall        = errors.New("gradsynth: recursive call")
	ErrUnhandledInstruction = errors.New("gradsynth: unhandled instruction")
	ErrIllegalCast          = errors.New("gradsynth: illegal cast")
	ErrVerifierFailure      = errors.New("gradsynth: verifier failure")
	ErrUnboundedLoop        = errors.New("gradsynth: unbounded loop")
	ErrMultipleLiveExits    = errors.New("gradsynth: multiple live loop exits")
)

// UnhandledOpError names the specific value whose opcode has no pullback
// rule.
type UnhandledOpError struct {
	Value *ir.Value
}

func (e *UnhandledOpError) Error() string {
	return fmt.Sprintf("gradsynth: no pullback rule for %s (%s)", e.Value, e.Value.Op)
}

func (e *UnhandledOpError) Unwrap() error { return ErrUnhandledInstruction }

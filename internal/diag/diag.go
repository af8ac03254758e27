// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package diag wraps the fatal sentinel errors internal/typeanalysis and
// internal/gradsynth raise (spec §7/§9's nine error kinds) with a
// correlation ID and the IR name of whatever the analysis was looking at
// when it failed, so a CLI or log line can point a user at one run
// without the full call stack.
package diag

import (
	"fmt"

	"github.com/google/uuid"
)

// Diagnostic wraps a fatal analysis error with a correlation ID and the
// name of the function or value under analysis when it occurred.
type Diagnostic struct {
	ID      uuid.UUID
	Subject string // the ir.Function or ir.Value name, for a human reading a log
	Err     error
}

// Wrap creates a Diagnostic around err, tagging it with a fresh
// correlation ID. subject is typically an *ir.Function.Name or an
// *ir.Value.String() — diag does not import internal/ir to avoid a
// dependency edge back into the packages that import diag.
func Wrap(subject string, err error) *Diagnostic {
	if err == nil {
		return nil
	}
	return &Diagnostic{ID: uuid.New(), Subject: subject, Err: err}
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("[%s] %s: %v", d.ID, d.Subject, d.Err)
}

func (d *Diagnostic) Unwrap() error { return d.Err }

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff is the public surface of the reverse-mode AD compiler
// core, spec §6: a thin facade over internal/typeanalysis and
// internal/gradsynth, the same "wrap internal, expose a clean API" shape
// this module's teacher used for its own tensor-tape autodiff. Analyze
// answers type-analysis queries against a whole-program function table;
// CreateAugmentedPrimal and CreatePrimalAndGradient are the two synthesis
// entry points spec §6 names directly.
package autodiff

import (
	"github.com/born-ml/grad/internal/activity"
	"github.com/born-ml/grad/internal/diag"
	"github.com/born-ml/grad/internal/gradsynth"
	"github.com/born-ml/grad/internal/ir"
	"github.com/born-ml/grad/internal/typeanalysis"
)

// FnTypeInfo is the call signature Analyze checks fn's body against —
// spec §3's FnTypeInfo, re-exported so callers outside internal/ never
// need to import internal/typeanalysis directly.
type FnTypeInfo = typeanalysis.FnTypeInfo

// Results is the outcome of one Analyze call.
type Results = typeanalysis.Results

// Cache is the process-wide interprocedural type cache (spec §4.C),
// shared across every Analyze call that differentiates functions calling
// into one another.
type Cache = typeanalysis.Cache

// NewCache returns an empty interprocedural type cache resolving callee
// names against funcs.
func NewCache(funcs map[string]*ir.Function) *Cache {
	return typeanalysis.NewCache(funcs)
}

// Analyze runs the type analyzer (spec components B/C) over fn to a fixed
// point against info, using cache to resolve nested calls.
func Analyze(fn *ir.Function, info FnTypeInfo, cache *Cache) (*Results, error) {
	r, err := typeanalysis.Analyze(fn, info, cache)
	if err != nil {
		return nil, diag.Wrap(fn.Name, err)
	}
	return r, nil
}

// FixpointTrace samples, per opcode, how many worklist passes the type
// analyzer spent re-visiting values defined by that opcode — cmd/borngrad's
// --fixpoint-trace.
type FixpointTrace = typeanalysis.FixpointTrace

// NewFixpointTrace returns an empty FixpointTrace ready for AnalyzeTraced.
func NewFixpointTrace() *FixpointTrace { return typeanalysis.NewFixpointTrace() }

// AnalyzeTraced is Analyze plus an optional FixpointTrace recording every
// worklist revisit by opcode.
func AnalyzeTraced(fn *ir.Function, info FnTypeInfo, cache *Cache, trace *FixpointTrace) (*Results, error) {
	r, err := typeanalysis.AnalyzeTraced(fn, info, cache, trace)
	if err != nil {
		return nil, diag.Wrap(fn.Name, err)
	}
	return r, nil
}

// Synthesizer differentiates one or more functions, caching each distinct
// target's gradient by name (augmented primals are rebuilt on every
// request, not cached) and rejecting recursive
// call graphs, spec §9's ErrRecursiveCall. A Synthesizer is not
// goroutine-safe on its own; fanning differentiation of distinct
// top-level targets out across goroutines (internal/parallel-style) needs
// either one Synthesizer per goroutine or external serialization, the
// same caveat the singleflight-guarded caches elsewhere in this module
// exist to avoid.
type Synthesizer = gradsynth.Synthesizer

// NewSynthesizer returns an empty Synthesizer.
func NewSynthesizer() *Synthesizer {
	return gradsynth.NewSynthesizer()
}

// RegisterCallee makes fn resolvable by name from a call site's callee
// name during synthesis — every function reachable from a
// CreatePrimalAndGradient target, including the target itself, must be
// registered before synthesis runs.
func RegisterCallee(fn *ir.Function) { gradsynth.RegisterCallee(fn) }

// GradientOptions controls CreatePrimalAndGradient's output shape.
type GradientOptions struct {
	// ConstantArgs lists, by declaration index, every parameter to treat
	// as Constant; every other parameter is Active (or DupArg, if its
	// host type is a pointer).
	ConstantArgs map[int]bool
	// ReturnPrimal is not consulted: CreatePrimalAndGradient's result
	// leads with the primal's own result whenever fn returns a value,
	// whether this is true or false, and never omits that field.
	ReturnPrimal bool
}

// CreateAugmentedPrimal returns a variant of fn that re-executes the
// primal computation without computing any derivative — spec §6's other
// named entry point. differentialReturn is accepted for API parity with
// spec §6's signature; this module's augmented primal never differs by
// whether the caller intends to later request a derivative of the
// result, since no tape is threaded out of it independently of the
// gradient itself (gradsynth.Synthesizer.CreateAugmentedPrimal's own doc
// comment has the full rationale).
func CreateAugmentedPrimal(s *Synthesizer, fn *ir.Function, constantArgs map[int]bool, differentialReturn bool) (*ir.Function, error) {
	g, err := s.CreateAugmentedPrimal(fn, constantArgs)
	if err != nil {
		return nil, diag.Wrap(fn.Name, err)
	}
	return g, nil
}

// CreatePrimalAndGradient synthesizes fn's adjoint: given fn's original
// arguments plus a trailing seed adjoint for the return, it computes
// (primal result, adjoint of every Active parameter) — spec §6's
// headline entry point, and the one internal/driver calls on every
// autodiff(...) call site it rewrites.
func CreatePrimalAndGradient(s *Synthesizer, fn *ir.Function, opts GradientOptions) (*ir.Function, error) {
	g, err := s.CreatePrimalAndGradient(fn, opts.ConstantArgs)
	if err != nil {
		return nil, diag.Wrap(fn.Name, err)
	}
	return g, nil
}

// Class re-exports activity.Class so callers inspecting a synthesized
// gradient's parameter shapes don't need a direct internal/activity
// import.
type Class = activity.Class

// Activity classifications, re-exported from internal/activity.
const (
	Constant = activity.Constant
	Active   = activity.Active
	DupArg   = activity.DupArg
)

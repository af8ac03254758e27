// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package typeanalysis

import (
	"io"

	"github.com/google/pprof/profile"

	"github.com/born-ml/grad/internal/ir"
)

// FixpointTrace samples which opcode classes the worklist revisits most
// during one Analyze run, for cmd/borngrad's --fixpoint-trace flag. A
// "revisit" is every transfer-function application, including the first —
// an Op with a high count spent the most worklist passes being re-queued
// by refine, the thing worth knowing when a function's analysis is slow.
type FixpointTrace struct {
	revisits map[ir.Op]int64
}

// NewFixpointTrace returns an empty trace ready to pass to AnalyzeTraced.
func NewFixpointTrace() *FixpointTrace {
	return &FixpointTrace{revisits: map[ir.Op]int64{}}
}

func (t *FixpointTrace) record(op ir.Op) {
	if t == nil {
		return
	}
	t.revisits[op]++
}

// WriteProfile renders the trace as a pprof-format profile: one synthetic
// location per Op, sampled once with the revisit count as its value. This
// reuses profile.Profile purely as a sample container — there is no real
// call stack here, so each Op gets its own single-frame Location, the
// shape a flame graph over "time spent per opcode" would expect.
func (t *FixpointTrace) WriteProfile(w io.Writer) error {
	prof := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "revisits", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "worklist", Unit: "pass"},
		Period:     1,
	}
	var nextID uint64
	for op, n := range t.revisits {
		nextID++
		fn := &profile.Function{ID: nextID, Name: op.String()}
		loc := &profile.Location{ID: nextID, Line: []profile.Line{{Function: fn}}}
		prof.Function = append(prof.Function, fn)
		prof.Location = append(prof.Location, loc)
		prof.Sample = append(prof.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{n},
		})
	}
	return prof.Write(w)
}

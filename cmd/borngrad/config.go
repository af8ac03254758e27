// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is cmd/borngrad's YAML configuration file shape. Every knob
// defaults off — a plain "differentiate this function" run should produce
// nothing but the synthesized IR, the same "no config means no surprises"
// stance the teacher's own CLI takes for its flags.
type Config struct {
	Targets []Target `yaml:"targets"`

	DumpPre       bool   `yaml:"dump_pre"`
	DumpPost      bool   `yaml:"dump_post"`
	ActivityTrace bool   `yaml:"activity_trace"`
	FixpointTrace string `yaml:"fixpoint_trace"` // pprof output path; "" disables
	ForceInline   bool   `yaml:"force_inline"`
	Cleanup       bool   `yaml:"cleanup"`
	Jobs          int    `yaml:"jobs"`
}

// Target names one function to differentiate: either real Go source
// (Package + Func, lowered through frontend.Load) or the textual IR
// assembly format (TextFile, read through frontend.ReadText).
type Target struct {
	Package      string `yaml:"package"`
	Func         string `yaml:"func"`
	TextFile     string `yaml:"text_file"`
	ConstantArgs []int  `yaml:"constant_args"`
	Mode         string `yaml:"mode"` // "gradient" (default), "augmented", or "intrinsic"
}

// loadConfig reads and parses a YAML config file. An empty path returns a
// zero Config rather than an error — every flag still has its flag.Bool
// default of false, so running with no -config at all is a valid,
// unsurprising invocation.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("borngrad: reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("borngrad: parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"log"
)

// cliFlags holds every command-line flag borngrad accepts. A -config file
// sets the baseline; flags override or supplement it (applyFlagOverrides),
// so a single ad hoc run never needs a YAML file on disk.
type cliFlags struct {
	configPath string

	pkg          string
	fn           string
	textFile     string
	mode         string
	constantArgs string

	dumpPre       bool
	dumpPost      bool
	activityTrace bool
	fixpointTrace string
	forceInline   bool
	cleanup       bool
	jobs          int
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "YAML config file listing one or more targets")
	flag.StringVar(&f.pkg, "from-go", "", "package import path to load a target function from")
	flag.StringVar(&f.fn, "func", "", "function name within -from-go's package")
	flag.StringVar(&f.textFile, "from-text", "", "path to a textual IR assembly file")
	flag.StringVar(&f.mode, "mode", "gradient", `synthesis mode: "gradient", "augmented", or "intrinsic" (rewrite autodiff(...) call sites in place)`)
	flag.StringVar(&f.constantArgs, "constant-args", "", "comma-separated parameter indices to treat as constant")
	flag.BoolVar(&f.dumpPre, "dump-pre", false, "print the primal IR before synthesis")
	flag.BoolVar(&f.dumpPost, "dump-post", false, "print the synthesized IR after synthesis")
	flag.BoolVar(&f.activityTrace, "activity-trace", false, "print each value's activity classification")
	flag.StringVar(&f.fixpointTrace, "fixpoint-trace", "", "write a pprof profile of worklist revisits per opcode to this path")
	flag.BoolVar(&f.forceInline, "force-inline", false, "inline single-block callee calls before synthesis")
	flag.BoolVar(&f.cleanup, "cleanup", false, "remove dead values after synthesis")
	flag.IntVar(&f.jobs, "jobs", 0, "run up to N targets' synthesis concurrently (0 or 1 = sequential)")
	flag.Parse()
	return f
}

func flagUsage() { flag.Usage() }

// applyFlagOverrides layers cliFlags on top of a config file's settings:
// every "dump"/"trace"/"cleanup"-style bool is OR'd in (a flag can only
// turn a knob on, never back off one a config file set), while a positive
// -jobs and a non-empty -fixpoint-trace replace the config's value
// outright. -mode is not applied here: it only reaches the config-less
// target targetFromFlags builds.
func applyFlagOverrides(cfg *Config, f cliFlags) {
	cfg.DumpPre = cfg.DumpPre || f.dumpPre
	cfg.DumpPost = cfg.DumpPost || f.dumpPost
	cfg.ActivityTrace = cfg.ActivityTrace || f.activityTrace
	cfg.ForceInline = cfg.ForceInline || f.forceInline
	cfg.Cleanup = cfg.Cleanup || f.cleanup
	if f.fixpointTrace != "" {
		cfg.FixpointTrace = f.fixpointTrace
	}
	if f.jobs > 0 {
		cfg.Jobs = f.jobs
	}
}

// targetFromFlags builds a single Target from the ad hoc -from-go/-func or
// -from-text flags, for a config-less run. ok is false when neither names
// a target.
func targetFromFlags(f cliFlags) (Target, bool) {
	t := Target{Package: f.pkg, Func: f.fn, TextFile: f.textFile, Mode: f.mode}
	if t.Func == "" && t.TextFile == "" {
		return Target{}, false
	}
	if f.constantArgs != "" {
		args, err := parseIntList(f.constantArgs)
		if err != nil {
			log.Fatalf("borngrad: %v", err)
		}
		t.ConstantArgs = args
	}
	return t, true
}

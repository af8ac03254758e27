// Command borngrad is the CLI front end for the reverse-mode automatic
// differentiation compiler core: it loads one or more target functions
// (from real Go source or the textual IR assembly format), runs the type
// and activity analyses, synthesizes each target's augmented primal or
// full gradient, and prints the result. It is a thin driver over
// autodiff/, frontend/, and internal/irprint — all the real work happens
// in those packages, matching the teacher's own cmd/born's role as a
// facade over its library packages.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/grad/autodiff"
	"github.com/born-ml/grad/frontend"
	"github.com/born-ml/grad/internal/activity"
	"github.com/born-ml/grad/internal/driver"
	"github.com/born-ml/grad/internal/gradsynth"
	"github.com/born-ml/grad/internal/ir"
	"github.com/born-ml/grad/internal/irprint"
	"github.com/born-ml/grad/internal/parallel"
	"github.com/born-ml/grad/internal/typetree"
)

func main() {
	flags := parseFlags()

	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		log.Fatalf("borngrad: %v", err)
	}
	applyFlagOverrides(&cfg, flags)

	if len(cfg.Targets) == 0 {
		t, ok := targetFromFlags(flags)
		if !ok {
			fmt.Fprintln(os.Stderr, "borngrad: nothing to do — pass -from-go/-func, -from-text, or -config")
			flagUsage()
			os.Exit(2)
		}
		cfg.Targets = []Target{t}
	}

	for _, r := range runTargets(cfg) {
		if r.err != nil {
			log.Fatalf("borngrad: %s: %v", r.name, r.err)
		}
	}
}

// targetResult pairs a target's display name with whatever error its run
// produced, so runTargets can report every failure after the fan-out
// joins instead of the first goroutine to fail racing os.Exit.
type targetResult struct {
	name string
	err  error
}

// runTargets loads and registers every configured target's callees
// sequentially, then fans the rest of the work (dump/trace/synthesis) out
// across cfg.Jobs goroutines via internal/parallel.For. Loading runs first
// and single-threaded because gradsynth.RegisterCallee writes a shared,
// unsynchronized package-level registry — concurrent writers would race —
// while everything downstream of it (each target's own *ir.Function, its
// own autodiff.Synthesizer and autodiff.Cache) is per-target state, so
// spec §5's "independent top-level syntheses may run concurrently"
// guarantee applies cleanly to that half.
func runTargets(cfg Config) []targetResult {
	loaded := make([]loadedTarget, len(cfg.Targets))
	for i, t := range cfg.Targets {
		fn, callees, err := loadTarget(t)
		if err != nil {
			loaded[i] = loadedTarget{target: t, err: err}
			continue
		}
		for _, callee := range callees {
			autodiff.RegisterCallee(callee)
		}
		loaded[i] = loadedTarget{target: t, fn: fn, callees: callees}
	}

	results := make([]targetResult, len(loaded))
	pcfg := parallel.Config{Enabled: cfg.Jobs > 1, NumWorkers: cfg.Jobs, MinChunkSize: 1}
	parallel.For(len(loaded), func(i int) {
		lt := loaded[i]
		name := targetName(lt.target)
		if lt.err != nil {
			results[i] = targetResult{name: name, err: lt.err}
			return
		}
		results[i] = targetResult{name: name, err: runOne(cfg, lt, len(loaded) > 1)}
	}, pcfg)
	return results
}

// loadedTarget is a Target after loadTarget has run (or failed).
type loadedTarget struct {
	target  Target
	fn      *ir.Function
	callees map[string]*ir.Function
	err     error
}

func targetName(t Target) string {
	if t.Func != "" {
		return t.Func
	}
	return t.TextFile
}

// runOne analyzes and synthesizes one already-loaded target, honoring
// every Config knob. suffixTraces disambiguates --fixpoint-trace's output
// path across multiple concurrently-run targets.
func runOne(cfg Config, lt loadedTarget, suffixTraces bool) error {
	fn, callees, t := lt.fn, lt.callees, lt.target
	var err error

	if cfg.DumpPre {
		fmt.Printf("; --- %s (primal) ---\n", fn.Name)
		irprint.Dump(os.Stdout, fn, irprint.AutoOptions(os.Stdout))
	}

	constantArgs := map[int]bool{}
	for _, idx := range t.ConstantArgs {
		constantArgs[idx] = true
	}

	if cfg.ActivityTrace {
		printActivityTrace(fn, constantArgs)
	}

	if cfg.FixpointTrace != "" {
		path := cfg.FixpointTrace
		if suffixTraces {
			path = fmt.Sprintf("%s.%s", path, fn.Name)
		}
		if err := writeFixpointTrace(fn, callees, path); err != nil {
			return err
		}
	}

	if cfg.ForceInline {
		n := gradsynth.ForceInline(fn, callees)
		if n > 0 {
			fmt.Fprintf(os.Stderr, "borngrad: %s: inlined %d call site(s)\n", fn.Name, n)
		}
	}

	synth := autodiff.NewSynthesizer()
	var out *ir.Function
	switch mode(t) {
	case "augmented":
		out, err = autodiff.CreateAugmentedPrimal(synth, fn, constantArgs, true)
	case "intrinsic":
		lookup := func(name string) (*ir.Function, bool) {
			f, ok := callees[name]
			return f, ok
		}
		err = driver.Run(fn, synth, lookup)
		out = fn
	default:
		out, err = autodiff.CreatePrimalAndGradient(synth, fn, autodiff.GradientOptions{
			ConstantArgs: constantArgs,
			ReturnPrimal: true,
		})
	}
	if err != nil {
		return err
	}

	if cfg.Cleanup {
		n := gradsynth.RemoveDeadValues(out)
		if n > 0 {
			fmt.Fprintf(os.Stderr, "borngrad: %s: removed %d dead value(s)\n", out.Name, n)
		}
	}

	if cfg.DumpPost {
		fmt.Printf("; --- %s (synthesized) ---\n", out.Name)
		irprint.Dump(os.Stdout, out, irprint.AutoOptions(os.Stdout))
	}
	return nil
}

func mode(t Target) string {
	if t.Mode == "" {
		return "gradient"
	}
	return t.Mode
}

// loadTarget realizes one Target as an *ir.Function plus its reachable
// callees, choosing the Go-source or textual-assembly frontend by which
// field the target set.
func loadTarget(t Target) (*ir.Function, map[string]*ir.Function, error) {
	if t.TextFile != "" {
		src, err := os.ReadFile(t.TextFile)
		if err != nil {
			return nil, nil, fmt.Errorf("borngrad: reading %s: %w", t.TextFile, err)
		}
		fn, err := frontend.ReadText(string(src))
		if err != nil {
			return nil, nil, err
		}
		return fn, map[string]*ir.Function{fn.Name: fn}, nil
	}
	return frontend.Load(t.Package, t.Func)
}

// printActivityTrace runs activity analysis standalone (every
// non-constant parameter active, return active) and prints each value's
// classification, for cmd/borngrad --activity-trace. This mirrors the
// seeding CreatePrimalAndGradient itself does internally (see
// gradsynth.Synthesizer.CreatePrimalAndGradient) but is a read-only pass:
// nothing here feeds the actual synthesis.
func printActivityTrace(fn *ir.Function, constantArgs map[int]bool) {
	activeArgs := make(map[*ir.Value]bool, len(fn.Params))
	constantVals := make(map[*ir.Value]bool, len(fn.Params))
	for i, p := range fn.Params {
		if constantArgs[i] {
			constantVals[p] = true
		} else {
			activeArgs[p] = true
		}
	}
	info := activity.Analyze(fn, activeArgs, true, constantVals)
	fmt.Printf("; --- %s (activity) ---\n", fn.Name)
	for _, b := range fn.Blocks {
		for _, v := range b.Values {
			fmt.Printf("  %-24s %s\n", v.String(), info.Of(v))
		}
	}
}

// writeFixpointTrace re-runs the type analyzer under a FixpointTrace and
// writes the resulting pprof profile to path, for cmd/borngrad
// --fixpoint-trace. It infers an all-unconstrained call signature (every
// parameter and the return Unknown) since a standalone CLI run has no
// caller context to seed from.
func writeFixpointTrace(fn *ir.Function, callees map[string]*ir.Function, path string) error {
	info := autodiff.FnTypeInfo{
		Callee:    fn,
		Params:    make([]typetree.Tree, len(fn.Params)),
		Ret:       typetree.Empty(),
		KnownInts: make([]map[int64]bool, len(fn.Params)),
	}
	for i := range info.Params {
		info.Params[i] = typetree.Empty()
	}
	trace := autodiff.NewFixpointTrace()
	if _, err := autodiff.AnalyzeTraced(fn, info, autodiff.NewCache(callees), trace); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("borngrad: creating %s: %w", path, err)
	}
	defer f.Close()
	return trace.WriteProfile(f)
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("borngrad: invalid constant-args entry %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

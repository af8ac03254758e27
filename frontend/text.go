// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package frontend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/born-ml/grad/internal/ir"
)

// tokenPattern tokenizes one line of the textual IR assembly format: a
// backtracking regex lexer, the same pattern-based tokenization choice
// github.com/pkoukk/tiktoken-go makes with regexp2 (DESIGN.md), here used
// for a much smaller alphabet (identifiers, numbers, and a handful of
// punctuation tokens) so --from-text test fixtures don't need a full Go
// package on disk to exercise frontend-adjacent code.
var tokenPattern = regexp2.MustCompile(`[A-Za-z_][A-Za-z0-9_.]*|-?[0-9]+\.[0-9]+|-?[0-9]+|->|[(){}\[\]:,=*]`, regexp2.None)

func tokenizeLine(line string) ([]string, error) {
	var toks []string
	m, err := tokenPattern.FindStringMatch(line)
	for m != nil && err == nil {
		toks = append(toks, m.String())
		m, err = tokenPattern.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("frontend: tokenizing %q: %w", line, err)
	}
	return toks, nil
}

// ReadText parses the textual IR assembly format this module defines for
// test fixtures that would rather not stand up a real Go package on disk
// (--from-text). It is a small, purpose-built assembly syntax, not a
// serialization of irprint.Dump's pretty-printed output — the two are
// independent text representations of internal/ir, per spec §9's
// preference for an explicit sum-type-ish grammar over parsing back a
// display format never meant to be lossless.
//
// Grammar (one statement per line):
//
//	func NAME(NAME TYPE, ...) TYPE {
//	LABEL:
//	  NAME = OP [TYPE] ARG[, ARG]...
//	  ret [ARG]
//	  br LABEL
//	  if ARG -> LABEL, LABEL
//	  unreachable
//	}
//
// TYPE is one of f32/f64/i1/i8/i32/i64, or "*TYPE" for a pointer. ARG is
// a parameter name, a prior instruction's result name, or a bare numeric
// literal (materialized as a fresh f64 const, whatever the consuming op's
// type).
func ReadText(src string) (*ir.Function, error) {
	var lines []string
	for _, l := range strings.Split(src, "\n") {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty source", ErrUnsupportedConstruct)
	}

	header, err := tokenizeLine(lines[0])
	if err != nil {
		return nil, err
	}
	irfn, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	valueOf := map[string]*ir.Value{}
	for _, p := range irfn.Params {
		valueOf[p.Name()] = p
	}

	// Blocks are created in a pass over the labels alone, before any
	// statement is lowered: a "br"/"if" can name a block that only
	// appears later in source order (a loop header branching forward
	// into its own body), so findBlock must already see every label by
	// the time the first terminator references one.
	bodyLines := lines[1:]
	for _, line := range bodyLines {
		if line == "}" {
			break
		}
		toks, err := tokenizeLine(line)
		if err != nil {
			return nil, err
		}
		if len(toks) == 2 && toks[1] == ":" {
			irfn.NewBlock(toks[0])
		}
	}

	var curBlock *ir.Block
	var bld *ir.Builder
	var pending []pendingTextPhi
	for _, line := range bodyLines {
		if line == "}" {
			break
		}
		toks, err := tokenizeLine(line)
		if err != nil {
			return nil, err
		}
		if len(toks) == 0 {
			continue
		}

		if len(toks) == 2 && toks[1] == ":" {
			curBlock = findBlock(irfn, toks[0])
			bld = ir.NewBuilder(irfn, curBlock)
			continue
		}
		if bld == nil {
			return nil, fmt.Errorf("%w: statement before any block label: %q", ErrUnsupportedConstruct, line)
		}
		if err := parseStatement(irfn, bld, valueOf, &pending, toks); err != nil {
			return nil, fmt.Errorf("frontend: %q: %w", line, err)
		}
	}

	for _, pp := range pending {
		v, ok := valueOf[pp.name]
		if !ok {
			return nil, fmt.Errorf("%w: unresolved phi operand %q", ErrUnsupportedConstruct, pp.name)
		}
		pp.irPhi.SetArg(pp.edge, v)
	}
	return irfn, nil
}

type pendingTextPhi struct {
	irPhi *ir.Value
	edge  int
	name  string
}

func parseHeader(toks []string) (*ir.Function, error) {
	if len(toks) < 5 || toks[0] != "func" {
		return nil, fmt.Errorf("%w: expected \"func NAME(...) TYPE {\"", ErrUnsupportedConstruct)
	}
	name := toks[1]
	openParen := 2
	if toks[openParen] != "(" {
		return nil, fmt.Errorf("%w: expected \"(\" after function name", ErrUnsupportedConstruct)
	}
	i := openParen + 1
	var paramNames []string
	var paramTypes []ir.Type
	for toks[i] != ")" {
		pname := toks[i]
		i++
		t, n, err := parseType(toks, i)
		if err != nil {
			return nil, err
		}
		i = n
		paramNames = append(paramNames, pname)
		paramTypes = append(paramTypes, t)
		if toks[i] == "," {
			i++
		}
	}
	i++ // consume ")"
	retType, i, err := parseType(toks, i)
	if err != nil {
		return nil, err
	}
	if i >= len(toks) || toks[i] != "{" {
		return nil, fmt.Errorf("%w: expected \"{\" to open function body", ErrUnsupportedConstruct)
	}

	fn := ir.NewFunction(name, retType)
	for i, t := range paramTypes {
		p := fn.AddParam(t)
		p.SetName(paramNames[i])
	}
	return fn, nil
}

// parseType consumes a type starting at toks[i], returning it and the
// index just past it.
func parseType(toks []string, i int) (ir.Type, int, error) {
	if i >= len(toks) {
		return nil, i, fmt.Errorf("%w: expected a type", ErrUnsupportedConstruct)
	}
	if toks[i] == "*" {
		elem, n, err := parseType(toks, i+1)
		if err != nil {
			return nil, n, err
		}
		return ir.PointerType{Elem: elem}, n, nil
	}
	switch toks[i] {
	case "f32":
		return ir.F32, i + 1, nil
	case "f64":
		return ir.F64, i + 1, nil
	case "i1":
		return ir.I1, i + 1, nil
	case "i8":
		return ir.I8, i + 1, nil
	case "i32":
		return ir.I32, i + 1, nil
	case "i64":
		return ir.I64, i + 1, nil
	case "void":
		return ir.Void, i + 1, nil
	default:
		return nil, i, fmt.Errorf("%w: unknown type %q", ErrUnsupportedConstruct, toks[i])
	}
}

var binaryOps = map[string]ir.Op{
	"add": ir.OpAdd, "sub": ir.OpSub, "mul": ir.OpMul, "div": ir.OpDiv, "rem": ir.OpRem,
	"cmp": ir.OpCmp, "pow": ir.OpPow, "and": ir.OpAnd, "or": ir.OpOr, "xor": ir.OpXor,
	"shl": ir.OpShl, "shr": ir.OpShr,
}

var unaryOps = map[string]ir.Op{
	"neg": ir.OpNeg, "sqrt": ir.OpSqrt, "abs": ir.OpAbs, "log": ir.OpLog,
	"exp": ir.OpExp, "sin": ir.OpSin, "cos": ir.OpCos, "tanh": ir.OpTanh,
}

func parseStatement(irfn *ir.Function, bld *ir.Builder, valueOf map[string]*ir.Value, pending *[]pendingTextPhi, toks []string) error {
	switch toks[0] {
	case "ret":
		if len(toks) == 1 {
			irfn.SetRet(bld.Blk, nil)
			return nil
		}
		v, err := resolveArg(bld, valueOf, toks[1])
		if err != nil {
			return err
		}
		irfn.SetRet(bld.Blk, v)
		return nil
	case "br":
		target := findBlock(irfn, toks[1])
		if target == nil {
			return fmt.Errorf("%w: unknown block %q", ErrUnsupportedConstruct, toks[1])
		}
		irfn.SetBranch(bld.Blk, target)
		return nil
	case "if":
		cond, err := resolveArg(bld, valueOf, toks[1])
		if err != nil {
			return err
		}
		if toks[2] != "->" {
			return fmt.Errorf("%w: expected \"->\" in if", ErrUnsupportedConstruct)
		}
		t := findBlock(irfn, toks[3])
		f := findBlock(irfn, toks[5])
		if t == nil || f == nil {
			return fmt.Errorf("%w: unknown block in if", ErrUnsupportedConstruct)
		}
		irfn.SetCondBranch(bld.Blk, cond, t, f)
		return nil
	case "unreachable":
		bld.Blk.Kind = ir.BlockUnreachable
		return nil
	case "store":
		ptr, err := resolveArg(bld, valueOf, commaArg(toks[1:], 0))
		if err != nil {
			return err
		}
		val, err := resolveArg(bld, valueOf, commaArg(toks[1:], 1))
		if err != nil {
			return err
		}
		bld.Store(ptr, val)
		return nil
	}

	if len(toks) < 3 || toks[1] != "=" {
		return fmt.Errorf("%w: expected NAME = OP ...", ErrUnsupportedConstruct)
	}
	name, op := toks[0], toks[2]
	rest := toks[3:]

	var v *ir.Value
	switch {
	case op == "const":
		t, i, err := parseType(toks, 3)
		if err != nil {
			return err
		}
		lit := toks[i]
		switch tt := t.(type) {
		case ir.FloatType:
			f, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return err
			}
			v = bld.ConstFloat(tt.Width, f)
		case ir.IntType:
			n, err := strconv.ParseInt(lit, 10, 64)
			if err != nil {
				return err
			}
			v = bld.ConstInt(tt, n)
		default:
			return fmt.Errorf("%w: const of type %v", ErrUnsupportedConstruct, t)
		}

	case binaryOps[op] != ir.OpInvalid && len(rest) >= 2:
		x, err := resolveArg(bld, valueOf, commaArg(rest, 0))
		if err != nil {
			return err
		}
		y, err := resolveArg(bld, valueOf, commaArg(rest, 1))
		if err != nil {
			return err
		}
		v = bld.Binary(binaryOps[op], x, y)

	case unaryOps[op] != ir.OpInvalid:
		x, err := resolveArg(bld, valueOf, commaArg(rest, 0))
		if err != nil {
			return err
		}
		v = bld.Unary(unaryOps[op], x)

	case op == "select":
		c, err := resolveArg(bld, valueOf, commaArg(rest, 0))
		if err != nil {
			return err
		}
		a, err := resolveArg(bld, valueOf, commaArg(rest, 1))
		if err != nil {
			return err
		}
		b, err := resolveArg(bld, valueOf, commaArg(rest, 2))
		if err != nil {
			return err
		}
		v = bld.Select(c, a, b)

	case op == "cast" || op == "bitcast":
		t, i, err := parseType(toks, 3)
		if err != nil {
			return err
		}
		x, err := resolveArg(bld, valueOf, toks[i])
		if err != nil {
			return err
		}
		v = bld.Cast(x, t)

	case op == "call":
		callee := rest[0]
		args, err := resolveArgs(bld, valueOf, rest[1:])
		if err != nil {
			return err
		}
		// Return type is inferred as the caller's own declared result
		// width is unknown here; default to f64, the only scalar this
		// format's callers currently exercise.
		v = bld.Call(callee, ir.F64, args...)

	case op == "phi":
		t, i, err := parseType(toks, 3)
		if err != nil {
			return err
		}
		var incoming []*ir.Value
		var from []*ir.Block
		var deferredNames []string
		for _, pair := range splitCommaGroups(toks[i:]) {
			label, operand, ok := strings.Cut(strings.Join(pair, ""), ":")
			if !ok {
				return fmt.Errorf("%w: malformed phi edge", ErrUnsupportedConstruct)
			}
			b := findBlock(irfn, label)
			if b == nil {
				return fmt.Errorf("%w: unknown phi predecessor %q", ErrUnsupportedConstruct, label)
			}
			from = append(from, b)
			if val, ok := valueOf[operand]; ok {
				incoming = append(incoming, val)
				deferredNames = append(deferredNames, "")
			} else {
				incoming = append(incoming, zeroOf(bld, t))
				deferredNames = append(deferredNames, operand)
			}
		}
		v = bld.Phi(t, incoming, from)
		for i, n := range deferredNames {
			if n != "" {
				*pending = append(*pending, pendingTextPhi{irPhi: v, edge: i, name: n})
			}
		}

	case op == "load":
		t, i, err := parseType(toks, 3)
		if err != nil {
			return err
		}
		ptr, err := resolveArg(bld, valueOf, toks[i])
		if err != nil {
			return err
		}
		v = bld.Load(ptr, t)

	case op == "alloc":
		t, _, err := parseType(toks, 3)
		if err != nil {
			return err
		}
		v = bld.Alloc(t)

	default:
		return fmt.Errorf("%w: opcode %q", ErrUnsupportedConstruct, op)
	}

	if v == nil {
		return fmt.Errorf("%w: opcode %q with wrong operand count", ErrUnsupportedConstruct, op)
	}
	v.SetName(name)
	valueOf[name] = v
	return nil
}

// commaArg returns the n'th comma-separated operand token from a flat
// token slice like ["v1", ",", "v2"].
func commaArg(toks []string, n int) string {
	idx := 0
	for _, t := range toks {
		if t == "," {
			continue
		}
		if idx == n {
			return t
		}
		idx++
	}
	return ""
}

func splitCommaGroups(toks []string) [][]string {
	var groups [][]string
	var cur []string
	for _, t := range toks {
		if t == "," {
			if len(cur) > 0 {
				groups = append(groups, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func resolveArgs(bld *ir.Builder, valueOf map[string]*ir.Value, toks []string) ([]*ir.Value, error) {
	var args []*ir.Value
	for _, t := range toks {
		if t == "," {
			continue
		}
		v, err := resolveArg(bld, valueOf, t)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// resolveArg looks up a previously named value, or materializes a bare
// numeric literal as a fresh f64 constant — this format has no
// standalone literal-with-type syntax outside "const", so a bare literal
// used as an operand is always floating-point.
func resolveArg(bld *ir.Builder, valueOf map[string]*ir.Value, tok string) (*ir.Value, error) {
	if v, ok := valueOf[tok]; ok {
		return v, nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return bld.ConstFloat(ir.Double, f), nil
	}
	return nil, fmt.Errorf("%w: unresolved operand %q", ErrUnsupportedConstruct, tok)
}

func findBlock(fn *ir.Function, name string) *ir.Block {
	for _, b := range fn.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

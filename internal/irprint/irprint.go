// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package irprint renders internal/ir functions as readable text, for
// cmd/borngrad's -dump-pre/-dump-post flags (spec §6's "print pre/post IR" configuration
// knob). Output is plain ASCII-safe text; it only spends effort on
// terminal/width detection for the one thing that actually needs it:
// aligning each instruction's operand list into columns without
// miscounting wide runes in value names a frontend may have carried over
// from user source (spec §0's frontend/ lowers real Go identifiers, which
// are not guaranteed ASCII).
package irprint

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kr/text"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"github.com/born-ml/grad/internal/ir"
)

// Options controls how Dump renders a function.
type Options struct {
	// Color enables ANSI highlighting of block labels and terminators.
	// Dump applies it as given; AutoOptions is what sets it only for a
	// terminal, detected via isatty — matching the teacher's own CLI
	// convention of never emitting escape codes into a redirected file.
	Color bool
	// AlignOperands column-aligns each instruction's "= op ..." against
	// the widest value name in the block, using rune-width-aware padding
	// so a frontend-carried non-ASCII identifier doesn't throw off the
	// column.
	AlignOperands bool
}

// AutoOptions returns Options tuned for w: Color is enabled only if w is
// an *os.File attached to a terminal.
func AutoOptions(w io.Writer) Options {
	opts := Options{AlignOperands: true}
	if f, ok := w.(*os.File); ok {
		opts.Color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return opts
}

// Dump writes a textual rendering of fn to w.
func Dump(w io.Writer, fn *ir.Function, opts Options) {
	fmt.Fprintf(w, "func %s(%s) %s {\n", fn.Name, paramList(fn), fn.RetType)
	for _, b := range fn.Blocks {
		dumpBlock(w, b, opts)
	}
	fmt.Fprintln(w, "}")
}

func paramList(fn *ir.Function) string {
	parts := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		parts[i] = fmt.Sprintf("%s %s", p.Name(), p.Type)
	}
	return strings.Join(parts, ", ")
}

func dumpBlock(w io.Writer, b *ir.Block, opts Options) {
	label := fmt.Sprintf("%s:", blockLabel(b))
	if opts.Color {
		label = "\x1b[1;36m" + label + "\x1b[0m"
	}
	fmt.Fprintln(w, label)

	width := 0
	if opts.AlignOperands {
		for _, v := range b.Values {
			if n := runewidth.StringWidth(v.Name()); n > width {
				width = n
			}
		}
	}

	var body strings.Builder
	for _, v := range b.Values {
		line := v.String()
		if opts.AlignOperands && width > 0 {
			line = padName(v.Name(), width) + line[nameLen(v.Name()):]
		}
		fmt.Fprintln(&body, line)
	}
	fmt.Fprint(&body, terminatorLine(b, opts))

	fmt.Fprint(w, text.Indent(body.String(), "    "))
}

// nameLen returns the byte length of "name = " as String() renders it, so
// padName can splice a width-aware pad in without re-deriving the whole
// line.
func nameLen(name string) int { return len(name) + len(" = ") }

func padName(name string, width int) string {
	pad := width - runewidth.StringWidth(name)
	if pad < 0 {
		pad = 0
	}
	return name + strings.Repeat(" ", pad) + " = "
}

func blockLabel(b *ir.Block) string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("bb%d", b.ID)
}

func terminatorLine(b *ir.Block, opts Options) string {
	var s string
	switch b.Kind {
	case ir.BlockRet:
		if b.Control != nil && len(b.Control.Args) > 0 {
			s = fmt.Sprintf("ret %s\n", b.Control.Args[0].Name())
		} else {
			s = "ret\n"
		}
	case ir.BlockUnreachable:
		s = "unreachable\n"
	case ir.BlockIf:
		s = fmt.Sprintf("if %s -> %s, %s\n", b.Control.Name(), blockLabel(b.Succs[0]), blockLabel(b.Succs[1]))
	case ir.BlockSwitch:
		targets := make([]string, len(b.Succs))
		for i, s := range b.Succs {
			targets[i] = blockLabel(s)
		}
		s = fmt.Sprintf("switch %s -> [%s]\n", b.Control.Name(), strings.Join(targets, ", "))
	default:
		if len(b.Succs) == 1 {
			s = fmt.Sprintf("br %s\n", blockLabel(b.Succs[0]))
		}
	}
	if opts.Color && s != "" {
		s = "\x1b[2m" + strings.TrimRight(s, "\n") + "\x1b[0m\n"
	}
	return s
}

// graphemeSafeTrim truncates s to at most n terminal columns without
// splitting a multi-rune grapheme cluster. Dump does not call it: its
// operand alignment only pads names and never clips them.
func graphemeSafeTrim(s string, n int) string {
	if runewidth.StringWidth(s) <= n {
		return s
	}
	gr := uniseg.NewGraphemes(s)
	var b strings.Builder
	width := 0
	for gr.Next() {
		cw := runewidth.StringWidth(gr.Str())
		if width+cw > n {
			break
		}
		b.WriteString(gr.Str())
		width += cw
	}
	return b.String()
}

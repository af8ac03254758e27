// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ir

import "fmt"

// Function is a host IR function: a signature plus a control-flow graph of
// Blocks. Values and Blocks are numbered densely from zero so that
// typeanalysis/activity/gradsynth can index dense maps by ID instead of
// hashing pointers — the same trick cmd/compile/internal/ssa's sparsemap
// and bitset rely on.
type Function struct {
	Name    string
	Params  []*Value
	RetType Type
	Blocks  []*Block
	Entry   *Block

	nextValueID int
	nextBlockID int
}

// NewFunction creates an empty function with the given name and return
// type. Params must be added with AddParam before any blocks are built.
func NewFunction(name string, retType Type) *Function {
	return &Function{Name: name, RetType: retType}
}

// AddParam appends a new OpArg value of type t as the function's next
// parameter.
func (f *Function) AddParam(t Type) *Value {
	idx := len(f.Params)
	v := &Value{ID: f.nextValueID, Op: OpArg, Type: t, AuxInt: int64(idx)}
	f.nextValueID++
	f.Params = append(f.Params, v)
	return v
}

// NewBlock creates a new block owned by f, not yet wired into the CFG.
func (f *Function) NewBlock(name string) *Block {
	b := &Block{ID: f.nextBlockID, Name: name, Func: f}
	f.nextBlockID++
	f.Blocks = append(f.Blocks, b)
	if f.Entry == nil {
		f.Entry = b
	}
	return b
}

// NewValue allocates a fresh Value with the next ID, without attaching it
// to any block. Callers append it via Block.AppendValue.
func (f *Function) NewValue(op Op, t Type, args ...*Value) *Value {
	v := &Value{ID: f.nextValueID, Op: op, Type: t, Args: args}
	f.nextValueID++
	return v
}

// NumValues returns one past the largest Value ID ever allocated — the
// size a caller should give a dense per-value array or bitset.
func (f *Function) NumValues() int { return f.nextValueID }

// NumBlocks returns one past the largest Block ID ever allocated.
func (f *Function) NumBlocks() int { return f.nextBlockID }

// SetRet sets b's terminator to a return of the given value (nil for a
// void function).
func (f *Function) SetRet(b *Block, val *Value) {
	ret := f.NewValue(OpReturn, Void)
	if val != nil {
		ret.Args = []*Value{val}
		val.addReferrer(ret)
	}
	b.Control = ret
	b.Kind = BlockRet
	b.Values = append(b.Values, ret)
}

// SetBranch sets b's terminator to an unconditional branch to target.
func (f *Function) SetBranch(b *Block, target *Block) {
	b.Kind = BlockPlain
	b.AddSucc(target)
}

// SetCondBranch sets b's terminator to a two-way branch on cond.
func (f *Function) SetCondBranch(b *Block, cond *Value, ifTrue, ifFalse *Block) {
	b.Kind = BlockIf
	b.Control = cond
	b.AddSucc(ifTrue)
	b.AddSucc(ifFalse)
}

// SetSwitch sets b's terminator to an N-way dispatch on tag, an integer
// value expected to range over [0, len(succs)): succs[tag] is taken. Spec
// §4.H's reverse CFG builder uses this for a merge point with three or
// more predecessors, dispatching on a cached integer tag-phi rather than a
// chain of CondBranches.
func (f *Function) SetSwitch(b *Block, tag *Value, succs []*Block) {
	sw := f.NewValue(OpSwitch, Void, tag)
	tag.addReferrer(sw)
	b.Control = sw
	b.Kind = BlockSwitch
	b.Values = append(b.Values, sw)
	for _, s := range succs {
		b.AddSucc(s)
	}
}

// Verify performs the minimal structural checks §7's VerifierFailure
// diagnostic is raised from: every block (except the entry) has at least
// one predecessor, and every successor edge has its reciprocal
// predecessor edge. It does not check that a block ends in a terminator.
func (f *Function) Verify() error {
	for _, b := range f.Blocks {
		if b != f.Entry && len(b.Preds) == 0 {
			return fmt.Errorf("ir: block %s is unreachable but not pruned", b.Name)
		}
		for _, s := range b.Succs {
			found := false
			for _, p := range s.Preds {
				if p == b {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("ir: block %s -> %s missing reciprocal predecessor edge", b.Name, s.Name)
			}
		}
	}
	return nil
}

// Blockf formats a name using fmt-style verbs, convenient for generated
// blocks ("loop.header.%d").
func Blockf(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

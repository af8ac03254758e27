// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ir

// DomTree is the immediate-dominator relation for one Function, indexed by
// Block.ID exactly as cmd/compile/internal/ssa's nilcheckelim builds
// "domTree[dom.ID] = append(domTree[dom.ID], b)" from an idom array.
type DomTree struct {
	idom     []*Block // idom[b.ID] = immediate dominator of b, nil for the entry
	children [][]*Block
}

// Idom returns b's immediate dominator, or nil if b is the entry block.
func (t *DomTree) Idom(b *Block) *Block { return t.idom[b.ID] }

// Dominees returns the blocks b immediately dominates.
func (t *DomTree) Dominees(b *Block) []*Block { return t.children[b.ID] }

// Dominates reports whether a dominates b (reflexively: a dominates a).
func (t *DomTree) Dominates(a, b *Block) bool {
	for cur := b; cur != nil; cur = t.idom[cur.ID] {
		if cur == a {
			return true
		}
	}
	return false
}

// Dominators computes the immediate-dominator tree of f using the
// iterative algorithm of Cooper, Harvey & Kennedy, "A Simple, Fast
// Dominance Algorithm" (2001): repeatedly intersect each block's
// predecessors' dominators in reverse postorder until a fixed point. This
// converges in a small constant number of passes for the structured,
// reducible control flow the loop canonicalizer (§4.F) produces, and is
// far simpler to keep correct than Lengauer-Tarjan for the function sizes
// this module deals with.
func Dominators(f *Function) *DomTree {
	rpo := reversePostorder(f)
	order := make([]int, f.NumBlocks())
	for i, b := range rpo {
		order[b.ID] = i
	}

	idom := make([]*Block, f.NumBlocks())
	idom[f.Entry.ID] = f.Entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo {
			if b == f.Entry {
				continue
			}
			var newIdom *Block
			for _, p := range b.Preds {
				if idom[p.ID] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, order)
			}
			if newIdom != idom[b.ID] {
				idom[b.ID] = newIdom
				changed = true
			}
		}
	}
	idom[f.Entry.ID] = nil

	children := make([][]*Block, f.NumBlocks())
	for _, b := range f.Blocks {
		if d := idom[b.ID]; d != nil {
			children[d.ID] = append(children[d.ID], b)
		}
	}
	return &DomTree{idom: idom, children: children}
}

func intersect(a, b *Block, idom []*Block, order []int) *Block {
	for a != b {
		for order[a.ID] > order[b.ID] {
			a = idom[a.ID]
		}
		for order[b.ID] > order[a.ID] {
			b = idom[b.ID]
		}
	}
	return a
}

// reversePostorder returns f's reachable blocks in reverse postorder,
// entry first.
func reversePostorder(f *Function) []*Block {
	visited := make([]bool, f.NumBlocks())
	var post []*Block
	var visit func(b *Block)
	visit = func(b *Block) {
		if visited[b.ID] {
			return
		}
		visited[b.ID] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(f.Entry)

	rpo := make([]*Block, len(post))
	for i, b := range post {
		rpo[len(post)-1-i] = b
	}
	return rpo
}

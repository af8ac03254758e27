// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package typeanalysis

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/born-ml/grad/internal/ir"
)

// Cache is the interprocedural type cache of spec §4.C: a process-wide map
// from call signature to analyzed Results, guarded by a singleflight.Group
// so that two goroutines analyzing the same callee under the same
// signature concurrently share one analyzer run rather than duplicating
// it, the same acquisition discipline internal/parallel's worker pool
// expects of a shared resource.
type Cache struct {
	group singleflight.Group

	mu       sync.Mutex
	results  map[string]*Results
	funcs    map[string]*ir.Function
	inflight map[string]bool
}

// NewCache returns an empty interprocedural cache. funcs maps a callee
// name (as it appears in an OpCall's AuxString) to its ir.Function, the
// whole-program symbol table the cache consults to resolve call sites.
func NewCache(funcs map[string]*ir.Function) *Cache {
	return &Cache{results: map[string]*Results{}, funcs: funcs, inflight: map[string]bool{}}
}

// Lookup resolves name to a known ir.Function, or nil if the cache was not
// given one under that name.
func (c *Cache) Lookup(name string) *ir.Function {
	return c.funcs[name]
}

// Analyze returns the cached Results for info's signature, analyzing the
// callee exactly once even under concurrent callers with the same
// signature — spec §4.C's "if a hit, return the cached analyzer's
// per-value map; else analyze the callee ... cache, and return".
func (c *Cache) Analyze(info FnTypeInfo) (*Results, error) {
	key := info.cacheKey()

	c.mu.Lock()
	if r, ok := c.results[key]; ok {
		c.mu.Unlock()
		return r, nil
	}
	// A callee already on this call chain's in-flight set means the
	// program recurses; the synthesizer has no fixed-point story for a
	// function that calls itself (directly or through a cycle), so this
	// is reported rather than deadlocking on its own singleflight entry.
	if c.inflight[info.Callee.Name] {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRecursiveCall, info.Callee.Name)
	}
	c.inflight[info.Callee.Name] = true
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		r, err := Analyze(info.Callee, info, c)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.results[key] = r
		c.mu.Unlock()
		return r, nil
	})

	c.mu.Lock()
	delete(c.inflight, info.Callee.Name)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return v.(*Results), nil
}

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package activity

// knownPureSinks and ignorableCalls mirror internal/typeanalysis/symbols.go's
// tables: both packages classify the same fixed set of side-effecting-but-
// irrelevant calls (spec §4.D's "pure sinks/sources" and "ignorable calls"),
// kept as separate copies rather than a shared import to avoid a dependency
// edge between two otherwise-independent analyses.
var knownPureSinks = map[string]bool{
	"malloc":  true,
	"free":    true,
	"printf":  true,
	"fprintf": true,
	"puts":    true,
	"memset":  true,
}

var ignorableCalls = map[string]bool{
	"__lock_acquire": true,
	"__lock_release": true,
	"log.Printf":     true,
	"log.Println":    true,
}

func isIgnorableCall(name string) bool {
	return knownPureSinks[name] || ignorableCalls[name]
}

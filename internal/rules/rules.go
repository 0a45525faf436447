// Package rules defines the classification rule model and the versioned
// catalog it is loaded from. A rule is a pure predicate over one row plus a
// category label and a priority; the classification engine evaluates rules in
// ascending priority order with first-match-wins semantics.
package rules

import (
	"sort"

	"github.com/fincontrols/navrecon/internal/table"
)

// Predicate decides whether a rule applies to a row. Predicates must be
// side-effect-free: the engine gives no ordering guarantee between rows.
type Predicate func(table.Row) bool

// Rule assigns a category to rows matching its predicate.
type Rule struct {
	ID       string
	Category string
	Priority int
	Match    Predicate
}

// Catalog is an ordered, read-only rule set loaded once per run.
type Catalog struct {
	Version string
	Rules   []Rule
}

// New builds a catalog from programmatic rules, sorted by ascending priority.
// Ties preserve the given order.
func New(version string, rs ...Rule) *Catalog {
	c := &Catalog{Version: version, Rules: append([]Rule(nil), rs...)}
	sort.SliceStable(c.Rules, func(i, j int) bool {
		return c.Rules[i].Priority < c.Rules[j].Priority
	})
	return c
}

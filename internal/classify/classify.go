// Package classify applies an ordered rule catalog to a transaction table,
// assigning exactly one bridge category per row.
package classify

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fincontrols/navrecon/internal/domain"
	"github.com/fincontrols/navrecon/internal/rules"
	"github.com/fincontrols/navrecon/internal/table"
)

// RowError records a predicate failure on one row. The row is still
// classified (as Uncategorized); the error never aborts the batch.
type RowError struct {
	RowIndex int
	RuleID   string
	Err      error
}

// Result is a classified table plus the side log of per-row failures.
type Result struct {
	Table  *table.Table
	Errors []RowError
}

// Classify evaluates catalog rules against every row in ascending priority
// order. The first matching rule assigns its category and evaluation for that
// row stops. Rows matching no rule, and rows whose predicate panics, receive
// bridge_category = "Uncategorized". The input table is never mutated.
func Classify(t *table.Table, catalog *rules.Catalog, log zerolog.Logger) *Result {
	out := t.Clone()
	out.AddColumn(domain.ColBridgeCategory)

	result := &Result{Table: out}
	for i, row := range out.Rows() {
		category, ruleID, err := classifyRow(row, catalog)
		if err != nil {
			result.Errors = append(result.Errors, RowError{RowIndex: i, RuleID: ruleID, Err: err})
			log.Error().
				Int("row", i).
				Str("rule_id", ruleID).
				Str("document_no", row.String(domain.ColDocumentNo)).
				Err(err).
				Msg("rule predicate failed; row marked Uncategorized")
			category = domain.BridgeUncategorized
		}
		row[domain.ColBridgeCategory] = category
	}

	log.Info().
		Str("catalog_version", catalog.Version).
		Int("rows", out.Len()).
		Int("predicate_errors", len(result.Errors)).
		Msg("classification complete")
	return result
}

// classifyRow returns the category of the first matching rule, or
// Uncategorized when no rule matches. A panicking predicate is converted to
// an error along with the offending rule's id.
func classifyRow(row table.Row, catalog *rules.Catalog) (category, ruleID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("predicate panic: %v", r)
		}
	}()

	for _, rule := range catalog.Rules {
		ruleID = rule.ID
		if rule.Match(row) {
			return rule.Category, rule.ID, nil
		}
	}
	return domain.BridgeUncategorized, "", nil
}

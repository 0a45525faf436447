// Package pivot aggregates classified transactions into the Category×Type
// summary reviewed during the monthly control, plus a transaction-level lines
// table for drill-down. Output ordering is deterministic so reruns over the
// same input are bit-identical.
package pivot

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fincontrols/navrecon/internal/domain"
	"github.com/fincontrols/navrecon/internal/table"
)

// Entry is one aggregated (category, voucher_type) group.
type Entry struct {
	Category    string
	VoucherType string
	AmountLCY   decimal.Decimal
	RowCount    int
}

// Result holds the pivot summary and the lines detail for one dataset.
type Result struct {
	DatasetID string
	Entries   []Entry      // sorted, grand total last
	Pivot     *table.Table // tabular form of Entries
	Lines     *table.Table // classified rows with sentinels applied
}

// Total returns the grand-total entry.
func (r *Result) Total() Entry {
	return r.Entries[len(r.Entries)-1]
}

// Build groups classified rows by (bridge_category, voucher_type), sums
// amount_lcy per group, and appends a synthetic grand-total row keyed
// ("__TOTAL__", ""). Missing bridge_category defaults to "Uncategorized" and
// missing voucher_type to "Unknown"; rows are never dropped. Groups come out
// sorted lexicographically by (category, voucher_type) with the total last.
func Build(classified *table.Table, datasetID string, log zerolog.Logger) (*Result, error) {
	if err := classified.RequireColumns(datasetID, domain.ColAmountLCY); err != nil {
		return nil, fmt.Errorf("pivot.Build: %w", err)
	}

	lines := classified.Clone()
	lines.AddColumn(domain.ColBridgeCategory)
	lines.AddColumn(domain.ColVoucherType)

	type key struct{ category, voucherType string }
	sums := make(map[key]decimal.Decimal)
	counts := make(map[key]int)
	total := decimal.Zero

	for _, row := range lines.Rows() {
		category := row.String(domain.ColBridgeCategory)
		if category == "" {
			category = domain.BridgeUncategorized
			row[domain.ColBridgeCategory] = category
		}
		voucherType := row.String(domain.ColVoucherType)
		if voucherType == "" {
			voucherType = domain.TypeUnknown
			row[domain.ColVoucherType] = voucherType
		}

		k := key{category, voucherType}
		amount := row.Decimal(domain.ColAmountLCY)
		sums[k] = sums[k].Add(amount)
		counts[k]++
		total = total.Add(amount)
	}

	entries := make([]Entry, 0, len(sums)+1)
	for k, sum := range sums {
		entries = append(entries, Entry{
			Category:    k.category,
			VoucherType: k.voucherType,
			AmountLCY:   sum,
			RowCount:    counts[k],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Category != entries[j].Category {
			return entries[i].Category < entries[j].Category
		}
		return entries[i].VoucherType < entries[j].VoucherType
	})
	entries = append(entries, Entry{
		Category:  domain.PivotTotalKey,
		AmountLCY: total,
		RowCount:  lines.Len(),
	})

	pivotTable := table.New(domain.ColBridgeCategory, domain.ColVoucherType, domain.ColAmountLCY, "row_count")
	for _, e := range entries {
		pivotTable.Append(table.Row{
			domain.ColBridgeCategory: e.Category,
			domain.ColVoucherType:    e.VoucherType,
			domain.ColAmountLCY:      e.AmountLCY,
			"row_count":              e.RowCount,
		})
	}

	log.Info().
		Str("dataset_id", datasetID).
		Int("groups", len(entries)-1).
		Int("rows", lines.Len()).
		Str("total_amount_lcy", total.String()).
		Msg("pivot built")

	return &Result{
		DatasetID: datasetID,
		Entries:   entries,
		Pivot:     pivotTable,
		Lines:     lines,
	}, nil
}

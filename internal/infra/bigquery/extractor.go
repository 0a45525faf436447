// Package bigquery materializes reconciliation input tables from the
// warehouse. It is the only package that knows how data is fetched; the core
// sees tables and the exact query text for the evidence trail.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/fincontrols/navrecon/internal/recon"
	"github.com/fincontrols/navrecon/internal/table"
	"github.com/fincontrols/navrecon/internal/voucher"
)

const glEntriesQuery = `
	SELECT
		entry_no AS document_no,
		posting_date,
		gl_account,
		amount_lcy,
		user_id,
		description,
		document_type,
		bal_account_type,
		voucher_id,
		customer_id,
		country_code
	FROM nav.gl_entries
	WHERE gl_account = @account
	  AND entity = @entity
	  AND posting_date >= DATE_TRUNC(CURRENT_DATE(), MONTH) - INTERVAL 1 MONTH
	  AND posting_date < DATE_TRUNC(CURRENT_DATE(), MONTH)
`

const voucherUsageQuery = `
	SELECT
		voucher_id,
		business_use
	FROM bob.voucher_usage
	WHERE entity = @entity
`

// Extractor implements recon.Extractor against BigQuery. It holds a shared
// client to avoid creating a new connection per extraction.
type Extractor struct {
	client *bigquery.Client
}

// NewExtractor creates an extractor for the given project.
func NewExtractor(ctx context.Context, projectID string) (*Extractor, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewExtractor: bigquery client: %w", err)
	}
	return &Extractor{client: client}, nil
}

// Close closes the BigQuery client connection.
func (e *Extractor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// GLEntries materializes last month's voucher-accrual GL lines for entity.
func (e *Extractor) GLEntries(ctx context.Context, entity string) (*recon.Extract, error) {
	params := map[string]any{"account": voucher.AccrualAccount, "entity": entity}
	t, err := e.queryToTable(ctx, glEntriesQuery, params)
	if err != nil {
		return nil, fmt.Errorf("GLEntries: %w", err)
	}
	return &recon.Extract{Table: t, Query: glEntriesQuery, Params: params}, nil
}

// VoucherUsage materializes the usage extract for entity.
func (e *Extractor) VoucherUsage(ctx context.Context, entity string) (*recon.Extract, error) {
	params := map[string]any{"entity": entity}
	t, err := e.queryToTable(ctx, voucherUsageQuery, params)
	if err != nil {
		return nil, fmt.Errorf("VoucherUsage: %w", err)
	}
	return &recon.Extract{Table: t, Query: voucherUsageQuery, Params: params}, nil
}

// queryToTable runs a parameterized query and materializes every result row.
func (e *Extractor) queryToTable(ctx context.Context, query string, params map[string]any) (*table.Table, error) {
	q := e.client.Query(query)
	for name, value := range params {
		q.Parameters = append(q.Parameters, bigquery.QueryParameter{Name: name, Value: value})
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}

	var out *table.Table
	for {
		var values map[string]bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		if out == nil {
			out = table.New(schemaColumns(it.Schema)...)
		}
		row := make(table.Row, len(values))
		for k, v := range values {
			row[k] = convertValue(v)
		}
		out.Append(row)
	}
	if out == nil {
		// Zero result rows: the schema is still known once the iterator is
		// exhausted, so the empty table carries its columns and downstream
		// validation fails only for genuinely absent ones.
		out = table.New(schemaColumns(it.Schema)...)
	}
	return out, nil
}

// Ensure Extractor implements the recon boundary.
var _ recon.Extractor = (*Extractor)(nil)

func schemaColumns(schema bigquery.Schema) []string {
	cols := make([]string, len(schema))
	for i, f := range schema {
		cols[i] = f.Name
	}
	return cols
}

// convertValue maps BigQuery values onto the cell types the table package
// understands. Dates and timestamps become strings; numerics stay numeric so
// amount arithmetic remains exact downstream.
func convertValue(v bigquery.Value) any {
	switch val := v.(type) {
	case nil:
		return nil
	case civil.Date:
		return val.String()
	case civil.DateTime:
		return val.String()
	default:
		return val
	}
}

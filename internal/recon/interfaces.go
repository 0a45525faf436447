package recon

import (
	"context"

	"github.com/fincontrols/navrecon/internal/table"
)

// Extract is one materialized input table plus the exact query that produced
// it, recorded verbatim into the evidence package.
type Extract struct {
	Table  *table.Table
	Query  string
	Params map[string]any
}

// Extractor materializes the input tables for one entity. The core depends
// only on this boundary, never on how the data was fetched.
type Extractor interface {
	// GLEntries returns the voucher-accrual GL lines for the period.
	GLEntries(ctx context.Context, entity string) (*Extract, error)

	// VoucherUsage returns the usage extract joined against for Usage
	// sub-type resolution.
	VoucherUsage(ctx context.Context, entity string) (*Extract, error)
}

// Archiver ships a finalized evidence archive to durable storage and returns
// its remote location.
type Archiver interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

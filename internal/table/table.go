// Package table provides the in-memory tabular data model shared by every
// stage of the reconciliation pipeline. Tables are materialized snapshots:
// the extraction layer builds them once, and downstream stages derive new
// tables rather than mutating rows in place.
package table

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Row is a single record keyed by column name. Cell values are one of:
// string, decimal.Decimal, float64, int, int64, bool, or nil for missing.
type Row map[string]any

// Table is an ordered collection of rows with a declared column set.
// Column order is preserved so serialization and CSV dumps are deterministic.
type Table struct {
	columns []string
	colSet  map[string]bool
	rows    []Row
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		colSet:  make(map[string]bool, len(columns)),
	}
	for _, c := range columns {
		t.colSet[c] = true
	}
	return t
}

// FromRows creates a table with the given columns and rows.
// Rows are referenced, not copied; callers must not mutate them afterwards.
func FromRows(columns []string, rows []Row) *Table {
	t := New(columns...)
	t.rows = append(t.rows, rows...)
	return t
}

// Append adds a row to the table.
func (t *Table) Append(row Row) {
	t.rows = append(t.rows, row)
}

// Columns returns the declared column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Rows returns the underlying row slice.
func (t *Table) Rows() []Row {
	return t.rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// HasColumn reports whether the column is declared on the table.
func (t *Table) HasColumn(name string) bool {
	return t.colSet[name]
}

// AddColumn declares a new column. Adding an existing column is a no-op,
// so derived-column writers can call it unconditionally.
func (t *Table) AddColumn(name string) {
	if t.colSet[name] {
		return
	}
	t.columns = append(t.columns, name)
	t.colSet[name] = true
}

// Clone returns a deep copy of the table. Derivation steps clone their input
// so the source snapshot is never mutated.
func (t *Table) Clone() *Table {
	out := New(t.columns...)
	out.rows = make([]Row, 0, len(t.rows))
	for _, r := range t.rows {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out.rows = append(out.rows, cp)
	}
	return out
}

// MissingColumnError reports required columns absent from a table.
// This is a configuration error: callers fail fast rather than defaulting.
type MissingColumnError struct {
	Table   string
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("table %q is missing required column(s): %s", e.Table, strings.Join(e.Columns, ", "))
}

// RequireColumns verifies that every named column is declared, returning a
// *MissingColumnError naming each absent column otherwise.
func (t *Table) RequireColumns(name string, required ...string) error {
	var missing []string
	for _, c := range required {
		if !t.colSet[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingColumnError{Table: name, Columns: missing}
	}
	return nil
}

// String returns the cell as a string. Nil and absent cells yield "".
func (r Row) String(col string) string {
	v, ok := r[col]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Decimal returns the cell as a decimal. Nil, absent, and unparseable cells
// yield zero; amounts arriving as float64 from the extraction layer are
// converted exactly once here.
func (r Row) Decimal(col string) decimal.Decimal {
	v, ok := r[col]
	if !ok || v == nil {
		return decimal.Zero
	}
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case float64:
		return decimal.NewFromFloat(n)
	case int:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

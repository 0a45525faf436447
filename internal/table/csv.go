package table

import (
	"encoding/csv"
	"fmt"
	"os"
)

// ReadCSV loads a table from a CSV file. The first record is the header.
// Every cell is loaded as a string; numeric columns are converted on access
// through Row.Decimal.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: open %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: parse %q: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("ReadCSV: %q has no header record", path)
	}

	t := New(records[0]...)
	for _, rec := range records[1:] {
		row := make(Row, len(rec))
		for i, col := range records[0] {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		t.Append(row)
	}
	return t, nil
}

// WriteCSV writes the table to path with a header record. Cells are rendered
// through Row.String, so a table written and re-read keeps its canonical
// digest.
func WriteCSV(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteCSV: create %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	cols := t.Columns()
	if err := w.Write(cols); err != nil {
		return fmt.Errorf("WriteCSV: write header: %w", err)
	}
	for _, row := range t.Rows() {
		rec := make([]string, len(cols))
		for i, c := range cols {
			rec[i] = row.String(c)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("WriteCSV: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flush: %w", err)
	}
	return nil
}

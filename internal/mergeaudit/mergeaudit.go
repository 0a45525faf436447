// Package mergeaudit detects duplicate join keys before a join executes.
// A join where one side has duplicate keys fans rows out; where both sides do,
// amounts inflate as a Cartesian product. The auditor is strictly advisory:
// it never performs the join, it only counts, dumps offending rows to CSV,
// and appends its findings to a persistent audit log.
package mergeaudit

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fincontrols/navrecon/internal/table"
)

// Result reports duplicate-key findings for one prospective join.
// A fresh result is produced per join attempt; results are never cached.
type Result struct {
	Name string
	Keys []string

	LeftTotalRows      int
	RightTotalRows     int
	LeftDuplicateRows  int
	RightDuplicateRows int
	LeftUniqueDupKeys  int
	RightUniqueDupKeys int

	HasDuplicates bool
	CartesianRisk bool

	LeftDumpPath  string
	RightDumpPath string
}

// Audit inspects both sides of a prospective join on the given key columns.
// Missing key columns are a hard error; an empty side is valid and yields
// zero duplicates. When a side has duplicates, every row sharing a duplicated
// key is dumped to a CSV under outDir, named from name. Findings are appended
// to auditLog so repeated runs accumulate a full history.
func Audit(left, right *table.Table, keys []string, name, outDir string, auditLog zerolog.Logger) (*Result, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("mergeaudit.Audit %q: no join keys given", name)
	}
	if err := left.RequireColumns("left", keys...); err != nil {
		return nil, fmt.Errorf("mergeaudit.Audit %q: %w", name, err)
	}
	if err := right.RequireColumns("right", keys...); err != nil {
		return nil, fmt.Errorf("mergeaudit.Audit %q: %w", name, err)
	}

	res := &Result{
		Name:           name,
		Keys:           append([]string(nil), keys...),
		LeftTotalRows:  left.Len(),
		RightTotalRows: right.Len(),
	}

	leftDupRows, leftDupKeys := findDuplicates(left, keys)
	rightDupRows, rightDupKeys := findDuplicates(right, keys)
	res.LeftDuplicateRows = len(leftDupRows)
	res.RightDuplicateRows = len(rightDupRows)
	res.LeftUniqueDupKeys = leftDupKeys
	res.RightUniqueDupKeys = rightDupKeys
	res.HasDuplicates = res.LeftDuplicateRows > 0 || res.RightDuplicateRows > 0
	res.CartesianRisk = res.LeftDuplicateRows > 0 && res.RightDuplicateRows > 0

	if len(leftDupRows) > 0 {
		path, err := dumpCSV(left.Columns(), leftDupRows, outDir, name+"_left_duplicates.csv")
		if err != nil {
			return nil, fmt.Errorf("mergeaudit.Audit %q: %w", name, err)
		}
		res.LeftDumpPath = path
	}
	if len(rightDupRows) > 0 {
		path, err := dumpCSV(right.Columns(), rightDupRows, outDir, name+"_right_duplicates.csv")
		if err != nil {
			return nil, fmt.Errorf("mergeaudit.Audit %q: %w", name, err)
		}
		res.RightDumpPath = path
	}

	auditLog.Info().
		Str("merge_name", name).
		Strs("keys", keys).
		Int("left_total_rows", res.LeftTotalRows).
		Int("right_total_rows", res.RightTotalRows).
		Int("left_duplicate_rows", res.LeftDuplicateRows).
		Int("right_duplicate_rows", res.RightDuplicateRows).
		Int("left_unique_dup_keys", res.LeftUniqueDupKeys).
		Int("right_unique_dup_keys", res.RightUniqueDupKeys).
		Bool("has_duplicates", res.HasDuplicates).
		Bool("cartesian_risk", res.CartesianRisk).
		Str("left_dump_path", res.LeftDumpPath).
		Str("right_dump_path", res.RightDumpPath).
		Msg("merge audited")

	return res, nil
}

// findDuplicates returns every row whose composite key value occurs more than
// once, plus the count of distinct duplicated key values. A key occurring n
// times contributes n rows and one distinct key.
func findDuplicates(t *table.Table, keys []string) ([]table.Row, int) {
	counts := make(map[string]int, t.Len())
	for _, row := range t.Rows() {
		counts[compositeKey(row, keys)]++
	}

	dupKeys := 0
	for _, n := range counts {
		if n > 1 {
			dupKeys++
		}
	}
	if dupKeys == 0 {
		return nil, 0
	}

	var dupRows []table.Row
	for _, row := range t.Rows() {
		if counts[compositeKey(row, keys)] > 1 {
			dupRows = append(dupRows, row)
		}
	}
	return dupRows, dupKeys
}

// compositeKey joins key cells with a unit separator so multi-column keys
// cannot collide with single-column values.
func compositeKey(row table.Row, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = row.String(k)
	}
	return strings.Join(parts, "\x1f")
}

func dumpCSV(columns []string, rows []table.Row, outDir, filename string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create out dir: %w", err)
	}
	path := filepath.Join(outDir, filename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create dump file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			record[i] = row.String(c)
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush dump file: %w", err)
	}
	return path, nil
}

package table

import "fmt"

// LeftJoin enriches left with the named columns from right, matched on key.
// Every left row appears in the output; rows without a match carry nil in the
// joined columns. A left row matching n right rows produces n output rows,
// which is exactly the fan-out the merge auditor exists to surface, so
// callers must audit both sides before joining.
func LeftJoin(left, right *Table, key string, cols ...string) (*Table, error) {
	if err := left.RequireColumns("left", key); err != nil {
		return nil, fmt.Errorf("LeftJoin: %w", err)
	}
	required := append([]string{key}, cols...)
	if err := right.RequireColumns("right", required...); err != nil {
		return nil, fmt.Errorf("LeftJoin: %w", err)
	}

	index := make(map[string][]Row, right.Len())
	for _, r := range right.Rows() {
		k := r.String(key)
		index[k] = append(index[k], r)
	}

	outCols := left.Columns()
	for _, c := range cols {
		if !left.HasColumn(c) {
			outCols = append(outCols, c)
		}
	}
	out := New(outCols...)

	for _, l := range left.Rows() {
		matches := index[l.String(key)]
		if len(matches) == 0 {
			merged := make(Row, len(l)+len(cols))
			for k, v := range l {
				merged[k] = v
			}
			for _, c := range cols {
				merged[c] = nil
			}
			out.Append(merged)
			continue
		}
		for _, m := range matches {
			merged := make(Row, len(l)+len(cols))
			for k, v := range l {
				merged[k] = v
			}
			for _, c := range cols {
				merged[c] = m[c]
			}
			out.Append(merged)
		}
	}
	return out, nil
}

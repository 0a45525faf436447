// Package evidence produces the tamper-evident audit trail for extraction and
// calculation runs. Each run gets one package: an ordered, numbered set of
// artifacts (query, snapshot, summary, digest, validation, execution log)
// sealed with a content digest and bundled into a single archive for
// auditors. Packages are write-once; a rerun produces a new package with a
// new timestamp, never an amended one.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fincontrols/navrecon/internal/table"
)

// Artifact filenames, in archive order.
const (
	artifactQuery      = "01_query.json"
	artifactSnapshot   = "02_snapshot.json"
	artifactSummary    = "03_summary.json"
	artifactDigest     = "04_digest.txt"
	artifactValidation = "05_validation.json"
	artifactLog        = "06_execution_log.json"
)

// ErrSealed is returned when a write would amend a sealed package.
var ErrSealed = errors.New("evidence package is sealed")

// ArtifactError reports a failed artifact write. Partial artifacts already on
// disk are preserved; auditability favors over-retention.
type ArtifactError struct {
	Artifact string
	Err      error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("evidence artifact %s: %v", e.Artifact, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// Generator creates evidence packages under a base directory. Concurrent runs
// are safe: every package directory is named from (subject_id, timestamp,
// run id), so no run can overwrite another's artifacts.
type Generator struct {
	baseDir string
	log     zerolog.Logger
	now     func() time.Time
}

// NewGenerator creates a generator writing packages under baseDir.
func NewGenerator(baseDir string, log zerolog.Logger) *Generator {
	return &Generator{baseDir: baseDir, log: log, now: time.Now}
}

// logEntry is one timestamped action in the execution log.
type logEntry struct {
	Time     time.Time `json:"time"`
	Action   string    `json:"action"`
	Artifact string    `json:"artifact,omitempty"`
	Status   string    `json:"status"`
	Error    string    `json:"error,omitempty"`
}

// Package is the handle for one evidence package. Not safe for concurrent
// use; a run writes its own package single-threaded.
type Package struct {
	SubjectID string
	RunID     string
	Timestamp time.Time
	Dir       string

	gen     *Generator
	sealed  bool
	failed  bool
	digest  string
	written map[string]bool
	entries []logEntry
}

// Begin opens a new evidence package for subjectID.
func (g *Generator) Begin(subjectID string) (*Package, error) {
	ts := g.now().UTC()
	runID := uuid.NewString()
	dir := filepath.Join(g.baseDir, fmt.Sprintf("%s_%s_%s", subjectID, ts.Format("20060102T150405Z"), runID[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence.Begin: create package dir: %w", err)
	}

	p := &Package{
		SubjectID: subjectID,
		RunID:     runID,
		Timestamp: ts,
		Dir:       dir,
		gen:       g,
		written:   make(map[string]bool),
	}
	p.record("begin", "", nil)
	g.log.Info().Str("subject_id", subjectID).Str("run_id", runID).Str("dir", dir).Msg("evidence package opened")
	return p, nil
}

// RecordQuery stores the exact query text and parameters of the extraction.
func (p *Package) RecordQuery(text string, params map[string]any) error {
	return p.writeJSON(artifactQuery, map[string]any{
		"query":       text,
		"params":      params,
		"recorded_at": p.gen.now().UTC(),
	}, true)
}

// RecordSnapshot captures a bounded prefix of t plus its dimensions. The full
// dataset is never stored when it exceeds maxRows; the seal digest, not the
// snapshot, is the integrity proof over the whole dataset.
func (p *Package) RecordSnapshot(t *table.Table, maxRows int) error {
	rows := t.Rows()
	truncated := false
	if maxRows >= 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
		truncated = true
	}

	captured := make([]map[string]string, len(rows))
	cols := t.Columns()
	for i, row := range rows {
		rec := make(map[string]string, len(cols))
		for _, c := range cols {
			rec[c] = row.String(c)
		}
		captured[i] = rec
	}

	return p.writeJSON(artifactSnapshot, map[string]any{
		"row_count":    t.Len(),
		"column_count": len(cols),
		"columns":      cols,
		"captured":     captured,
		"truncated":    truncated,
		"recorded_at":  p.gen.now().UTC(),
	}, true)
}

// columnStats is the per-column statistical summary.
type columnStats struct {
	NonEmpty int    `json:"non_empty"`
	Sum      string `json:"sum,omitempty"`
	Min      string `json:"min,omitempty"`
	Max      string `json:"max,omitempty"`
}

// RecordSummary stores row/column counts and simple per-column statistics.
// Numeric statistics are only emitted for columns whose every non-empty cell
// is numeric.
func (p *Package) RecordSummary(t *table.Table) error {
	stats := make(map[string]columnStats, len(t.Columns()))
	for _, col := range t.Columns() {
		stats[col] = summarizeColumn(t, col)
	}
	return p.writeJSON(artifactSummary, map[string]any{
		"row_count":    t.Len(),
		"column_count": len(t.Columns()),
		"columns":      stats,
		"recorded_at":  p.gen.now().UTC(),
	}, true)
}

// Seal computes the content digest over the canonical serialization of the
// complete dataset and freezes the package: no prior artifact may be written
// again. Validation results and the execution log are still appended
// afterwards as their own numbered artifacts.
func (p *Package) Seal(t *table.Table) (string, error) {
	if p.sealed {
		return "", ErrSealed
	}

	digest := Digest(t)
	content := fmt.Sprintf("sha256:%s\nrows:%d\ncolumns:%d\nsealed_at:%s\n",
		digest, t.Len(), len(t.Columns()), p.gen.now().UTC().Format(time.RFC3339))
	if err := p.writeRaw(artifactDigest, []byte(content)); err != nil {
		return "", err
	}

	p.sealed = true
	p.digest = digest
	p.record("seal", artifactDigest, nil)
	p.gen.log.Info().Str("subject_id", p.SubjectID).Str("digest", digest).Msg("evidence package sealed")
	return digest, nil
}

// Digest returns the hex SHA-256 over the canonical serialization of t.
// Serialization is deterministic (rows in table order, cells in lexicographic
// column order), so identical data always yields the identical digest.
func Digest(t *table.Table) string {
	cols := t.Columns()
	sort.Strings(cols)

	h := sha256.New()
	for _, row := range t.Rows() {
		parts := make([]string, len(cols))
		for i, c := range cols {
			parts[i] = c + "=" + row.String(c)
		}
		h.Write([]byte(strings.Join(parts, "\x1f")))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the canonical digest of t and compares it to want.
func Verify(t *table.Table, want string) bool {
	want = strings.TrimPrefix(want, "sha256:")
	return Digest(t) == want
}

// RecordValidation stores named validation outcomes (conservation checks,
// control-total comparisons) as the package's fifth artifact.
func (p *Package) RecordValidation(results map[string]bool) error {
	passed := true
	for _, ok := range results {
		passed = passed && ok
	}
	return p.writeJSON(artifactValidation, map[string]any{
		"results":     results,
		"all_passed":  passed,
		"recorded_at": p.gen.now().UTC(),
	}, false)
}

// Finalize writes the execution log and bundles every artifact into a single
// zip archive next to the package directory, returning the archive path.
// This archive is the unit handed to auditors.
func (p *Package) Finalize() (string, error) {
	p.record("finalize", artifactLog, nil)
	logDoc := map[string]any{
		"subject_id": p.SubjectID,
		"run_id":     p.RunID,
		"timestamp":  p.Timestamp,
		"digest":     p.digest,
		"failed":     p.failed,
		"entries":    p.entries,
	}
	data, err := json.MarshalIndent(logDoc, "", "  ")
	if err != nil {
		return "", &ArtifactError{Artifact: artifactLog, Err: err}
	}
	if err := os.WriteFile(filepath.Join(p.Dir, artifactLog), data, 0o644); err != nil {
		p.failed = true
		return "", &ArtifactError{Artifact: artifactLog, Err: err}
	}

	archivePath := p.Dir + ".zip"
	if err := zipDir(p.Dir, archivePath); err != nil {
		p.failed = true
		return "", fmt.Errorf("evidence.Finalize: %w", err)
	}

	p.gen.log.Info().Str("subject_id", p.SubjectID).Str("archive", archivePath).Msg("evidence package finalized")
	return archivePath, nil
}

// Digest returns the seal digest, empty until Seal has been called.
func (p *Package) Digest() string { return p.digest }

// Failed reports whether any artifact write failed.
func (p *Package) Failed() bool { return p.failed }

func (p *Package) writeJSON(name string, doc any, preSeal bool) error {
	if preSeal && p.sealed {
		p.record("write", name, ErrSealed)
		return fmt.Errorf("evidence artifact %s: %w", name, ErrSealed)
	}
	if p.written[name] {
		err := fmt.Errorf("artifact already written")
		p.record("write", name, err)
		return &ArtifactError{Artifact: name, Err: err}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		p.failed = true
		p.record("write", name, err)
		return &ArtifactError{Artifact: name, Err: err}
	}
	if err := os.WriteFile(filepath.Join(p.Dir, name), data, 0o644); err != nil {
		p.failed = true
		p.record("write", name, err)
		return &ArtifactError{Artifact: name, Err: err}
	}
	p.written[name] = true
	p.record("write", name, nil)
	return nil
}

func (p *Package) writeRaw(name string, data []byte) error {
	if p.written[name] {
		err := fmt.Errorf("artifact already written")
		p.record("write", name, err)
		return &ArtifactError{Artifact: name, Err: err}
	}
	if err := os.WriteFile(filepath.Join(p.Dir, name), data, 0o644); err != nil {
		p.failed = true
		p.record("write", name, err)
		return &ArtifactError{Artifact: name, Err: err}
	}
	p.written[name] = true
	return nil
}

func (p *Package) record(action, artifact string, err error) {
	e := logEntry{
		Time:     p.gen.now().UTC(),
		Action:   action,
		Artifact: artifact,
		Status:   "ok",
	}
	if err != nil {
		e.Status = "failed"
		e.Error = err.Error()
	}
	p.entries = append(p.entries, e)
}

func summarizeColumn(t *table.Table, col string) columnStats {
	var stats columnStats
	var sum, min, max decimal.Decimal
	numeric := true
	first := true

	for _, row := range t.Rows() {
		s := row.String(col)
		if s == "" {
			continue
		}
		stats.NonEmpty++
		d, err := decimal.NewFromString(s)
		if err != nil {
			numeric = false
			continue
		}
		sum = sum.Add(d)
		if first || d.LessThan(min) {
			min = d
		}
		if first || d.GreaterThan(max) {
			max = d
		}
		first = false
	}

	if numeric && stats.NonEmpty > 0 {
		stats.Sum = sum.String()
		stats.Min = min.String()
		stats.Max = max.String()
	}
	return stats
}

package recon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fincontrols/navrecon/internal/domain"
	"github.com/fincontrols/navrecon/internal/evidence"
	"github.com/fincontrols/navrecon/internal/mergeaudit"
	"github.com/fincontrols/navrecon/internal/pivot"
	"github.com/fincontrols/navrecon/internal/table"
	"github.com/fincontrols/navrecon/internal/voucher"
)

// Step is a single stage of the reconciliation pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// State holds the shared state across all pipeline steps.
type State struct {
	Entity string

	GL    *Extract
	Usage *Extract

	UsageAudit *mergeaudit.Result
	Classified *table.Table
	Pivot      *pivot.Result

	Evidence    *evidence.Package
	Digest      string
	ArchivePath string
	RemotePath  string
}

// ExtractStep materializes the GL and usage extracts for the entity.
type ExtractStep struct {
	Extractor Extractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *State) error {
	gl, err := s.Extractor.GLEntries(ctx, state.Entity)
	if err != nil {
		return fmt.Errorf("extract gl entries: %w", err)
	}
	usage, err := s.Extractor.VoucherUsage(ctx, state.Entity)
	if err != nil {
		return fmt.Errorf("extract voucher usage: %w", err)
	}
	state.GL = gl
	state.Usage = usage
	return nil
}

// BeginEvidenceStep opens the evidence package and records the extraction
// query and a bounded snapshot of the GL input.
type BeginEvidenceStep struct {
	Generator       *evidence.Generator
	SnapshotMaxRows int
}

func (s *BeginEvidenceStep) Execute(ctx context.Context, state *State) error {
	pkg, err := s.Generator.Begin("voucher-recon-" + state.Entity)
	if err != nil {
		return err
	}
	state.Evidence = pkg

	params := make(map[string]any, len(state.GL.Params)+1)
	for k, v := range state.GL.Params {
		params[k] = v
	}
	params["usage_query"] = state.Usage.Query
	if err := pkg.RecordQuery(state.GL.Query, params); err != nil {
		return err
	}
	return pkg.RecordSnapshot(state.GL.Table, s.SnapshotMaxRows)
}

// AuditUsageJoinStep runs the mandatory pre-join merge audit for the usage
// join. The categorizer refuses to join without its result.
type AuditUsageJoinStep struct {
	AuditLog zerolog.Logger
	OutDir   string
}

func (s *AuditUsageJoinStep) Execute(ctx context.Context, state *State) error {
	res, err := mergeaudit.Audit(
		state.GL.Table, state.Usage.Table,
		[]string{domain.ColVoucherID},
		state.Entity+"_usage_join", s.OutDir, s.AuditLog,
	)
	if err != nil {
		return err
	}
	state.UsageAudit = res
	return nil
}

// CategorizeStep assigns bridge_category and voucher_type to every GL line.
type CategorizeStep struct {
	Categorizer *voucher.Categorizer
}

func (s *CategorizeStep) Execute(ctx context.Context, state *State) error {
	classified, err := s.Categorizer.Categorize(state.GL.Table, state.Usage.Table, state.UsageAudit)
	if err != nil {
		return err
	}
	state.Classified = classified
	return nil
}

// PivotStep aggregates classified lines into the Category×Type summary.
type PivotStep struct {
	Log zerolog.Logger
}

func (s *PivotStep) Execute(ctx context.Context, state *State) error {
	res, err := pivot.Build(state.Classified, state.Entity, s.Log)
	if err != nil {
		return err
	}
	state.Pivot = res
	return nil
}

// RecordSummaryStep stores the statistical summary of the pivot.
type RecordSummaryStep struct{}

func (s *RecordSummaryStep) Execute(ctx context.Context, state *State) error {
	return state.Evidence.RecordSummary(state.Pivot.Pivot)
}

// SealStep computes the integrity digest over the complete classified
// dataset, freezing the evidence package.
type SealStep struct{}

func (s *SealStep) Execute(ctx context.Context, state *State) error {
	digest, err := state.Evidence.Seal(state.Pivot.Lines)
	if err != nil {
		return err
	}
	state.Digest = digest
	return nil
}

// ValidateStep checks the pivot invariants and records the outcomes. Findings
// are evidence, not errors: a failed check is surfaced for review, the run
// still completes and seals.
type ValidateStep struct{}

func (s *ValidateStep) Execute(ctx context.Context, state *State) error {
	results := map[string]bool{
		"conservation":   checkConservation(state.Pivot),
		"total_coverage": state.Pivot.Total().RowCount == state.Pivot.Lines.Len(),
		"join_fan_out":   state.Pivot.Lines.Len() == state.GL.Table.Len(),
		"no_cartesian":   !state.UsageAudit.CartesianRisk,
	}
	return state.Evidence.RecordValidation(results)
}

func checkConservation(res *pivot.Result) bool {
	sum := decimal.Zero
	for _, e := range res.Entries[:len(res.Entries)-1] {
		sum = sum.Add(e.AmountLCY)
	}
	return sum.Equal(res.Total().AmountLCY)
}

// FinalizeStep bundles the evidence package into its archive.
type FinalizeStep struct{}

func (s *FinalizeStep) Execute(ctx context.Context, state *State) error {
	path, err := state.Evidence.Finalize()
	if err != nil {
		return err
	}
	state.ArchivePath = path
	return nil
}

// UploadArchiveStep ships the archive to durable storage when an archiver is
// configured.
type UploadArchiveStep struct {
	Archiver Archiver
}

func (s *UploadArchiveStep) Execute(ctx context.Context, state *State) error {
	if s.Archiver == nil {
		return nil
	}
	remote, err := s.Archiver.Upload(ctx, state.ArchivePath)
	if err != nil {
		return err
	}
	state.RemotePath = remote
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

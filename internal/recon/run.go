package recon

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fincontrols/navrecon/internal/evidence"
	"github.com/fincontrols/navrecon/internal/logger"
	"github.com/fincontrols/navrecon/internal/pivot"
	"github.com/fincontrols/navrecon/internal/voucher"
)

// Result summarizes one completed reconciliation run.
type Result struct {
	Entity      string
	Digest      string
	ArchivePath string
	RemotePath  string
	Pivot       *pivot.Result
}

// NewVoucherReconPipeline assembles the standard voucher reconciliation
// pipeline: extract, open evidence, audit the usage join, categorize, pivot,
// summarize, seal, validate, finalize, and optionally upload.
func NewVoucherReconPipeline(cfg *Config, ext Extractor, arch Archiver, deps *Deps) *Pipeline {
	return NewPipeline(
		&ExtractStep{Extractor: ext},
		&BeginEvidenceStep{Generator: deps.Evidence, SnapshotMaxRows: cfg.SnapshotMaxRows},
		&AuditUsageJoinStep{AuditLog: deps.AuditLog, OutDir: cfg.OutDir},
		&CategorizeStep{Categorizer: deps.Categorizer},
		&PivotStep{Log: deps.Log},
		&RecordSummaryStep{},
		&SealStep{},
		&ValidateStep{},
		&FinalizeStep{},
		&UploadArchiveStep{Archiver: arch},
	)
}

// Deps bundles the long-lived collaborators a pipeline needs.
type Deps struct {
	Evidence    *evidence.Generator
	Categorizer *voucher.Categorizer
	AuditLog    zerolog.Logger
	Log         zerolog.Logger
}

// Run executes one reconciliation for cfg.Entity. Fatal errors (missing
// columns, skipped audits, evidence I/O) abort the run; if an evidence
// package was already open, it is finalized as a partial package so the
// failed attempt still leaves a trail. Retrying with identical inputs
// produces an identical digest, so the orchestrator may re-execute freely.
func Run(ctx context.Context, cfg *Config, ext Extractor, arch Archiver, deps *Deps) (*Result, error) {
	log := logger.FromContext(ctx)
	state := &State{Entity: cfg.Entity}

	if err := NewVoucherReconPipeline(cfg, ext, arch, deps).Execute(ctx, state); err != nil {
		if state.Evidence != nil && state.ArchivePath == "" {
			if path, ferr := state.Evidence.Finalize(); ferr == nil {
				log.Warn().Str("entity", cfg.Entity).Str("archive", path).Msg("run failed; partial evidence package retained")
			}
		}
		return nil, err
	}

	log.Info().
		Str("entity", cfg.Entity).
		Str("digest", state.Digest).
		Str("archive", state.ArchivePath).
		Msg("reconciliation run complete")

	return &Result{
		Entity:      cfg.Entity,
		Digest:      state.Digest,
		ArchivePath: state.ArchivePath,
		RemotePath:  state.RemotePath,
		Pivot:       state.Pivot,
	}, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fincontrols/navrecon/internal/evidence"
	"github.com/fincontrols/navrecon/internal/gcsarchive"
	infraBQ "github.com/fincontrols/navrecon/internal/infra/bigquery"
	"github.com/fincontrols/navrecon/internal/jobs"
	"github.com/fincontrols/navrecon/internal/jobs/inmemory"
	"github.com/fincontrols/navrecon/internal/logger"
	"github.com/fincontrols/navrecon/internal/recon"
	"github.com/fincontrols/navrecon/internal/voucher"
)

func main() {
	// Initialize logger
	log := logger.New()

	projectID := flag.String("project", "", "GCP project hosting the warehouse")
	workers := flag.Int("workers", 2, "Concurrent reconciliation runs")
	entities := flag.String("entities", "", "Comma-separated entity config paths to enqueue at startup")
	flag.Parse()

	if *projectID == "" {
		log.Fatal().Msg("Error: --project is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	ext, err := infraBQ.NewExtractor(ctx, *projectID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create extractor")
	}
	defer ext.Close()

	// Initialize job store and queue
	// In production, this would be replaced with Cloud Tasks or Pub/Sub
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore)

	log.Info().Msg("Starting reconciliation worker")

	// Create job handler that executes reconciliation runs
	handler := func(ctx context.Context, job jobs.Job) error {
		reconJob, ok := job.(*jobs.ReconcileJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", reconJob.JobID).
			Str("entity", reconJob.Entity).
			Str("config", reconJob.ConfigPath).
			Msg("Processing reconciliation job")

		cfg, err := recon.LoadConfig(reconJob.ConfigPath)
		if err != nil {
			return fmt.Errorf("load config for job %s: %w", reconJob.JobID, err)
		}

		var arch recon.Archiver
		if cfg.ArchiveBucket != "" {
			arch = gcsarchive.NewUploader(cfg.ArchiveBucket)
		}

		auditLog, closer := logger.NewAuditLogger(cfg.AuditLogPath)
		defer closer.Close()

		deps := &recon.Deps{
			Evidence:    evidence.NewGenerator(cfg.EvidenceDir, log),
			Categorizer: voucher.NewCategorizer(cfg.Voucher, log),
			AuditLog:    auditLog,
			Log:         log,
		}

		res, err := recon.Run(ctx, cfg, ext, arch, deps)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", reconJob.JobID).
				Str("entity", reconJob.Entity).
				Msg("Reconciliation run failed")
			return err
		}

		reconJob.Digest = res.Digest
		reconJob.ArchivePath = res.ArchivePath

		log.Info().
			Str("job_id", reconJob.JobID).
			Str("entity", reconJob.Entity).
			Str("digest", res.Digest).
			Msg("Reconciliation run completed successfully")

		return nil
	}

	// Start consuming jobs
	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	if *entities != "" {
		enqueueStartupJobs(ctx, log, jobQueue, *entities)
	}

	log.Info().Msg("Worker started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")

	// Cancel context to stop workers
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	// Close the queue
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker exited")
}

// enqueueStartupJobs publishes one reconciliation job per config path. Each
// config is loaded once here so a bad path fails fast instead of inside a
// worker goroutine.
func enqueueStartupJobs(ctx context.Context, log zerolog.Logger, queue *inmemory.Queue, entities string) {
	for _, configPath := range strings.Split(entities, ",") {
		configPath = strings.TrimSpace(configPath)
		if configPath == "" {
			continue
		}
		cfg, err := recon.LoadConfig(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("config", configPath).Msg("Failed to load startup config")
		}
		job := &jobs.ReconcileJob{Entity: cfg.Entity, ConfigPath: configPath}
		if err := queue.PublishReconcile(ctx, job); err != nil {
			log.Fatal().Err(err).Str("entity", cfg.Entity).Msg("Failed to enqueue startup job")
		}
		log.Info().Str("job_id", job.JobID).Str("entity", cfg.Entity).Msg("Enqueued reconciliation job")
	}
}

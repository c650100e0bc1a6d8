package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/repos"
	"github.com/shpitdev/cable-intel/internal/types"
	"github.com/shpitdev/cable-intel/internal/utils"
)

// Reingester re-runs extraction for a variant's product URL. Satisfied by
// the workflow engine.
type Reingester interface {
	ExtractAndUpsert(ctx context.Context, workflowID uuid.UUID, rawURL string) (*uuid.UUID, *uuid.UUID, error)
}

// EnrichmentWorker polls the enrichment queue and re-ingests flagged
// variants. Claims use SKIP LOCKED, so multiple workers can run against the
// same database without stepping on each other.
type EnrichmentWorker struct {
	log         *logger.Logger
	jobRepo     repos.EnrichmentJobRepo
	variantRepo repos.CableVariantRepo
	reingester  Reingester

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
}

type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

func LoadWorkerConfig(log *logger.Logger) WorkerConfig {
	return WorkerConfig{
		PollInterval: time.Duration(utils.GetEnvAsInt("ENRICHMENT_POLL_INTERVAL_SECONDS", 30, log)) * time.Second,
		BatchSize:    utils.GetEnvAsInt("ENRICHMENT_BATCH_SIZE", 4, log),
		MaxAttempts:  utils.GetEnvAsInt("ENRICHMENT_MAX_ATTEMPTS", 5, log),
	}
}

func NewEnrichmentWorker(
	baseLog *logger.Logger,
	cfg WorkerConfig,
	jobRepo repos.EnrichmentJobRepo,
	variantRepo repos.CableVariantRepo,
	reingester Reingester,
) *EnrichmentWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &EnrichmentWorker{
		log:          baseLog.With("component", "EnrichmentWorker"),
		jobRepo:      jobRepo,
		variantRepo:  variantRepo,
		reingester:   reingester,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		maxAttempts:  cfg.MaxAttempts,
	}
}

// Run blocks until ctx is cancelled.
func (w *EnrichmentWorker) Run(ctx context.Context) {
	w.log.Info("Enrichment worker started",
		"poll_interval", w.pollInterval.String(),
		"batch_size", w.batchSize,
	)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		w.drainBatch(ctx)
		select {
		case <-ctx.Done():
			w.log.Info("Enrichment worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// drainBatch claims up to batchSize jobs and processes them concurrently.
func (w *EnrichmentWorker) drainBatch(ctx context.Context) {
	var claimed []*types.EnrichmentJob
	for len(claimed) < w.batchSize {
		job, err := w.jobRepo.ClaimNextPending(ctx, nil)
		if err != nil {
			w.log.Error("Enrichment claim failed", "error", err)
			break
		}
		if job == nil {
			break
		}
		claimed = append(claimed, job)
	}
	if len(claimed) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)
	for _, job := range claimed {
		job := job
		g.Go(func() error {
			w.processJob(gctx, job)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *EnrichmentWorker) processJob(ctx context.Context, job *types.EnrichmentJob) {
	log := w.log.With("job_id", job.ID.String(), "variant_id", job.VariantID.String())

	variant, err := w.variantRepo.GetByID(ctx, nil, job.VariantID)
	if err != nil {
		w.failJob(ctx, job, err.Error())
		return
	}
	if variant == nil || variant.ProductURL == "" {
		w.failJob(ctx, job, "variant has no product url to re-ingest")
		return
	}

	_, _, err = w.reingester.ExtractAndUpsert(ctx, job.WorkflowID, variant.ProductURL)
	if err != nil {
		log.Warn("Enrichment re-ingest failed", "error", err)
		w.failJob(ctx, job, err.Error())
		return
	}

	// The upsert recomputes quality. If the variant is now ready the catalog
	// path already closed this job; otherwise it stays open for another pass
	// unless attempts are exhausted.
	fresh, err := w.variantRepo.GetByID(ctx, nil, job.VariantID)
	if err == nil && fresh != nil && fresh.QualityState != types.QualityStateReady {
		if job.AttemptCount >= w.maxAttempts {
			w.failJob(ctx, job, "attempt limit reached without reaching ready state")
			return
		}
		_ = w.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
			"status": types.EnrichmentJobStatusPending,
		})
		return
	}
	log.Info("Enrichment job completed")
}

func (w *EnrichmentWorker) failJob(ctx context.Context, job *types.EnrichmentJob, reason string) {
	if err := w.jobRepo.UpdateFields(ctx, nil, job.ID, map[string]interface{}{
		"status":     types.EnrichmentJobStatusFailed,
		"last_error": reason,
	}); err != nil {
		w.log.Error("Enrichment job state update failed", "job_id", job.ID.String(), "error", err)
	}
}

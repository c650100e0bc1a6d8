package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shpitdev/cable-intel/internal/db"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/repos"
	"github.com/shpitdev/cable-intel/internal/types"
)

var workerDBSeq int64

type workerFixture struct {
	db       *gorm.DB
	worker   *EnrichmentWorker
	jobs     repos.EnrichmentJobRepo
	variants repos.CableVariantRepo
	reingest *fakeReingester
}

type fakeReingester struct {
	calls int32
	// onExtract runs before returning; tests use it to flip variant state the
	// way a real re-ingest would.
	onExtract func(workflowID uuid.UUID, rawURL string) error
}

func (f *fakeReingester) ExtractAndUpsert(ctx context.Context, workflowID uuid.UUID, rawURL string) (*uuid.UUID, *uuid.UUID, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.onExtract != nil {
		if err := f.onExtract(workflowID, rawURL); err != nil {
			return nil, nil, err
		}
	}
	specID := uuid.New()
	evidenceID := uuid.New()
	return &specID, &evidenceID, nil
}

func newWorkerFixture(t *testing.T, maxAttempts int) *workerFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_test_%d?mode=memory&cache=shared", atomic.AddInt64(&workerDBSeq, 1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(db.AllModels()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}

	jobRepo := repos.NewEnrichmentJobRepo(gdb, log)
	variantRepo := repos.NewCableVariantRepo(gdb, log)
	reingest := &fakeReingester{}
	worker := NewEnrichmentWorker(log, WorkerConfig{BatchSize: 4, MaxAttempts: maxAttempts}, jobRepo, variantRepo, reingest)
	return &workerFixture{
		db:       gdb,
		worker:   worker,
		jobs:     jobRepo,
		variants: variantRepo,
		reingest: reingest,
	}
}

func (f *workerFixture) seedVariant(t *testing.T, productURL, quality string) *types.CableVariant {
	t.Helper()
	v, err := f.variants.Create(context.Background(), nil, &types.CableVariant{
		Brand:         "Anker",
		Model:         "765 Cable",
		ConnectorFrom: "USB-C",
		ConnectorTo:   "USB-C",
		ProductURL:    productURL,
		QualityState:  quality,
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}
	return v
}

func (f *workerFixture) seedJob(t *testing.T, variantID uuid.UUID) *types.EnrichmentJob {
	t.Helper()
	job, err := f.jobs.Create(context.Background(), nil, &types.EnrichmentJob{
		VariantID:  variantID,
		WorkflowID: uuid.New(),
		Status:     types.EnrichmentJobStatusPending,
		Reason:     "missing_images",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func (f *workerFixture) jobStatus(t *testing.T, id uuid.UUID) *types.EnrichmentJob {
	t.Helper()
	var job types.EnrichmentJob
	if err := f.db.Where("id = ?", id).First(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	return &job
}

func TestDrainBatchFailsJobWithoutProductURL(t *testing.T) {
	f := newWorkerFixture(t, 5)
	variant := f.seedVariant(t, "", types.QualityStateNeedsEnrichment)
	job := f.seedJob(t, variant.ID)

	f.worker.drainBatch(context.Background())

	got := f.jobStatus(t, job.ID)
	if got.Status != types.EnrichmentJobStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.LastError == "" {
		t.Fatalf("last_error not recorded")
	}
	if atomic.LoadInt32(&f.reingest.calls) != 0 {
		t.Fatalf("re-ingest ran without a product url")
	}
}

func TestDrainBatchRependsWhenStillNotReady(t *testing.T) {
	f := newWorkerFixture(t, 5)
	variant := f.seedVariant(t, "https://www.anker.com/products/a8865", types.QualityStateNeedsEnrichment)
	job := f.seedJob(t, variant.ID)

	f.worker.drainBatch(context.Background())

	got := f.jobStatus(t, job.ID)
	if got.Status != types.EnrichmentJobStatusPending {
		t.Fatalf("status = %q, want back to pending for another pass", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Fatalf("attempt_count = %d, want 1 after the claim", got.AttemptCount)
	}
	if atomic.LoadInt32(&f.reingest.calls) != 1 {
		t.Fatalf("re-ingest calls = %d, want 1", f.reingest.calls)
	}
}

func TestDrainBatchFailsJobAtAttemptLimit(t *testing.T) {
	f := newWorkerFixture(t, 1)
	variant := f.seedVariant(t, "https://www.anker.com/products/a8865", types.QualityStateNeedsEnrichment)
	job := f.seedJob(t, variant.ID)

	f.worker.drainBatch(context.Background())

	got := f.jobStatus(t, job.ID)
	if got.Status != types.EnrichmentJobStatusFailed {
		t.Fatalf("status = %q, want failed once attempts are exhausted", got.Status)
	}
}

func TestDrainBatchLeavesJobWhenVariantTurnsReady(t *testing.T) {
	f := newWorkerFixture(t, 5)
	variant := f.seedVariant(t, "https://www.anker.com/products/a8865", types.QualityStateNeedsEnrichment)
	job := f.seedJob(t, variant.ID)

	// Simulate the catalog side effects of a successful re-ingest: quality
	// flips to ready and the open job is closed inside the upsert.
	f.reingest.onExtract = func(workflowID uuid.UUID, rawURL string) error {
		if err := f.variants.UpdateFields(context.Background(), nil, variant.ID, map[string]interface{}{
			"quality_state": types.QualityStateReady,
		}); err != nil {
			return err
		}
		return f.db.Model(&types.EnrichmentJob{}).
			Where("id = ?", job.ID).
			Update("status", types.EnrichmentJobStatusCompleted).Error
	}

	f.worker.drainBatch(context.Background())

	got := f.jobStatus(t, job.ID)
	if got.Status != types.EnrichmentJobStatusCompleted {
		t.Fatalf("status = %q, want left completed by the catalog path", got.Status)
	}
}

func TestDrainBatchFailsJobOnReingestError(t *testing.T) {
	f := newWorkerFixture(t, 5)
	variant := f.seedVariant(t, "https://www.anker.com/products/a8865", types.QualityStateNeedsEnrichment)
	job := f.seedJob(t, variant.ID)

	f.reingest.onExtract = func(workflowID uuid.UUID, rawURL string) error {
		return fmt.Errorf("fetch blew up")
	}

	f.worker.drainBatch(context.Background())

	got := f.jobStatus(t, job.ID)
	if got.Status != types.EnrichmentJobStatusFailed || got.LastError != "fetch blew up" {
		t.Fatalf("job = %q/%q, want failed with the error recorded", got.Status, got.LastError)
	}
}

func TestDrainBatchClaimsMultipleJobs(t *testing.T) {
	f := newWorkerFixture(t, 5)
	for i := 0; i < 3; i++ {
		v := f.seedVariant(t, fmt.Sprintf("https://www.anker.com/products/a%d", i), types.QualityStateNeedsEnrichment)
		f.seedJob(t, v.ID)
	}

	f.worker.drainBatch(context.Background())

	if atomic.LoadInt32(&f.reingest.calls) != 3 {
		t.Fatalf("re-ingest calls = %d, want every pending job claimed", f.reingest.calls)
	}
}

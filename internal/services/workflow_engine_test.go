package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shpitdev/cable-intel/internal/apierr"
	"github.com/shpitdev/cable-intel/internal/ingestion"
	"github.com/shpitdev/cable-intel/internal/ingestion/templates"
	"github.com/shpitdev/cable-intel/internal/repos"
	"github.com/shpitdev/cable-intel/internal/types"
)

type fakeAdapter struct {
	tpl      *templates.Template
	discover []string
	extract  func(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error)
}

func (a *fakeAdapter) Template() *templates.Template { return a.tpl }
func (a *fakeAdapter) DiscoverProductURLs(ctx context.Context, maxItems int) ([]string, error) {
	return a.discover, nil
}
func (a *fakeAdapter) ExtractFromProductURL(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error) {
	return a.extract(ctx, rawURL)
}

type fakeFallback struct {
	calls   int
	extract func(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error)
}

func (f *fakeFallback) Extract(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error) {
	f.calls++
	return f.extract(ctx, rawURL)
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) InvalidateAll(ctx context.Context) { f.calls++ }

type engineFixture struct {
	db        *gorm.DB
	engine    *workflowEngine
	workflows repos.WorkflowRepo
	items     repos.WorkflowItemRepo
	evidence  repos.EvidenceSourceRepo
	cache     *fakeInvalidator
	slept     []time.Duration
}

func newEngineFixture(t *testing.T, cfg IngestConfig, adapters []TemplateExtractor, fallback FallbackExtractor) *engineFixture {
	t.Helper()
	gdb := newTestDB(t)
	log := newTestLogger(t)
	workflows := repos.NewWorkflowRepo(gdb, log)
	items := repos.NewWorkflowItemRepo(gdb, log)
	evidence := repos.NewEvidenceSourceRepo(gdb, log)
	variants := repos.NewCableVariantRepo(gdb, log)
	specs := repos.NewNormalizedSpecRepo(gdb, log)
	jobs := repos.NewEnrichmentJobRepo(gdb, log)
	catalog := NewCatalogService(gdb, log, variants, specs, jobs)

	cache := &fakeInvalidator{}
	f := &engineFixture{
		db:        gdb,
		workflows: workflows,
		items:     items,
		evidence:  evidence,
		cache:     cache,
	}
	eng := NewWorkflowEngine(gdb, log, cfg, workflows, items, evidence, catalog, adapters, fallback, cache).(*workflowEngine)
	eng.sleep = func(ctx context.Context, d time.Duration) error {
		f.slept = append(f.slept, d)
		return nil
	}
	f.engine = eng
	return f
}

func testIngestConfig() IngestConfig {
	return IngestConfig{
		MaxParseRetries:   3,
		InitialRetryDelay: 500 * time.Millisecond,
		MaxRetryDelay:     8 * time.Second,
		MaxItems:          50,
	}
}

func resultWithOneCable(rawURL string) *ingestion.ExtractionResult {
	cable := completeCable()
	cable.ProductURL = rawURL
	return &ingestion.ExtractionResult{
		SourceURL: rawURL,
		Markdown:  "## product body",
		HTML:      "<html></html>",
		Cables:    []ingestion.ParsedCable{*cable},
	}
}

func TestBackoffDelay(t *testing.T) {
	initial := 500 * time.Millisecond
	max := 8 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, 1 * time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
		{6, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(initial, max, tc.attempt); got != tc.want {
			t.Fatalf("backoffDelay(attempt=%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestNormalizeSeeds(t *testing.T) {
	f := newEngineFixture(t, testIngestConfig(), nil, nil)

	seeds := f.engine.normalizeSeeds(RunIngestRequest{
		SeedURLs: []string{
			"  https://www.anker.com/products/a8865/ ",
			"https://www.anker.com/products/a8865#reviews",
			"ftp://www.anker.com/products/a8865",
			"not a url at all://",
			"https://evil.example.com/products/a8865",
		},
		AllowedDomains: []string{"www.anker.com"},
	})
	if len(seeds) != 1 {
		t.Fatalf("seeds = %v, want the single deduped anker url", seeds)
	}
	if seeds[0] != "https://www.anker.com/products/a8865" {
		t.Fatalf("seed = %q, want canonicalized form", seeds[0])
	}
}

func TestNormalizeSeedsCapsAtMaxItems(t *testing.T) {
	cfg := testIngestConfig()
	cfg.MaxItems = 2
	f := newEngineFixture(t, cfg, nil, nil)

	seeds := f.engine.normalizeSeeds(RunIngestRequest{
		SeedURLs: []string{
			"https://a.example.com/1",
			"https://a.example.com/2",
			"https://a.example.com/3",
		},
		MaxItems: 10, // request above the configured ceiling is clamped
	})
	if len(seeds) != 2 {
		t.Fatalf("seeds = %d, want capped at 2", len(seeds))
	}
}

func TestRunIngestCompletesAndWritesEvidence(t *testing.T) {
	adapter := &fakeAdapter{
		tpl: &templates.Template{ID: "anker", BaseURL: "https://www.anker.com", ProductPathPrefix: "/products/"},
		extract: func(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error) {
			return resultWithOneCable(rawURL), nil
		},
	}
	f := newEngineFixture(t, testIngestConfig(), []TemplateExtractor{adapter}, nil)
	ctx := context.Background()

	wf, err := f.engine.RunIngest(ctx, RunIngestRequest{
		SeedURLs: []string{"https://www.anker.com/products/a8865"},
	})
	if err != nil {
		t.Fatalf("RunIngest: %v", err)
	}
	if wf.Status != types.WorkflowStatusCompleted {
		t.Fatalf("workflow status = %q, want completed", wf.Status)
	}
	if wf.CompletedItems != 1 || wf.FailedItems != 0 {
		t.Fatalf("counts = %d/%d, want 1 completed, 0 failed", wf.CompletedItems, wf.FailedItems)
	}

	items, err := f.items.ListByWorkflow(ctx, nil, wf.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 || items[0].Status != types.WorkflowItemStatusCompleted {
		t.Fatalf("items = %+v, want one completed", items)
	}
	if items[0].NormalizedSpecID == nil || items[0].EvidenceSourceID == nil {
		t.Fatalf("terminal item missing spec/evidence ids: %+v", items[0])
	}

	sources, err := f.evidence.ListByWorkflow(ctx, nil, wf.ID)
	if err != nil {
		t.Fatalf("list evidence: %v", err)
	}
	if len(sources) != 1 {
		t.Fatalf("evidence rows = %d, want 1", len(sources))
	}
	want := types.ContentHash("https://www.anker.com/products/a8865", "## product body", "<html></html>")
	if sources[0].ContentHash != want {
		t.Fatalf("content hash = %q, want %q", sources[0].ContentHash, want)
	}
	if f.cache.calls != 1 {
		t.Fatalf("cache invalidations = %d, want 1 at finalization", f.cache.calls)
	}
}

func TestRunIngestRetriesWithBackoffThenFails(t *testing.T) {
	fallback := &fakeFallback{
		extract: func(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error) {
			return nil, apierr.Newf(apierr.KindFetch, "connection reset")
		},
	}
	f := newEngineFixture(t, testIngestConfig(), nil, fallback)
	ctx := context.Background()

	wf, err := f.engine.RunIngest(ctx, RunIngestRequest{
		SeedURLs: []string{"https://shop.example.com/products/mystery"},
	})
	if err != nil {
		t.Fatalf("RunIngest: %v", err)
	}
	if wf.Status != types.WorkflowStatusFailed {
		t.Fatalf("workflow status = %q, want failed", wf.Status)
	}
	if wf.LastError == "" {
		t.Fatalf("workflow last_error not recorded")
	}
	if fallback.calls != 3 {
		t.Fatalf("extract attempts = %d, want MaxParseRetries", fallback.calls)
	}
	wantSleeps := []time.Duration{500 * time.Millisecond, 1 * time.Second}
	if len(f.slept) != len(wantSleeps) {
		t.Fatalf("sleeps = %v, want %v", f.slept, wantSleeps)
	}
	for i, d := range wantSleeps {
		if f.slept[i] != d {
			t.Fatalf("sleep[%d] = %s, want %s", i, f.slept[i], d)
		}
	}

	items, err := f.items.ListByWorkflow(ctx, nil, wf.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if items[0].Status != types.WorkflowItemStatusFailed || items[0].AttemptCount != 3 {
		t.Fatalf("item = %+v, want failed after 3 attempts", items[0])
	}
}

func TestRunIngestNonRetryableStopsEarly(t *testing.T) {
	fallback := &fakeFallback{
		extract: func(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error) {
			return nil, apierr.Newf(apierr.KindValidation, "page is not a product")
		},
	}
	f := newEngineFixture(t, testIngestConfig(), nil, fallback)

	wf, err := f.engine.RunIngest(context.Background(), RunIngestRequest{
		SeedURLs: []string{"https://shop.example.com/products/mystery"},
	})
	if err != nil {
		t.Fatalf("RunIngest: %v", err)
	}
	if wf.Status != types.WorkflowStatusFailed {
		t.Fatalf("workflow status = %q, want failed", wf.Status)
	}
	if fallback.calls != 1 {
		t.Fatalf("extract attempts = %d, want no retries on validation errors", fallback.calls)
	}
	if len(f.slept) != 0 {
		t.Fatalf("sleeps = %v, want none", f.slept)
	}
}

func TestRunIngestRejectsEmptySeedList(t *testing.T) {
	f := newEngineFixture(t, testIngestConfig(), nil, nil)
	_, err := f.engine.RunIngest(context.Background(), RunIngestRequest{
		SeedURLs: []string{"   ", "ftp://nope"},
	})
	if apierr.KindOf(err) != apierr.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestExtractWithoutTemplateOrFallback(t *testing.T) {
	adapter := &fakeAdapter{
		tpl: &templates.Template{ID: "anker", BaseURL: "https://www.anker.com", ProductPathPrefix: "/products/"},
		extract: func(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error) {
			t.Fatalf("adapter must not match foreign urls")
			return nil, nil
		},
	}
	f := newEngineFixture(t, testIngestConfig(), []TemplateExtractor{adapter}, nil)

	_, err := f.engine.extract(context.Background(), "https://other.example.com/products/x")
	if apierr.KindOf(err) != apierr.KindConfig {
		t.Fatalf("err = %v, want config error", err)
	}
}

func TestDiscoverUnknownTemplate(t *testing.T) {
	f := newEngineFixture(t, testIngestConfig(), nil, nil)
	_, err := f.engine.Discover(context.Background(), "no-such-vendor", 5)
	if apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestExtractAndUpsertRequiresCables(t *testing.T) {
	fallback := &fakeFallback{
		extract: func(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error) {
			return &ingestion.ExtractionResult{SourceURL: rawURL}, nil
		},
	}
	f := newEngineFixture(t, testIngestConfig(), nil, fallback)

	_, _, err := f.engine.ExtractAndUpsert(context.Background(), uuid.New(), "https://shop.example.com/products/empty")
	if apierr.KindOf(err) != apierr.KindExtraction {
		t.Fatalf("err = %v, want extraction error", err)
	}
}

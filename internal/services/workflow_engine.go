package services

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shpitdev/cable-intel/internal/apierr"
	"github.com/shpitdev/cable-intel/internal/ingestion"
	"github.com/shpitdev/cable-intel/internal/ingestion/templates"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/repos"
	"github.com/shpitdev/cable-intel/internal/types"
	"github.com/shpitdev/cable-intel/internal/utils"
)

// TemplateExtractor is the vendor-template extraction seam.
type TemplateExtractor interface {
	Template() *templates.Template
	DiscoverProductURLs(ctx context.Context, maxItems int) ([]string, error)
	ExtractFromProductURL(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error)
}

// FallbackExtractor is the scrape-then-LLM extraction seam for pages no
// vendor template claims. Raw content rides along in the result.
type FallbackExtractor interface {
	Extract(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error)
}

// IngestConfig is the retry/volume tuning for a workflow run.
type IngestConfig struct {
	MaxParseRetries   int
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	MaxItems          int
}

func LoadIngestConfig(log *logger.Logger) IngestConfig {
	return IngestConfig{
		MaxParseRetries:   utils.GetEnvAsInt("INGEST_MAX_PARSE_RETRIES", 3, log),
		InitialRetryDelay: time.Duration(utils.GetEnvAsInt("INGEST_INITIAL_RETRY_DELAY_MS", 500, log)) * time.Millisecond,
		MaxRetryDelay:     time.Duration(utils.GetEnvAsInt("INGEST_MAX_RETRY_DELAY_MS", 8000, log)) * time.Millisecond,
		MaxItems:          utils.GetEnvAsInt("INGEST_MAX_ITEMS", 50, log),
	}
}

// RunIngestRequest seeds one workflow run.
type RunIngestRequest struct {
	SeedURLs       []string `json:"seedUrls"`
	AllowedDomains []string `json:"allowedDomains,omitempty"`
	MaxItems       int      `json:"maxItems,omitempty"`
}

// Invalidator is the slice of the query cache the engine needs.
type Invalidator interface {
	InvalidateAll(ctx context.Context)
}

// WorkflowEngine drives seed-ingest runs: normalize seeds, walk each item
// with retries, upsert every extracted cable, finalize the workflow.
type WorkflowEngine interface {
	RunIngest(ctx context.Context, req RunIngestRequest) (*types.Workflow, error)
	// Discover returns candidate product URLs for a vendor template without
	// ingesting them.
	Discover(ctx context.Context, templateID string, maxItems int) ([]string, error)
	// ExtractAndUpsert runs the extraction/upsert path for a single URL
	// inside an existing workflow. Shared with the enrichment worker.
	ExtractAndUpsert(ctx context.Context, workflowID uuid.UUID, rawURL string) (specID *uuid.UUID, evidenceID *uuid.UUID, err error)
}

type workflowEngine struct {
	db           *gorm.DB
	log          *logger.Logger
	cfg          IngestConfig
	workflowRepo repos.WorkflowRepo
	itemRepo     repos.WorkflowItemRepo
	evidenceRepo repos.EvidenceSourceRepo
	catalog      CatalogService
	adapters     []TemplateExtractor
	fallback     FallbackExtractor
	cache        Invalidator

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewWorkflowEngine(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg IngestConfig,
	workflowRepo repos.WorkflowRepo,
	itemRepo repos.WorkflowItemRepo,
	evidenceRepo repos.EvidenceSourceRepo,
	catalog CatalogService,
	adapters []TemplateExtractor,
	fallback FallbackExtractor,
	cache Invalidator,
) WorkflowEngine {
	return &workflowEngine{
		db:           db,
		log:          baseLog.With("service", "WorkflowEngine"),
		cfg:          cfg,
		workflowRepo: workflowRepo,
		itemRepo:     itemRepo,
		evidenceRepo: evidenceRepo,
		catalog:      catalog,
		adapters:     adapters,
		fallback:     fallback,
		cache:        cache,
		sleep:        sleepCtx,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *workflowEngine) RunIngest(ctx context.Context, req RunIngestRequest) (*types.Workflow, error) {
	seeds := e.normalizeSeeds(req)
	if len(seeds) == 0 {
		return nil, apierr.Newf(apierr.KindValidation, "no usable seed urls after normalization")
	}

	now := e.now()
	wf := &types.Workflow{
		Status:         types.WorkflowStatusRunning,
		AllowedDomains: types.JSONFrom(req.AllowedDomains),
		SeedURLs:       types.JSONFrom(seeds),
		StartedAt:      now,
		TotalItems:     len(seeds),
	}
	wf, err := e.workflowRepo.Create(ctx, nil, wf)
	if err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}

	items := make([]*types.WorkflowItem, 0, len(seeds))
	for _, seed := range seeds {
		items = append(items, &types.WorkflowItem{
			WorkflowID:   wf.ID,
			URL:          seed,
			CanonicalURL: templates.CanonicalProductURL(seed),
			Status:       types.WorkflowItemStatusPending,
		})
	}
	if items, err = e.itemRepo.CreateBatch(ctx, nil, items); err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}

	completed, failed := 0, 0
	firstError := ""
	for _, item := range items {
		itemErr := e.runItem(ctx, wf.ID, item)
		if itemErr != nil {
			failed++
			if firstError == "" {
				firstError = itemErr.Error()
			}
		} else {
			completed++
		}
	}

	status := types.WorkflowStatusCompleted
	if failed > 0 {
		status = types.WorkflowStatusFailed
	}
	finished := e.now()
	updates := map[string]interface{}{
		"status":          status,
		"finished_at":     finished,
		"completed_items": completed,
		"failed_items":    failed,
	}
	if firstError != "" {
		updates["last_error"] = firstError
	}
	if err := e.workflowRepo.UpdateFields(ctx, nil, wf.ID, updates); err != nil {
		return nil, apierr.New(apierr.KindPersistence, err)
	}

	if e.cache != nil {
		e.cache.InvalidateAll(ctx)
	}
	e.log.Info("Workflow finished",
		"workflow_id", wf.ID.String(),
		"status", status,
		"completed", completed,
		"failed", failed,
	)
	return e.workflowRepo.GetByID(ctx, nil, wf.ID)
}

func (e *workflowEngine) Discover(ctx context.Context, templateID string, maxItems int) ([]string, error) {
	for _, a := range e.adapters {
		if a.Template().ID == strings.ToLower(strings.TrimSpace(templateID)) {
			return a.DiscoverProductURLs(ctx, maxItems)
		}
	}
	return nil, apierr.Newf(apierr.KindNotFound, "unknown vendor template %q", templateID)
}

// normalizeSeeds applies the seed rules: trim, drop non-http(s), filter by
// allowed domains, canonicalize, ordered dedupe, cap at maxItems.
func (e *workflowEngine) normalizeSeeds(req RunIngestRequest) []string {
	maxItems := req.MaxItems
	if maxItems <= 0 || maxItems > e.cfg.MaxItems {
		maxItems = e.cfg.MaxItems
	}

	allowed := make([]string, 0, len(req.AllowedDomains))
	for _, d := range req.AllowedDomains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d != "" {
			allowed = append(allowed, d)
		}
	}

	seen := map[string]bool{}
	var out []string
	for _, raw := range req.SeedURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if len(allowed) > 0 && !domainAllowed(u.Host, allowed) {
			continue
		}
		canonical := templates.CanonicalProductURL(raw)
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
		if len(out) >= maxItems {
			break
		}
	}
	return out
}

func domainAllowed(host string, allowed []string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, d := range allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// runItem walks one seed URL to a terminal status, retrying retryable
// failures with capped exponential backoff.
func (e *workflowEngine) runItem(ctx context.Context, workflowID uuid.UUID, item *types.WorkflowItem) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxParseRetries; attempt++ {
		_ = e.itemRepo.UpdateFields(ctx, nil, item.ID, map[string]interface{}{
			"status":        types.WorkflowItemStatusInProgress,
			"attempt_count": attempt,
		})

		specID, evidenceID, err := e.ExtractAndUpsert(ctx, workflowID, item.CanonicalURL)
		if err == nil {
			updates := map[string]interface{}{
				"status":     types.WorkflowItemStatusCompleted,
				"last_error": "",
			}
			if specID != nil {
				updates["normalized_spec_id"] = *specID
			}
			if evidenceID != nil {
				updates["evidence_source_id"] = *evidenceID
			}
			return e.itemRepo.UpdateFields(ctx, nil, item.ID, updates)
		}

		lastErr = err
		if !apierr.Retryable(err) || attempt == e.cfg.MaxParseRetries {
			break
		}
		delay := backoffDelay(e.cfg.InitialRetryDelay, e.cfg.MaxRetryDelay, attempt)
		e.log.Warn("Workflow item retrying",
			"item_id", item.ID.String(),
			"url", item.CanonicalURL,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err.Error(),
		)
		if sErr := e.sleep(ctx, delay); sErr != nil {
			lastErr = apierr.New(apierr.KindTimeout, sErr)
			break
		}
	}

	_ = e.itemRepo.UpdateFields(ctx, nil, item.ID, map[string]interface{}{
		"status":     types.WorkflowItemStatusFailed,
		"last_error": lastErr.Error(),
	})
	return lastErr
}

// backoffDelay is min(initial * 2^(attempt-1), max).
func backoffDelay(initial, max time.Duration, attempt int) time.Duration {
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func (e *workflowEngine) ExtractAndUpsert(ctx context.Context, workflowID uuid.UUID, rawURL string) (*uuid.UUID, *uuid.UUID, error) {
	result, err := e.extract(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	if result == nil || len(result.Cables) == 0 {
		return nil, nil, apierr.Newf(apierr.KindExtraction, "no cables extracted from %s", rawURL)
	}

	evidence, err := e.insertEvidence(ctx, workflowID, rawURL, result)
	if err != nil {
		return nil, nil, apierr.New(apierr.KindPersistence, err)
	}

	var firstSpecID *uuid.UUID
	for i := range result.Cables {
		_, spec, uErr := e.catalog.UpsertVariantAndInsertSpec(ctx, workflowID, &result.Cables[i], evidence.ID)
		if uErr != nil {
			return nil, &evidence.ID, apierr.New(apierr.KindPersistence, uErr)
		}
		if firstSpecID == nil {
			firstSpecID = &spec.ID
		}
	}
	return firstSpecID, &evidence.ID, nil
}

func (e *workflowEngine) extract(ctx context.Context, rawURL string) (*ingestion.ExtractionResult, error) {
	for _, a := range e.adapters {
		if !a.Template().MatchesProductURL(rawURL) {
			continue
		}
		result, err := a.ExtractFromProductURL(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	if e.fallback == nil {
		return nil, apierr.Newf(apierr.KindConfig, "no template matches %s and no fallback extractor is configured", rawURL)
	}
	return e.fallback.Extract(ctx, rawURL)
}

func (e *workflowEngine) insertEvidence(ctx context.Context, workflowID uuid.UUID, rawURL string, result *ingestion.ExtractionResult) (*types.EvidenceSource, error) {
	canonical := result.SourceURL
	if canonical == "" {
		canonical = templates.CanonicalProductURL(rawURL)
	}
	return e.evidenceRepo.Insert(ctx, nil, &types.EvidenceSource{
		WorkflowID:   workflowID,
		URL:          rawURL,
		CanonicalURL: canonical,
		FetchedAt:    e.now(),
		ContentHash:  types.ContentHash(canonical, result.Markdown, result.HTML),
		Markdown:     result.Markdown,
		HTML:         result.HTML,
	})
}

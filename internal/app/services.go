package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/shpitdev/cable-intel/internal/clients/aigateway"
	"github.com/shpitdev/cable-intel/internal/clients/firecrawl"
	"github.com/shpitdev/cable-intel/internal/clients/rediscache"
	"github.com/shpitdev/cable-intel/internal/ingestion/extractor"
	"github.com/shpitdev/cable-intel/internal/ingestion/templates"
	"github.com/shpitdev/cable-intel/internal/jobs"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/observability"
	"github.com/shpitdev/cable-intel/internal/services"
)

type Services struct {
	Registry   *templates.Registry
	Catalog    services.CatalogService
	Engine     services.WorkflowEngine
	Ranking    services.RankingService
	Reports    services.ReportService
	Enrichment services.EnrichmentService
	Inference  services.InferenceService
	Worker     *jobs.EnrichmentWorker
	Cache      rediscache.QueryCache
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, telemetry observability.TelemetryConfig, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	registry, err := templates.NewRegistry(log, cfg.TemplateConfigPath)
	if err != nil {
		return Services{}, err
	}

	gateway, err := aigateway.New(log, aigateway.Telemetry{
		Enabled:       telemetry.Enabled,
		RecordInputs:  telemetry.RecordInputs,
		RecordOutputs: telemetry.RecordOutputs,
	})
	if err != nil {
		return Services{}, err
	}

	// Firecrawl is optional: without it template-covered vendors still work,
	// only the generic fallback path is disabled.
	var fallback services.FallbackExtractor
	fc, err := firecrawl.New(log)
	if err != nil {
		log.Warn("Firecrawl unavailable; generic extraction disabled", "error", err)
	} else {
		fallback = extractor.New(log, fc, gateway)
	}

	cache, err := rediscache.New(log)
	if err != nil {
		log.Warn("Redis unavailable; query cache disabled", "error", err)
		cache = nil
	}

	var adapters []services.TemplateExtractor
	for _, tpl := range registry.All() {
		adapters = append(adapters, templates.NewAdapter(log, tpl, nil))
	}

	catalog := services.NewCatalogService(db, log, reposet.CableVariant, reposet.Spec, reposet.EnrichmentJob)
	engine := services.NewWorkflowEngine(
		db, log, cfg.Ingest,
		reposet.Workflow, reposet.WorkflowItem, reposet.Evidence,
		catalog, adapters, fallback, cacheInvalidator(cache),
	)
	ranking := services.NewRankingService(log, reposet.Spec, reposet.CableVariant, reposet.Evidence, cache)
	reports := services.NewReportService(log, reposet.Workflow, reposet.WorkflowItem, reposet.Spec, reposet.CableVariant)
	enrichment := services.NewEnrichmentService(log, reposet.EnrichmentJob)
	inference := services.NewInferenceService(log, reposet.Inference, services.NewLLMInferencer(log, gateway))

	var worker *jobs.EnrichmentWorker
	if cfg.EnrichmentWorkerEnabled {
		worker = jobs.NewEnrichmentWorker(log, cfg.Worker, reposet.EnrichmentJob, reposet.CableVariant, engine)
	}

	return Services{
		Registry:   registry,
		Catalog:    catalog,
		Engine:     engine,
		Ranking:    ranking,
		Reports:    reports,
		Enrichment: enrichment,
		Inference:  inference,
		Worker:     worker,
		Cache:      cache,
	}, nil
}

// cacheInvalidator keeps the engine decoupled from the nil-interface pitfall
// of an optional cache.
func cacheInvalidator(cache rediscache.QueryCache) services.Invalidator {
	if cache == nil {
		return nil
	}
	return &invalidatorAdapter{cache: cache}
}

type invalidatorAdapter struct{ cache rediscache.QueryCache }

func (i *invalidatorAdapter) InvalidateAll(ctx context.Context) { i.cache.InvalidateAll(ctx) }

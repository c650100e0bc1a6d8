package app

import (
	"strings"

	"github.com/shpitdev/cable-intel/internal/jobs"
	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/services"
	"github.com/shpitdev/cable-intel/internal/utils"
)

type Config struct {
	ServiceName             string
	Ingest                  services.IngestConfig
	Worker                  jobs.WorkerConfig
	EnrichmentWorkerEnabled bool
	TemplateConfigPath      string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		ServiceName:             "cable-intel",
		Ingest:                  services.LoadIngestConfig(log),
		Worker:                  jobs.LoadWorkerConfig(log),
		EnrichmentWorkerEnabled: strings.EqualFold(utils.GetEnv("ENRICHMENT_WORKER_ENABLED", "false", log), "true"),
		TemplateConfigPath:      utils.GetEnv("TEMPLATE_CONFIG_PATH", "", log),
	}
}

package app

import (
	"github.com/shpitdev/cable-intel/internal/handlers"
	"github.com/shpitdev/cable-intel/internal/logger"
)

type Handlers struct {
	Ingest    *handlers.IngestHandler
	Cables    *handlers.CablesHandler
	Inference *handlers.InferenceHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Ingest:    handlers.NewIngestHandler(services.Engine, services.Registry),
		Cables:    handlers.NewCablesHandler(services.Ranking, services.Reports, services.Enrichment),
		Inference: handlers.NewInferenceHandler(services.Inference),
	}
}

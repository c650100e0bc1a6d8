package app

import (
	"github.com/gin-gonic/gin"

	"github.com/shpitdev/cable-intel/internal/server"
)

func wireRouter(cfg Config, handlers Handlers) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		ServiceName:      cfg.ServiceName,
		IngestHandler:    handlers.Ingest,
		CablesHandler:    handlers.Cables,
		InferenceHandler: handlers.Inference,
	})
}

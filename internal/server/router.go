package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/shpitdev/cable-intel/internal/handlers"
)

type RouterConfig struct {
	ServiceName      string
	IngestHandler    *handlers.IngestHandler
	CablesHandler    *handlers.CablesHandler
	InferenceHandler *handlers.InferenceHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware(cfg.ServiceName))

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Ingestion
		api.POST("/ingest/run", cfg.IngestHandler.RunSeedIngest)
		api.POST("/ingest/discover", cfg.IngestHandler.DiscoverSeedURLs)
		api.GET("/ingest/templates", cfg.IngestHandler.ListTemplates)

		// Catalog queries
		api.GET("/cables/top", cfg.CablesHandler.GetTopCables)
		api.GET("/cables/review", cfg.CablesHandler.GetTopCablesForReview)
		api.GET("/workflows/latest/report", cfg.CablesHandler.GetLatestWorkflowReport)
		api.GET("/workflows/:id/report", cfg.CablesHandler.GetWorkflowReport)
		api.GET("/enrichment/summary", cfg.CablesHandler.GetEnrichmentSummary)

		// Manual inference
		api.GET("/inference/defaults", cfg.InferenceHandler.GetDefaults)
		api.POST("/inference/:workspace/ensure", cfg.InferenceHandler.EnsureSession)
		api.GET("/inference/:workspace", cfg.InferenceHandler.GetSession)
		api.GET("/inference/:workspace/status", cfg.InferenceHandler.GetStatus)
		api.POST("/inference/:workspace/prompt", cfg.InferenceHandler.RunPrompt)
		api.PATCH("/inference/:workspace/draft", cfg.InferenceHandler.UpdateDraft)
		api.POST("/inference/:workspace/questions/:questionId/answer", cfg.InferenceHandler.AnswerQuestion)
		api.POST("/inference/:workspace/reset", cfg.InferenceHandler.Reset)
	}

	return router
}

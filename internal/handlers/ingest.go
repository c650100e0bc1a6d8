package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shpitdev/cable-intel/internal/ingestion/templates"
	"github.com/shpitdev/cable-intel/internal/services"
)

type IngestHandler struct {
	engine   services.WorkflowEngine
	registry *templates.Registry
}

func NewIngestHandler(engine services.WorkflowEngine, registry *templates.Registry) *IngestHandler {
	return &IngestHandler{engine: engine, registry: registry}
}

// POST /api/ingest/run
func (h *IngestHandler) RunSeedIngest(c *gin.Context) {
	var req services.RunIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	wf, err := h.engine.RunIngest(c.Request.Context(), req)
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"workflow": wf})
}

type discoverRequest struct {
	TemplateID string `json:"templateId"`
	MaxItems   int    `json:"maxItems,omitempty"`
}

// POST /api/ingest/discover
func (h *IngestHandler) DiscoverSeedURLs(c *gin.Context) {
	var req discoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	urls, err := h.engine.Discover(c.Request.Context(), req.TemplateID, req.MaxItems)
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"urls": urls})
}

// GET /api/ingest/templates
func (h *IngestHandler) ListTemplates(c *gin.Context) {
	type templateInfo struct {
		ID               string `json:"id"`
		Name             string `json:"name"`
		BaseURL          string `json:"baseUrl"`
		MaxDiscoverItems int    `json:"maxDiscoverItems"`
	}
	var out []templateInfo
	for _, t := range h.registry.All() {
		out = append(out, templateInfo{
			ID:               t.ID,
			Name:             t.Name,
			BaseURL:          t.BaseURL,
			MaxDiscoverItems: t.MaxDiscoverItems,
		})
	}
	RespondOK(c, gin.H{"templates": out})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shpitdev/cable-intel/internal/services"
)

type CablesHandler struct {
	ranking    services.RankingService
	reports    services.ReportService
	enrichment services.EnrichmentService
}

func NewCablesHandler(ranking services.RankingService, reports services.ReportService, enrichment services.EnrichmentService) *CablesHandler {
	return &CablesHandler{ranking: ranking, reports: reports, enrichment: enrichment}
}

// GET /api/cables/top
func (h *CablesHandler) GetTopCables(c *gin.Context) {
	limit := queryInt(c, "limit", 0)
	var states []string
	for _, st := range strings.Split(c.Query("include_states"), ",") {
		if st = strings.TrimSpace(st); st != "" {
			states = append(states, st)
		}
	}
	cables, err := h.ranking.TopCables(c.Request.Context(), limit, c.Query("q"), states)
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"cables": cables})
}

// GET /api/cables/review
func (h *CablesHandler) GetTopCablesForReview(c *gin.Context) {
	limit := queryInt(c, "limit", 0)
	cables, err := h.ranking.ReviewCables(c.Request.Context(), limit)
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"cables": cables})
}

// GET /api/workflows/:id/report
func (h *CablesHandler) GetWorkflowReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_workflow_id", err)
		return
	}
	report, err := h.reports.GetWorkflowReport(c.Request.Context(), id, queryInt(c, "limit", 0))
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"report": report})
}

// GET /api/workflows/latest/report
func (h *CablesHandler) GetLatestWorkflowReport(c *gin.Context) {
	report, err := h.reports.GetLatestWorkflowReport(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"report": report})
}

// GET /api/enrichment/summary
func (h *CablesHandler) GetEnrichmentSummary(c *gin.Context) {
	summary, err := h.enrichment.QueueSummary(c.Request.Context())
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"summary": summary})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shpitdev/cable-intel/internal/services"
	"github.com/shpitdev/cable-intel/internal/types"
)

type InferenceHandler struct {
	inference services.InferenceService
}

func NewInferenceHandler(inference services.InferenceService) *InferenceHandler {
	return &InferenceHandler{inference: inference}
}

// GET /api/inference/defaults
func (h *InferenceHandler) GetDefaults(c *gin.Context) {
	RespondOK(c, h.inference.Defaults())
}

// POST /api/inference/:workspace/ensure
func (h *InferenceHandler) EnsureSession(c *gin.Context) {
	session, err := h.inference.EnsureSession(c.Request.Context(), c.Param("workspace"))
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

// GET /api/inference/:workspace
func (h *InferenceHandler) GetSession(c *gin.Context) {
	session, err := h.inference.GetSession(c.Request.Context(), c.Param("workspace"))
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

// GET /api/inference/:workspace/status
func (h *InferenceHandler) GetStatus(c *gin.Context) {
	status, err := h.inference.Status(c.Request.Context(), c.Param("workspace"))
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"status": status})
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

// POST /api/inference/:workspace/prompt
func (h *InferenceHandler) RunPrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	session, err := h.inference.RunPrompt(c.Request.Context(), c.Param("workspace"), req.Prompt)
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

// PATCH /api/inference/:workspace/draft
func (h *InferenceHandler) UpdateDraft(c *gin.Context) {
	var patch types.DraftPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	session, err := h.inference.UpdateDraft(c.Request.Context(), c.Param("workspace"), &patch)
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// POST /api/inference/:workspace/questions/:questionId/answer
func (h *InferenceHandler) AnswerQuestion(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}
	session, err := h.inference.AnswerQuestion(c.Request.Context(), c.Param("workspace"), c.Param("questionId"), req.Answer)
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

// POST /api/inference/:workspace/reset
func (h *InferenceHandler) Reset(c *gin.Context) {
	session, err := h.inference.Reset(c.Request.Context(), c.Param("workspace"))
	if err != nil {
		RespondClassified(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

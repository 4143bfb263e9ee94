package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"livesync/internal/orchestrator"
	"livesync/pkg/engine"
	"livesync/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookRequest result pushed by the AI engine
type WebhookRequest struct {
	Type string          `json:"type" binding:"required"`
	Data json.RawMessage `json:"data"`
}

// AnalyzeRequest offline analysis request from a viewer
type AnalyzeRequest struct {
	VideoURL string `json:"videoUrl" binding:"required"`
}

// APIHandler HTTP surface for external collaborators
type APIHandler struct {
	orchestrator *orchestrator.Orchestrator
	ai           *engine.AIClient
	webhookURL   string
}

// NewAPIHandler creates a new API handler. webhookURL is the address the AI
// engine should post results to.
func NewAPIHandler(orch *orchestrator.Orchestrator, ai *engine.AIClient, webhookURL string) *APIHandler {
	return &APIHandler{
		orchestrator: orch,
		ai:           ai,
		webhookURL:   webhookURL,
	}
}

// Webhook ingests an AI result and broadcasts it as ai-result
// @Summary Ingest AI result
// @Tags api
// @Accept json
// @Produce json
// @Param request body WebhookRequest true "Result"
// @Router /api/webhook [post]
func (h *APIHandler) Webhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil || isEmptyJSON(req.Data) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type and data are required"})
		return
	}

	delivered, err := h.orchestrator.IngestResult(c.Request.Context(), req.Type, req.Data)
	if err != nil {
		logger.ErrorCtx(c.Request.Context(), "failed to broadcast %s result: %v", req.Type, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to process webhook", "details": err.Error()})
		return
	}

	logger.InfoCtx(c.Request.Context(), "broadcasted %s result to %d connections", req.Type, delivered)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "Result broadcasted to clients",
		"delivered": delivered,
	})
}

// WorkersStatus returns pool occupancy
// @Summary Worker pool status
// @Tags api
// @Produce json
// @Router /api/workers/status [get]
func (h *APIHandler) WorkersStatus(c *gin.Context) {
	status, err := h.orchestrator.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Analyze forwards an offline analysis request to the AI engine. An engine
// that is not listening yet is reported as accepted: results arrive later
// through the webhook.
// @Summary Start offline analysis
// @Tags api
// @Accept json
// @Produce json
// @Param request body AnalyzeRequest true "Video"
// @Router /api/analyze [post]
func (h *APIHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.VideoURL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "videoUrl is required"})
		return
	}

	ctx := c.Request.Context()
	logger.InfoCtx(ctx, "analyzing video %s", req.VideoURL)

	data, err := h.ai.Analyze(ctx, engine.AnalyzeRequest{
		VideoURL:   req.VideoURL,
		WebhookURL: h.webhookURL,
	})
	if err != nil {
		if engine.IsUnavailable(err) {
			logger.WarnCtx(ctx, "ai engine unavailable: %v", err)
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"message": "Analysis request received (AI engine not available yet)",
				"note":    "Results will be delivered to the webhook once analysis completes",
			})
			return
		}
		logger.ErrorCtx(ctx, "failed to start analysis: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start analysis", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Analysis started",
		"data":    data,
	})
}

// Health liveness probe with the live connection count
// @Summary Health check
// @Tags api
// @Produce json
// @Router /api/health [get]
func (h *APIHandler) Health(c *gin.Context) {
	connected, err := h.orchestrator.ConnectedCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "STOPPED", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "OK",
		"timestamp":        time.Now().UTC().Format(time.RFC3339Nano),
		"connectedClients": connected,
	})
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// Transcription returns the shared transcription engine state
// @Summary Transcription state
// @Tags api
// @Produce json
// @Router /api/transcription [get]
func (h *APIHandler) Transcription(c *gin.Context) {
	state, err := h.orchestrator.Playback(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active": state.VideoURL != "",
		"state":  state,
	})
}

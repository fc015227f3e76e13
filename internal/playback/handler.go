package playback

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/roombridge/pkg/response"
)

// Handler exposes the playback endpoints.
type Handler struct {
	controller *Controller
	logger     *zap.Logger
}

// NewHandler creates the playback HTTP handler.
func NewHandler(controller *Controller, logger *zap.Logger) *Handler {
	return &Handler{controller: controller, logger: logger}
}

// Play starts a playback and streams its lifecycle events as newline
// delimited JSON until the terminal event. The request ends when the
// playback does.
func (h *Handler) Play(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		response.BadRequest(c, "user_id is required")
		return
	}
	if req.AudioURL == "" {
		response.BadRequest(c, "audio_url is required")
		return
	}

	c.Writer.Header().Set("Content-Type", "application/x-ndjson")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(c.Writer)
	emit := func(ev Event) {
		if err := enc.Encode(ev); err != nil {
			h.logger.Debug("playback event write failed", zap.Error(err))
			return
		}
		c.Writer.Flush()
	}

	// Blocks until the terminal event; client disconnect cancels via the
	// request context.
	h.controller.Play(c.Request.Context(), req, emit)
}

type stopRequest struct {
	RequestID string `json:"request_id"`
}

// Stop cancels an in-flight playback by request id.
func (h *Handler) Stop(c *gin.Context) {
	var req stopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.RequestID == "" {
		response.BadRequest(c, "request_id is required")
		return
	}
	stopped := h.controller.Stop(req.RequestID)
	response.OK(c, gin.H{"request_id": req.RequestID, "stopped": stopped})
}

// Package bridge exposes the room lifecycle API: join a user into a room,
// leave it, and report service health.
package bridge

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-webinar/roombridge/config"
	"github.com/aura-webinar/roombridge/internal/session"
	"github.com/aura-webinar/roombridge/pkg/response"
)

type joinRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	RoomName       string `json:"room_name" binding:"required"`
	Token          string `json:"token" binding:"required"`
	MediaURL       string `json:"media_url"`
	TargetIdentity string `json:"target_identity"`
}

type leaveRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Handler serves the room lifecycle endpoints.
type Handler struct {
	registry *session.Registry
	cfg      *config.Config
	logger   *zap.Logger
	started  time.Time
}

// NewHandler creates the bridge handler.
func NewHandler(registry *session.Registry, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		started:  time.Now(),
	}
}

// Join creates the user's session and connects it to the room. A user holds
// at most one live session; a second join is rejected until the first one is
// torn down.
func (h *Handler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	mediaURL := req.MediaURL
	if mediaURL == "" {
		mediaURL = h.cfg.LiveKit.URL
	}

	// The session may already exist in Init state when the client opened its
	// audio stream first; joining it connects that same session to the room.
	sess, _ := h.registry.GetOrCreate(req.UserID)
	info, err := sess.Join(c.Request.Context(), req.RoomName, req.Token, mediaURL, req.TargetIdentity)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyJoined) {
			response.Conflict(c, "session already exists for this user")
			return
		}
		h.registry.CloseAndRemove(req.UserID)
		h.logger.Warn("room join failed",
			zap.String("user_id", req.UserID),
			zap.String("room", req.RoomName),
			zap.Error(err),
		)
		response.ServiceUnavailable(c, "failed to join room: "+err.Error())
		return
	}

	h.registry.NotifyJoined(req.UserID, req.RoomName)
	response.OK(c, gin.H{
		"participant_id":    info.ParticipantID,
		"participant_count": info.ParticipantCount,
	})
}

// Leave tears down the user's session. Idempotent: leaving with no live
// session still succeeds.
func (h *Handler) Leave(c *gin.Context) {
	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.registry.CloseAndRemove(req.UserID)
	response.OK(c, gin.H{"user_id": req.UserID})
}

// Health reports liveness and the active session count.
func (h *Handler) Health(c *gin.Context) {
	response.OK(c, gin.H{
		"status":               "ok",
		"active_session_count": h.registry.Count(),
		"uptime_ms":            time.Since(h.started).Milliseconds(),
	})
}

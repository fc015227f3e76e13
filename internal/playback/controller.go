// Package playback implements one-shot server-initiated audio playback: fetch
// a resource, decode it progressively, and publish it into the user's room
// session at the canonical format, with progress events and prompt
// cancellation.
package playback

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/roombridge/internal/metrics"
	"github.com/aura-webinar/roombridge/internal/session"
)

// EventType enumerates playback lifecycle events.
type EventType string

const (
	EventStarted   EventType = "STARTED"
	EventProgress  EventType = "PROGRESS"
	EventCompleted EventType = "COMPLETED"
	EventFailed    EventType = "FAILED"
)

// Event is one playback lifecycle notification. Exactly one terminal event
// (COMPLETED or FAILED) is emitted per request id.
type Event struct {
	Type       EventType `json:"type"`
	RequestID  string    `json:"request_id"`
	PositionMs int64     `json:"position_ms,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Request describes one playback.
type Request struct {
	RequestID string  `json:"request_id"`
	UserID    string  `json:"user_id"`
	AudioURL  string  `json:"audio_url"`
	Volume    float64 `json:"volume"`
	StopOther bool    `json:"stop_other"`
}

// ErrCancelled is the terminal reason for a stopped playback.
var ErrCancelled = errors.New("cancelled")

// Controller runs playbacks and tracks the in-flight ones by request id.
type Controller struct {
	registry      *session.Registry
	httpClient    *http.Client
	progressEvery int
	logger        *zap.Logger
	metrics       *metrics.Metrics

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewController creates a playback controller.
func NewController(registry *session.Registry, httpTimeout time.Duration, progressEvery int, logger *zap.Logger, m *metrics.Metrics) *Controller {
	if progressEvery <= 0 {
		progressEvery = 10
	}
	return &Controller{
		registry:      registry,
		httpClient:    &http.Client{Timeout: httpTimeout},
		progressEvery: progressEvery,
		logger:        logger,
		metrics:       m,
		active:        make(map[string]context.CancelFunc),
	}
}

// Play runs one playback to completion, emitting events as it goes. It
// blocks the caller; the decode loop itself is the only task. The emit
// callback always sees exactly one terminal event, cancellation included.
func (c *Controller) Play(ctx context.Context, req Request, emit func(Event)) {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	logger := c.logger.With(zap.String("request_id", req.RequestID), zap.String("user_id", req.UserID))

	sess, ok := c.registry.Get(req.UserID)
	if !ok {
		emit(Event{Type: EventFailed, RequestID: req.RequestID, Error: "session not found"})
		return
	}

	if req.StopOther {
		sess.StopPlayback()
	}

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Session close cancels via StopPlayback; an explicit Stop cancels via
	// the controller's map. Both end the decode loop within one frame.
	gen := sess.SetPlaybackCancel(cancel)
	defer sess.ClearPlaybackCancel(gen)
	c.mu.Lock()
	c.active[req.RequestID] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.active, req.RequestID)
		c.mu.Unlock()
	}()

	emit(Event{Type: EventStarted, RequestID: req.RequestID})
	if c.metrics != nil {
		c.metrics.PlaybacksStarted.Inc()
	}
	logger.Info("playback started", zap.String("url", req.AudioURL))

	start := time.Now()
	durationMs, err := c.playURL(playCtx, sess, req, emit)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
			reason = ErrCancelled.Error()
		}
		emit(Event{Type: EventFailed, RequestID: req.RequestID, Error: reason})
		if c.metrics != nil {
			c.metrics.PlaybacksFailed.Inc()
		}
		logger.Warn("playback failed", zap.String("reason", reason), zap.Duration("elapsed", time.Since(start)))
		return
	}

	emit(Event{Type: EventCompleted, RequestID: req.RequestID, DurationMs: durationMs})
	if c.metrics != nil {
		c.metrics.PlaybacksCompleted.Inc()
	}
	logger.Info("playback completed", zap.Int64("duration_ms", durationMs))
}

// Stop cancels the in-flight playback with the given request id. Returns
// false when no such playback is active.
func (c *Controller) Stop(requestID string) bool {
	c.mu.Lock()
	cancel, ok := c.active[requestID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// Package stream implements the bidirectional audio relay: one WebSocket per
// user carrying binary PCM frames both ways. Exactly two tasks serve a
// stream for its whole lifetime; backpressure is a blocking write, never a
// queued retry.
package stream

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-webinar/roombridge/internal/fanout"
	"github.com/aura-webinar/roombridge/internal/metrics"
	"github.com/aura-webinar/roombridge/internal/session"
)

const maxFrameBytes = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // cross-origin handled at the edge
	},
}

// hello is the required first message on a stream.
type hello struct {
	UserID string `json:"user_id"`
}

// Handler serves the StreamAudio endpoint.
type Handler struct {
	registry *session.Registry
	broker   *fanout.Broker
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewHandler creates the streaming handler.
func NewHandler(registry *session.Registry, broker *fanout.Broker, logger *zap.Logger, m *metrics.Metrics) *Handler {
	return &Handler{registry: registry, broker: broker, logger: logger, metrics: m}
}

// ServeWs upgrades the connection and runs the relay until either side ends.
func (h *Handler) ServeWs(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	// First message resolves the session.
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var first hello
	if msgType != websocket.TextMessage || json.Unmarshal(msg, &first) != nil || first.UserID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user_id required in first message"))
		return
	}
	userID := first.UserID

	sess, created := h.registry.GetOrCreate(userID)
	logger := h.logger.With(zap.String("user_id", userID))
	logger.Info("audio stream opened", zap.Bool("session_created", created))

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writePump(conn, sess, errCh)
	}()

	// The read pump runs on the handler goroutine: two tasks per stream, no
	// more, for its entire lifetime.
	h.readPump(conn, sess, userID, errCh)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Warn("audio stream error", zap.Error(err))
		}
	default:
	}

	// Tear the session down on any stream end so no zombie session keeps a
	// room connection alive.
	h.registry.CloseAndRemove(userID)
	h.broker.Release(userID)
	conn.Close() // unblocks a write pump stuck in a blocking send
	wg.Wait()
	logger.Info("audio stream closed")
}

// readPump relays client frames into the room until end-of-input, transport
// error, or session cancellation.
func (h *Handler) readPump(conn *websocket.Conn, sess *session.Session, userID string, errCh chan<- error) {
	for {
		select {
		case <-sess.Done():
			return
		default:
		}

		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				errCh <- err
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		frame, err := DecodeFrame(msg, userID)
		if err != nil {
			h.logger.Warn("bad audio frame", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if err := sess.Publish(frame); err != nil {
			if errors.Is(err, session.ErrNotReady) {
				// Not joined yet (or already closing): drop, never buffer.
				continue
			}
			errCh <- err
			return
		}
	}
}

// writePump relays room frames to the client. The write is intentionally
// blocking: a stalled client stalls this task, and transport flow control
// pushes back on the room sink instead of growing memory here.
func (h *Handler) writePump(conn *websocket.Conn, sess *session.Session, errCh chan<- error) {
	for {
		select {
		case frame := <-sess.Frames():
			if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(frame)); err != nil {
				errCh <- err
				return
			}
			if h.metrics != nil {
				h.metrics.FramesRelayed.Inc()
			}
			h.broker.Dispatch(frame)
		case <-sess.Done():
			// Session closed elsewhere (leave, shutdown). Close the websocket
			// so the read pump's blocked ReadMessage unblocks too.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		}
	}
}

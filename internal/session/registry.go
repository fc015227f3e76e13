package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/roombridge/internal/metrics"
	"github.com/aura-webinar/roombridge/internal/notify"
	"github.com/aura-webinar/roombridge/internal/room"
)

// Registry is the concurrency-safe map from user id to live Session. It holds
// routing only, never audio data. At most one live Session exists per user id;
// after CloseAndRemove the id may be reused for a fresh one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	client     room.Client
	inboundCap int
	logger     *zap.Logger
	metrics    *metrics.Metrics
	notifier   notify.Notifier
}

// NewRegistry creates the session registry. notifier may be notify.Noop{}.
func NewRegistry(client room.Client, inboundCap int, logger *zap.Logger, m *metrics.Metrics, notifier notify.Notifier) *Registry {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		client:     client,
		inboundCap: inboundCap,
		logger:     logger,
		metrics:    m,
		notifier:   notifier,
	}
}

// GetOrCreate returns the live Session for userID, constructing and
// registering a new one atomically if none exists. Concurrent calls for the
// same userID observe the same instance.
func (r *Registry) GetOrCreate(userID string) (*Session, bool) {
	r.mu.RLock()
	if s, ok := r.sessions[userID]; ok {
		r.mu.RUnlock()
		return s, false
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s, false
	}
	s := newSession(userID, r.client, r.inboundCap, r.logger, r.metrics)
	r.sessions[userID] = s
	if r.metrics != nil {
		r.metrics.SessionsCreated.Inc()
		r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
	return s, true
}

// Get returns the live Session for userID, if any.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Remove unregisters a Session without closing it. Idempotent.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID]; !ok {
		return
	}
	delete(r.sessions, userID)
	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
	}
}

// CloseAndRemove tears down the Session for userID and unregisters it,
// notifying the status layer. Idempotent; safe from any error path.
func (r *Registry) CloseAndRemove(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
		if r.metrics != nil {
			r.metrics.ActiveSessions.Set(float64(len(r.sessions)))
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	s.Close()
	r.notifier.SessionLeft(userID)
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// NotifyJoined publishes a joined lifecycle event for userID.
func (r *Registry) NotifyJoined(userID, roomName string) {
	r.notifier.SessionJoined(userID, roomName)
}

// ShutdownAll closes every registered session for process-wide teardown,
// waiting until all closes finish or the timeout elapses.
func (r *Registry) ShutdownAll(timeout time.Duration) {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(0)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("all sessions closed", zap.Int("count", len(sessions)))
	case <-time.After(timeout):
		r.logger.Warn("session shutdown timed out", zap.Int("count", len(sessions)))
	}
}

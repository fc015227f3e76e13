package fanout

import (
	"sync"

	"go.uber.org/zap"

	"github.com/aura-webinar/roombridge/internal/audio"
	"github.com/aura-webinar/roombridge/internal/metrics"
)

// Broker keys one Fanout per user so upper layers can subscribe to a user's
// room audio without touching the streaming internals.
type Broker struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	fanouts map[string]*Fanout
}

// NewBroker creates an empty broker.
func NewBroker(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Broker {
	return &Broker{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		fanouts: make(map[string]*Fanout),
	}
}

// ForUser returns the user's fanout, creating it on first use.
func (b *Broker) ForUser(userID string) *Fanout {
	b.mu.RLock()
	if f, ok := b.fanouts[userID]; ok {
		b.mu.RUnlock()
		return f
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if f, ok := b.fanouts[userID]; ok {
		return f
	}
	f := New(b.cfg, b.logger.With(zap.String("user_id", userID)), b.metrics)
	b.fanouts[userID] = f
	return f
}

// Dispatch routes a frame to its owner's fanout, if one exists. Frames for
// users with no consumers are not buffered.
func (b *Broker) Dispatch(frame audio.Frame) {
	b.mu.RLock()
	f, ok := b.fanouts[frame.UserID]
	b.mu.RUnlock()
	if ok {
		f.Dispatch(frame)
	}
}

// Release closes and removes the user's fanout. Idempotent.
func (b *Broker) Release(userID string) {
	b.mu.Lock()
	f, ok := b.fanouts[userID]
	if ok {
		delete(b.fanouts, userID)
	}
	b.mu.Unlock()
	if ok {
		f.Close()
	}
}

// Package fanout delivers decoded room audio to subscribed consumers. Two
// delivery policies share one source: an unthrottled path for
// latency-sensitive consumers (relays) protected by a per-consumer
// outstanding-byte threshold, and a paced path for cadence-sensitive
// consumers (recognition) fed by a bounded jitter buffer.
package fanout

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/roombridge/internal/audio"
	"github.com/aura-webinar/roombridge/internal/metrics"
)

// Consumer receives frames on the unthrottled path. Deliver must not block;
// Outstanding reports bytes accepted but not yet flushed downstream, which
// the fanout compares against the consumer's threshold before delivering.
type Consumer interface {
	Deliver(f audio.Frame)
	Outstanding() int
}

// PacedConsumer receives frames at the configured steady cadence.
type PacedConsumer interface {
	Deliver(f audio.Frame)
}

// Config holds fanout tuning.
type Config struct {
	ByteThreshold int           // default per-consumer outstanding-byte limit
	DropLogEvery  int           // log every Nth drop per consumer
	PacerDepth    int           // jitter buffer depth, frames
	PacerInterval time.Duration // paced delivery cadence
}

type subscriber struct {
	consumer  Consumer
	threshold int
	drops     atomic.Int64
}

// Fanout fans one user's inbound room audio out to its consumers.
type Fanout struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	immediate map[string]*subscriber
	paced     map[string]PacedConsumer

	pacer *Pacer
}

// New creates a fanout with its own pacer. Call Close when the source stream
// ends.
func New(cfg Config, logger *zap.Logger, m *metrics.Metrics) *Fanout {
	f := &Fanout{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		immediate: make(map[string]*subscriber),
		paced:     make(map[string]PacedConsumer),
	}
	f.pacer = NewPacer(cfg.PacerDepth, cfg.PacerInterval, f.deliverPaced)
	f.pacer.Start()
	return f
}

// Subscribe registers an unthrottled consumer with the default threshold.
func (f *Fanout) Subscribe(id string, c Consumer) {
	f.SubscribeWithThreshold(id, c, f.cfg.ByteThreshold)
}

// SubscribeWithThreshold registers an unthrottled consumer with a custom
// outstanding-byte limit.
func (f *Fanout) SubscribeWithThreshold(id string, c Consumer, threshold int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.immediate[id] = &subscriber{consumer: c, threshold: threshold}
}

// SubscribePaced registers a cadence-sensitive consumer.
func (f *Fanout) SubscribePaced(id string, c PacedConsumer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paced[id] = c
}

// Unsubscribe removes a consumer from both paths. Idempotent.
func (f *Fanout) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.immediate, id)
	delete(f.paced, id)
}

// Drops returns how many frames were dropped for an unthrottled consumer.
func (f *Fanout) Drops(id string) int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if sub, ok := f.immediate[id]; ok {
		return sub.drops.Load()
	}
	return 0
}

// PacerLen returns the current jitter buffer depth.
func (f *Fanout) PacerLen() int { return f.pacer.Len() }

// Dispatch hands one frame to every consumer: immediately to the unthrottled
// path (dropping per-consumer when backed up) and into the jitter buffer for
// the paced path. Never blocks and never spawns.
func (f *Fanout) Dispatch(frame audio.Frame) {
	f.mu.RLock()
	for id, sub := range f.immediate {
		if sub.consumer.Outstanding() > sub.threshold {
			n := sub.drops.Add(1)
			if f.metrics != nil {
				f.metrics.FramesDropped.WithLabelValues(metrics.DropFanoutSlow).Inc()
			}
			if f.cfg.DropLogEvery > 0 && n%int64(f.cfg.DropLogEvery) == 0 {
				f.logger.Warn("dropping frames for slow consumer",
					zap.String("consumer", id),
					zap.Int64("total_dropped", n),
					zap.Int("outstanding", sub.consumer.Outstanding()),
				)
			}
			continue
		}
		sub.consumer.Deliver(frame)
	}
	hasPaced := len(f.paced) > 0
	f.mu.RUnlock()

	if hasPaced {
		before := f.pacer.Dropped()
		f.pacer.Add(frame)
		if f.metrics != nil && f.pacer.Dropped() > before {
			f.metrics.FramesDropped.WithLabelValues(metrics.DropPacerFull).Inc()
		}
	}
}

func (f *Fanout) deliverPaced(frame audio.Frame) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, c := range f.paced {
		c.Deliver(frame)
	}
}

// Close stops the pacer and forgets all consumers.
func (f *Fanout) Close() {
	f.pacer.Stop()
	f.mu.Lock()
	f.immediate = make(map[string]*subscriber)
	f.paced = make(map[string]PacedConsumer)
	f.mu.Unlock()
}

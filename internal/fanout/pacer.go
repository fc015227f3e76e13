package fanout

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aura-webinar/roombridge/internal/audio"
)

// Pacer is a bounded drop-oldest jitter buffer. Frames that arrive in bursts
// are queued and released one per tick at a fixed cadence, which is what
// streaming recognition consumers need. Delivery happens synchronously on the
// single timer goroutine; there is never one task per tick.
type Pacer struct {
	mu    sync.Mutex
	queue []audio.Frame

	depth    int
	interval time.Duration
	out      func(audio.Frame)

	dropped atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	quit      chan struct{}
}

// NewPacer creates a pacer that hands one frame to out every interval while
// the queue is non-empty. Frames beyond depth evict the oldest queued frame.
func NewPacer(depth int, interval time.Duration, out func(audio.Frame)) *Pacer {
	if depth < 1 {
		depth = 1
	}
	return &Pacer{
		depth:    depth,
		interval: interval,
		out:      out,
		quit:     make(chan struct{}),
	}
}

// Start launches the timer goroutine. Safe to call once per pacer.
func (p *Pacer) Start() {
	p.startOnce.Do(func() {
		go p.run()
	})
}

// Stop ends the timer goroutine. Idempotent.
func (p *Pacer) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
}

// Add queues a frame for paced delivery, evicting the oldest when full. The
// queue length never exceeds the configured depth.
func (p *Pacer) Add(f audio.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) >= p.depth {
		copy(p.queue, p.queue[1:])
		p.queue = p.queue[:len(p.queue)-1]
		p.dropped.Add(1)
	}
	p.queue = append(p.queue, f)
}

// Len returns the current queue length.
func (p *Pacer) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Dropped returns the number of frames evicted because the queue was full.
func (p *Pacer) Dropped() int64 {
	return p.dropped.Load()
}

func (p *Pacer) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			if len(p.queue) == 0 {
				p.mu.Unlock()
				continue
			}
			f := p.queue[0]
			copy(p.queue, p.queue[1:])
			p.queue = p.queue[:len(p.queue)-1]
			p.mu.Unlock()
			p.out(f)
		case <-p.quit:
			return
		}
	}
}

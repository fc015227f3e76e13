package fanout

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/aura-webinar/roombridge/internal/audio"
	"github.com/aura-webinar/roombridge/internal/metrics"
)

type recordingConsumer struct {
	mu          sync.Mutex
	frames      []audio.Frame
	outstanding atomic.Int64
}

func (c *recordingConsumer) Deliver(f audio.Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.mu.Unlock()
}

func (c *recordingConsumer) Outstanding() int {
	return int(c.outstanding.Load())
}

func (c *recordingConsumer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func testConfig() Config {
	return Config{
		ByteThreshold: 512 * 1024,
		DropLogEvery:  50,
		PacerDepth:    10,
		PacerInterval: 10 * time.Millisecond,
	}
}

func newTestFanout(cfg Config) *Fanout {
	return New(cfg, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
}

func frame(seq byte) audio.Frame {
	return audio.Frame{PCM: []byte{seq, 0}, SampleRate: 16000, Channels: 1, UserID: "u1"}
}

func TestDispatchDeliversInOrder(t *testing.T) {
	f := newTestFanout(testConfig())
	defer f.Close()

	c := &recordingConsumer{}
	f.Subscribe("relay", c)

	for i := byte(0); i < 20; i++ {
		f.Dispatch(frame(i))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) != 20 {
		t.Fatalf("delivered %d frames, want 20", len(c.frames))
	}
	for i, fr := range c.frames {
		if fr.PCM[0] != byte(i) {
			t.Errorf("frame %d out of order: got seq %d", i, fr.PCM[0])
		}
	}
}

func TestSlowConsumerDropsWithoutBlocking(t *testing.T) {
	f := newTestFanout(testConfig())
	defer f.Close()

	slow := &recordingConsumer{}
	fast := &recordingConsumer{}
	f.SubscribeWithThreshold("slow", slow, 2)
	f.Subscribe("fast", fast)

	slow.outstanding.Store(100) // permanently backed up
	for i := byte(0); i < 20; i++ {
		f.Dispatch(frame(i))
	}

	if got := slow.count(); got != 0 {
		t.Errorf("slow consumer received %d frames, want 0", got)
	}
	if got := f.Drops("slow"); got != 20 {
		t.Errorf("slow drops: got %d, want 20", got)
	}
	if got := fast.count(); got != 20 {
		t.Errorf("fast consumer received %d frames, want 20", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := newTestFanout(testConfig())
	defer f.Close()

	c := &recordingConsumer{}
	f.Subscribe("relay", c)
	f.Dispatch(frame(0))
	f.Unsubscribe("relay")
	f.Unsubscribe("relay")
	f.Dispatch(frame(1))

	if got := c.count(); got != 1 {
		t.Errorf("received %d frames, want 1", got)
	}
}

type pacedRecorder struct {
	mu     sync.Mutex
	frames []audio.Frame
	times  []time.Time
}

func (c *pacedRecorder) Deliver(f audio.Frame) {
	c.mu.Lock()
	c.frames = append(c.frames, f)
	c.times = append(c.times, time.Now())
	c.mu.Unlock()
}

func TestPacedDeliveryBoundedDepth(t *testing.T) {
	cfg := testConfig()
	cfg.PacerDepth = 5
	cfg.PacerInterval = time.Hour // never ticks during the test
	f := newTestFanout(cfg)
	defer f.Close()

	f.SubscribePaced("recognizer", &pacedRecorder{})
	for i := byte(0); i < 20; i++ {
		f.Dispatch(frame(i))
	}
	if got := f.PacerLen(); got != 5 {
		t.Errorf("pacer depth: got %d, want 5", got)
	}
}

func TestPacedDeliveryKeepsNewestAtCadence(t *testing.T) {
	cfg := testConfig()
	cfg.PacerDepth = 4
	cfg.PacerInterval = 5 * time.Millisecond
	f := newTestFanout(cfg)
	defer f.Close()

	rec := &pacedRecorder{}
	f.SubscribePaced("recognizer", rec)

	// A burst larger than the buffer: the oldest frames are evicted, the
	// newest drain one per tick.
	for i := byte(0); i < 10; i++ {
		f.Dispatch(frame(i))
	}

	// The newest frame is never evicted; wait until it drains.
	deadline := time.After(time.Second)
	for {
		rec.mu.Lock()
		done := len(rec.frames) > 0 && rec.frames[len(rec.frames)-1].PCM[0] == 9
		rec.mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("newest frame never drained")
		case <-time.After(5 * time.Millisecond):
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i := 1; i < len(rec.frames); i++ {
		if rec.frames[i].PCM[0] <= rec.frames[i-1].PCM[0] {
			t.Errorf("paced frames out of order: %d after %d", rec.frames[i].PCM[0], rec.frames[i-1].PCM[0])
		}
	}
	if last := rec.frames[len(rec.frames)-1].PCM[0]; last != 9 {
		t.Errorf("newest frame: got seq %d, want 9", last)
	}
}

func TestPacerDropOldest(t *testing.T) {
	var got []byte
	p := NewPacer(3, time.Hour, func(f audio.Frame) {
		got = append(got, f.PCM[0])
	})
	for i := byte(0); i < 5; i++ {
		p.Add(frame(i))
	}
	if p.Len() != 3 {
		t.Errorf("len: got %d, want 3", p.Len())
	}
	if p.Dropped() != 2 {
		t.Errorf("dropped: got %d, want 2", p.Dropped())
	}
}

func TestPacerClampsDepth(t *testing.T) {
	p := NewPacer(0, time.Hour, func(audio.Frame) {})
	p.Add(frame(0))
	p.Add(frame(1))
	if p.Len() != 1 {
		t.Errorf("len: got %d, want 1", p.Len())
	}
	if p.Dropped() != 1 {
		t.Errorf("dropped: got %d, want 1", p.Dropped())
	}
}

func TestBrokerRoutesByUser(t *testing.T) {
	b := NewBroker(testConfig(), zap.NewNop(), metrics.New(prometheus.NewRegistry()))

	c1 := &recordingConsumer{}
	b.ForUser("u1").Subscribe("relay", c1)

	b.Dispatch(audio.Frame{PCM: []byte{1, 0}, SampleRate: 16000, Channels: 1, UserID: "u1"})
	b.Dispatch(audio.Frame{PCM: []byte{2, 0}, SampleRate: 16000, Channels: 1, UserID: "u2"})

	if got := c1.count(); got != 1 {
		t.Errorf("u1 consumer received %d frames, want 1", got)
	}

	b.Release("u1")
	b.Release("u1")
	b.Dispatch(audio.Frame{PCM: []byte{3, 0}, SampleRate: 16000, Channels: 1, UserID: "u1"})
	if got := c1.count(); got != 1 {
		t.Errorf("consumer received frames after release: %d", got)
	}
}

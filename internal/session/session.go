// Package session owns the per-user room connection lifecycle: join, publish,
// inbound relay sink, and single-flight teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/roombridge/internal/audio"
	"github.com/aura-webinar/roombridge/internal/metrics"
	"github.com/aura-webinar/roombridge/internal/room"
)

// State is the session lifecycle state.
type State int32

const (
	StateInit State = iota
	StateJoining
	StateJoined
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrNotReady is returned by Publish outside the JOINED state. Callers
	// drop the frame; they must not buffer or retry.
	ErrNotReady = errors.New("session not ready")
	// ErrAlreadyJoined is returned by Join on a session that already holds a
	// room connection.
	ErrAlreadyJoined = errors.New("session already joined")
	// ErrClosed is returned by Join after the session has been torn down.
	ErrClosed = errors.New("session closed")
)

// JoinInfo is the successful join result surfaced to the caller.
type JoinInfo struct {
	ParticipantID    string
	ParticipantCount int
}

// Session is one user's bridge into a room. It exclusively owns the room
// connection and publish track; teardown runs at most once no matter how many
// error paths race into Close.
type Session struct {
	userID    string
	createdAt time.Time
	client    room.Client
	logger    *zap.Logger
	metrics   *metrics.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu    sync.RWMutex
	state State
	conn  room.Conn
	track room.Track

	inbound  chan audio.Frame
	received atomic.Int64
	dropped  atomic.Int64

	// pubMu serializes track writes and the resampler state shared between
	// the inbound stream task and an in-flight playback.
	pubMu        sync.Mutex
	pubResampler *audio.Resampler
	pubSrcRate   int

	playbackMu     sync.Mutex
	playbackCancel context.CancelFunc
	playbackGen    uint64
}

func newSession(userID string, client room.Client, inboundCap int, logger *zap.Logger, m *metrics.Metrics) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		userID:    userID,
		createdAt: time.Now(),
		client:    client,
		logger:    logger.With(zap.String("user_id", userID)),
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateInit,
		inbound:   make(chan audio.Frame, inboundCap),
	}
}

// UserID returns the owning user identifier.
func (s *Session) UserID() string { return s.userID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed when the session's shared cancellation token fires. Every
// task belonging to this session selects on it.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Frames is the inbound sink: audio the room delivered from the subscribed
// participant, in arrival order. Consumed by the outbound relay task.
func (s *Session) Frames() <-chan audio.Frame { return s.inbound }

// Dropped reports frames discarded because the inbound sink was full.
func (s *Session) Dropped() int64 { return s.dropped.Load() }

// Join connects the session to a room. targetIdentity selects whose audio is
// relayed back out; empty means publish-only. Any failure tears the session
// down completely; the caller must discard it.
func (s *Session) Join(ctx context.Context, roomName, token, mediaURL, targetIdentity string) (JoinInfo, error) {
	s.mu.Lock()
	switch s.state {
	case StateInit:
		s.state = StateJoining
	case StateClosing, StateClosed:
		s.mu.Unlock()
		return JoinInfo{}, ErrClosed
	default:
		s.mu.Unlock()
		return JoinInfo{}, ErrAlreadyJoined
	}
	s.mu.Unlock()

	opts := room.ConnectOptions{
		TargetIdentity: targetIdentity,
		OnDisconnected: func() {
			s.logger.Warn("room connection lost")
		},
	}
	if targetIdentity != "" {
		opts.OnData = s.onRoomData
	}

	conn, err := s.client.Connect(ctx, mediaURL, token, opts)
	if err != nil {
		s.Close()
		return JoinInfo{}, fmt.Errorf("join room %s: %w", roomName, err)
	}

	track, err := conn.PublishTrack("speaker")
	if err != nil {
		conn.Disconnect()
		s.Close()
		return JoinInfo{}, fmt.Errorf("join room %s: %w", roomName, err)
	}

	s.mu.Lock()
	if s.state != StateJoining {
		// Closed while connecting; release what we just acquired.
		s.mu.Unlock()
		track.Close()
		conn.Disconnect()
		return JoinInfo{}, ErrClosed
	}
	s.conn = conn
	s.track = track
	s.state = StateJoined
	s.mu.Unlock()

	info := JoinInfo{
		ParticipantID:    conn.LocalIdentity(),
		ParticipantCount: conn.ParticipantCount(),
	}
	s.logger.Info("joined room",
		zap.String("room", roomName),
		zap.String("participant_id", info.ParticipantID),
		zap.Int("participant_count", info.ParticipantCount),
	)
	return info, nil
}

// onRoomData is the single inbound callback. It never blocks: when the sink
// is full the newest frame is dropped and counted.
func (s *Session) onRoomData(pcm []byte, senderIdentity string) {
	frame := audio.Frame{
		PCM:         pcm,
		SampleRate:  audio.CanonicalRate,
		Channels:    audio.CanonicalChannels,
		TimestampMs: time.Now().UnixMilli(),
		UserID:      s.userID,
	}
	select {
	case s.inbound <- frame:
		if n := s.received.Add(1); n%500 == 0 {
			s.logger.Debug("inbound audio flowing",
				zap.Int64("received", n),
				zap.Int64("dropped", s.dropped.Load()),
				zap.Int("sink_len", len(s.inbound)),
			)
		}
	default:
		if n := s.dropped.Add(1); n%50 == 0 {
			s.logger.Warn("dropping inbound audio, sink full",
				zap.Int64("total_dropped", n),
				zap.Int("sink_len", len(s.inbound)),
			)
		}
		if s.metrics != nil {
			s.metrics.FramesDropped.WithLabelValues(metrics.DropInboundFull).Inc()
		}
	}
}

// Publish writes one frame to the publish track, normalizing rate and
// channel count to the canonical format first. Valid only while JOINED.
func (s *Session) Publish(f audio.Frame) error {
	s.mu.RLock()
	if s.state != StateJoined {
		s.mu.RUnlock()
		return ErrNotReady
	}
	track := s.track
	s.mu.RUnlock()

	samples := audio.BytesToInt16(f.PCM)
	if len(samples) == 0 {
		return nil
	}
	if f.Channels == 2 {
		samples = audio.DownmixStereo(samples)
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if f.SampleRate != audio.CanonicalRate {
		if s.pubResampler == nil || s.pubSrcRate != f.SampleRate {
			s.pubResampler = audio.NewResampler(f.SampleRate, audio.CanonicalRate)
			s.pubSrcRate = f.SampleRate
		}
		samples = s.pubResampler.Push(samples)
		if len(samples) == 0 {
			return nil
		}
	}

	if err := track.WriteSample(samples); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if s.metrics != nil {
		s.metrics.FramesPublished.Inc()
	}
	return nil
}

// SetPlaybackCancel installs the cancel function of the in-flight playback
// and returns a generation token for ClearPlaybackCancel.
func (s *Session) SetPlaybackCancel(cancel context.CancelFunc) uint64 {
	s.playbackMu.Lock()
	defer s.playbackMu.Unlock()
	s.playbackGen++
	s.playbackCancel = cancel
	return s.playbackGen
}

// ClearPlaybackCancel removes the stored cancel unless a newer playback has
// already replaced it.
func (s *Session) ClearPlaybackCancel(gen uint64) {
	s.playbackMu.Lock()
	defer s.playbackMu.Unlock()
	if s.playbackGen == gen {
		s.playbackCancel = nil
	}
}

// StopPlayback cancels any in-flight playback without touching the streaming
// tasks.
func (s *Session) StopPlayback() {
	s.playbackMu.Lock()
	cancel := s.playbackCancel
	s.playbackCancel = nil
	s.playbackMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close tears the session down: cancel the shared token, stop playback,
// release the publish track, disconnect from the room. Single-flight; every
// caller after the first returns immediately with the work already done.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosing
		conn := s.conn
		track := s.track
		s.conn = nil
		s.track = nil
		s.mu.Unlock()

		s.cancel()
		s.StopPlayback()

		if track != nil {
			track.Close()
		}
		if conn != nil {
			conn.Disconnect()
		}

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.SessionsClosed.Inc()
		}
		s.logger.Info("session closed",
			zap.Duration("lifetime", time.Since(s.createdAt)),
			zap.Int64("inbound_dropped", s.dropped.Load()),
		)
	})
}

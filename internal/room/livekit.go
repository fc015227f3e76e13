package room

import (
	"context"
	"fmt"

	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"go.uber.org/zap"

	"github.com/aura-webinar/roombridge/internal/audio"
)

// LiveKitClient implements Client against a LiveKit server.
type LiveKitClient struct {
	logger *zap.Logger
}

// NewLiveKitClient creates the LiveKit-backed room client.
func NewLiveKitClient(logger *zap.Logger) *LiveKitClient {
	return &LiveKitClient{logger: logger}
}

// Connect joins a LiveKit room with the supplied token. Inbound audio arrives
// as user data packets; auto-subscribe stays off because media tracks are
// never consumed directly.
func (c *LiveKitClient) Connect(ctx context.Context, url, token string, opts ConnectOptions) (Conn, error) {
	callback := &lksdk.RoomCallback{
		OnDisconnected: func() {
			c.logger.Warn("disconnected from room", zap.String("url", url))
			if opts.OnDisconnected != nil {
				opts.OnDisconnected()
			}
		},
	}
	if opts.OnData != nil {
		callback.ParticipantCallback = lksdk.ParticipantCallback{
			OnDataPacket: func(packet lksdk.DataPacket, params lksdk.DataReceiveParams) {
				if opts.TargetIdentity != "" && params.SenderIdentity != opts.TargetIdentity {
					return
				}
				userPacket, ok := packet.(*lksdk.UserDataPacket)
				if !ok || len(userPacket.Payload) == 0 {
					return
				}
				pcm := trimToEven(userPacket.Payload)
				if len(pcm) == 0 {
					return
				}
				opts.OnData(pcm, params.SenderIdentity)
			},
		}
	}

	type result struct {
		room *lksdk.Room
		err  error
	}
	done := make(chan result, 1)
	go func() {
		r, err := lksdk.ConnectToRoomWithToken(url, token, callback, lksdk.WithAutoSubscribe(false))
		done <- result{room: r, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("connect to room: %w", res.err)
		}
		return &liveKitConn{room: res.room}, nil
	case <-ctx.Done():
		// The SDK connect has no context variant; abandon the attempt and
		// disconnect if it eventually succeeds.
		go func() {
			if res := <-done; res.err == nil {
				res.room.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
}

type liveKitConn struct {
	room *lksdk.Room
}

func (c *liveKitConn) PublishTrack(name string) (Track, error) {
	track, err := lkmedia.NewPCMLocalTrack(audio.CanonicalRate, audio.CanonicalChannels, nil)
	if err != nil {
		return nil, fmt.Errorf("create PCM track: %w", err)
	}
	if _, err := c.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name: name,
	}); err != nil {
		track.Close()
		return nil, fmt.Errorf("publish track: %w", err)
	}
	return &liveKitTrack{track: track}, nil
}

func (c *liveKitConn) LocalIdentity() string {
	return string(c.room.LocalParticipant.Identity())
}

func (c *liveKitConn) ParticipantCount() int {
	return len(c.room.GetRemoteParticipants()) + 1
}

func (c *liveKitConn) Disconnect() {
	c.room.Disconnect()
}

type liveKitTrack struct {
	track *lkmedia.PCMLocalTrack
}

// WriteSample feeds the track in 10 ms chunks; the SDK expects steady small
// writes at the track's sample rate.
func (t *liveKitTrack) WriteSample(samples []int16) error {
	frameSamples := audio.CanonicalRate / 100
	for offset := 0; offset < len(samples); offset += frameSamples {
		end := offset + frameSamples
		if end > len(samples) {
			end = len(samples)
		}
		if err := t.track.WriteSample(samples[offset:end]); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}
	}
	return nil
}

func (t *liveKitTrack) Close() error {
	t.track.Close()
	return nil
}

// trimToEven drops a stray byte so the payload is whole int16 samples. Some
// upstream publishers prefix an odd marker byte, so strip from the front.
func trimToEven(pcm []byte) []byte {
	if len(pcm)%2 == 1 {
		return pcm[1:]
	}
	return pcm
}

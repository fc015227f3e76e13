// Package room defines the boundary to the external real-time media service
// and its LiveKit implementation. Sessions own the returned handles
// exclusively; nothing else in the bridge calls Disconnect or Close on them.
package room

import "context"

// DataFunc receives raw PCM payloads published by other room participants.
type DataFunc func(pcm []byte, senderIdentity string)

// ConnectOptions carries per-join settings for the media server connection.
type ConnectOptions struct {
	// TargetIdentity limits inbound audio to a single participant. Empty
	// means no inbound subscription at all (publish-only session).
	TargetIdentity string
	// OnData is invoked for every accepted inbound payload. May be nil when
	// TargetIdentity is empty.
	OnData DataFunc
	// OnDisconnected is invoked when the server drops the connection.
	OnDisconnected func()
}

// Client connects to the media server. There is one Client per process.
type Client interface {
	Connect(ctx context.Context, url, token string, opts ConnectOptions) (Conn, error)
}

// Conn is a live connection to one room on behalf of one participant.
type Conn interface {
	// PublishTrack creates and publishes a named PCM audio track.
	PublishTrack(name string) (Track, error)
	LocalIdentity() string
	// ParticipantCount includes the local participant.
	ParticipantCount() int
	Disconnect()
}

// Track is a published audio track accepting canonical-rate mono PCM.
type Track interface {
	WriteSample(samples []int16) error
	Close() error
}

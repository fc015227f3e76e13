package stream

import (
	"encoding/binary"
	"fmt"

	"github.com/aura-webinar/roombridge/internal/audio"
)

// Binary frame layout, big-endian:
//
//	[SampleRate:4][Channels:2][TimestampMs:8][PCM:N]
//
// The user id never travels per frame; it is fixed by the stream's hello
// message.
const frameHeaderSize = 14

// EncodeFrame serializes a frame for the wire.
func EncodeFrame(f audio.Frame) []byte {
	buf := make([]byte, frameHeaderSize+len(f.PCM))
	binary.BigEndian.PutUint32(buf[0:4], uint32(f.SampleRate))
	binary.BigEndian.PutUint16(buf[4:6], uint16(f.Channels))
	binary.BigEndian.PutUint64(buf[6:14], uint64(f.TimestampMs))
	copy(buf[frameHeaderSize:], f.PCM)
	return buf
}

// DecodeFrame parses a wire frame, attributing it to userID.
func DecodeFrame(data []byte, userID string) (audio.Frame, error) {
	if len(data) < frameHeaderSize {
		return audio.Frame{}, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	sampleRate := int(binary.BigEndian.Uint32(data[0:4]))
	channels := int(binary.BigEndian.Uint16(data[4:6]))
	if sampleRate <= 0 {
		return audio.Frame{}, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if channels != 1 && channels != 2 {
		return audio.Frame{}, fmt.Errorf("invalid channel count %d", channels)
	}
	pcm := make([]byte, len(data)-frameHeaderSize)
	copy(pcm, data[frameHeaderSize:])
	return audio.Frame{
		PCM:         pcm,
		SampleRate:  sampleRate,
		Channels:    channels,
		TimestampMs: int64(binary.BigEndian.Uint64(data[6:14])),
		UserID:      userID,
	}, nil
}

package audio

import (
	"encoding/binary"
	"time"
)

// Canonical bridge format. Frames are normalized to this rate and channel
// count before they cross the room boundary in either direction.
const (
	CanonicalRate     = 16000
	CanonicalChannels = 1
)

// Frame is one immutable unit of PCM16 little-endian audio.
type Frame struct {
	PCM         []byte
	SampleRate  int
	Channels    int
	TimestampMs int64
	UserID      string
}

// Duration returns the playing time of the frame at its declared rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.PCM) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// BytesToInt16 converts little-endian PCM bytes to samples. A trailing odd
// byte is discarded.
func BytesToInt16(pcm []byte) []int16 {
	if len(pcm)%2 == 1 {
		pcm = pcm[:len(pcm)-1]
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

// Int16ToBytes converts samples to little-endian PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return pcm
}

// DownmixStereo averages interleaved stereo samples into mono.
func DownmixStereo(samples []int16) []int16 {
	mono := make([]int16, len(samples)/2)
	for i := 0; i+1 < len(samples); i += 2 {
		v := int32(samples[i]) + int32(samples[i+1])
		mono[i/2] = int16(v / 2)
	}
	return mono
}

// ApplyGain scales samples in place, clamping to the int16 range.
func ApplyGain(samples []int16, gain float64) {
	if gain == 1.0 {
		return
	}
	for i := range samples {
		v := float64(samples[i]) * gain
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		samples[i] = int16(v)
	}
}

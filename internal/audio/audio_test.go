package audio

import (
	"testing"
	"time"
)

func TestBytesToInt16RoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	got := BytesToInt16(Int16ToBytes(samples))
	if len(got) != len(samples) {
		t.Fatalf("got %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], samples[i])
		}
	}
}

func TestBytesToInt16DropsOddByte(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03}
	got := BytesToInt16(pcm)
	if len(got) != 1 {
		t.Fatalf("got %d samples, want 1", len(got))
	}
	if got[0] != 0x0201 {
		t.Errorf("got %#x, want 0x0201", got[0])
	}
}

func TestDownmixStereo(t *testing.T) {
	stereo := []int16{100, 200, -100, 100, 32767, 32767}
	mono := DownmixStereo(stereo)
	want := []int16{150, 0, 32767}
	if len(mono) != len(want) {
		t.Fatalf("got %d samples, want %d", len(mono), len(want))
	}
	for i := range want {
		if mono[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, mono[i], want[i])
		}
	}
}

func TestApplyGainClamps(t *testing.T) {
	samples := []int16{100, -100, 30000, -30000}
	ApplyGain(samples, 2.0)
	want := []int16{200, -200, 32767, -32768}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestApplyGainUnityIsNoop(t *testing.T) {
	samples := []int16{1, 2, 3}
	ApplyGain(samples, 1.0)
	if samples[0] != 1 || samples[1] != 2 || samples[2] != 3 {
		t.Errorf("unity gain changed samples: %v", samples)
	}
}

func TestFrameDuration(t *testing.T) {
	f := Frame{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	if got := f.Duration(); got != 100*time.Millisecond {
		t.Errorf("got %v, want 100ms", got)
	}
	bad := Frame{PCM: make([]byte, 100)}
	if got := bad.Duration(); got != 0 {
		t.Errorf("zero-rate frame: got %v, want 0", got)
	}
}

func TestResamplerDownsamplesByRatio(t *testing.T) {
	r := NewResampler(48000, 16000)
	in := make([]int16, 4800) // 100ms at 48k
	for i := range in {
		in[i] = int16(i % 1000)
	}
	out := r.Push(in)
	// 100ms at 16k is 1600 samples; lookahead may hold back a couple.
	if len(out) < 1595 || len(out) > 1600 {
		t.Errorf("got %d output samples, want ~1600", len(out))
	}
}

func TestResamplerAcrossChunks(t *testing.T) {
	r := NewResampler(44100, 16000)
	total := 0
	chunks := 20
	chunkLen := 441 // 10ms at 44.1k
	for i := 0; i < chunks; i++ {
		out := r.Push(make([]int16, chunkLen))
		total += len(out)
	}
	// 200ms of input should give ~3200 output samples regardless of chunking.
	want := chunks * chunkLen * 16000 / 44100
	if total < want-5 || total > want+5 {
		t.Errorf("got %d total output samples, want ~%d", total, want)
	}
}

func TestResamplerUpsamples(t *testing.T) {
	r := NewResampler(8000, 16000)
	out := r.Push(make([]int16, 800))
	if len(out) < 1595 || len(out) > 1600 {
		t.Errorf("got %d output samples, want ~1600", len(out))
	}
}

func TestResamplerPreservesConstantSignal(t *testing.T) {
	r := NewResampler(48000, 16000)
	in := make([]int16, 4800)
	for i := range in {
		in[i] = 1000
	}
	for _, s := range r.Push(in) {
		if s != 1000 {
			t.Fatalf("interpolated constant signal to %d", s)
		}
	}
}

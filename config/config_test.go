package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port: got %q", cfg.Server.Port)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sample rate: got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.InboundQueue != 200 {
		t.Errorf("inbound queue: got %d", cfg.Audio.InboundQueue)
	}
	if cfg.Pacing.Depth != 10 {
		t.Errorf("pacing depth: got %d", cfg.Pacing.Depth)
	}
	if cfg.Pacing.Interval != 100*time.Millisecond {
		t.Errorf("pacing interval: got %v", cfg.Pacing.Interval)
	}
	if cfg.Fanout.ByteThreshold != 512*1024 {
		t.Errorf("fanout threshold: got %d", cfg.Fanout.ByteThreshold)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("redis addr default: got %q", cfg.Redis.Addr)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("PACING_INTERVAL_MS", "20")
	t.Setenv("AUDIO_INBOUND_QUEUE", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Errorf("port: got %q", cfg.Server.Port)
	}
	if cfg.Pacing.Interval != 20*time.Millisecond {
		t.Errorf("pacing interval: got %v", cfg.Pacing.Interval)
	}
	if cfg.Audio.InboundQueue != 50 {
		t.Errorf("inbound queue: got %d", cfg.Audio.InboundQueue)
	}
}

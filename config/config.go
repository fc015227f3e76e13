package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	LiveKit  LiveKitConfig
	Redis    RedisConfig
	Audio    AudioConfig
	Pacing   PacingConfig
	Fanout   FanoutConfig
	Playback PlaybackConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// LiveKitConfig holds the default media server URL and connect timeout.
// JoinRoom requests may override the URL per call.
type LiveKitConfig struct {
	URL            string
	ConnectTimeout time.Duration
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// Redis-backed session lifecycle notifications.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AudioConfig holds the canonical audio format and per-session buffering.
type AudioConfig struct {
	SampleRate   int // canonical bridge rate, Hz
	FrameMs      int // nominal frame duration
	InboundQueue int // room -> client channel capacity, frames
}

// PacingConfig holds the jitter-smoothing queue settings.
type PacingConfig struct {
	Depth    int           // max queued frames; oldest dropped beyond this
	Interval time.Duration // steady output cadence
}

// FanoutConfig holds slow-consumer protection for the unthrottled path.
type FanoutConfig struct {
	ByteThreshold int // per-consumer outstanding bytes before drops
	DropLogEvery  int // log every Nth drop to bound log volume
}

// PlaybackConfig holds one-shot playback settings.
type PlaybackConfig struct {
	ProgressEvery int // emit PROGRESS every N published frames
	HTTPTimeout   time.Duration
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		LiveKit: LiveKitConfig{
			URL:            getEnv("LIVEKIT_URL", "ws://localhost:7880"),
			ConnectTimeout: time.Duration(getEnvInt("LIVEKIT_CONNECT_TIMEOUT_SEC", 10)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Audio: AudioConfig{
			SampleRate:   getEnvInt("AUDIO_SAMPLE_RATE", 16000),
			FrameMs:      getEnvInt("AUDIO_FRAME_MS", 100),
			InboundQueue: getEnvInt("AUDIO_INBOUND_QUEUE", 200),
		},
		Pacing: PacingConfig{
			Depth:    getEnvInt("PACING_DEPTH", 10),
			Interval: time.Duration(getEnvInt("PACING_INTERVAL_MS", 100)) * time.Millisecond,
		},
		Fanout: FanoutConfig{
			ByteThreshold: getEnvInt("FANOUT_BYTE_THRESHOLD", 512*1024),
			DropLogEvery:  getEnvInt("FANOUT_DROP_LOG_EVERY", 50),
		},
		Playback: PlaybackConfig{
			ProgressEvery: getEnvInt("PLAYBACK_PROGRESS_EVERY", 10),
			HTTPTimeout:   time.Duration(getEnvInt("PLAYBACK_HTTP_TIMEOUT_SEC", 30)) * time.Second,
		},
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

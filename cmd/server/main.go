// Package main runs the room audio bridge HTTP server with WebSocket
// streaming and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/roombridge/config"
	"github.com/aura-webinar/roombridge/internal/bridge"
	"github.com/aura-webinar/roombridge/internal/fanout"
	"github.com/aura-webinar/roombridge/internal/metrics"
	"github.com/aura-webinar/roombridge/internal/middleware"
	"github.com/aura-webinar/roombridge/internal/notify"
	"github.com/aura-webinar/roombridge/internal/playback"
	"github.com/aura-webinar/roombridge/internal/room"
	"github.com/aura-webinar/roombridge/internal/session"
	"github.com/aura-webinar/roombridge/internal/stream"
	"github.com/aura-webinar/roombridge/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis unavailable, session notifications disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			notifier = notify.NewRedisNotifier(rdb.Client, logger)
		}
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	roomClient := room.NewLiveKitClient(logger)
	registry := session.NewRegistry(roomClient, cfg.Audio.InboundQueue, logger, m, notifier)

	broker := fanout.NewBroker(fanout.Config{
		ByteThreshold: cfg.Fanout.ByteThreshold,
		DropLogEvery:  cfg.Fanout.DropLogEvery,
		PacerDepth:    cfg.Pacing.Depth,
		PacerInterval: cfg.Pacing.Interval,
	}, logger, m)

	controller := playback.NewController(
		registry,
		cfg.Playback.HTTPTimeout,
		cfg.Playback.ProgressEvery,
		logger,
		m,
	)

	bridgeHandler := bridge.NewHandler(registry, cfg, logger)
	playbackHandler := playback.NewHandler(controller, logger)
	streamHandler := stream.NewHandler(registry, broker, logger, m)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", bridgeHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/rooms/join", bridgeHandler.Join)
		v1.POST("/rooms/leave", bridgeHandler.Leave)
		v1.POST("/audio/play", playbackHandler.Play)
		v1.POST("/audio/stop", playbackHandler.Stop)
	}

	// WebSocket audio stream (user id in first message)
	router.GET("/ws/audio", streamHandler.ServeWs)

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// No WriteTimeout: playback responses stream events for the whole
		// duration of the audio.
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	registry.ShutdownAll(15 * time.Second)
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}

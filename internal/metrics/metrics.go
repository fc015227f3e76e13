// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the room audio bridge.
type Metrics struct {
	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsClosed  prometheus.Counter

	// Streaming metrics
	FramesPublished prometheus.Counter
	FramesRelayed   prometheus.Counter
	FramesDropped   *prometheus.CounterVec // by cause: inbound_full, fanout_slow, pacer_full

	// Playback metrics
	PlaybacksStarted   prometheus.Counter
	PlaybacksCompleted prometheus.Counter
	PlaybacksFailed    prometheus.Counter
}

// New creates and registers all bridge metrics against reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_active_sessions",
			Help: "Current number of live room sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_created_total",
			Help: "Total number of room sessions created",
		}),
		SessionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_closed_total",
			Help: "Total number of room sessions closed",
		}),
		FramesPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_published_total",
			Help: "Total audio frames published into rooms",
		}),
		FramesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_relayed_total",
			Help: "Total audio frames relayed from rooms to clients",
		}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_frames_dropped_total",
			Help: "Total audio frames dropped, by cause",
		}, []string{"cause"}),
		PlaybacksStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_playbacks_started_total",
			Help: "Total playback requests started",
		}),
		PlaybacksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_playbacks_completed_total",
			Help: "Total playback requests completed",
		}),
		PlaybacksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_playbacks_failed_total",
			Help: "Total playback requests that failed or were cancelled",
		}),
	}
}

// Drop cause labels.
const (
	DropInboundFull = "inbound_full"
	DropFanoutSlow  = "fanout_slow"
	DropPacerFull   = "pacer_full"
)

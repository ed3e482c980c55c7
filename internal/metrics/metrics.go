// Package metrics exposes Prometheus counters for the gateway, the command
// routers and audio playback.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/glizzus/harmony/internal/audio"
	"github.com/glizzus/harmony/internal/command"
	"github.com/glizzus/harmony/internal/gateway"
	"github.com/glizzus/harmony/internal/interactions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	dispatchesTotal   *prometheus.CounterVec
	reconnectsTotal   prometheus.Counter
	heartbeatLatency  prometheus.Histogram
	commandsTotal     *prometheus.CounterVec
	framesTotal       prometheus.Counter
	playbacksTotal    *prometheus.CounterVec
	voiceSessions     prometheus.Gauge
	gatewayConnection prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		dispatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harmony_gateway_dispatches_total",
			Help: "Dispatch events received from the gateway, by event name",
		}, []string{"event"}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harmony_gateway_reconnects_total",
			Help: "Times the gateway session started reconnecting",
		}),
		heartbeatLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harmony_gateway_heartbeat_latency_seconds",
			Help:    "Time between a heartbeat and its acknowledgement",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harmony_commands_total",
			Help: "Handled commands and interactions, by name and result",
		}, []string{"command", "result"}),
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harmony_audio_frames_total",
			Help: "Audio frames handed to a voice transport",
		}),
		playbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harmony_audio_playbacks_total",
			Help: "Finished playbacks, by how they ended",
		}, []string{"result"}),
		voiceSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harmony_voice_sessions",
			Help: "Guilds with an open voice session",
		}),
		gatewayConnection: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harmony_gateway_connected",
			Help: "1 while the gateway session is connected",
		}),
	}

	registry.MustRegister(
		m.dispatchesTotal,
		m.reconnectsTotal,
		m.heartbeatLatency,
		m.commandsTotal,
		m.framesTotal,
		m.playbacksTotal,
		m.voiceSessions,
		m.gatewayConnection,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) DispatchReceived(event string) {
	m.dispatchesTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) Reconnecting(reason error) {
	m.reconnectsTotal.Inc()
}

func (m *Metrics) HeartbeatAcked(latency time.Duration) {
	m.heartbeatLatency.Observe(latency.Seconds())
}

var _ gateway.Observer = (*Metrics)(nil)

func (m *Metrics) CommandInvoked(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commandsTotal.WithLabelValues(name, result).Inc()
}

var (
	_ command.Observer      = (*Metrics)(nil)
	_ interactions.Observer = (*Metrics)(nil)
)

func (m *Metrics) FrameTransmitted() {
	m.framesTotal.Inc()
}

func (m *Metrics) PlaybackEnded(err error) {
	result := "finished"
	switch {
	case errors.Is(err, audio.ErrStopped):
		result = "stopped"
	case err != nil:
		result = "failed"
	}
	m.playbacksTotal.WithLabelValues(result).Inc()
}

var _ audio.Observer = (*Metrics)(nil)

// SetVoiceSessions sets the open voice session gauge.
func (m *Metrics) SetVoiceSessions(n int) {
	m.voiceSessions.Set(float64(n))
}

// SetGatewayConnected sets the connection gauge.
func (m *Metrics) SetGatewayConnected(connected bool) {
	if connected {
		m.gatewayConnection.Set(1)
	} else {
		m.gatewayConnection.Set(0)
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, r)
	})
}

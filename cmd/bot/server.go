package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/glizzus/harmony/internal/gateway"
	"github.com/glizzus/harmony/internal/logger"
	"github.com/glizzus/harmony/internal/metrics"
	"github.com/glizzus/harmony/internal/voice"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func gatewayConnected(gw *gateway.Session) bool {
	switch gw.Status() {
	case gateway.StatusConnected, gateway.StatusAwaitingHeartbeatAck:
		return true
	default:
		return false
	}
}

// newServer serves the metrics and health endpoints.
func newServer(addr string, log *slog.Logger, m *metrics.Metrics, gw *gateway.Session, voiceManager *voice.Manager) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))

	r.Handle("/metrics", m.Handler(func() {
		m.SetVoiceSessions(voiceManager.Count())
		m.SetGatewayConnected(gatewayConnected(gw))
	}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !gatewayConnected(gw) {
			http.Error(w, gw.Status().String(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

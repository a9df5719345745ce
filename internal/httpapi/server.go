package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Eliolocin/TomoriBot-sub001/internal/config"
	"github.com/Eliolocin/TomoriBot-sub001/internal/observability"
	"github.com/Eliolocin/TomoriBot-sub001/internal/stream"
)

// Server is the operational HTTP surface of the bot: health, status,
// metrics, recent latency, and a remote stop switch. The conversational
// surface lives on the Discord gateway, not here.
type Server struct {
	cfg          config.Config
	orchestrator *stream.Orchestrator
	locks        *stream.LockTable
	metrics      *observability.Metrics
	providerName string
	startedAt    time.Time
}

func New(cfg config.Config, orchestrator *stream.Orchestrator, locks *stream.LockTable, metrics *observability.Metrics, providerName string) *Server {
	return &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		locks:        locks,
		metrics:      metrics,
		providerName: providerName,
		startedAt:    time.Now().UTC(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Post("/v1/channels/{id}/stop", s.handleStopChannel)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"provider": s.providerName,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"provider": s.providerName,
	})
}

type statusResponse struct {
	Provider       string  `json:"provider"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	LockedChannels int     `json:"locked_channels"`
	QueuedTriggers int     `json:"queued_triggers"`
	PendingStops   int     `json:"pending_stops"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var locked, queued int
	if s.locks != nil {
		locked, queued = s.locks.Stats()
	}
	pendingStops := 0
	if s.orchestrator != nil {
		pendingStops = s.orchestrator.PendingStops()
	}
	respondJSON(w, http.StatusOK, statusResponse{
		Provider:       s.providerName,
		UptimeSeconds:  time.Since(s.startedAt).Seconds(),
		LockedChannels: locked,
		QueuedTriggers: queued,
		PendingStops:   pendingStops,
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotStreamStages())
}

// handleStopChannel lets operators cancel a runaway stream without Discord
// access. The stop is polled cooperatively, so an idle channel just ages the
// entry out of the registry.
func (s *Server) handleStopChannel(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_channel_id", "missing channel id")
		return
	}
	if s.orchestrator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "orchestrator not configured")
		return
	}
	s.orchestrator.RequestStop(id)
	respondJSON(w, http.StatusAccepted, map[string]any{
		"channel_id": id,
		"stopping":   true,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

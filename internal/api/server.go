// Package api exposes the runtime over HTTP: text and audio command
// execution, trace variants of both, room alias discovery, a WebSocket audio
// stream, health probes, and the Prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/droman42/irene/internal/config"
	"github.com/droman42/irene/internal/health"
	"github.com/droman42/irene/internal/observe"
	"github.com/droman42/irene/internal/pipeline"
	"github.com/droman42/irene/internal/session"
)

const (
	// maxCommandBody bounds text command request bodies.
	maxCommandBody = 64 << 10
	// maxAudioBody bounds uploaded audio files.
	maxAudioBody = 32 << 20
	// shutdownGrace is how long in-flight requests get on shutdown.
	shutdownGrace = 10 * time.Second
)

// Config holds the HTTP server settings.
type Config struct {
	// ListenAddr is the bind address, e.g. ":8686".
	ListenAddr string
}

// Server is the HTTP front door. All request processing is delegated to the
// pipeline; the server owns only transport concerns.
type Server struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	sessions *session.Manager
	rooms    config.RoomsConfig
	health   *health.Handler
	metrics  *observe.Metrics
}

// New creates a server. A nil health handler serves liveness only.
func New(cfg Config, pipe *pipeline.Pipeline, sessions *session.Manager, rooms config.RoomsConfig, hc *health.Handler, m *observe.Metrics) *Server {
	if hc == nil {
		hc = health.New()
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{cfg: cfg, pipeline: pipe, sessions: sessions, rooms: rooms, health: hc, metrics: m}
}

// Handler builds the full route table wrapped in the metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /room_aliases", s.handleRoomAliases)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /execute/command", s.executeCommand(false))
	mux.HandleFunc("POST /execute/audio", s.executeAudio(false))
	mux.HandleFunc("POST /trace/command", s.executeCommand(true))
	mux.HandleFunc("POST /trace/audio", s.executeAudio(true))
	mux.HandleFunc("GET /ws/audio", s.handleWSAudio)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return observe.HTTPMiddleware(s.metrics, mux)
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// writeJSON encodes v with the given status. Encoding failures fall back to
// a bare 500; headers are already written by then.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success":false,"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Aliases []string `json:"valid_aliases,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

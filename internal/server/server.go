// Package server is the HTTP request surface of the installation backend.
//
// All routes live under /v1. The surface is deliberately thin: request
// decoding, validation, and response shaping happen here; the four-turn
// workflow itself runs in the engine, and controller events flow through the
// events orchestrator. A broadcast outlives its originating HTTP request, so
// the chat handler detaches the engine from the client's context.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asaficontact/reflective-resonance/internal/agents"
	"github.com/asaficontact/reflective-resonance/internal/config"
	"github.com/asaficontact/reflective-resonance/internal/conversation"
	"github.com/asaficontact/reflective-resonance/internal/engine"
	"github.com/asaficontact/reflective-resonance/internal/health"
	"github.com/asaficontact/reflective-resonance/internal/observe"
	"github.com/asaficontact/reflective-resonance/internal/session"
	"github.com/asaficontact/reflective-resonance/pkg/provider/stt"
	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// shutdownTimeout bounds graceful drain of in-flight requests.
const shutdownTimeout = 15 * time.Second

// BroadcastRunner executes one four-turn broadcast, emitting stream events
// through the callback. Implemented by engine.Engine.
type BroadcastRunner interface {
	Run(ctx context.Context, req engine.Request, emit func(engine.Event)) error
}

// Deps carries everything the server needs. All fields except EventsHandler
// and Transcriber are required.
type Deps struct {
	Config        *config.Config
	Logger        *slog.Logger
	Registry      *agents.Registry
	Runner        BroadcastRunner
	Conversations *conversation.Log
	Store         *session.Store
	Transcriber   stt.Transcriber
	EventsHandler http.Handler
	Metrics       *observe.Metrics
	Health        *health.Handler
}

// Server owns the HTTP listener and routing table.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *agents.Registry
	runner   BroadcastRunner
	convs    *conversation.Log
	store    *session.Store
	stt      stt.Transcriber
	metrics  *observe.Metrics

	httpSrv *http.Server
}

// New builds the server and its routing table.
func New(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		logger:   d.Logger,
		registry: d.Registry,
		runner:   d.Runner,
		convs:    d.Conversations,
		store:    d.Store,
		stt:      d.Transcriber,
		metrics:  d.Metrics,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()

	hh := d.Health
	if hh == nil {
		hh = health.New()
	}
	hh.Register(mux)

	mux.HandleFunc("GET /v1/agents", s.handleAgents)
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/reset", s.handleReset)
	mux.HandleFunc("POST /v1/stt", s.handleSTT)
	mux.Handle("GET /v1/audio/",
		http.StripPrefix("/v1/audio/", http.FileServer(http.Dir(d.Config.ArtifactsDir))))
	if d.EventsHandler != nil && d.Config.Events.WSEnabled {
		mux.Handle("GET /v1/events/ws", d.EventsHandler)
	}
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := corsMiddleware(d.Config.Server.CORSOrigins)(
		observe.Middleware(s.metrics)(mux))

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", d.Config.Server.Host, d.Config.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the full middleware-wrapped routing table, mainly for
// httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks serving HTTP until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests. Streams past the shutdown deadline are
// cut off.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// agentsResponse wraps the registry listing.
type agentsResponse struct {
	Agents []types.Agent `json:"agents"`
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, agentsResponse{Agents: s.registry.List()})
}

// resetResponse reports the slots whose conversations were cleared.
type resetResponse struct {
	Status       string `json:"status"`
	ClearedSlots []int  `json:"clearedSlots"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	cleared := s.convs.ResetAll()
	if cleared == nil {
		cleared = []int{}
	}
	s.logger.Info("conversations reset", "clearedSlots", cleared)
	writeJSON(w, http.StatusOK, resetResponse{Status: "ok", ClearedSlots: cleared})
}

// errorBody is the JSON error shape used across the surface.
type errorBody struct {
	Detail string `json:"detail"`
}

// writeJSON encodes v with the given status. Encoding failures fall back to
// a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail":"encoding error"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

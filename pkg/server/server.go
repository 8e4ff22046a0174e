// Package server exposes the sampler's snapshots to renderers over HTTP.
//
// Routes:
//
//	GET /api/snapshot  latest DashboardPayload
//	GET /api/history   CPU load history, oldest first
//	GET /ws            "system-update" events pushed after every tick
//	GET /metrics       Prometheus exposition
//	GET /health        sampler state
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gravito-framework/sysdash/pkg/sampler"
	"github.com/gravito-framework/sysdash/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source is the read side of the sampler
type Source interface {
	Snapshot() types.Snapshot
	Subscribe(fn func(types.Snapshot)) (unsubscribe func())
	State() sampler.State
	Stats() sampler.Stats
}

// Server serves dashboard snapshots
type Server struct {
	source   Source
	host     *types.HostInfo
	service  string
	node     string
	logger   *slog.Logger
	router   *mux.Router
	registry *prometheus.Registry
	hub      *hub

	httpServer  *http.Server
	listener    net.Listener
	unsubscribe func()
	mu          sync.Mutex
}

// Option is a functional option for configuring the Server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHostInfo attaches static host facts to snapshot payloads
func WithHostInfo(host *types.HostInfo) Option {
	return func(s *Server) {
		s.host = host
	}
}

// WithIdentity labels payloads with the service and node name
func WithIdentity(service, node string) Option {
	return func(s *Server) {
		s.service = service
		s.node = node
	}
}

// New creates a server for the given source and subscribes to its updates
func New(addr string, source Source, opts ...Option) *Server {
	s := &Server{
		source: source,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registry = newRegistry(source)
	s.hub = newHub(s.logger)
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.unsubscribe = source.Subscribe(s.broadcast)

	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

// Handler returns the HTTP handler, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in the background. It fails if the address cannot be bound.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", "error", err)
		}
	}()

	s.logger.Info("🌐 Dashboard feed listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting requests and disconnects websocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	s.hub.closeAll()

	s.mu.Lock()
	started := s.listener != nil
	s.mu.Unlock()
	if !started {
		return nil
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	s.logger.Info("Dashboard feed stopped")
	return nil
}

func (s *Server) payload(snap types.Snapshot) types.DashboardPayload {
	payload := types.NewDashboardPayload(snap, s.host)
	payload.Service = s.service
	payload.Node = s.node
	return payload
}

// broadcast runs on the sampler goroutine and must not block
func (s *Server) broadcast(snap types.Snapshot) {
	if s.hub.empty() {
		return
	}
	m, err := s.eventMessage(snap)
	if err != nil {
		s.logger.Error("Failed to marshal update event", "error", err)
		return
	}
	s.hub.broadcast(m)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.payload(s.source.Snapshot()))
}

// HistoryResponse is the body of GET /api/history
type HistoryResponse struct {
	Capacity int       `json:"capacity"`
	PeriodMs int64     `json:"periodMs"`
	Sequence uint64    `json:"sequence"`
	History  []float64 `json:"history"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	snap := s.source.Snapshot()
	s.writeJSON(w, http.StatusOK, HistoryResponse{
		Capacity: sampler.HistoryCapacity,
		PeriodMs: sampler.SamplePeriod.Milliseconds(),
		Sequence: snap.Sequence,
		History:  snap.History.Slice(),
	})
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	Published uint64 `json:"published"`
	Failures  uint64 `json:"failures"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.source.State()
	stats := s.source.Stats()

	resp := HealthResponse{
		Status:    "ok",
		State:     state.String(),
		Published: stats.Published,
		Failures:  stats.Failures,
	}
	code := http.StatusOK
	if state != sampler.StateRunning {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write JSON response", "error", err)
	}
}

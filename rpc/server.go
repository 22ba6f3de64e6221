package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pairvault/core"
	"pairvault/gateway/middleware"
	"pairvault/integrations/eventlog"
)

// EventIndex serves the vault_events query.
type EventIndex interface {
	List(ctx context.Context, q eventlog.Query) (*eventlog.Page, error)
}

type ServerConfig struct {
	Auth              middleware.AuthConfig
	RateLimit         middleware.RateLimit
	CORSOrigins       []string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	// Events is optional; without it vault_events reports the index as
	// disabled.
	Events EventIndex
	Logger *slog.Logger
}

// Server exposes the vault node over JSON-RPC 2.0.
type Server struct {
	node    *core.Node
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	events  EventIndex
	logger  *slog.Logger
	cfg     ServerConfig

	mu         sync.Mutex
	httpServer *http.Server
}

func NewServer(node *core.Node, cfg ServerConfig) (*Server, error) {
	if node == nil {
		return nil, errors.New("rpc: node required")
	}
	if cfg.Auth.HMACSecret == "" {
		return nil, errors.New("rpc: auth secret required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	return &Server{
		node:    node,
		auth:    middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: middleware.NewRateLimiter(cfg.RateLimit),
		events:  cfg.Events,
		logger:  logger,
		cfg:     cfg,
	}, nil
}

// Handler returns the HTTP surface: JSON-RPC on POST /, plus /healthz and
// /metrics.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.CORS(s.cfg.CORSOrigins))
	router.Use(s.auth.Middleware)
	router.Use(middleware.AccessLog(s.logger))
	router.Get("/healthz", s.handleHealth)
	router.Handle("/metrics", promhttp.Handler())
	router.Post("/", s.handle)
	return otelhttp.NewHandler(router, "pairvault.rpc")
}

// Serve blocks serving on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()
	s.logger.Info("rpc: serving", slog.String("address", listener.Addr().String()))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	initialized, err := s.node.Initialized(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "error", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"initialized": initialized,
		"vault":       s.node.VaultAddress(),
	})
}

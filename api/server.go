// Package api exposes the explanation service over HTTP.
//
// Endpoints:
//
//	GET    /health              liveness probe
//	GET    /ready               readiness probe (checks the database)
//	POST   /api/explain         run an explanation, streamed as SSE
//	GET    /api/quota           current user's quota snapshot
//	GET    /api/requests        current user's recent request log
//	GET    /api/history         shared history list
//	DELETE /api/history/{pos}   delete one history entry by position
//	DELETE /api/history         clear history
//	POST   /api/documents       index a reference document
//	GET    /api/documents       document count
//	DELETE /api/documents       clear the index
//
// File structure mirrors the handler split: server.go holds setup and
// lifecycle, middleware.go the middleware chain, response.go the JSON
// helpers, sse.go the event stream writer, and one file per handler group.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mizuki0/sensei/internal/explain"
	"github.com/mizuki0/sensei/internal/history"
	"github.com/mizuki0/sensei/internal/index"
	"github.com/mizuki0/sensei/internal/quota"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to resist slow clients.
	ReadHeaderTimeout = 10 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Pinger is the readiness slice of the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server for the explanation API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	explain *ExplainHandler
	quota   *QuotaHandler
	history *HistoryHandler
	index   *IndexHandler
	pinger  Pinger
}

// NewServer creates a server with all routes registered.
func NewServer(svc *explain.Service, hist *history.Store, idx *index.Store, quotaStore *quota.Store, pinger Pinger, identity Identity, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if identity == nil {
		identity = HeaderIdentity{}
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:     mux,
		logger:  logger,
		explain: &ExplainHandler{service: svc, identity: identity, logger: logger},
		quota:   &QuotaHandler{service: svc, store: quotaStore, identity: identity},
		history: &HistoryHandler{store: hist},
		index:   &IndexHandler{store: idx},
		pinger:  pinger,
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	s.explain.RegisterRoutes(mux)
	s.quota.RegisterRoutes(mux)
	s.history.RegisterRoutes(mux)
	s.index.RegisterRoutes(mux)

	return s
}

// Handler returns the handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the server and blocks until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

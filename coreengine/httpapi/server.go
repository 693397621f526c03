// Package httpapi serves the negotiation kernel over REST with a websocket
// event stream and Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeeves-cluster-organization/consensusai/coreengine/intake"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/kernel"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/logging"
	"github.com/jeeves-cluster-organization/consensusai/coreengine/negotiation"
)

const (
	// maxBodyBytes bounds scenario and document uploads.
	maxBodyBytes = 1 << 20
	// rateLimitEndpoint is the limiter key shared by every /v1 route.
	rateLimitEndpoint = "http"
	eventBuffer       = 64
)

// Server is the REST API.
type Server struct {
	kernel *kernel.Kernel
	oracle negotiation.Oracle
	parser *intake.Parser
	logger logging.Logger
	router chi.Router
}

// NewServer builds the router. Sessions created through the API are driven by
// oracle; uploaded documents go through parser.
func NewServer(k *kernel.Kernel, oracle negotiation.Oracle, parser *intake.Parser, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		kernel: k,
		oracle: oracle,
		parser: parser,
		logger: logger.Bind("component", "http"),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.rateLimit)

		api.Route("/sessions", func(sessions chi.Router) {
			sessions.Post("/", s.handleCreateSession)
			sessions.Get("/", s.handleListSessions)

			sessions.Route("/{id}", func(one chi.Router) {
				one.Get("/", s.handleGetSession)
				one.Delete("/", s.handleDeleteSession)
				one.Post("/rounds", s.handleEvaluateRound)
				one.Get("/summary", s.handleSummary)
				one.Get("/rankings", s.handleRankings)
				one.Get("/forecast", s.handleForecast)
				one.Get("/events", s.handleEvents)
			})
		})

		api.Post("/documents", s.handleParseDocument)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()
	s.logger.Info("http_server_started", "address", lis.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("http_graceful_shutdown_initiated", "reason", ctx.Err().Error())
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http_graceful_shutdown_timeout", "error", err.Error())
		_ = srv.Close()
	}
	return ctx.Err()
}

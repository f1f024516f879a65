// Package server exposes the subscription API, the Slack slash command, the
// optional GitHub webhook and the operational endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/user/githubalerts/internal/metrics"
	"github.com/user/githubalerts/pkg/logger"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options configures a Server.
type Options struct {
	Addr string

	Subscriptions      Subscriptions
	SlackSigningSecret string

	// Webhook is mounted at /webhook/github when set.
	Webhook http.Handler
	Checks  map[string]HealthCheck

	// Development skips the pre-wait on shutdown.
	Development bool
	PreWait     time.Duration
	Grace       time.Duration
	Timeout     time.Duration
}

// Server is the HTTP front of the service.
type Server struct {
	opts  Options
	http  *http.Server
	ready atomic.Bool
	errCh chan error
	addr  net.Addr
}

// New creates a server. It does not listen until Start.
func New(opts Options) *Server {
	s := &Server{
		opts:  opts,
		errCh: make(chan error, 1),
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTP)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("pong"))
	})
	r.Get("/health", s.health)
	r.Get("/ready", s.readiness)
	r.Handle("/metrics", promhttp.Handler())

	subs := &subscriptionHandler{subs: s.opts.Subscriptions}
	r.Route("/subscription", func(r chi.Router) {
		r.Get("/", subs.list)
		r.Post("/", subs.subscribe)
		r.Delete("/", subs.unsubscribe)
	})

	r.Method(http.MethodPost, "/slack/command", &slackHandler{
		subs:   s.opts.Subscriptions,
		secret: s.opts.SlackSigningSecret,
	})

	if s.opts.Webhook != nil {
		r.Method(http.MethodPost, "/webhook/github", s.opts.Webhook)
		logger.Info().Msg("Webhook endpoint enabled at /webhook/github")
	}

	return otelhttp.NewHandler(r, "http.server")
}

// Start binds the listener and serves in the background. Bind errors are
// returned directly; later serve errors arrive on Errors.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	s.ready.Store(true)

	go func() {
		logger.Info().Str("address", s.addr.String()).Msg("Starting HTTP server")
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server error")
			s.errCh <- err
		}
	}()
	return nil
}

// Addr is the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Errors delivers a fatal serve error.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Ready reports whether /ready answers 200.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Shutdown stops the server in stages. Readiness drops first and, outside
// development, the pre-wait gives load balancers time to stop routing here.
// The listener then closes and in-flight requests may finish; a warning is
// logged once the grace period passes and connections are forced closed
// when the timeout expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)

	if s.opts.PreWait > 0 && !s.opts.Development {
		logger.Info().Dur("pre_wait", s.opts.PreWait).Msg("Draining before shutdown")
		select {
		case <-time.After(s.opts.PreWait):
		case <-ctx.Done():
		}
	}

	timeout := s.opts.Timeout
	if timeout < s.opts.Grace {
		timeout = s.opts.Grace
	}
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.http.Shutdown(drainCtx) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(s.opts.Grace):
		logger.Warn().Dur("grace", s.opts.Grace).Msg("Requests still in flight after grace period")
		err = <-done
	}

	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn().Dur("timeout", timeout).Msg("Forcing HTTP connections closed")
		return s.http.Close()
	}
	return err
}

func (s *Server) readiness(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for name, check := range s.opts.Checks {
		if err := check(ctx); err != nil {
			logger.Warn().Err(err).Str("check", name).Msg("Health check failed")
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

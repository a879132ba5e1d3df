// Package server exposes the operator HTTP API: panel inspection, manual
// deactivation and reactivation, quota edits, on-demand sweeps, health
// probes and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"resellerhq/warden/pkg/limits"
	"resellerhq/warden/pkg/limits/enforcement"
	"resellerhq/warden/pkg/monitor"
	"resellerhq/warden/pkg/panels"
	"resellerhq/warden/pkg/telemetry/health"
	"resellerhq/warden/pkg/telemetry/metrics"
)

// Config holds the HTTP server configuration.
type Config struct {
	ListenAddress string

	// APIToken, when non-empty, must be presented as a bearer token on
	// every /api route.
	APIToken string

	// RateLimit is requests per minute per client IP. 0 disables it.
	RateLimit int

	ShutdownTimeout time.Duration

	// MetricsPath mounts the Prometheus handler. Empty disables it.
	MetricsPath string

	Version   string
	Commit    string
	BuildTime string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddress:   "127.0.0.1:8089",
		RateLimit:       60,
		ShutdownTimeout: 15 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// PanelStore is the read side of the admin store used by the API.
type PanelStore interface {
	ListPanels(ctx context.Context) ([]panels.AdminPanel, error)
	GetPanel(ctx context.Context, id int64) (*panels.AdminPanel, error)
	RecentSamples(ctx context.Context, panelID int64, limit int) ([]panels.UsageSample, error)
	RecentLogs(ctx context.Context, panelID int64, limit int) ([]panels.LogEntry, error)
}

// Operator performs operator-initiated actions under the panel lock.
type Operator interface {
	Deactivate(ctx context.Context, panelID int64, reason string) (*enforcement.Result, error)
	Reactivate(ctx context.Context, panelID int64) (*enforcement.Result, error)
	UpdateQuotas(ctx context.Context, panelID int64, upd *panels.Update) error
}

// Checker runs a one-shot sample and evaluation of a panel.
type Checker interface {
	Check(ctx context.Context, panelID int64) (*limits.CheckResult, error)
}

// Sweeps triggers sweeps and reports scheduler state.
type Sweeps interface {
	TriggerSweep() (*monitor.Report, error)
	Status() monitor.Status
}

// Deps are the components the API serves.
type Deps struct {
	Store    PanelStore
	Operator Operator
	Checker  Checker
	Sweeps   Sweeps
	Health   *health.Checker
	Metrics  *metrics.Collector
}

// Server is the operator API.
type Server struct {
	cfg    Config
	deps   Deps
	router chi.Router
	logger *slog.Logger
}

// New creates a server with all routes mounted.
func New(cfg Config, deps Deps) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	if deps.Health == nil {
		deps.Health = health.New(0)
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("component", "server"),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(requestContext)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)

	// Probes and metrics are unauthenticated.
	r.Get("/healthz", s.deps.Health.LivenessHandler())
	r.Get("/readyz", s.deps.Health.ReadinessHandler())
	r.Get("/version", health.VersionHandler(s.cfg.Version, s.cfg.Commit, s.cfg.BuildTime))
	if s.cfg.MetricsPath != "" && s.deps.Metrics != nil {
		r.Handle(s.cfg.MetricsPath, s.deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(rateLimit(s.cfg.RateLimit))
		}
		r.Use(bearerAuth(s.cfg.APIToken))

		r.Get("/panels", s.handleListPanels)
		r.Route("/panels/{id}", func(r chi.Router) {
			r.Use(panelContext)
			r.Get("/", s.handleGetPanel)
			r.Get("/check", s.handleCheckPanel)
			r.Post("/deactivate", s.handleDeactivate)
			r.Post("/reactivate", s.handleReactivate)
			r.Patch("/quotas", s.handleUpdateQuotas)
		})

		r.Post("/sweep", s.handleSweep)
		r.Get("/sweep", s.handleSweepStatus)
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address and serves until ctx is cancelled,
// then drains in-flight requests for up to ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Operator API listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Operator API shutting down", "timeout", s.cfg.ShutdownTimeout.String())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-errCh
	return nil
}

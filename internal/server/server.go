// Package server exposes the scrape endpoint and the operational probes.
package server

import (
	"context"
	"encoding/json"
	"html/template"
	"net"
	"net/http"
	"regexp"
	"time"

	"codeberg.org/mutker/apcupsd-exporter/internal/errors"
	"codeberg.org/mutker/apcupsd-exporter/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	healthzPath = "/healthz"
	readyzPath  = "/readyz"

	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// metricsPathPattern admits literal paths only. ServeMux would treat braces
// as wildcards and a trailing slash as a subtree.
var metricsPathPattern = regexp.MustCompile(`^(/[A-Za-z0-9._~-]+)+$`)

// ReadinessChecker returns nil once the exporter has something to serve.
type ReadinessChecker func(ctx context.Context) error

type Config struct {
	Addr        string
	MetricsPath string
	// RateLimit bounds scrapes per second per client. Zero disables it.
	RateLimit float64
	// TrustForwardedFor keys the rate limit on X-Forwarded-For instead of
	// the peer address. Only safe behind a proxy that overwrites it.
	TrustForwardedFor bool
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Addr == "" {
		return errFactory.WithData(ErrInvalidConfig, "listen address required")
	}
	if !metricsPathPattern.MatchString(c.MetricsPath) {
		return errFactory.WithData(ErrInvalidConfig, "metrics path "+c.MetricsPath)
	}
	if c.MetricsPath == healthzPath || c.MetricsPath == readyzPath {
		return errFactory.WithData(ErrInvalidConfig, "metrics path "+c.MetricsPath+" is reserved")
	}
	if c.RateLimit < 0 {
		return errFactory.WithData(ErrInvalidConfig, "rate limit must not be negative")
	}

	return nil
}

type Server struct {
	cfg        Config
	httpServer *http.Server
	mux        *http.ServeMux
	ready      ReadinessChecker
	metrics    http.Handler
}

// New wires the routes and middleware. HTTP request counters are registered
// with reg.
func New(cfg Config, metrics http.Handler, ready ReadinessChecker, reg prometheus.Registerer) (*Server, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		return nil, errFactory.WithData(ErrInvalidConfig, "metrics handler required")
	}

	s := &Server{
		cfg:     cfg,
		mux:     http.NewServeMux(),
		ready:   ready,
		metrics: metrics,
	}
	s.registerRoutes()

	requests := newRequestCounter()
	if reg != nil {
		if err := reg.Register(requests); err != nil {
			return nil, errFactory.Wrap(errors.ErrInitMetrics, err)
		}
	}

	middlewares := []Middleware{
		RecoveryMiddleware,
		LoggingMiddleware(requests, s.knownPaths(), []string{healthzPath, readyzPath}),
	}
	if cfg.RateLimit > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(
			cfg.RateLimit, burstFor(cfg.RateLimit), []string{cfg.MetricsPath}, cfg.TrustForwardedFor,
		))
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           Chain(s.mux, middlewares...),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET "+healthzPath, s.handleHealthz)
	s.mux.HandleFunc("GET "+readyzPath, s.handleReadyz)
	s.mux.Handle("GET "+s.cfg.MetricsPath, s.metrics)
	s.mux.HandleFunc("GET /{$}", s.handleLanding)
}

func (s *Server) knownPaths() []string {
	return []string{"/", healthzPath, readyzPath, s.cfg.MetricsPath}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.New().Wrap(errors.ErrServeMetrics, err)
	}

	return s.Serve(l)
}

// Serve serves on l until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve(l net.Listener) error {
	logger.Info().
		Str("addr", l.Addr().String()).
		Str("metrics_path", s.cfg.MetricsPath).
		Msg("Starting HTTP server")

	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New().Wrap(errors.ErrServeMetrics, err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html>
<head><title>apcupsd exporter</title></head>
<body>
<h1>apcupsd exporter</h1>
<ul>
<li><a href="{{.MetricsPath}}">Metrics</a></li>
<li><a href="/healthz">Health</a></li>
<li><a href="/readyz">Readiness</a></li>
</ul>
</body>
</html>
`))

func (s *Server) handleLanding(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := landingTemplate.Execute(w, struct{ MetricsPath string }{s.cfg.MetricsPath}); err != nil {
		logger.Debug().Err(err).Msg("Failed to render landing page")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func burstFor(rps float64) int {
	if rps < 1 {
		return 1
	}
	return int(rps)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	qerrors "github.com/kubeadapt/nvsmi-exporter/internal/errors"
	"github.com/kubeadapt/nvsmi-exporter/internal/observability"
)

const landingPage = `<html><body><h1>GPU Metrics Exporter</h1><p><a href="/metrics">Metrics</a></p></body></html>`

// MetricsCollector renders the GPU exposition lines for one scrape.
type MetricsCollector interface {
	Collect(ctx context.Context) []string
}

// FailureSource returns recently seen query failures for debugging.
type FailureSource interface {
	Active() []qerrors.Failure
}

// Server exposes the GPU metrics feed, a liveness endpoint, a landing page
// and, optionally, debug endpoints.
type Server struct {
	httpServer *http.Server
	collector  MetricsCollector
	metrics    *observability.Metrics
	failures   FailureSource
	listener   net.Listener
}

// NewServer creates a new exporter server on the given port.
// Pass port=0 to let the OS pick a free port (useful for tests).
// When enableDebug is true, pprof and debug endpoints are registered.
func NewServer(port int, collector MetricsCollector, metrics *observability.Metrics, failures FailureSource, enableDebug bool) *Server {
	s := &Server{
		collector: collector,
		metrics:   metrics,
		failures:  failures,
	}

	routes := map[string]http.HandlerFunc{
		"/metrics": gzhttp.GzipHandler(http.HandlerFunc(s.handleMetrics)),
		"/health":  s.handleHealth,
		"/":        s.handleLanding,
	}

	if enableDebug {
		routes["/debug/pprof/"] = pprof.Index
		routes["/debug/pprof/cmdline"] = pprof.Cmdline
		routes["/debug/pprof/profile"] = pprof.Profile
		routes["/debug/pprof/symbol"] = pprof.Symbol
		routes["/debug/pprof/trace"] = pprof.Trace

		routes["/debug/metrics"] = promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}).ServeHTTP
		routes["/debug/errors"] = s.handleDebugErrors
	}

	// GET patterns also serve HEAD; other methods get 405. Matching is on the
	// cleaned path alone: query strings are ignored and unclean paths such
	// as //metrics are redirected.
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(http.MethodGet+" "+path, h)
	}

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", port),
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		ErrorLog:       slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	return s
}

// Addr returns the listen address, resolved once Start has been called.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins listening and serving HTTP in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("exporter server listen: %w", err)
	}
	s.listener = ln
	// Update Addr to the actual address (important when port=0).
	s.httpServer.Addr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("exporter server failed", "error", err)
		}
	}()
	return nil
}

// Close stops the server immediately, dropping in-flight requests.
func (s *Server) Close() error {
	return s.httpServer.Close()
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		s.metrics.ScrapesTotal.Inc()
		s.metrics.ScrapeDuration.Observe(time.Since(start).Seconds())
	}()

	lines := s.collector.Collect(r.Context())
	body := strings.Join(lines, "\n")
	if body != "" {
		body += "\n"
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleLanding(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(landingPage))
}

func (s *Server) handleDebugErrors(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(s.failures.Active())
}

// Package gateway implements the HTTP front door of the pipeline:
// per-kind enqueue endpoints, job status and streaming, file upload and
// artifact download, health and metrics. Every request passes admission
// (API key or IP allow-list) except the health, metrics, download and
// example-serving paths.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/openbim/ifcpipeline/internal/admission"
	"github.com/openbim/ifcpipeline/internal/broker"
	"github.com/openbim/ifcpipeline/internal/config"
	"github.com/openbim/ifcpipeline/internal/health"
	"github.com/openbim/ifcpipeline/internal/kind"
	"github.com/openbim/ifcpipeline/internal/tokens"
	"github.com/openbim/ifcpipeline/internal/vol"
)

// Server is the gateway HTTP server.
type Server struct {
	cfg      config.Config
	roots    vol.Roots
	broker   *broker.Client
	tokens   *tokens.Store
	guard    *admission.Guard
	health   *health.Collector
	limiter  *RateLimiter
	metrics  *Metrics
	registry *prometheus.Registry
	upgrader websocket.Upgrader
	log      zerolog.Logger
	mux      *http.ServeMux
	server   *http.Server

	// Wait budget for the synchronous recipe-list endpoint.
	recipeListWait     time.Duration
	recipeListInterval time.Duration
}

// exemptPaths are admitted without authentication: the liveness probe,
// metrics scraping, token-gated downloads (the token is the
// credential), and the static example files served to viewers. Entries
// ending in "/" are prefixes, the rest match exactly.
var exemptPaths = []string{"/health", "/metrics", "/download/", "/examples/"}

// NewServer wires the gateway together. The broker client must already
// be connected.
func NewServer(cfg config.Config, b *broker.Client, log zerolog.Logger) (*Server, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API_KEY is required")
	}
	ranges, err := admission.ParseRanges(cfg.AllowedIPRanges)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		cfg:    cfg,
		roots:  cfg.Roots(),
		broker: b,
		tokens: tokens.NewStore(b.Raw(), cfg.DownloadTokenTTL),
		guard: admission.NewGuard(admission.Config{
			APIKey:        cfg.APIKey,
			AllowedRanges: ranges,
			ExemptPaths:   exemptPaths,
		}, log),
		limiter:  NewRateLimiter(cfg.UploadRateRPS, cfg.UploadRateBurst),
		metrics:  NewMetrics(registry),
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: log,
		mux: http.NewServeMux(),

		recipeListWait:     defaultRecipeListWait,
		recipeListInterval: defaultRecipeListInterval,
	}
	s.health = health.NewCollector(b, kind.Queues(), cfg.OutputDir)
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	// Enqueue endpoints, one per job kind.
	s.mux.Handle("POST /ifcconvert", s.enqueueHandler(kind.Convert, func() validator { return &kind.ConvertRequest{} }))
	s.mux.Handle("POST /ifccsv", s.enqueueHandler(kind.CsvExport, func() validator { return &kind.CsvExportRequest{} }))
	s.mux.Handle("POST /ifccsv/import", s.enqueueHandler(kind.CsvImport, func() validator { return &kind.CsvImportRequest{} }))
	s.mux.Handle("POST /ifcclash", s.enqueueHandler(kind.Clash, func() validator { return &kind.ClashRequest{} }))
	s.mux.Handle("POST /ifctester", s.enqueueHandler(kind.Tester, func() validator { return &kind.TesterRequest{} }))
	s.mux.Handle("POST /ifcdiff", s.enqueueHandler(kind.Diff, func() validator { return &kind.DiffRequest{} }))
	s.mux.Handle("POST /ifc2json", s.enqueueHandler(kind.Json, func() validator { return &kind.JsonRequest{} }))
	s.mux.Handle("POST /patch/execute", s.enqueueHandler(kind.Patch, func() validator { return &kind.PatchRequest{} }))

	// The qto endpoint answers under both its historical names.
	qto := s.enqueueHandler(kind.Qto, func() validator { return &kind.QtoRequest{} })
	s.mux.Handle("POST /ifc5d", qto)
	s.mux.Handle("POST /calculate-qtos", qto)

	// Recipe listing is synchronous-style: the gateway waits briefly
	// for the patch worker's answer.
	s.mux.HandleFunc("POST /patch/recipes/list", s.handlePatchRecipesList)

	s.mux.HandleFunc("GET /jobs/{id}/status", s.handleJobStatus)
	s.mux.HandleFunc("GET /jobs/{id}/stream", s.handleJobStream)

	s.mux.HandleFunc("POST /upload/{kind}", s.handleUpload)
	s.mux.HandleFunc("POST /download-from-url", s.handleDownloadFromURL)
	s.mux.HandleFunc("GET /list_directories", s.handleListDirectories)

	s.mux.HandleFunc("POST /create_download_link", s.handleCreateDownloadLink)
	s.mux.HandleFunc("GET /download/{token}", s.handleDownload)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.mux.Handle("GET /examples/", http.StripPrefix("/examples/", http.FileServer(http.Dir(s.roots.Examples))))
}

// Start begins listening and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	handler := s.loggingMiddleware(s.guard.Middleware(s.mux))
	s.server = &http.Server{
		Addr:              s.cfg.GatewayAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: downloads stream large artifacts and the
		// recipe-list endpoint holds the connection for its wait.
	}

	go s.pollQueueDepths(ctx)

	s.log.Info().Str("addr", s.cfg.GatewayAddr).Msg("gateway listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler exposes the fully wrapped handler chain for tests.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.guard.Middleware(s.mux))
}

// handleHealth reports gateway, broker and per-queue state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.health.Collect(r.Context()))
}

// pollQueueDepths keeps the queue-depth gauges fresh.
func (s *Server) pollQueueDepths(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, queue := range kind.Queues() {
				depth, err := s.broker.QueueDepth(ctx, queue)
				if err != nil {
					continue
				}
				s.metrics.QueueDepth.WithLabelValues(queue).Set(float64(depth))
			}
		}
	}
}

// loggingMiddleware logs each request with method, path, status and
// duration, and feeds the request histogram.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		s.metrics.HTTPDuration.WithLabelValues(r.Method, fmt.Sprint(rec.status)).Observe(duration.Seconds())
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", duration).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.written {
		r.status = status
		r.written = true
	}
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/kartoza/aviation-risk/internal/api"
	"github.com/kartoza/aviation-risk/internal/config"
	"github.com/kartoza/aviation-risk/internal/inference"
	"github.com/kartoza/aviation-risk/internal/metrics"
	"github.com/kartoza/aviation-risk/internal/samples"
)

//go:embed static/*
var staticFS embed.FS

//go:embed templates/*.html
var templateFS embed.FS

// Server holds all the components for the web application
type Server struct {
	cfg        config.Config
	httpServer *http.Server
	router     *mux.Router
	svc        *inference.Service
	catalog    *samples.Catalog
	metrics    *metrics.Collector
	page       *template.Template
}

// New creates a new Server. catalog and m may be nil.
func New(cfg config.Config, svc *inference.Service, catalog *samples.Catalog, m *metrics.Collector) (*Server, error) {
	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		svc:     svc,
		catalog: catalog,
		metrics: m,
		page:    page,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, err
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() error {
	s.router.Use(requestLogger)

	// API routes
	apiRouter := s.router.PathPrefix("/api").Subrouter()
	api.NewHandler(s.svc, s.catalog, s.cfg).RegisterRoutes(apiRouter)

	// Prometheus scrape endpoint
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	// Static assets (embedded)
	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		return fmt.Errorf("failed to load embedded static files: %w", err)
	}
	s.router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))

	// Assessment page
	s.router.HandleFunc("/", s.handlePage).Methods("GET")
	s.router.HandleFunc("/", s.handleUpload).Methods("POST")
	return nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP connections. It returns
// http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	log.Info().Msgf("Server listening on http://localhost:%d", s.cfg.Port)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// statusRecorder captures the response code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

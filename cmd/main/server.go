package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/CTAG07/Nepenthes/pkg/store"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type Server struct {
	config      *ConfigManager
	db          *sql.DB
	logger      *slog.Logger
	store       *store.Store
	renderer    *ejs.Renderer
	metrics     *Metrics
	authAPI     *AuthAPI
	templateAPI *TemplateAPI
	renderAPI   *RenderAPI
	statsAPI    *StatsAPI
	serverAPI   *ServerAPI
	apiMux      *http.ServeMux
}

// NewServer wires the store, renderer and APIs around db. The schemas must
// already be set up.
func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	config := cm.Get()

	st, err := store.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create template store: %w", err)
	}
	st.SetLogger(logger.With("component", "store"))

	metrics := NewMetrics()
	cache := ejs.NewCache(ejs.WithObserver(metrics))
	metrics.WatchCache(cache)
	renderer := ejs.NewRenderer(logger.With("component", "ejs"), cache, config.Render)
	cm.SetRenderer(renderer)

	server := &Server{
		config:      cm,
		db:          db,
		logger:      logger,
		store:       st,
		renderer:    renderer,
		metrics:     metrics,
		authAPI:     NewAuthAPI(db, logger),
		templateAPI: NewTemplateAPI(st, cache, logger),
		renderAPI:   NewRenderAPI(st, renderer, metrics, logger),
		statsAPI:    NewStatsAPI(st, cache, logger),
		serverAPI:   NewServerAPI(cm, actionChan, logger),
		apiMux:      http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.templateAPI.RegisterRoutes(apiMux)
	server.renderAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Api functions must pass through authentication first, except for the
	// health check and metrics scrapes.
	authedAPI := server.authAPI.Authenticate(limitBody(config.Server.MaxBodyBytes, apiMux))
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", authedAPI)
	if config.Server.MetricsEnabled {
		server.apiMux.Handle("/metrics", metrics.Handler())
	}

	return server, nil
}

// Handler returns the root handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.apiMux)
}

// Close releases the store's prepared statements. The database itself is
// owned by the caller.
func (s *Server) Close() {
	s.store.Close()
}

func limitBody(n int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, n)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests tags every request with an ID, echoed in the response
// header, and logs its outcome.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "Handled request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

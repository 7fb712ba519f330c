// Package http serves the dashboard REST API, the websocket hub, health
// checks and metrics.
package http

import (
	"context"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/saltfish/seatscope/go-backend/internal/metrics"
)

// Version is reported by /health.
var Version = "dev"

// Options configures a Server.
type Options struct {
	Address        string
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	// Assets is served at the root path when set.
	Assets fs.FS
	// Checks are run by /health; a failing check makes the service unhealthy.
	Checks map[string]func(context.Context) error
}

// Server provides the HTTP endpoints.
type Server struct {
	server    *http.Server
	router    *mux.Router
	dashboard Dashboard
	hub       *Hub
	metrics   *metrics.Metrics
	assets    fs.FS
	checks    map[string]func(context.Context) error
	logger    *zap.Logger
}

// NewServer creates a new HTTP server. The hub must be running for /ws.
func NewServer(opts Options, d Dashboard, hub *Hub, logger *zap.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		dashboard: d,
		hub:       hub,
		metrics:   opts.Metrics,
		assets:    opts.Assets,
		checks:    opts.Checks,
		logger:    logger,
	}
	s.setupRoutes(NewHandler(d, logger))

	var h http.Handler = s.router
	h = handlers.CORS(
		handlers.AllowedOrigins(opts.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.CustomLoggingHandler(nil, h, s.logRequest)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(logger)))(h)

	s.server = &http.Server{
		Addr:        opts.Address,
		Handler:     h,
		ReadTimeout: 10 * time.Second,
		// POST /reload blocks until the data source answers.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes(h *Handler) {
	route := func(r *mux.Router, path, name string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, s.metrics.WrapHandler(name, fn)).Methods(methods...)
	}

	r := s.router
	route(r, "/health", "health", s.handleHealth, http.MethodGet)
	route(r, "/health/live", "health_live", s.handleLiveness, http.MethodGet)
	route(r, "/health/ready", "health_ready", s.handleReadiness, http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	route(api, "/state", "state", h.HandleGetState, http.MethodGet)
	route(api, "/summary", "summary", h.HandleGetSummary, http.MethodGet)
	route(api, "/data/market", "data_market", h.HandleGetMarketData, http.MethodGet)
	route(api, "/data/equilibrium", "data_equilibrium", h.HandleGetEquilibriumData, http.MethodGet)
	route(api, "/profiles", "profiles", h.HandleListProfiles, http.MethodGet)
	route(api, "/profiles", "profiles_set", h.HandleSetProfiles, http.MethodPut)
	route(api, "/profiles/toggle", "profiles_toggle", h.HandleToggleProfile, http.MethodPost)
	route(api, "/profiles/all", "profiles_all", h.HandleSelectAll, http.MethodPut)
	route(api, "/zones", "zones", h.HandleListZones, http.MethodGet)
	route(api, "/zone", "zone", h.HandleSelectZone, http.MethodPut)
	route(api, "/day", "day", h.HandleSelectDay, http.MethodPut)
	route(api, "/scrub", "scrub", h.HandleScrub, http.MethodPut)
	route(api, "/compare", "compare", h.HandleSetCompare, http.MethodPut)
	route(api, "/playback/start", "playback_start", h.HandleStartPlayback, http.MethodPost)
	route(api, "/playback/stop", "playback_stop", h.HandleStopPlayback, http.MethodPost)
	route(api, "/reload", "reload", h.HandleReload, http.MethodPost)

	if s.assets != nil {
		r.PathPrefix("/").
			Handler(s.metrics.WrapHandler("assets", http.FileServer(http.FS(s.assets)))).
			Methods(http.MethodGet, http.MethodHead)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found", Message: r.URL.Path})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	})
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Debug("HTTP request",
		zap.String("method", p.Request.Method),
		zap.String("path", p.URL.Path),
		zap.Int("status", p.StatusCode),
		zap.Int("size", p.Size),
		zap.Duration("duration", time.Since(p.TimeStamp)),
	)
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("address", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server stopping")
	s.hub.Shutdown()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, s.dashboard.Snapshot())
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// handleHealth handles the /health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.dashboard.Snapshot()
	response := HealthResponse{
		Status:   "healthy",
		Version:  Version,
		Services: make(map[string]string),
	}

	switch {
	case snap.Loaded && snap.Error != "":
		response.Services["datasets"] = "stale: " + snap.Error
	case snap.Loaded:
		response.Services["datasets"] = "loaded"
	case snap.Loading:
		response.Services["datasets"] = "loading"
		response.Status = "unhealthy"
	default:
		response.Services["datasets"] = "unavailable: " + snap.Error
		response.Status = "unhealthy"
	}
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := check(ctx)
		cancel()
		if err != nil {
			response.Services[name] = "unhealthy: " + err.Error()
			response.Status = "unhealthy"
			continue
		}
		response.Services[name] = "healthy"
	}
	response.Services["playback"] = string(snap.Playback.State)
	response.Services["websocket_clients"] = strconv.Itoa(s.hub.GetClientCount())

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// handleLiveness handles the /health/live endpoint (Kubernetes liveness probe).
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadiness handles the /health/ready endpoint. The service is ready
// once equilibrium data has been loaded.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !s.dashboard.Ready() {
		reason := "datasets loading"
		if msg := s.dashboard.Snapshot().Error; msg != "" {
			reason = msg
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": reason,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

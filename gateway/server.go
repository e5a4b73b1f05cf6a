// Package gateway exposes the streaming service over HTTP: SSE and
// websocket subscription endpoints, one-shot REST queries, and the
// health/metrics surface.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Manu-world/flight-tracking-service/auth"
	"github.com/Manu-world/flight-tracking-service/errors"
	"github.com/Manu-world/flight-tracking-service/flight"
	"github.com/Manu-world/flight-tracking-service/history"
	"github.com/Manu-world/flight-tracking-service/stream"
)

// Verifier authenticates bearer tokens. Satisfied by *auth.Gate.
type Verifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// Config configures the gateway server.
type Config struct {
	Addr        string
	CORSOrigins []string

	PositionInterval time.Duration
	InfoInterval     time.Duration
	ErrorPause       time.Duration

	ShutdownTimeout time.Duration
}

// Server wires the transports to the streaming core. History is optional: a
// nil store disables the history endpoint and search recording.
type Server struct {
	cfg    Config
	logger *slog.Logger

	gate      Verifier
	positions *stream.PositionPoller
	info      *stream.InfoPoller
	registry  *stream.Registry
	metrics   *stream.Metrics
	store     history.Store

	metricsHandler http.Handler
	clock          stream.Clock
	upgrader       websocket.Upgrader

	httpServer *http.Server
}

// Deps carries the server's collaborators.
type Deps struct {
	Gate      Verifier
	Positions *stream.PositionPoller
	Info      *stream.InfoPoller
	Registry  *stream.Registry
	Metrics   *stream.Metrics
	Store     history.Store

	MetricsHandler http.Handler
	Clock          stream.Clock
	Logger         *slog.Logger
}

// NewServer creates the gateway server.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.PositionInterval <= 0 {
		cfg.PositionInterval = stream.DefaultPositionInterval
	}
	if cfg.InfoInterval <= 0 {
		cfg.InfoInterval = stream.DefaultInfoInterval
	}
	if cfg.ErrorPause <= 0 {
		cfg.ErrorPause = stream.DefaultErrorPause
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if deps.Clock == nil {
		deps.Clock = stream.SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = stream.NewRegistry(deps.Logger, deps.Metrics)
	}

	s := &Server{
		cfg:            cfg,
		logger:         deps.Logger,
		gate:           deps.Gate,
		positions:      deps.Positions,
		info:           deps.Info,
		registry:       deps.Registry,
		metrics:        deps.Metrics,
		store:          deps.Store,
		metricsHandler: deps.MetricsHandler,
		clock:          deps.Clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: SSE and websocket connections are long-lived.
	}
	return s
}

// Handler returns the routed handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	mux.HandleFunc("GET /api/v1/flights/live", s.requireAuth(s.handleLiveSnapshot))
	mux.HandleFunc("GET /api/v1/flights/live/stream", s.requireAuth(s.handleLiveStream))
	mux.HandleFunc("GET /api/v1/flights/{flight_id}/stream", s.requireAuth(s.handleCombinedStream))
	mux.HandleFunc("GET /api/v1/flights/history", s.requireAuth(s.handleHistory))
	mux.HandleFunc("GET /api/v1/ws/flight/{flight_id}", s.handleFlightSocket)

	return s.withCORS(s.withRequestLog(mux))
}

// Start serves until the context is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "component", "gateway", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "Server", "Start", "serve HTTP")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.registry.CloseAll()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "Server", "Start", "shut down HTTP server")
	}
	s.logger.Info("gateway stopped", "component", "gateway")
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"service": "flight-tracking-service",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":               "healthy",
		"active_subscriptions": s.registry.Len(),
	})
}

// identityKey is the request-context key for the authenticated identity.
type identityKey struct{}

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey{}).(auth.Identity)
	return id
}

// requireAuth verifies the bearer token and stores the identity on the
// request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromHeader(r.Header)
		identity, err := s.gate.Verify(r.Context(), token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next(w, r.WithContext(ctx))
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			if len(s.cfg.CORSOrigins) == 1 && s.cfg.CORSOrigins[0] == "*" {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket upgrades need the raw ResponseWriter (Hijacker).
		if r.Header.Get("Upgrade") == "websocket" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"component", "gateway",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// targetFromQuery builds the subscription target from the
// bounds/flights/categories/data_sources/limit query parameters.
func targetFromQuery(r *http.Request) flight.Target {
	q := r.URL.Query()
	target := flight.Target{
		Bounds:      q.Get("bounds"),
		Flights:     csvParam(q.Get("flights")),
		Categories:  csvParam(q.Get("categories")),
		DataSources: csvParam(q.Get("data_sources")),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		target.Limit = limit
	}
	return target
}

// csvParam splits a comma-separated query value, dropping empty elements.
func csvParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("response write failed", "component", "gateway", "error", err)
	}
}

// writeError maps the failure taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch errors.ClassifyKind(err) {
	case errors.KindAuthInvalid:
		status = http.StatusUnauthorized
		message = "invalid or missing credentials"
	case errors.KindNotFound:
		status = http.StatusNotFound
		message = "not found"
	case errors.KindRateLimited:
		status = http.StatusTooManyRequests
		message = "rate limited"
	case errors.KindTransient:
		status = http.StatusServiceUnavailable
		message = "service temporarily unavailable"
	case errors.KindMalformed:
		status = http.StatusBadGateway
		message = "upstream returned an unusable response"
	}

	s.writeJSON(w, status, map[string]string{"error": message})
}

// recordSearch persists the lookup without blocking the stream: the store
// applies its own timeout and failures are only logged.
func (s *Server) recordSearch(userID, flightNumber string) {
	if s.store == nil || userID == "" || flightNumber == "" {
		return
	}
	go func() {
		if err := s.store.Record(context.Background(), userID, flightNumber); err != nil {
			s.logger.Warn("search history write failed",
				"component", "gateway", "user_id", userID, "flight", flightNumber, "error", err)
		}
	}()
}

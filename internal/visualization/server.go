package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nvandessel/tendril/internal/constants"
	"github.com/nvandessel/tendril/internal/driver"
	"github.com/nvandessel/tendril/internal/graph"
	"github.com/nvandessel/tendril/internal/logging"
	"github.com/nvandessel/tendril/internal/metrics"
	"github.com/nvandessel/tendril/internal/pathutil"
	"github.com/nvandessel/tendril/internal/program"
	"github.com/nvandessel/tendril/internal/ratelimit"
)

// Server exposes a driver over HTTP: an SVG page, snapshot and status
// endpoints, step/pause/reload controls and Prometheus metrics.
type Server struct {
	driver      *driver.Driver
	metrics     *metrics.Collector
	logger      *slog.Logger
	origins     []string
	allowedDirs []string
	refresh     int
	limits      ratelimit.Limits

	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the request logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logging.OrDiscard(l) }
}

// WithMetricsHandler serves c at /metrics.
func WithMetricsHandler(c *metrics.Collector) ServerOption {
	return func(s *Server) { s.metrics = c }
}

// WithAllowedOrigins sets the CORS origins. Empty allows none.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.origins = origins }
}

// WithAllowedProgramDirs restricts which program files /api/reload may load.
// Without it, only built-in programs can be loaded.
func WithAllowedProgramDirs(dirs []string) ServerOption {
	return func(s *Server) { s.allowedDirs = dirs }
}

// WithRateLimits meters the step, snapshot and reload routes. Without it
// they are unmetered.
func WithRateLimits(l ratelimit.Limits) ServerOption {
	return func(s *Server) { s.limits = l }
}

// WithRefresh makes the index page reload itself every n seconds.
func WithRefresh(n int) ServerOption {
	return func(s *Server) { s.refresh = n }
}

// NewServer creates a server for dr.
func NewServer(dr *driver.Driver, opts ...ServerOption) *Server {
	s := &Server{driver: dr, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(s.requestLogger)

	if len(s.origins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	router.Get("/", s.handleIndex)
	router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/snapshot", s.handleSnapshot)
		r.Post("/step", s.handleStep)
		r.Post("/pause", s.handlePause)
		r.Post("/resume", s.handleResume)
		r.Post("/reload", s.handleReload)
	})
	return router
}

// Addr returns the address the server is listening on.
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe listens on addr ("host:0" picks a free port) and blocks
// until ctx is cancelled. A clean shutdown returns nil.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", s.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ServerShutdownTimeout)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "request_id", chimiddleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := s.driver.Status()
	html, err := RenderHTML(r.Context(), st.Program, s.driver.Snapshot(), s.refresh)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.driver.Status())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	format := constants.FormatJSON
	if f := r.URL.Query().Get("format"); f != "" {
		format = constants.Format(f)
	}
	if !format.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown format %q", format))
		return
	}
	if !s.allow(w, ratelimit.OpSnapshot, 1) {
		return
	}

	body, err := Render(r.Context(), s.driver.Snapshot(), format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	switch format {
	case constants.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case constants.FormatDOT:
		w.Header().Set("Content-Type", "text/vnd.graphviz")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.Write(body)
}

type stepResponse struct {
	Ticks  int     `json:"ticks"`
	Tick   int     `json:"tick"`
	Error  float64 `json:"error"`
	Phase  string  `json:"phase,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	n := 1
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("n must be a positive integer, got %q", v))
			return
		}
		n = parsed
	}
	if !s.allow(w, ratelimit.OpStep, ratelimit.StepCost(n)) {
		return
	}

	reports, err := s.driver.Step(r.Context(), n)
	resp := stepResponse{Ticks: len(reports), Tick: s.driver.Status().Tick}
	if len(reports) > 0 {
		last := reports[len(reports)-1]
		resp.Error = last.Error
		resp.Phase = last.Phase.String()
	}
	if err != nil {
		resp.Reason = err.Error()
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.driver.Pause()
	writeJSON(w, http.StatusOK, s.driver.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.driver.Resume()
	writeJSON(w, http.StatusOK, s.driver.Status())
}

type reloadRequest struct {
	Program string `json:"program"`
	Seed    int64  `json:"seed"`
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	var req reloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if !s.allow(w, ratelimit.OpLoad, 1) {
		return
	}

	p, err := LoadProgram(req.Program, s.allowedDirs)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, program.ErrUnknownProgram) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	if err := s.driver.Reload(r.Context(), p, req.Seed); err != nil {
		status := http.StatusInternalServerError
		var cfgErr *graph.ConfigError
		var topoErr *graph.TopologyError
		if errors.As(err, &cfgErr) || errors.As(err, &topoErr) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, s.driver.Status())
}

// LoadProgram resolves name to a built-in or a program file. Files must lie
// inside allowedDirs, and relative file names are looked up there; with no
// allowed dirs only built-ins resolve.
func LoadProgram(name string, allowedDirs []string) (*program.Program, error) {
	if name == "" {
		return nil, errors.New("program name is required")
	}
	if program.IsFile(name) {
		path, err := pathutil.ResolveProgram(name, allowedDirs)
		if err != nil {
			return nil, fmt.Errorf("program path rejected: %w", err)
		}
		name = path
	}
	return program.Lookup(name)
}

// allow charges cost against op and answers 429 with Retry-After when the
// budget is spent.
func (s *Server) allow(w http.ResponseWriter, op string, cost float64) bool {
	err := s.limits.Check(op, cost)
	if err == nil {
		return true
	}
	var le *ratelimit.LimitError
	if errors.As(err, &le) {
		w.Header().Set("Retry-After", strconv.Itoa(le.RetrySeconds()))
	}
	s.logger.Debug("rate limited", "op", op, "cost", cost)
	writeError(w, http.StatusTooManyRequests, err)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

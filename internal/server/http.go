package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/triage-ai/graphql-mcp/internal/auth"
	"github.com/triage-ai/graphql-mcp/internal/engine"
)

// DefaultRequestTimeout bounds /v1 requests when HTTPConfig.RequestTimeout is zero.
const DefaultRequestTimeout = 60 * time.Second

// maxCallBody caps the size of a POST /v1/call body.
const maxCallBody = 1 << 20

// HTTPConfig wires the HTTP surface.
type HTTPConfig struct {
	Dispatcher Dispatcher
	Auth       auth.Authenticator
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// MCP is mounted at /mcp when set.
	MCP            http.Handler
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// HTTPServer is the chi router for the HTTP surface.
type HTTPServer struct {
	cfg    HTTPConfig
	router *chi.Mux
}

// CallRequest is the POST /v1/call body.
type CallRequest struct {
	ToolName  string          `json:"toolName"`
	Arguments json.RawMessage `json:"arguments"`
}

// NewHTTPServer constructs the router with middleware and routes configured.
func NewHTTPServer(cfg HTTPConfig) *HTTPServer {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	s := &HTTPServer{cfg: cfg, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	if cfg.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Get("/tools", s.handleListTools)
		r.Post("/call", s.handleCall)
	})

	if cfg.MCP != nil {
		s.router.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Handle("/mcp", cfg.MCP)
		})
	}
	return s
}

// Router exposes the root HTTP handler.
func (s *HTTPServer) Router() http.Handler { return s.router }

func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, err := s.cfg.Auth.Authenticate(r.Context(), auth.BearerFromRequest(r))
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			s.cfg.Logger.Error("authentication backend failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "authentication unavailable"})
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithHost(r.Context(), host)))
	})
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.cfg.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": toolInfos(s.cfg.Dispatcher.Tools())})
}

func (s *HTTPServer) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCallBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	env := s.cfg.Dispatcher.Dispatch(r.Context(), engine.Call{
		ToolName:  req.ToolName,
		Arguments: req.Arguments,
		Source:    "http",
	})
	writeJSON(w, http.StatusOK, env)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

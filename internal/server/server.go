// Package server exposes the audit service over HTTP: job start/status/result
// endpoints, a listing endpoint, a liveness probe and a websocket stream of
// job progress events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/auditlab/auditoria/internal/audit"
	"github.com/auditlab/auditoria/internal/logging"
)

// Config holds the HTTP surface settings.
type Config struct {
	ListenAddr string
	APISecret  string
}

// Server wraps the chi router around the orchestrator.
type Server struct {
	cfg          Config
	orchestrator *audit.Orchestrator
	logger       logging.Logger
	httpServer   *http.Server
	upgrader     websocket.Upgrader
}

// New creates the server and mounts its routes.
func New(cfg Config, orchestrator *audit.Orchestrator, logger logging.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		logger:       logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Route("/audit", func(r chi.Router) {
		r.With(s.authMiddleware).Post("/start", s.handleStart)
		r.Get("/", s.handleList)
		r.Get("/status/{id}", s.handleStatus)
		r.Get("/result/{id}", s.handleResult)
	})
	r.Get("/ws/audit/{id}", s.handleEvents)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", logging.Field{Key: "addr", Value: s.cfg.ListenAddr})
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			logging.Field{Key: "method", Value: r.Method},
			logging.Field{Key: "path", Value: r.URL.Path},
			logging.Field{Key: "status", Value: ww.Status()},
			logging.Field{Key: "duration_ms", Value: time.Since(start).Milliseconds()})
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the shared API secret on mutating endpoints. When no
// secret is configured the check is disabled (development mode).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APISecret != "" && r.Header.Get("X-API-Key") != s.cfg.APISecret {
			writeError(w, http.StatusUnauthorized, "invalid or missing api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startRequest struct {
	URL string `json:"url"`

	// Options is accepted for forward compatibility with per-audit tuning;
	// unknown keys are ignored.
	Options map[string]any `json:"options,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.orchestrator.Start(req.URL)
	switch {
	case errors.Is(err, audit.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "audit queue is full, try again later")
		return
	case errors.Is(err, audit.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "service is shutting down")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"audit_id": id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.Status(chi.URLParam(r, "id"))
	if errors.Is(err, audit.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "audit not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       job.Status,
		"progress":     job.Progress,
		"current_step": job.CurrentStep,
	})
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.Result(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, audit.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "audit not found")
		return
	case errors.Is(err, audit.ErrJobNotFinished):
		writeError(w, http.StatusConflict, "audit has not finished yet")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"audits": s.orchestrator.List()})
}

// handleEvents streams job progress events over a websocket until the job
// reaches a terminal state or the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	events, cancel, err := s.orchestrator.Subscribe(jobID)
	if errors.Is(err, audit.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "audit not found")
		return
	}
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	// Drain client frames so close frames are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "audit finished"),
					time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

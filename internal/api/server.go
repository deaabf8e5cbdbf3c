// Package api exposes the HTTP trigger surface for the sync service.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plotline/catalog-sync/internal/catalog"
	"github.com/plotline/catalog-sync/internal/config"
	"github.com/plotline/catalog-sync/internal/cursor"
	"github.com/plotline/catalog-sync/internal/metrics"
	syncer "github.com/plotline/catalog-sync/internal/sync"
)

// Server wires HTTP handlers to the sync runner and state store.
type Server struct {
	router chi.Router
	runner *syncer.Runner
	states catalog.StateStore
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner *syncer.Runner, states catalog.StateStore, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner: runner,
		states: states,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(time.Duration(cfg.Server.TimeoutSeconds) * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(secretMiddleware(cfg.Auth.Secret))
		r.Route("/sync/{state_id}", func(r chi.Router) {
			r.Post("/", s.triggerSync)
			r.Get("/", s.getSyncState)
			r.Post("/reset", s.resetSyncState)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.states.GetState(r.Context(), catalog.FeedManga); err != nil && !errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusServiceUnavailable, "state store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type triggerRequest struct {
	PageLimit     int    `json:"page_limit"`
	MaxPages      int    `json:"max_pages"`
	BudgetSeconds int    `json:"budget_seconds"`
	MaxItems      int    `json:"max_items"`
	Force         bool   `json:"force"`
	Peek          bool   `json:"peek"`
	MangaID       string `json:"manga_id"`
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	stateID := chi.URLParam(r, "state_id")

	var req triggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if req.Force && req.Peek {
		writeError(w, http.StatusBadRequest, "force and peek are mutually exclusive")
		return
	}

	params := syncer.Params{
		StateID:    stateID,
		PageLimit:  req.PageLimit,
		MaxPages:   req.MaxPages,
		MaxItems:   req.MaxItems,
		Force:      req.Force,
		Peek:       req.Peek,
		ExternalID: req.MangaID,
	}
	if req.BudgetSeconds > 0 {
		params.Budget = time.Duration(req.BudgetSeconds) * time.Second
	}

	summary, err := s.runner.Run(r.Context(), params)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, catalog.ErrStateConflict):
			status = http.StatusConflict
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		s.logger.Error("sync run failed",
			zap.String("state", stateID),
			zap.Error(err),
		)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) getSyncState(w http.ResponseWriter, r *http.Request) {
	stateID := chi.URLParam(r, "state_id")
	state, err := s.states.GetState(r.Context(), stateID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sync state not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load sync state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type resetRequest struct {
	Mode  string `json:"mode"`
	Since string `json:"since"`
}

// resetSyncState rewinds the cursor for an operator-driven backfill.
func (s *Server) resetSyncState(w http.ResponseWriter, r *http.Request) {
	stateID := chi.URLParam(r, "state_id")

	var req resetRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	mode := catalog.ModeOffset
	var since time.Time
	switch req.Mode {
	case "", string(catalog.ModeOffset):
	case string(catalog.ModeUpdatedWindow):
		mode = catalog.ModeUpdatedWindow
		parsed, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339 for window mode")
			return
		}
		since = parsed
	default:
		writeError(w, http.StatusBadRequest, "unknown mode")
		return
	}

	state, err := s.states.GetState(r.Context(), stateID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "sync state not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load sync state")
		return
	}

	saved, err := s.states.SaveState(r.Context(), cursor.Rewind(state, mode, since))
	if err != nil {
		if errors.Is(err, catalog.ErrStateConflict) {
			writeError(w, http.StatusConflict, "sync state changed concurrently")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to reset sync state")
		return
	}
	s.logger.Info("sync state reset",
		zap.String("state", stateID),
		zap.String("mode", string(mode)),
	)
	writeJSON(w, http.StatusOK, saved)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			metrics.ObserveHTTPRequest(r.Method, ww.status)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func secretMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Sync-Secret")
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

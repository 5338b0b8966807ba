// Package ingest is the boundary to the location source: a small HTTP
// surface through which the acquisition layer forwards fixes into the
// engine. The engine has no subscription mechanism of its own; this layer
// owns receiving fixes and handing them over.
package ingest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/traverse-labs/waypost/internal/record"
)

// Engine is the slice of the transmission engine the ingest surface needs.
type Engine interface {
	OnNewFixes(ctx context.Context, fixes []record.Fix) error
	TriggerIfStale(ctx context.Context)
}

// BacklogCounter reports the number of buffered records, for health output.
type BacklogCounter interface {
	Count(ctx context.Context) (int64, error)
}

type Server struct {
	engine  Engine
	backlog BacklogCounter
	logger  *zap.Logger
}

func NewServer(engine Engine, backlog BacklogCounter, logger *zap.Logger) *Server {
	return &Server{engine: engine, backlog: backlog, logger: logger}
}

// Router builds the ingest HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(zapLoggerMiddleware(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(api chi.Router) {
		api.Post("/fixes", s.handleFixes)
		api.Get("/fixes/ws", s.handleStream)
		api.Post("/flush", s.handleFlush)
	})

	return r
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r)
		})
	}
}

// handleFixes accepts a JSON array of fixes and appends them to the queue.
func (s *Server) handleFixes(w http.ResponseWriter, r *http.Request) {
	var fixes []record.Fix
	if err := json.NewDecoder(r.Body).Decode(&fixes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fix payload"})
		return
	}

	if err := s.engine.OnNewFixes(r.Context(), fixes); err != nil {
		s.logger.Error("buffering fixes", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "buffering failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(fixes)})
}

// handleFlush is the explicit transmission trigger. The response does not
// wait for the cycle; delivery is eventually consistent.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	s.engine.TriggerIfStale(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.backlog.Count(r.Context())
	if err != nil {
		s.logger.Error("reading backlog count", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"backlog": count,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

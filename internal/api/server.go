// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/config"
	"github.com/mediapulse/newscrawler/internal/metrics"
	"github.com/mediapulse/newscrawler/internal/pipeline"
	"github.com/mediapulse/newscrawler/internal/runner"
)

// Server wires HTTP handlers to the stores and the task runner.
type Server struct {
	router  chi.Router
	configs pipeline.ConfigStore
	tasks   pipeline.TaskStore
	runner  *runner.Runner
	clock   pipeline.Clock
	cfg     config.Config
	logger  *zap.Logger

	// baseCtx bounds background runs started by the trigger endpoint.
	baseCtx context.Context
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	baseCtx context.Context,
	configs pipeline.ConfigStore,
	tasks pipeline.TaskStore,
	run *runner.Runner,
	clock pipeline.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		configs: configs,
		tasks:   tasks,
		runner:  run,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
		baseCtx: baseCtx,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/configs/{config_id}", func(r chi.Router) {
			r.Get("/", s.getConfig)
			r.Post("/run", s.triggerRun)
		})
		r.Route("/tasks/{task_id}", func(r chi.Router) {
			r.Get("/", s.getTask)
			r.Post("/cancel", s.cancelTask)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The config store backs every operation; reachable means ready.
	if _, err := s.configs.ListDue(r.Context(), s.clock.Now()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "config store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "config_id")
	cfg, err := s.configs.Get(r.Context(), id)
	if errors.Is(err, pipeline.ErrNotFound) {
		writeError(w, http.StatusNotFound, "config not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "config lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// triggerRun launches a crawl for one source in the background. The
// runner's own guards handle disabled sources and active-task overlap.
func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "config_id")
	cfg, err := s.configs.Get(r.Context(), id)
	if errors.Is(err, pipeline.ErrNotFound) {
		writeError(w, http.StatusNotFound, "config not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "config lookup failed")
		return
	}
	if !cfg.Enabled {
		writeError(w, http.StatusConflict, "config is disabled")
		return
	}

	go func() {
		if _, err := s.runner.Run(s.baseCtx, cfg); err != nil {
			s.logger.Error("triggered run failed", zap.String("config_id", id), zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"config_id": id, "status": "accepted"})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	task, err := s.tasks.Get(r.Context(), id)
	if errors.Is(err, pipeline.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "task lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// cancelTask cancels a task that has not started running yet.
func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	task, err := s.tasks.Get(r.Context(), id)
	if errors.Is(err, pipeline.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "task lookup failed")
		return
	}
	if task.Status != pipeline.TaskPending {
		writeError(w, http.StatusConflict, "only pending tasks can be cancelled")
		return
	}

	finished := s.clock.Now()
	task.Status = pipeline.TaskCancelled
	task.FinishedAt = &finished
	if err := s.tasks.Save(r.Context(), task); err != nil {
		writeError(w, http.StatusInternalServerError, "task save failed")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write json failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

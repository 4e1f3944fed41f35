package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/bekzodm/jobscout/internal/core"
)

// SchedulerControl is the slice of the scheduler the admin surface needs.
type SchedulerControl interface {
	Status() core.Status
	TriggerManual(target int) error
	Suspend()
	Resume()
}

type JobsStore interface {
	DeleteOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	CountActiveJobs(ctx context.Context) (int64, error)
}

type Server struct {
	router    *chi.Mux
	scheduler SchedulerControl
	store     JobsStore
	logger    *zap.Logger
}

func NewServer(scheduler SchedulerControl, store JobsStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:    chi.NewRouter(),
		scheduler: scheduler,
		store:     store,
		logger:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/admin/scraping", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/manual", s.handleManualScrape)
		r.Post("/suspend", s.handleSuspend)
		r.Post("/resume", s.handleResume)
		r.Post("/cleanup", s.handleCleanup)
	})
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.scheduler.Status()
	if !status.Metrics.Healthy && status.Metrics.LastRun != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "unhealthy",
			"metrics": status.Metrics,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"scheduler": s.scheduler.Status(),
	}
	if n, err := s.store.CountActiveJobs(r.Context()); err == nil {
		payload["active_jobs"] = n
	}
	respondJSON(w, http.StatusOK, payload)
}

type manualScrapeRequest struct {
	NumJobs int `json:"num_jobs"`
}

func (s *Server) handleManualScrape(w http.ResponseWriter, r *http.Request) {
	var req manualScrapeRequest
	if r.Body != nil {
		// An empty body means "use the configured target".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if err := s.scheduler.TriggerManual(req.NumJobs); err != nil {
		switch {
		case errors.Is(err, core.ErrScrapingOff):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, core.ErrRunInProgress), errors.Is(err, core.ErrSchedulerPaused):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Suspend()
	respondJSON(w, http.StatusOK, map[string]string{"status": "suspended"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.scheduler.Resume()
	respondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

type cleanupRequest struct {
	Days int `json:"days"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	req := cleanupRequest{Days: 60}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Days < 1 {
		respondError(w, http.StatusBadRequest, "days must be at least 1")
		return
	}

	deleted, err := s.store.DeleteOldJobs(r.Context(), time.Duration(req.Days)*24*time.Hour)
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

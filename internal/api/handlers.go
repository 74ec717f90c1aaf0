package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maltedev/catalog-crawler/internal/jobs"
)

// RunManager is the part of jobs.Manager the handlers use.
type RunManager interface {
	Start() (jobs.Run, error)
	Get(id string) (jobs.Run, error)
	Latest() (jobs.Run, error)
}

type Handlers struct {
	runs   RunManager
	site   string
	logger *slog.Logger
}

func NewHandlers(runs RunManager, site string, logger *slog.Logger) *Handlers {
	return &Handlers{
		runs:   runs,
		site:   site,
		logger: logger.With("component", "api"),
	}
}

// StartRunResponse is returned when a crawl was accepted
type StartRunResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"site":   h.site,
	}
	if run, err := h.runs.Latest(); err == nil {
		health["latest_run"] = map[string]interface{}{
			"id":     run.ID,
			"status": run.Status,
		}
	}
	h.respondJSON(w, http.StatusOK, health)
}

// StartRun starts a full crawl in the background
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Start()
	switch {
	case errors.Is(err, jobs.ErrRunInProgress):
		h.respondError(w, http.StatusConflict, "a crawl is already running")
		return
	case errors.Is(err, jobs.ErrClosed):
		h.respondError(w, http.StatusServiceUnavailable, "shutting down")
		return
	case err != nil:
		h.logger.Error("failed to start run", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to start run")
		return
	}

	h.respondJSON(w, http.StatusAccepted, StartRunResponse{
		RunID:   run.ID,
		Status:  run.Status,
		Message: "Crawl started",
	})
}

func (h *Handlers) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Latest()
	if err != nil {
		h.respondError(w, http.StatusNotFound, "no run yet")
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		h.respondError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	run, err := h.runs.Get(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

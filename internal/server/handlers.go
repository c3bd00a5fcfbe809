package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/clipflow/pipeline/internal/job"
	"github.com/clipflow/pipeline/internal/service"
)

// Handlers contains the HTTP handlers for the job API.
type Handlers struct {
	service *service.JobService
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *service.JobService, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service: svc,
		logger:  logger,
	}
}

// Health handles GET /healthz requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	created, err := h.service.Enqueue(r.Context(), service.EnqueueInput{
		Type:     job.Type(req.Type),
		InputRef: req.InputRef,
		Params:   req.Params,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidJobType) {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_JOB_TYPE")
			return
		}
		h.logger.Warn("job submission rejected",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     created.ID,
		Status: string(created.Status),
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	view, err := h.service.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, JobResponse{
		ID:         view.JobID,
		Type:       string(view.Type),
		Status:     string(view.Status),
		Progress:   view.Progress,
		StageLabel: view.StageLabel,
		ETASeconds: view.ETASeconds,
		OutputRef:  view.OutputRef,
		Error:      view.ErrorDetail,
	})
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_LIST_FAILED")
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, JobResponse{
			ID:         j.ID,
			Type:       string(j.Type),
			Status:     string(j.Status),
			Progress:   j.Progress,
			StageLabel: j.StageLabel,
			OutputRef:  j.OutputRef,
			Error:      j.ErrorDetail,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelJob handles POST /jobs/{id}/cancel requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.Cancel(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, job.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		case errors.Is(err, job.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "job is already finished", "JOB_FINISHED")
		default:
			h.logger.Error("failed to cancel job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to cancel job", "JOB_CANCEL_FAILED")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return
	}

	if err := h.service.Delete(r.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, job.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		case errors.Is(err, service.ErrNotTerminal):
			writeError(w, http.StatusConflict, "job is still active; cancel it first", "JOB_ACTIVE")
		default:
			h.logger.Error("failed to delete job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to delete job", "JOB_DELETE_FAILED")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

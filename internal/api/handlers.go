package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/insushim/iswvideoedit-sub000/internal/models"
)

// JobStore is the persistence surface the handlers need. *db.DB satisfies
// it; handler tests use a fake.
type JobStore interface {
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	SetProjectStatus(ctx context.Context, id uuid.UUID, status models.ProjectStatus, outputURL string) error

	CreateJob(ctx context.Context, job *models.RenderJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.RenderJob, error)
	GetActiveJob(ctx context.Context, projectID uuid.UUID) (*models.RenderJob, error)
	GetProjectJobs(ctx context.Context, projectID uuid.UUID) ([]models.RenderJob, error)
	CancelJob(ctx context.Context, id uuid.UUID) (*models.RenderJob, error)
	UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error
	CompleteJob(ctx context.Context, id uuid.UUID, outputURL string) error
	FailJob(ctx context.Context, id uuid.UUID, message string) (bool, error)
}

// Enqueuer is the queue surface the handlers need.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID, projectID uuid.UUID) error
	Len(ctx context.Context) (int64, error)
}

type Handler struct {
	store JobStore
	queue Enqueuer
}

func NewHandler(store JobStore, q Enqueuer) *Handler {
	return &Handler{store: store, queue: q}
}

// CreateRender handles POST /v1/render
func (h *Handler) CreateRender(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ProjectID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if err := req.Settings.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := h.store.GetProject(r.Context(), req.ProjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "Project not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to load project")
		return
	}

	if err := project.Timeline.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &models.RenderJob{
		ID:        uuid.New(),
		ProjectID: project.ID,
		Settings:  req.Settings,
	}

	if err := h.store.CreateJob(r.Context(), job); err != nil {
		// one active render per project: hand back the job already running
		if errors.Is(err, models.ErrActiveJobExists) {
			existing, lookupErr := h.store.GetActiveJob(r.Context(), project.ID)
			if lookupErr != nil || existing == nil {
				respondError(w, http.StatusConflict, "Project already has an active render")
				return
			}
			respondJSON(w, http.StatusConflict, models.CreateRenderResponse{
				JobID:  existing.ID,
				Status: existing.Status,
			})
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.Enqueue(r.Context(), job.ID, project.ID); err != nil {
		// the job row exists but nothing will pick it up; fail it now
		_, _ = h.store.FailJob(r.Context(), job.ID, "failed to enqueue")
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	if err := h.store.SetProjectStatus(r.Context(), project.ID, models.ProjectStatusProcessing, ""); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateRenderResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// GetJob handles GET /v1/jobs/{id}, the client polling endpoint.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.store.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	respondJSON(w, http.StatusOK, models.NewJobStatusResponse(job))
}

// CancelJob handles POST /v1/jobs/{id}/cancel. A running render is failed
// with the cancel reason and the project returns to draft; a completed job
// keeps its result and the call returns 409.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.store.CancelJob(r.Context(), id)
	switch {
	case errors.Is(err, models.ErrJobCompleted):
		respondError(w, http.StatusConflict, "Job already completed")
		return
	case errors.Is(err, models.ErrJobCancelled):
		// already cancelled; idempotent
		respondJSON(w, http.StatusOK, models.NewJobStatusResponse(job))
		return
	case err != nil:
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	if err := h.store.SetProjectStatus(r.Context(), job.ProjectID, models.ProjectStatusDraft, ""); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update project")
		return
	}

	respondJSON(w, http.StatusOK, models.NewJobStatusResponse(job))
}

// GetProjectJobs handles GET /v1/projects/{id}/jobs
func (h *Handler) GetProjectJobs(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	jobs, err := h.store.GetProjectJobs(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load jobs")
		return
	}

	responses := make([]models.JobStatusResponse, len(jobs))
	for i := range jobs {
		responses[i] = models.NewJobStatusResponse(&jobs[i])
	}
	respondJSON(w, http.StatusOK, responses)
}

// UpdateJobProgress handles POST /internal/v1/jobs/{id}/progress, the
// shared-secret channel remote workers report through.
func (h *Handler) UpdateJobProgress(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	var req models.ProgressUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Progress < 0 || req.Progress > 100 {
		respondError(w, http.StatusBadRequest, "progress must be 0..100")
		return
	}

	if err := h.store.UpdateJobProgress(r.Context(), id, req.Progress); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update progress")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CompleteJob handles POST /internal/v1/jobs/{id}/complete.
func (h *Handler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	var req models.CompleteJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch req.Status {
	case models.JobStatusCompleted:
		if req.OutputURL == nil || *req.OutputURL == "" {
			respondError(w, http.StatusBadRequest, "output_url is required for completion")
			return
		}
		if err := h.store.CompleteJob(r.Context(), id, *req.OutputURL); err != nil {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
	case models.JobStatusFailed:
		message := "render failed"
		if req.Error != nil && *req.Error != "" {
			message = *req.Error
		}
		if _, err := h.store.FailJob(r.Context(), id, message); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to record failure")
			return
		}
	default:
		respondError(w, http.StatusBadRequest, "status must be completed or failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health reports queue depth so dashboards see backlog at a glance.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	depth, err := h.queue.Len(r.Context())
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"status": "degraded"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"queueDepth": depth,
	})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/leadforge/leadforge/internal/api/middleware"
	"github.com/leadforge/leadforge/internal/api/response"
	"github.com/leadforge/leadforge/internal/cache"
	"github.com/leadforge/leadforge/internal/pipeline"
	"github.com/leadforge/leadforge/internal/store"
	"github.com/leadforge/leadforge/pkg/models"
)

const (
	defaultLeadCount = 100
	maxLeadCount     = 1000
)

// PipelineRunner is the slice of the pipeline service the job handlers need.
type PipelineRunner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
	Process(ctx context.Context, jobID uuid.UUID) error
}

// NewCreateJobHandler returns the handler for POST /api/v1/jobs.
func NewCreateJobHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		var req struct {
			ClientID           *uuid.UUID `json:"client_id"`
			ICPID              *uuid.UUID `json:"icp_id"`
			CampaignID         *string    `json:"campaign_id"`
			Source             string     `json:"source"`
			BatchSize          int        `json:"batch_size"`
			RequestedLeadCount int        `json:"requested_lead_count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.ICPID == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "icp_id is required", nil)
			return
		}
		if _, err := s.GetICP(r.Context(), *req.ICPID, accountID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "ICP not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load ICP", nil)
			return
		}

		if req.ClientID != nil {
			if _, err := s.GetClient(r.Context(), *req.ClientID, accountID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					response.Error(w, http.StatusNotFound, "NOT_FOUND", "Client not found", nil)
					return
				}
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load client", nil)
				return
			}
		}

		count := req.RequestedLeadCount
		if count <= 0 {
			count = defaultLeadCount
		}
		if count > maxLeadCount {
			count = maxLeadCount
		}
		batchSize := req.BatchSize
		if batchSize <= 0 || batchSize > count {
			batchSize = count
		}
		source := req.Source
		if source == "" {
			source = "scraper"
		}

		now := time.Now().UTC()
		job := &models.Job{
			ID:                 uuid.New(),
			AccountID:          accountID,
			ClientID:           req.ClientID,
			ICPID:              req.ICPID,
			CampaignID:         req.CampaignID,
			Source:             source,
			BatchSize:          batchSize,
			RequestedLeadCount: count,
			Status:             models.JobStatusQueued,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.CreateJob(r.Context(), job); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create job", nil)
			return
		}

		response.Created(w, job)
	}
}

// NewRunJobHandler returns the handler for POST /api/v1/jobs/{jobID}/run.
// The scrape runs in the background; the client polls for progress.
func NewRunJobHandler(s store.Store, runner PipelineRunner) http.HandlerFunc {
	return startHandler(s, "run", func(jobID uuid.UUID) error {
		return runner.Run(context.Background(), jobID)
	})
}

// NewProcessJobHandler returns the handler for POST /api/v1/jobs/{jobID}/process.
func NewProcessJobHandler(s store.Store, runner PipelineRunner) http.HandlerFunc {
	return startHandler(s, "process", func(jobID uuid.UUID) error {
		return runner.Process(context.Background(), jobID)
	})
}

// startHandler validates the job then launches fn asynchronously and
// responds 202. Calling either phase on a succeeded job is a no-op for
// process and a conflict for run; a failed job is always a conflict.
func startHandler(s store.Store, phase string, fn func(uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id", nil)
			return
		}

		job, err := s.GetJob(r.Context(), jobID, accountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		if job.Status == models.JobStatusSucceeded && phase == "process" {
			response.JSON(w, job)
			return
		}
		if job.Terminal() {
			response.Error(w, http.StatusConflict, "JOB_FINISHED",
				"Job has already finished", map[string]string{"status": job.Status})
			return
		}

		go func() {
			if err := fn(jobID); err != nil {
				slog.Error("pipeline phase failed", "phase", phase, "job_id", jobID, "error", err)
			}
		}()

		response.Accepted(w, map[string]any{
			"job_id": jobID,
			"phase":  phase,
			"status": models.JobStatusRunning,
		})
	}
}

type pollResponse struct {
	JobID                 uuid.UUID         `json:"job_id"`
	Status                string            `json:"status"`
	ProgressStep          string            `json:"progress_step"`
	ProgressPercent       int               `json:"progress_percent"`
	ActualLeadCount       int               `json:"actual_lead_count"`
	VerificationBreakdown map[string]int    `json:"verification_breakdown,omitempty"`
	ErrorMessage          *string           `json:"error_message,omitempty"`
	Steps                 []*models.JobStep `json:"steps,omitempty"`
	FinishedAt            *time.Time        `json:"finished_at,omitempty"`
}

// NewPollJobHandler returns the handler for GET /api/v1/jobs/{jobID}. Polls
// hit the cached snapshot when possible; include_steps=true forces a
// database read and attaches the per-stage step rows.
func NewPollJobHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id", nil)
			return
		}

		includeSteps := r.URL.Query().Get("include_steps") == "true"

		if !includeSteps {
			if snap, ok := pipeline.LoadSnapshot(r.Context(), c, jobID); ok && snap.AccountID == accountID {
				response.JSON(w, pollResponse{
					JobID:                 snap.JobID,
					Status:                snap.Status,
					ProgressStep:          snap.ProgressStep,
					ProgressPercent:       snap.ProgressPercent,
					ActualLeadCount:       snap.ActualLeadCount,
					VerificationBreakdown: snap.VerificationBreakdown,
					ErrorMessage:          snap.ErrorMessage,
				})
				return
			}
		}

		job, err := s.GetJob(r.Context(), jobID, accountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		resp := pollResponse{
			JobID:                 job.ID,
			Status:                job.Status,
			ProgressStep:          job.ProgressStep,
			ProgressPercent:       job.ProgressPercent,
			ActualLeadCount:       job.ActualLeadCount,
			VerificationBreakdown: job.VerificationBreakdown,
			ErrorMessage:          job.ErrorMessage,
			FinishedAt:            job.FinishedAt,
		}
		if includeSteps {
			steps, err := s.ListJobSteps(r.Context(), job.ID)
			if err != nil {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job steps", nil)
				return
			}
			resp.Steps = steps
		}
		response.JSON(w, resp)
	}
}

package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/leadforge/leadforge/internal/cache"
	"github.com/leadforge/leadforge/pkg/models"
)

const snapshotTTL = time.Minute

// Snapshot is the cached poll view of a job. The database row stays the
// source of truth; pollers hitting this fast path tolerate it being up to
// one write behind.
type Snapshot struct {
	JobID                 uuid.UUID      `json:"job_id"`
	AccountID             uuid.UUID      `json:"account_id"`
	Status                string         `json:"status"`
	ProgressStep          string         `json:"progress_step"`
	ProgressPercent       int            `json:"progress_percent"`
	ActualLeadCount       int            `json:"actual_lead_count"`
	VerificationBreakdown map[string]int `json:"verification_breakdown,omitempty"`
	ErrorMessage          *string        `json:"error_message,omitempty"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// SnapshotFromJob builds the cached view from a loaded job row.
func SnapshotFromJob(job *models.Job) *Snapshot {
	return &Snapshot{
		JobID:                 job.ID,
		AccountID:             job.AccountID,
		Status:                job.Status,
		ProgressStep:          job.ProgressStep,
		ProgressPercent:       job.ProgressPercent,
		ActualLeadCount:       job.ActualLeadCount,
		VerificationBreakdown: job.VerificationBreakdown,
		ErrorMessage:          job.ErrorMessage,
		UpdatedAt:             time.Now().UTC(),
	}
}

// LoadSnapshot reads the cached poll view, if present.
func LoadSnapshot(ctx context.Context, c cache.Cache, jobID uuid.UUID) (*Snapshot, bool) {
	raw, ok, err := c.GetJobSnapshot(ctx, jobID)
	if err != nil || !ok {
		return nil, false
	}
	var snap Snapshot
	if json.Unmarshal(raw, &snap) != nil {
		return nil, false
	}
	return &snap, true
}

// writeSnapshot caches the poll view. Failures are swallowed; the cache is
// an optimization, never a dependency.
func (s *Service) writeSnapshot(ctx context.Context, snap *Snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.cache.SetJobSnapshot(ctx, snap.JobID, raw, snapshotTTL); err != nil {
		s.logger.Warn("job snapshot write failed", "job_id", snap.JobID, "error", err)
	}
}

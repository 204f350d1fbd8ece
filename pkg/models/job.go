package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// Job ties together an account, an optional client scope, an ICP filter and a
// requested lead count, and tracks the pipeline run for that combination.
// The API returns the job on POST /api/v1/jobs; the client calls /run, then
// /process, and polls GET /api/v1/jobs/{job_id} until status is succeeded or
// failed. Status only ever moves forward: queued -> running -> terminal.
type Job struct {
	ID                 uuid.UUID  `db:"id"                    json:"id"`
	AccountID          uuid.UUID  `db:"account_id"            json:"account_id"`
	ClientID           *uuid.UUID `db:"client_id"             json:"client_id,omitempty"`
	ICPID              *uuid.UUID `db:"icp_id"                json:"icp_id,omitempty"`
	CampaignID         *string    `db:"campaign_id"           json:"campaign_id,omitempty"`
	Source             string     `db:"source"                json:"source"`
	BatchSize          int        `db:"batch_size"            json:"batch_size"`
	RequestedLeadCount int        `db:"requested_lead_count"  json:"requested_lead_count"`
	Status             string     `db:"status"                json:"status"`
	ProgressStep       string     `db:"progress_step"         json:"progress_step"`
	ProgressPercent    int        `db:"progress_percent"      json:"progress_percent"`
	ErrorMessage       *string    `db:"error_message"         json:"error_message,omitempty"`
	ExternalRunID      *string    `db:"external_run_id"       json:"external_run_id,omitempty"`
	ExternalDatasetID  *string    `db:"external_dataset_id"   json:"external_dataset_id,omitempty"`
	ActualLeadCount    int        `db:"actual_lead_count"     json:"actual_lead_count"`
	// VerificationBreakdown counts leads per verification status
	// (valid / catch_all / invalid / risky) for the stored batch.
	VerificationBreakdown map[string]int `db:"verification_breakdown" json:"verification_breakdown,omitempty"`
	FinishedAt            *time.Time     `db:"finished_at"            json:"finished_at,omitempty"`
	CreatedAt             time.Time      `db:"created_at"             json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"             json:"updated_at"`
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

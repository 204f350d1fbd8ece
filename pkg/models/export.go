package models

import (
	"time"

	"github.com/google/uuid"
)

// ExportAttempt records one push of a lead batch to the outreach platform,
// successful or not. Insert-only; an export failure is audited here rather
// than failing the job, since stored leads remain exportable later.
type ExportAttempt struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	AccountID    uuid.UUID `db:"account_id"    json:"account_id"`
	JobID        uuid.UUID `db:"job_id"        json:"job_id"`
	CampaignID   string    `db:"campaign_id"   json:"campaign_id"`
	Success      bool      `db:"success"       json:"success"`
	LeadsSent    int       `db:"leads_sent"    json:"leads_sent"`
	LeadsSkipped int       `db:"leads_skipped" json:"leads_skipped"`
	ErrorMessage *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}

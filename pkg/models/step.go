package models

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline stages in execution order. Steps are advanced strictly
// left-to-right; a poller never observes a later stage before an earlier one.
const (
	StageScrape     = "scrape"
	StageVerifyMX   = "verify_mx"
	StageVerifySMTP = "verify_smtp"
	StageDedupe     = "dedupe"
	StageClassify   = "classify"
	StageEnrich     = "enrich"
	StageStore      = "store"
	StageNotify     = "notify"
	StageExport     = "export"
)

// Stages lists all pipeline stages in order.
var Stages = []string{
	StageScrape,
	StageVerifyMX,
	StageVerifySMTP,
	StageDedupe,
	StageClassify,
	StageEnrich,
	StageStore,
	StageNotify,
	StageExport,
}

// JobStep is one row per (job, stage) pair recording that stage's outcome.
// A step may be retried (back to running, then re-terminaled), but a
// succeeded job never carries a non-succeeded step.
type JobStep struct {
	ID         uuid.UUID  `db:"id"          json:"id"`
	JobID      uuid.UUID  `db:"job_id"      json:"job_id"`
	Stage      string     `db:"stage"       json:"stage"`
	Status     string     `db:"status"      json:"status"`
	Logs       *string    `db:"logs"        json:"logs,omitempty"`
	StartedAt  *time.Time `db:"started_at"  json:"started_at,omitempty"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"  json:"updated_at"`
}

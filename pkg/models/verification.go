package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	VerificationValid    = "valid"
	VerificationCatchAll = "catch_all"
	VerificationInvalid  = "invalid"
	VerificationRisky    = "risky"
)

// VerificationResult is the outcome of probing a single address. The Logs
// slice carries every protocol line sent and received, in order, and is
// persisted as an audit row per lead; callers must not discard it.
type VerificationResult struct {
	Email     string   `json:"email"`
	Status    string   `json:"status"`
	MXValid   bool     `json:"mx_valid"`
	SMTPValid bool     `json:"smtp_valid"`
	CatchAll  bool     `json:"catch_all"`
	Logs      []string `json:"logs"`
}

// VerificationRecord is the persisted audit form of a VerificationResult.
type VerificationRecord struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	AccountID uuid.UUID `db:"account_id" json:"account_id"`
	JobID     uuid.UUID `db:"job_id"     json:"job_id"`
	Email     string    `db:"email"      json:"email"`
	Status    string    `db:"status"     json:"status"`
	MXValid   bool      `db:"mx_valid"   json:"mx_valid"`
	SMTPValid bool      `db:"smtp_valid" json:"smtp_valid"`
	CatchAll  bool      `db:"catch_all"  json:"catch_all"`
	Logs      []string  `db:"logs"       json:"logs"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

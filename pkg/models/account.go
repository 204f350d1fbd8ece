// Package models contains shared data models used across the LeadForge codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Account represents an agency or team. Every other entity belongs to an account.
type Account struct {
	ID              uuid.UUID `db:"id"                json:"id"`
	Name            string    `db:"name"              json:"name"`
	OutreachAPIKey  *string   `db:"outreach_api_key"  json:"-"`
	CreatedAt       time.Time `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"        json:"updated_at"`
}

// Client is an optional sub-scope under an account (an agency's end customer).
// Jobs and leads may be scoped to a client; a client may carry its own
// outreach credential, which takes precedence over the account-level one.
type Client struct {
	ID             uuid.UUID `db:"id"               json:"id"`
	AccountID      uuid.UUID `db:"account_id"       json:"account_id"`
	Name           string    `db:"name"             json:"name"`
	OutreachAPIKey *string   `db:"outreach_api_key" json:"-"`
	CreatedAt      time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"       json:"updated_at"`
}

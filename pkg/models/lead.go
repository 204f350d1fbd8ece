package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ExportStatusExported = "exported"
)

// Lead is a stored contact record. Identity is (account, normalized email);
// the pipeline upserts on that key during the store stage and only ever
// mutates export_status afterwards.
type Lead struct {
	ID                 uuid.UUID  `db:"id"                  json:"id"`
	AccountID          uuid.UUID  `db:"account_id"          json:"account_id"`
	ClientID           *uuid.UUID `db:"client_id"           json:"client_id,omitempty"`
	JobID              *uuid.UUID `db:"job_id"              json:"job_id,omitempty"`
	ICPID              *uuid.UUID `db:"icp_id"              json:"icp_id,omitempty"`
	Email              string     `db:"email"               json:"email"`
	EmailNormalized    string     `db:"email_normalized"    json:"email_normalized"`
	FirstName          string     `db:"first_name"          json:"first_name"`
	LastName           string     `db:"last_name"           json:"last_name"`
	Title              string     `db:"title"               json:"title"`
	Company            string     `db:"company"             json:"company"`
	Domain             string     `db:"domain"              json:"domain"`
	DomainNormalized   string     `db:"domain_normalized"   json:"domain_normalized"`
	LinkedInURL        string     `db:"linkedin_url"        json:"linkedin_url"`
	Location           string     `db:"location"            json:"location"`
	CompanySize        string     `db:"company_size"        json:"company_size"`
	RevenueEstimate    string     `db:"revenue_estimate"    json:"revenue_estimate"`
	TechStack          []string   `db:"tech_stack"          json:"tech_stack"`
	VerificationStatus string     `db:"verification_status" json:"verification_status"`
	ExportStatus       *string    `db:"export_status"       json:"export_status,omitempty"`
	CreatedAt          time.Time  `db:"created_at"          json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"          json:"updated_at"`
}

// Exportable reports whether the lead qualifies for outreach export.
// Only confirmed-deliverable classifications leave the building.
func (l *Lead) Exportable() bool {
	return l.VerificationStatus == VerificationValid || l.VerificationStatus == VerificationCatchAll
}

// RawContact is the scraper's canonical record shape, before normalization
// into a Lead. Field spellings follow the scraper's dataset schema.
type RawContact struct {
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Email           string   `json:"email"`
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	Domain          string   `json:"domain"`
	LinkedInURL     string   `json:"linkedin_url"`
	Location        string   `json:"location"`
	CompanySize     string   `json:"company_size"`
	RevenueEstimate string   `json:"revenue_estimate"`
	TechStack       []string `json:"tech_stack"`
}

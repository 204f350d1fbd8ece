package models

import (
	"time"

	"github.com/google/uuid"
)

// ICP (Ideal Customer Profile) is the structured filter a job scrapes
// against: who to find and where. Country and City are mutually exclusive
// at the scraper boundary; the filter builder rejects both being set.
type ICP struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	AccountID    uuid.UUID `db:"account_id"    json:"account_id"`
	Name         string    `db:"name"          json:"name"`
	JobTitles    []string  `db:"job_titles"    json:"job_titles"`
	Industries   []string  `db:"industries"    json:"industries"`
	Keywords     []string  `db:"keywords"      json:"keywords"`
	Country      string    `db:"country"       json:"country"`
	City         string    `db:"city"          json:"city"`
	HeadcountMin int       `db:"headcount_min" json:"headcount_min"`
	HeadcountMax int       `db:"headcount_max" json:"headcount_max"`
	FundingStage string    `db:"funding_stage" json:"funding_stage"`
	Technologies []string  `db:"technologies"  json:"technologies"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"    json:"updated_at"`
}

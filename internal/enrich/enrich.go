// Package enrich turns the scraper's raw record shape into stored leads.
// Normalization fails closed: an unusable record is dropped (with a reason)
// instead of propagating malformed data through the pipeline. Enrichment is
// a pure copy/derive pass with no external calls.
package enrich

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/leadforge/leadforge/pkg/models"
)

// ErrUnusableRecord marks a raw record that carries no identity at all:
// no email, no name, no domain. Callers log and drop, never abort.
var ErrUnusableRecord = errors.New("record has no usable identity fields")

// Normalize maps a raw scraped contact into a Lead. Returns
// ErrUnusableRecord when the record has nothing to key on.
func Normalize(raw models.RawContact, accountID uuid.UUID) (*models.Lead, error) {
	email := strings.TrimSpace(raw.Email)
	first := strings.TrimSpace(raw.FirstName)
	last := strings.TrimSpace(raw.LastName)
	domain := strings.TrimSpace(raw.Domain)

	if email == "" && first == "" && last == "" && domain == "" {
		return nil, ErrUnusableRecord
	}

	lead := &models.Lead{
		ID:        uuid.New(),
		AccountID: accountID,
		Email:     email,
		FirstName: first,
		LastName:  last,
		Title:     strings.TrimSpace(raw.Title),
		Company:   strings.TrimSpace(raw.Company),
		Domain:    domain,
	}
	return lead, nil
}

// Enrich copies auxiliary attributes from the raw record onto the lead:
// location, LinkedIn URL, company size, revenue estimate, tech stack.
// Missing fields stay zero-valued; there is no other failure mode.
func Enrich(lead *models.Lead, raw models.RawContact) {
	lead.LinkedInURL = strings.TrimSpace(raw.LinkedInURL)
	lead.Location = strings.TrimSpace(raw.Location)
	lead.CompanySize = strings.TrimSpace(raw.CompanySize)
	lead.RevenueEstimate = strings.TrimSpace(raw.RevenueEstimate)

	if len(raw.TechStack) > 0 {
		stack := make([]string, 0, len(raw.TechStack))
		for _, tech := range raw.TechStack {
			if t := strings.TrimSpace(tech); t != "" {
				stack = append(stack, t)
			}
		}
		lead.TechStack = stack
	}
	if lead.TechStack == nil {
		lead.TechStack = []string{}
	}
}

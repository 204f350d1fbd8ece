// Package scrapefilter maps an Ideal Customer Profile onto the scraping
// provider's request shape. All functions are pure with no side effects.
package scrapefilter

import (
	"errors"

	"github.com/leadforge/leadforge/pkg/models"
)

// ErrLocationConflict is returned when an ICP sets both country and city;
// the scraper treats them as mutually exclusive fields, never mixed.
var ErrLocationConflict = errors.New("country and city are mutually exclusive")

// Request is the scraper's filter shape.
type Request struct {
	JobTitles         []string `json:"job_titles,omitempty"`
	Industries        []string `json:"industries,omitempty"`
	Keywords          []string `json:"keywords,omitempty"`
	Country           string   `json:"country,omitempty"`
	City              string   `json:"city,omitempty"`
	HeadcountBrackets []string `json:"headcount_brackets,omitempty"`
	FundingStage      string   `json:"funding_stage,omitempty"`
	Technologies      []string `json:"technologies,omitempty"`
	EmailStatus       string   `json:"email_status,omitempty"`
	Limit             int      `json:"limit"`
}

// headcountBrackets is the scraper's discrete company-size ladder, ordered.
// A zero hi means unbounded.
var headcountBrackets = []struct {
	label string
	lo    int
	hi    int
}{
	{"1-10", 1, 10},
	{"11-20", 11, 20},
	{"21-50", 21, 50},
	{"51-100", 51, 100},
	{"101-200", 101, 200},
	{"201-500", 201, 500},
	{"501-1000", 501, 1000},
	{"1001-2000", 1001, 2000},
	{"2001-5000", 2001, 5000},
	{"5001-10000", 5001, 10000},
	{"10001-20000", 10001, 20000},
	{"20001-50000", 20001, 50000},
	{"50000+", 50001, 0},
}

// Build maps an ICP and requested lead count onto a scraper request.
func Build(icp *models.ICP, limit int) (Request, error) {
	if icp.Country != "" && icp.City != "" {
		return Request{}, ErrLocationConflict
	}

	req := Request{
		JobTitles:         icp.JobTitles,
		Industries:        icp.Industries,
		Keywords:          icp.Keywords,
		Country:           icp.Country,
		City:              icp.City,
		HeadcountBrackets: Brackets(icp.HeadcountMin, icp.HeadcountMax),
		FundingStage:      icp.FundingStage,
		Technologies:      icp.Technologies,
		EmailStatus:       "verified",
		Limit:             limit,
	}
	return req, nil
}

// Brackets returns every bracket label whose [lo,hi] interval intersects the
// requested [min,max] range. Total over all numeric inputs: a zero or
// negative min means "from the smallest", a zero max means "unbounded".
func Brackets(min, max int) []string {
	if min <= 0 && max <= 0 {
		return nil
	}
	if min <= 0 {
		min = 1
	}

	var labels []string
	for _, b := range headcountBrackets {
		if max > 0 && b.lo > max {
			continue
		}
		if b.hi > 0 && b.hi < min {
			continue
		}
		labels = append(labels, b.label)
	}
	return labels
}

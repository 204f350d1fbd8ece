package enrich

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/leadforge/leadforge/pkg/models"
)

func TestNormalize(t *testing.T) {
	accountID := uuid.New()

	raw := models.RawContact{
		FirstName: " Ann ",
		LastName:  "Ash",
		Email:     "ann@acme.com",
		Title:     " Founder ",
		Company:   "Acme",
		Domain:    "acme.com",
	}

	lead, err := Normalize(raw, accountID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.AccountID != accountID {
		t.Errorf("expected account %s, got %s", accountID, lead.AccountID)
	}
	if lead.FirstName != "Ann" || lead.Title != "Founder" {
		t.Errorf("expected trimmed fields, got first=%q title=%q", lead.FirstName, lead.Title)
	}
	if lead.ID == uuid.Nil {
		t.Error("expected a generated lead id")
	}
}

func TestNormalize_UnusableRecord(t *testing.T) {
	tests := []struct {
		name    string
		raw     models.RawContact
		wantErr bool
	}{
		{"completely empty", models.RawContact{}, true},
		{"whitespace only", models.RawContact{Email: "  ", FirstName: " "}, true},
		{"email only", models.RawContact{Email: "a@b.c"}, false},
		{"name only", models.RawContact{FirstName: "Ann"}, false},
		{"domain only", models.RawContact{Domain: "acme.com"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, uuid.New())
			if tt.wantErr && !errors.Is(err, ErrUnusableRecord) {
				t.Errorf("expected ErrUnusableRecord, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEnrich(t *testing.T) {
	lead := &models.Lead{Email: "ann@acme.com"}
	raw := models.RawContact{
		LinkedInURL:     " https://linkedin.com/in/ann ",
		Location:        "Berlin",
		CompanySize:     "11-20",
		RevenueEstimate: "$1M-$5M",
		TechStack:       []string{" HubSpot ", "", "Stripe"},
	}

	Enrich(lead, raw)

	if lead.LinkedInURL != "https://linkedin.com/in/ann" {
		t.Errorf("unexpected linkedin url: %q", lead.LinkedInURL)
	}
	if lead.Location != "Berlin" || lead.CompanySize != "11-20" {
		t.Errorf("unexpected location/size: %q %q", lead.Location, lead.CompanySize)
	}
	expected := []string{"HubSpot", "Stripe"}
	if !reflect.DeepEqual(lead.TechStack, expected) {
		t.Errorf("expected tech stack %v, got %v", expected, lead.TechStack)
	}
}

func TestEnrich_EmptyRawLeavesZeroValues(t *testing.T) {
	lead := &models.Lead{Email: "ann@acme.com", Location: ""}

	Enrich(lead, models.RawContact{})

	if lead.Location != "" || lead.LinkedInURL != "" {
		t.Errorf("expected zero values, got location=%q url=%q", lead.Location, lead.LinkedInURL)
	}
	if lead.TechStack == nil {
		t.Error("expected non-nil tech stack")
	}
	if len(lead.TechStack) != 0 {
		t.Errorf("expected empty tech stack, got %v", lead.TechStack)
	}
}

// Package outreach wraps the outreach platform where verified leads end up
// as campaign members. Credentials resolve per job: a client-level key wins
// over the account-level key, which wins over the process-wide default.
package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/leadforge/leadforge/internal/config"
	"github.com/leadforge/leadforge/pkg/models"
)

// Sentinel errors for outreach client failures.
var (
	ErrOutreachUnreachable = errors.New("outreach unreachable")
	ErrOutreachAPIError    = errors.New("outreach api error")
	ErrOutreachAuth        = errors.New("outreach auth rejected")
	ErrNoCredential        = errors.New("no outreach credential available")
)

// Campaign is the outreach platform's campaign shape.
type Campaign struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	LeadsNum int    `json:"leads_count"`
}

// AddResult reports how many leads the platform accepted versus skipped
// (already present in the campaign).
type AddResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

// campaignLead is the wire shape for a lead pushed into a campaign.
type campaignLead struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Company   string `json:"company_name,omitempty"`
	Title     string `json:"title,omitempty"`
	Website   string `json:"website,omitempty"`
}

// Client is the interface for the outreach platform.
type Client interface {
	ListCampaigns(ctx context.Context, apiKey string) ([]Campaign, error)
	GetCampaign(ctx context.Context, apiKey, campaignID string) (*Campaign, error)
	CreateCampaign(ctx context.Context, apiKey, name string) (*Campaign, error)
	// AddLeads pushes exportable leads into a campaign. The platform dedupes
	// on its side; skipped counts leads it already had.
	AddLeads(ctx context.Context, apiKey, campaignID string, leads []*models.Lead) (*AddResult, error)
}

// HTTPClient implements Client against the platform's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates an outreach client from config.
func NewHTTPClient(cfg config.OutreachConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ListCampaigns(ctx context.Context, apiKey string) ([]Campaign, error) {
	var payload struct {
		Campaigns []Campaign `json:"campaigns"`
	}
	if err := c.do(ctx, apiKey, http.MethodGet, "/v1/campaigns", nil, &payload); err != nil {
		return nil, err
	}
	if payload.Campaigns == nil {
		return []Campaign{}, nil
	}
	return payload.Campaigns, nil
}

func (c *HTTPClient) GetCampaign(ctx context.Context, apiKey, campaignID string) (*Campaign, error) {
	var campaign Campaign
	path := "/v1/campaigns/" + url.PathEscape(campaignID)
	if err := c.do(ctx, apiKey, http.MethodGet, path, nil, &campaign); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (c *HTTPClient) CreateCampaign(ctx context.Context, apiKey, name string) (*Campaign, error) {
	body := map[string]string{"name": name}
	var campaign Campaign
	if err := c.do(ctx, apiKey, http.MethodPost, "/v1/campaigns", body, &campaign); err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (c *HTTPClient) AddLeads(ctx context.Context, apiKey, campaignID string, leads []*models.Lead) (*AddResult, error) {
	wire := make([]campaignLead, 0, len(leads))
	for _, lead := range leads {
		wire = append(wire, campaignLead{
			Email:     lead.EmailNormalized,
			FirstName: lead.FirstName,
			LastName:  lead.LastName,
			Company:   lead.Company,
			Title:     lead.Title,
			Website:   lead.DomainNormalized,
		})
	}

	body := map[string]any{"leads": wire}
	var result AddResult
	path := "/v1/campaigns/" + url.PathEscape(campaignID) + "/leads"
	if err := c.do(ctx, apiKey, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do runs one authenticated JSON round trip against the platform.
func (c *HTTPClient) do(ctx context.Context, apiKey, method, path string, body, out any) error {
	if apiKey == "" {
		return ErrNoCredential
	}

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrOutreachAuth, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s %s status %d", ErrOutreachAPIError, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrOutreachUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrOutreachUnreachable, err)
}

var _ Client = (*HTTPClient)(nil)

// Package scraper wraps the external scraping provider. Given a structured
// filter it submits a run, tracks it to completion, and exposes the
// resulting dataset of raw contact records.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/leadforge/leadforge/internal/config"
	"github.com/leadforge/leadforge/pkg/models"
	"github.com/leadforge/leadforge/pkg/scrapefilter"
)

// Sentinel errors for scraper client failures.
var (
	ErrScraperUnreachable = errors.New("scraper unreachable")
	ErrScraperAPIError    = errors.New("scraper api error")
	ErrRunFailed          = errors.New("scrape run failed")
	ErrRunTimeout         = errors.New("scrape run timeout")
)

// Run statuses reported by the provider.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunResult identifies a completed run and its dataset.
type RunResult struct {
	RunID     string
	DatasetID string
}

// RunState is the provider's view of an in-flight run.
type RunState struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	DatasetID string `json:"dataset_id"`
	Error     string `json:"error"`
}

// Client is the interface for the scraping provider.
type Client interface {
	// SubmitRun submits the filter and returns the provider's run id as soon
	// as the run is accepted. The run keeps executing remotely; callers
	// persist the id and then block on WaitForRun.
	SubmitRun(ctx context.Context, req scrapefilter.Request) (string, error)
	// WaitForRun blocks until the run reaches a terminal status, bounded by
	// the configured run timeout. The provider owns its own internal
	// retries; a run can take tens of seconds.
	WaitForRun(ctx context.Context, runID string) (*RunResult, error)
	// RunStatus reports the current state of a run without blocking.
	RunStatus(ctx context.Context, runID string) (*RunState, error)
	// FetchRecords downloads up to limit raw contacts from a dataset.
	FetchRecords(ctx context.Context, datasetID string, limit int) ([]models.RawContact, error)
}

// HTTPClient implements Client against the provider's HTTP API.
type HTTPClient struct {
	baseURL      string
	apiKey       string
	runTimeout   time.Duration
	pollInterval time.Duration
	client       *http.Client
}

// NewHTTPClient creates a scraper client from config.
func NewHTTPClient(cfg config.ScraperConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		runTimeout:   cfg.RunTimeout,
		pollInterval: cfg.PollInterval,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) SubmitRun(ctx context.Context, req scrapefilter.Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/runs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: start run status %d", ErrScraperAPIError, resp.StatusCode)
	}

	var created RunState
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decoding run response: %w", err)
	}
	if created.RunID == "" {
		return "", fmt.Errorf("%w: run accepted without an id", ErrScraperAPIError)
	}
	return created.RunID, nil
}

// WaitForRun polls the run until it reaches a terminal status, bounded by
// the configured run timeout.
func (c *HTTPClient) WaitForRun(ctx context.Context, runID string) (*RunResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.runTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		state, err := c.RunStatus(waitCtx, runID)
		if err != nil {
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: run %s", ErrRunTimeout, runID)
			}
			return nil, err
		}

		switch state.Status {
		case RunStatusCompleted:
			return &RunResult{RunID: runID, DatasetID: state.DatasetID}, nil
		case RunStatusFailed:
			return nil, fmt.Errorf("%w: %s", ErrRunFailed, state.Error)
		}

		select {
		case <-waitCtx.Done():
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: run %s", ErrRunTimeout, runID)
			}
			return nil, waitCtx.Err()
		case <-ticker.C:
		}
	}
}

func (c *HTTPClient) RunStatus(ctx context.Context, runID string) (*RunState, error) {
	u := fmt.Sprintf("%s/v1/runs/%s", c.baseURL, url.PathEscape(runID))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: run status %d", ErrScraperAPIError, resp.StatusCode)
	}

	var state RunState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decoding run state: %w", err)
	}
	return &state, nil
}

func (c *HTTPClient) FetchRecords(ctx context.Context, datasetID string, limit int) ([]models.RawContact, error) {
	u := fmt.Sprintf("%s/v1/datasets/%s/records", c.baseURL, url.PathEscape(datasetID))
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch records status %d", ErrScraperAPIError, resp.StatusCode)
	}

	var payload struct {
		Records []models.RawContact `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}

	if payload.Records == nil {
		return []models.RawContact{}, nil
	}
	return payload.Records, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrRunTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrRunTimeout, err)
		}
	}

	return fmt.Errorf("%w: %v", ErrScraperUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

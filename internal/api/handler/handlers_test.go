package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/leadforge/leadforge/internal/api/middleware"
	"github.com/leadforge/leadforge/internal/pipeline"
	"github.com/leadforge/leadforge/internal/store"
	"github.com/leadforge/leadforge/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// --- stub store ---

type stubStore struct {
	icps    map[uuid.UUID]*models.ICP
	clients map[uuid.UUID]*models.Client
	jobs    map[uuid.UUID]*models.Job
	steps   []*models.JobStep

	createdJob *models.Job
	createdICP *models.ICP
	createdKey *models.APIKey

	leads      []*models.Lead
	leadTotal  int
	lastFilter store.LeadFilter

	apiKeys   []*models.APIKey
	revokeErr error
	pingErr   error
}

func newStubStore() *stubStore {
	return &stubStore{
		icps:    map[uuid.UUID]*models.ICP{},
		clients: map[uuid.UUID]*models.Client{},
		jobs:    map[uuid.UUID]*models.Job{},
	}
}

func (s *stubStore) Ping(_ context.Context) error { return s.pingErr }
func (s *stubStore) GetDefaultAccount(_ context.Context) (*models.Account, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) GetAccount(_ context.Context, _ uuid.UUID) (*models.Account, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) GetClient(_ context.Context, id uuid.UUID, _ uuid.UUID) (*models.Client, error) {
	if c, ok := s.clients[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}
func (s *stubStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return s.apiKeys, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.createdKey = key
	return nil
}
func (s *stubStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return s.apiKeys, nil
}
func (s *stubStore) RevokeAPIKey(_ context.Context, _ uuid.UUID, _ uuid.UUID) error {
	return s.revokeErr
}
func (s *stubStore) CreateICP(_ context.Context, icp *models.ICP) error {
	s.createdICP = icp
	return nil
}
func (s *stubStore) GetICP(_ context.Context, id uuid.UUID, _ uuid.UUID) (*models.ICP, error) {
	if icp, ok := s.icps[id]; ok {
		return icp, nil
	}
	return nil, store.ErrNotFound
}
func (s *stubStore) ListICPs(_ context.Context, _ uuid.UUID) ([]*models.ICP, error) {
	out := make([]*models.ICP, 0, len(s.icps))
	for _, icp := range s.icps {
		out = append(out, icp)
	}
	return out, nil
}
func (s *stubStore) CreateJob(_ context.Context, job *models.Job) error {
	s.createdJob = job
	s.jobs[job.ID] = job
	return nil
}
func (s *stubStore) GetJob(_ context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Job, error) {
	if j, ok := s.jobs[id]; ok && j.AccountID == accountID {
		return j, nil
	}
	return nil, store.ErrNotFound
}
func (s *stubStore) GetJobByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	if j, ok := s.jobs[id]; ok {
		return j, nil
	}
	return nil, store.ErrNotFound
}
func (s *stubStore) UpdateJobStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.JobUpdateOption) error {
	return nil
}
func (s *stubStore) UpdateJobProgress(_ context.Context, _ uuid.UUID, _ string, _ int) error {
	return nil
}
func (s *stubStore) SetJobExternalRefs(_ context.Context, _ uuid.UUID, _, _ string) error { return nil }
func (s *stubStore) SetJobResults(_ context.Context, _ uuid.UUID, _ int, _ map[string]int) error {
	return nil
}
func (s *stubStore) StartJobStep(_ context.Context, _ uuid.UUID, _ string) error { return nil }
func (s *stubStore) FinishJobStep(_ context.Context, _ uuid.UUID, _, _ string, _ *string) error {
	return nil
}
func (s *stubStore) ListJobSteps(_ context.Context, _ uuid.UUID) ([]*models.JobStep, error) {
	return s.steps, nil
}
func (s *stubStore) ExistingEmails(_ context.Context, _ uuid.UUID, _ *uuid.UUID) (map[string]struct{}, error) {
	return nil, nil
}
func (s *stubStore) ExistingDomainNamePairs(_ context.Context, _ uuid.UUID, _ *uuid.UUID) (map[string]struct{}, error) {
	return nil, nil
}
func (s *stubStore) UpsertLeads(_ context.Context, _ []*models.Lead) (int, error) { return 0, nil }
func (s *stubStore) ListLeads(_ context.Context, filter store.LeadFilter) ([]*models.Lead, int, error) {
	s.lastFilter = filter
	return s.leads, s.leadTotal, nil
}
func (s *stubStore) MarkLeadsExported(_ context.Context, _ uuid.UUID, _ []string) error { return nil }
func (s *stubStore) CreateVerificationRecord(_ context.Context, _ *models.VerificationRecord) error {
	return nil
}
func (s *stubStore) CreateExportAttempt(_ context.Context, _ *models.ExportAttempt) error {
	return nil
}

// --- stub cache ---

type stubCache struct {
	snapshots map[uuid.UUID][]byte
	pingErr   error
}

func newStubCache() *stubCache {
	return &stubCache{snapshots: map[uuid.UUID][]byte{}}
}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return c.pingErr }
func (c *stubCache) SetJobSnapshot(_ context.Context, jobID uuid.UUID, raw []byte, _ time.Duration) error {
	c.snapshots[jobID] = raw
	return nil
}
func (c *stubCache) GetJobSnapshot(_ context.Context, jobID uuid.UUID) ([]byte, bool, error) {
	raw, ok := c.snapshots[jobID]
	return raw, ok, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}
func (c *stubCache) Close() error { return nil }

// --- stub runner ---

type stubRunner struct {
	ran       chan uuid.UUID
	processed chan uuid.UUID
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		ran:       make(chan uuid.UUID, 1),
		processed: make(chan uuid.UUID, 1),
	}
}

func (r *stubRunner) Run(_ context.Context, jobID uuid.UUID) error {
	r.ran <- jobID
	return nil
}

func (r *stubRunner) Process(_ context.Context, jobID uuid.UUID) error {
	r.processed <- jobID
	return nil
}

func waitForCall(t *testing.T, ch chan uuid.UUID) uuid.UUID {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline phase was not invoked")
		return uuid.Nil
	}
}

// --- helpers ---

func authedRequest(method, target string, body any, accountID uuid.UUID) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r.WithContext(mw.SetAccountID(r.Context(), accountID))
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Data
}

func decodeErrCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Error.Code
}

// jobRouter mounts the job handlers under their real routes so chi URL
// params resolve.
func jobRouter(s store.Store, c *stubCache, runner PipelineRunner) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/v1/jobs", NewCreateJobHandler(s))
	r.Post("/api/v1/jobs/{jobID}/run", NewRunJobHandler(s, runner))
	r.Post("/api/v1/jobs/{jobID}/process", NewProcessJobHandler(s, runner))
	r.Get("/api/v1/jobs/{jobID}", NewPollJobHandler(s, c))
	return r
}

func seedICP(s *stubStore, accountID uuid.UUID) *models.ICP {
	icp := &models.ICP{ID: uuid.New(), AccountID: accountID, Name: "saas founders"}
	s.icps[icp.ID] = icp
	return icp
}

func seedJob(s *stubStore, accountID uuid.UUID, status string) *models.Job {
	job := &models.Job{
		ID:                 uuid.New(),
		AccountID:          accountID,
		Source:             "scraper",
		BatchSize:          50,
		RequestedLeadCount: 50,
		Status:             status,
	}
	s.jobs[job.ID] = job
	return job
}

// ========================================
// Create Job
// ========================================

func TestCreateJob_Defaults(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	icp := seedICP(ss, accountID)

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs",
		map[string]any{"icp_id": icp.ID}, accountID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	job := ss.createdJob
	if job == nil {
		t.Fatal("job was not created")
	}
	if job.RequestedLeadCount != 100 {
		t.Errorf("expected default lead count 100, got %d", job.RequestedLeadCount)
	}
	if job.BatchSize != 100 {
		t.Errorf("expected batch size to default to lead count, got %d", job.BatchSize)
	}
	if job.Source != "scraper" {
		t.Errorf("expected source scraper, got %q", job.Source)
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("expected queued status, got %q", job.Status)
	}
}

func TestCreateJob_MissingICP(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs",
		map[string]any{}, accountID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeErrCode(t, rec); code != "INVALID_REQUEST" {
		t.Errorf("unexpected error code %q", code)
	}
}

func TestCreateJob_UnknownICP(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs",
		map[string]any{"icp_id": uuid.New()}, accountID))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateJob_UnknownClient(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	icp := seedICP(ss, accountID)

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs",
		map[string]any{"icp_id": icp.ID, "client_id": uuid.New()}, accountID))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateJob_ClampsLeadCount(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	icp := seedICP(ss, accountID)

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs",
		map[string]any{"icp_id": icp.ID, "requested_lead_count": 50000}, accountID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if ss.createdJob.RequestedLeadCount != maxLeadCount {
		t.Errorf("expected lead count capped at %d, got %d", maxLeadCount, ss.createdJob.RequestedLeadCount)
	}
}

// ========================================
// Run / Process
// ========================================

func TestRunJob_Accepted(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	job := seedJob(ss, accountID, models.JobStatusQueued)
	runner := newStubRunner()

	r := jobRouter(ss, newStubCache(), runner)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/run", nil, accountID))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := waitForCall(t, runner.ran); got != job.ID {
		t.Errorf("runner invoked with wrong job id: %s", got)
	}
}

func TestRunJob_NotFound(t *testing.T) {
	ss := newStubStore()

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs/"+uuid.NewString()+"/run", nil, uuid.New()))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRunJob_OtherAccountHidden(t *testing.T) {
	ss := newStubStore()
	job := seedJob(ss, uuid.New(), models.JobStatusQueued)

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/run", nil, uuid.New()))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other account's job, got %d", rec.Code)
	}
}

func TestRunJob_FinishedConflict(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	job := seedJob(ss, accountID, models.JobStatusFailed)

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/run", nil, accountID))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeErrCode(t, rec); code != "JOB_FINISHED" {
		t.Errorf("unexpected error code %q", code)
	}
}

func TestRunJob_SucceededConflict(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	job := seedJob(ss, accountID, models.JobStatusSucceeded)

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/run", nil, accountID))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestProcessJob_Accepted(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	job := seedJob(ss, accountID, models.JobStatusRunning)
	runner := newStubRunner()

	r := jobRouter(ss, newStubCache(), runner)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/process", nil, accountID))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := waitForCall(t, runner.processed); got != job.ID {
		t.Errorf("runner invoked with wrong job id: %s", got)
	}
}

func TestProcessJob_SucceededIsIdempotent(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	job := seedJob(ss, accountID, models.JobStatusSucceeded)
	runner := newStubRunner()

	r := jobRouter(ss, newStubCache(), runner)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/process", nil, accountID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for succeeded job, got %d", rec.Code)
	}
	data := decodeData(t, rec)
	if data["status"] != models.JobStatusSucceeded {
		t.Errorf("expected succeeded job in response, got %v", data["status"])
	}
	select {
	case <-runner.processed:
		t.Error("pipeline should not run for a succeeded job")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProcessJob_FailedConflict(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	job := seedJob(ss, accountID, models.JobStatusFailed)

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/jobs/"+job.ID.String()+"/process", nil, accountID))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

// ========================================
// Poll
// ========================================

func TestPollJob_FromDatabase(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	job := seedJob(ss, accountID, models.JobStatusRunning)
	job.ProgressStep = "verify_smtp"
	job.ProgressPercent = 50

	r := jobRouter(ss, newStubCache(), newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/jobs/"+job.ID.String(), nil, accountID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeData(t, rec)
	if data["progress_step"] != "verify_smtp" {
		t.Errorf("unexpected progress step: %v", data["progress_step"])
	}
	if data["progress_percent"] != float64(50) {
		t.Errorf("unexpected progress percent: %v", data["progress_percent"])
	}
}

func TestPollJob_SnapshotFastPath(t *testing.T) {
	ss := newStubStore()
	sc := newStubCache()
	accountID := uuid.New()
	jobID := uuid.New()

	// Snapshot exists but there is no database row; a cache hit must not
	// touch the store.
	raw, _ := json.Marshal(pipeline.Snapshot{
		JobID:           jobID,
		AccountID:       accountID,
		Status:          models.JobStatusRunning,
		ProgressStep:    "dedupe",
		ProgressPercent: 60,
	})
	sc.snapshots[jobID] = raw

	r := jobRouter(ss, sc, newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/jobs/"+jobID.String(), nil, accountID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from snapshot, got %d", rec.Code)
	}
	data := decodeData(t, rec)
	if data["progress_step"] != "dedupe" {
		t.Errorf("unexpected progress step: %v", data["progress_step"])
	}
}

func TestPollJob_SnapshotWrongAccountFallsBack(t *testing.T) {
	ss := newStubStore()
	sc := newStubCache()
	accountID := uuid.New()
	jobID := uuid.New()

	raw, _ := json.Marshal(pipeline.Snapshot{
		JobID:     jobID,
		AccountID: uuid.New(),
		Status:    models.JobStatusRunning,
	})
	sc.snapshots[jobID] = raw

	r := jobRouter(ss, sc, newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/jobs/"+jobID.String(), nil, accountID))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after fallback, got %d", rec.Code)
	}
}

func TestPollJob_IncludeStepsSkipsCache(t *testing.T) {
	ss := newStubStore()
	sc := newStubCache()
	accountID := uuid.New()
	job := seedJob(ss, accountID, models.JobStatusSucceeded)
	ss.steps = []*models.JobStep{
		{ID: uuid.New(), JobID: job.ID, Stage: "scrape", Status: models.JobStatusSucceeded},
		{ID: uuid.New(), JobID: job.ID, Stage: "verify_mx", Status: models.JobStatusSucceeded},
	}

	raw, _ := json.Marshal(pipeline.Snapshot{JobID: job.ID, AccountID: accountID, Status: models.JobStatusRunning})
	sc.snapshots[job.ID] = raw

	r := jobRouter(ss, sc, newStubRunner())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodGet,
		"/api/v1/jobs/"+job.ID.String()+"?include_steps=true", nil, accountID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	data := decodeData(t, rec)
	if data["status"] != models.JobStatusSucceeded {
		t.Errorf("expected database status, got %v", data["status"])
	}
	steps := data["steps"].([]any)
	if len(steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(steps))
	}
}

// ========================================
// Leads
// ========================================

func TestListLeads_Defaults(t *testing.T) {
	ss := newStubStore()
	ss.leads = []*models.Lead{{ID: uuid.New(), EmailNormalized: "ann@acme.com"}}
	ss.leadTotal = 1
	accountID := uuid.New()

	h := NewListLeadsHandler(ss)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/leads", nil, accountID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ss.lastFilter.Page != 1 || ss.lastFilter.Limit != 20 {
		t.Errorf("unexpected defaults: page=%d limit=%d", ss.lastFilter.Page, ss.lastFilter.Limit)
	}
	if ss.lastFilter.AccountID != accountID {
		t.Error("filter not scoped to account")
	}
}

func TestListLeads_FilterParsing(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()
	jobID := uuid.New()

	h := NewListLeadsHandler(ss)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodGet,
		"/api/v1/leads?verification_status=valid&job_id="+jobID.String()+"&page=3&limit=500",
		nil, accountID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ss.lastFilter.VerificationStatus != "valid" {
		t.Errorf("unexpected verification_status %q", ss.lastFilter.VerificationStatus)
	}
	if ss.lastFilter.JobID == nil || *ss.lastFilter.JobID != jobID {
		t.Error("job_id not parsed")
	}
	if ss.lastFilter.Page != 3 {
		t.Errorf("unexpected page %d", ss.lastFilter.Page)
	}
	if ss.lastFilter.Limit != maxPageLimit {
		t.Errorf("expected limit capped at %d, got %d", maxPageLimit, ss.lastFilter.Limit)
	}
}

func TestListLeads_InvalidClientID(t *testing.T) {
	h := NewListLeadsHandler(newStubStore())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/leads?client_id=nope", nil, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// ========================================
// ICPs
// ========================================

func TestCreateICP_Success(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()

	h := NewCreateICPHandler(ss)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/icps", map[string]any{
		"name":       "fintech CTOs",
		"job_titles": []string{"CTO"},
		"country":    "Germany",
	}, accountID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	icp := ss.createdICP
	if icp.Name != "fintech CTOs" || icp.Country != "Germany" {
		t.Errorf("unexpected ICP: %+v", icp)
	}
	if icp.Industries == nil || icp.Technologies == nil {
		t.Error("omitted slices should default to empty, not nil")
	}
}

func TestCreateICP_NameRequired(t *testing.T) {
	h := NewCreateICPHandler(newStubStore())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/icps", map[string]any{}, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateICP_CountryCityConflict(t *testing.T) {
	h := NewCreateICPHandler(newStubStore())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/icps", map[string]any{
		"name":    "x",
		"country": "Germany",
		"city":    "Berlin",
	}, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateICP_HeadcountOrder(t *testing.T) {
	h := NewCreateICPHandler(newStubStore())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/icps", map[string]any{
		"name":          "x",
		"headcount_min": 500,
		"headcount_max": 50,
	}, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// ========================================
// API Keys
// ========================================

func TestCreateKey_RawKeyShownOnce(t *testing.T) {
	ss := newStubStore()
	accountID := uuid.New()

	h := NewCreateKeyHandler(ss)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/admin/keys",
		map[string]any{"name": "ci"}, accountID))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	rawKey := data["key"].(string)
	if !strings.HasPrefix(rawKey, apiKeyPrefix) {
		t.Errorf("raw key missing prefix: %q", rawKey)
	}

	stored := ss.createdKey
	if stored.KeyHash == rawKey {
		t.Error("raw key must not be stored")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.KeyHash), []byte(rawKey)); err != nil {
		t.Errorf("stored hash does not match raw key: %v", err)
	}
	if stored.KeyPrefix != rawKey[:keyPrefixLen] {
		t.Errorf("unexpected key prefix %q", stored.KeyPrefix)
	}
	if len(stored.Scopes) != 1 || stored.Scopes[0] != "read" {
		t.Errorf("expected default read scope, got %v", stored.Scopes)
	}
}

func TestCreateKey_NameRequired(t *testing.T) {
	h := NewCreateKeyHandler(newStubStore())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/admin/keys", map[string]any{}, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRevokeKey(t *testing.T) {
	ss := newStubStore()
	r := chi.NewRouter()
	r.Delete("/api/v1/admin/keys/{keyID}", NewRevokeKeyHandler(ss))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/admin/keys/"+uuid.NewString(), nil, uuid.New()))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	ss.revokeErr = store.ErrNotFound
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/v1/admin/keys/"+uuid.NewString(), nil, uuid.New()))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

// ========================================
// Health
// ========================================

func TestHealth_OK(t *testing.T) {
	h := NewHealthHandler(newStubStore(), newStubCache())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealth_Degraded(t *testing.T) {
	ss := newStubStore()
	ss.pingErr = context.DeadlineExceeded

	h := NewHealthHandler(ss, newStubCache())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if code := decodeErrCode(t, rec); code != "DEGRADED" {
		t.Errorf("unexpected error code %q", code)
	}
}

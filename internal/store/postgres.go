package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leadforge/leadforge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Accounts & Clients ---

func (s *PostgresStore) GetDefaultAccount(ctx context.Context) (*models.Account, error) {
	var a models.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, outreach_api_key, created_at, updated_at FROM accounts WHERE name = 'default' LIMIT 1`,
	).Scan(&a.ID, &a.Name, &a.OutreachAPIKey, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default account: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, outreach_api_key, created_at, updated_at FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.OutreachAPIKey, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) GetClient(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Client, error) {
	var c models.Client
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, name, outreach_api_key, created_at, updated_at
		 FROM clients WHERE id = $1 AND account_id = $2`, id, accountID,
	).Scan(&c.ID, &c.AccountID, &c.Name, &c.OutreachAPIKey, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.AccountID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, account_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.AccountID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, accountID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE account_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.AccountID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, accountID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND account_id = $2 AND deleted_at IS NULL`, id, accountID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- ICPs ---

func (s *PostgresStore) CreateICP(ctx context.Context, icp *models.ICP) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO icps (id, account_id, name, job_titles, industries, keywords, country, city,
		                   headcount_min, headcount_max, funding_stage, technologies, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		icp.ID, icp.AccountID, icp.Name, icp.JobTitles, icp.Industries, icp.Keywords,
		icp.Country, icp.City, icp.HeadcountMin, icp.HeadcountMax, icp.FundingStage,
		icp.Technologies, icp.CreatedAt, icp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create icp: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetICP(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.ICP, error) {
	var p models.ICP
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, name, job_titles, industries, keywords, country, city,
		        headcount_min, headcount_max, funding_stage, technologies, created_at, updated_at
		 FROM icps WHERE id = $1 AND account_id = $2`, id, accountID,
	).Scan(&p.ID, &p.AccountID, &p.Name, &p.JobTitles, &p.Industries, &p.Keywords,
		&p.Country, &p.City, &p.HeadcountMin, &p.HeadcountMax, &p.FundingStage,
		&p.Technologies, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get icp: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListICPs(ctx context.Context, accountID uuid.UUID) ([]*models.ICP, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, name, job_titles, industries, keywords, country, city,
		        headcount_min, headcount_max, funding_stage, technologies, created_at, updated_at
		 FROM icps WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list icps: %w", err)
	}
	defer rows.Close()

	var icps []*models.ICP
	for rows.Next() {
		var p models.ICP
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name, &p.JobTitles, &p.Industries, &p.Keywords,
			&p.Country, &p.City, &p.HeadcountMin, &p.HeadcountMax, &p.FundingStage,
			&p.Technologies, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan icp: %w", err)
		}
		icps = append(icps, &p)
	}
	return icps, rows.Err()
}

// --- Jobs ---

const jobColumns = `id, account_id, client_id, icp_id, campaign_id, source, batch_size,
	requested_lead_count, status, progress_step, progress_percent, error_message,
	external_run_id, external_dataset_id, actual_lead_count, verification_breakdown,
	finished_at, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.AccountID, &j.ClientID, &j.ICPID, &j.CampaignID, &j.Source,
		&j.BatchSize, &j.RequestedLeadCount, &j.Status, &j.ProgressStep, &j.ProgressPercent,
		&j.ErrorMessage, &j.ExternalRunID, &j.ExternalDatasetID, &j.ActualLeadCount,
		&j.VerificationBreakdown, &j.FinishedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, account_id, client_id, icp_id, campaign_id, source, batch_size,
		                   requested_lead_count, status, progress_step, progress_percent,
		                   actual_lead_count, verification_breakdown, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		job.ID, job.AccountID, job.ClientID, job.ICPID, job.CampaignID, job.Source,
		job.BatchSize, job.RequestedLeadCount, job.Status, job.ProgressStep,
		job.ProgressPercent, job.ActualLeadCount, job.VerificationBreakdown,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND account_id = $2`, id, accountID)
	return scanJob(row)
}

func (s *PostgresStore) GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	return scanJob(row)
}

// Job status only moves forward. A transition to the current status is a
// no-op so re-entrant callers stay idempotent.
var validJobTransitions = map[string][]string{
	models.JobStatusQueued:  {models.JobStatusRunning, models.JobStatusFailed},
	models.JobStatusRunning: {models.JobStatusSucceeded, models.JobStatusFailed},
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	if currentStatus == status {
		return nil
	}

	allowed := validJobTransitions[currentStatus]
	valid := false
	for _, a := range allowed {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.JobStatusSucceeded || status == models.JobStatusFailed {
		query += fmt.Sprintf(", finished_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += " WHERE id = $1"

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, step string, percent int) error {
	// progress_percent is monotonic within a job; GREATEST guards against a
	// late writer moving the needle backwards.
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET progress_step = $2, progress_percent = GREATEST(progress_percent, $3), updated_at = NOW()
		 WHERE id = $1`, id, step, percent)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetJobExternalRefs(ctx context.Context, id uuid.UUID, runID, datasetID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET external_run_id = $2, external_dataset_id = NULLIF($3, ''), updated_at = NOW() WHERE id = $1`,
		id, runID, datasetID)
	if err != nil {
		return fmt.Errorf("set job external refs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetJobResults(ctx context.Context, id uuid.UUID, actualLeadCount int, breakdown map[string]int) error {
	if breakdown == nil {
		breakdown = map[string]int{}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET actual_lead_count = $2, verification_breakdown = $3, updated_at = NOW() WHERE id = $1`,
		id, actualLeadCount, breakdown)
	if err != nil {
		return fmt.Errorf("set job results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Job Steps ---

// StartJobStep moves the (job, stage) step to running, creating the row on
// first use. Re-starting a terminal step is a retry and is allowed.
func (s *PostgresStore) StartJobStep(ctx context.Context, jobID uuid.UUID, stage string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_steps (id, job_id, stage, status, started_at, created_at, updated_at)
		 VALUES ($1, $2, $3, 'running', NOW(), NOW(), NOW())
		 ON CONFLICT (job_id, stage) DO UPDATE SET
		   status = 'running',
		   started_at = NOW(),
		   finished_at = NULL,
		   updated_at = NOW()`,
		uuid.New(), jobID, stage)
	if err != nil {
		return fmt.Errorf("start job step %s: %w", stage, err)
	}
	return nil
}

// FinishJobStep terminates a running step. Status must be succeeded or failed.
func (s *PostgresStore) FinishJobStep(ctx context.Context, jobID uuid.UUID, stage, status string, logs *string) error {
	if status != models.JobStatusSucceeded && status != models.JobStatusFailed {
		return fmt.Errorf("%w: step %s -> %s", ErrInvalidTransition, stage, status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_steps SET status = $3, logs = COALESCE($4, logs), finished_at = NOW(), updated_at = NOW()
		 WHERE job_id = $1 AND stage = $2`, jobID, stage, status, logs)
	if err != nil {
		return fmt.Errorf("finish job step %s: %w", stage, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListJobSteps(ctx context.Context, jobID uuid.UUID) ([]*models.JobStep, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, stage, status, logs, started_at, finished_at, created_at, updated_at
		 FROM job_steps WHERE job_id = $1 ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.JobStep
	for rows.Next() {
		var st models.JobStep
		if err := rows.Scan(&st.ID, &st.JobID, &st.Stage, &st.Status, &st.Logs,
			&st.StartedAt, &st.FinishedAt, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job step: %w", err)
		}
		steps = append(steps, &st)
	}
	return steps, rows.Err()
}

// --- Leads ---

func (s *PostgresStore) ExistingEmails(ctx context.Context, accountID uuid.UUID, clientID *uuid.UUID) (map[string]struct{}, error) {
	query := `SELECT email_normalized FROM leads WHERE account_id = $1`
	args := []any{accountID}
	if clientID != nil {
		query += ` AND client_id = $2`
		args = append(args, *clientID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("existing emails: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		set[email] = struct{}{}
	}
	return set, rows.Err()
}

func (s *PostgresStore) ExistingDomainNamePairs(ctx context.Context, accountID uuid.UUID, clientID *uuid.UUID) (map[string]struct{}, error) {
	query := `SELECT domain_normalized, first_name, last_name FROM leads
	          WHERE account_id = $1 AND domain_normalized <> ''`
	args := []any{accountID}
	if clientID != nil {
		query += ` AND client_id = $2`
		args = append(args, *clientID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("existing domain-name pairs: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var domain, first, last string
		if err := rows.Scan(&domain, &first, &last); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		name := strings.TrimSpace(strings.ToLower(strings.TrimSpace(first) + " " + strings.TrimSpace(last)))
		if name == "" {
			continue
		}
		set[domain+":"+name] = struct{}{}
	}
	return set, rows.Err()
}

// UpsertLeads writes the batch keyed on (account_id, email_normalized).
// Concurrent jobs for the same account racing on one email resolve
// last-write-wins via the conflict clause. Returns the number written.
func (s *PostgresStore) UpsertLeads(ctx context.Context, leads []*models.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert leads: %w", err)
	}
	defer tx.Rollback(ctx)

	count := 0
	for _, l := range leads {
		_, err := tx.Exec(ctx,
			`INSERT INTO leads (id, account_id, client_id, job_id, icp_id, email, email_normalized,
			                    first_name, last_name, title, company, domain, domain_normalized,
			                    linkedin_url, location, company_size, revenue_estimate, tech_stack,
			                    verification_status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
			 ON CONFLICT (account_id, email_normalized) DO UPDATE SET
			   client_id = EXCLUDED.client_id,
			   job_id = EXCLUDED.job_id,
			   icp_id = EXCLUDED.icp_id,
			   first_name = EXCLUDED.first_name,
			   last_name = EXCLUDED.last_name,
			   title = EXCLUDED.title,
			   company = EXCLUDED.company,
			   domain = EXCLUDED.domain,
			   domain_normalized = EXCLUDED.domain_normalized,
			   linkedin_url = EXCLUDED.linkedin_url,
			   location = EXCLUDED.location,
			   company_size = EXCLUDED.company_size,
			   revenue_estimate = EXCLUDED.revenue_estimate,
			   tech_stack = EXCLUDED.tech_stack,
			   verification_status = EXCLUDED.verification_status,
			   updated_at = NOW()`,
			l.ID, l.AccountID, l.ClientID, l.JobID, l.ICPID, l.Email, l.EmailNormalized,
			l.FirstName, l.LastName, l.Title, l.Company, l.Domain, l.DomainNormalized,
			l.LinkedInURL, l.Location, l.CompanySize, l.RevenueEstimate, l.TechStack,
			l.VerificationStatus, l.CreatedAt, l.UpdatedAt)
		if err != nil {
			return 0, fmt.Errorf("upsert lead %s: %w", l.EmailNormalized, err)
		}
		count++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert leads: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]*models.Lead, int, error) {
	conditions := []string{"account_id = $1"}
	args := []any{filter.AccountID}
	argIdx := 2

	if filter.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argIdx))
		args = append(args, *filter.ClientID)
		argIdx++
	}
	if filter.JobID != nil {
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", argIdx))
		args = append(args, *filter.JobID)
		argIdx++
	}
	if filter.VerificationStatus != "" {
		conditions = append(conditions, fmt.Sprintf("verification_status = $%d", argIdx))
		args = append(args, filter.VerificationStatus)
		argIdx++
	}
	if filter.ExportStatus != "" {
		conditions = append(conditions, fmt.Sprintf("export_status = $%d", argIdx))
		args = append(args, filter.ExportStatus)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM leads WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT id, account_id, client_id, job_id, icp_id, email, email_normalized,
		        first_name, last_name, title, company, domain, domain_normalized,
		        linkedin_url, location, company_size, revenue_estimate, tech_stack,
		        verification_status, export_status, created_at, updated_at
		 FROM leads WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var leads []*models.Lead
	for rows.Next() {
		var l models.Lead
		if err := rows.Scan(&l.ID, &l.AccountID, &l.ClientID, &l.JobID, &l.ICPID, &l.Email,
			&l.EmailNormalized, &l.FirstName, &l.LastName, &l.Title, &l.Company, &l.Domain,
			&l.DomainNormalized, &l.LinkedInURL, &l.Location, &l.CompanySize, &l.RevenueEstimate,
			&l.TechStack, &l.VerificationStatus, &l.ExportStatus, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, &l)
	}
	return leads, total, rows.Err()
}

func (s *PostgresStore) MarkLeadsExported(ctx context.Context, accountID uuid.UUID, emails []string) error {
	if len(emails) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE leads SET export_status = $3, updated_at = NOW()
		 WHERE account_id = $1 AND email_normalized = ANY($2)`,
		accountID, emails, models.ExportStatusExported)
	if err != nil {
		return fmt.Errorf("mark leads exported: %w", err)
	}
	return nil
}

// --- Audit rows ---

func (s *PostgresStore) CreateVerificationRecord(ctx context.Context, rec *models.VerificationRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_results (id, account_id, job_id, email, status, mx_valid, smtp_valid, catch_all, logs, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.AccountID, rec.JobID, rec.Email, rec.Status, rec.MXValid,
		rec.SMTPValid, rec.CatchAll, rec.Logs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("create verification record: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateExportAttempt(ctx context.Context, att *models.ExportAttempt) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO export_attempts (id, account_id, job_id, campaign_id, success, leads_sent, leads_skipped, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		att.ID, att.AccountID, att.JobID, att.CampaignID, att.Success,
		att.LeadsSent, att.LeadsSkipped, att.ErrorMessage, att.CreatedAt)
	if err != nil {
		return fmt.Errorf("create export attempt: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

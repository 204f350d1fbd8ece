// Package pipeline runs a job through its stages: scrape, verification,
// dedupe, classification, enrichment, storage, notification and export.
// Every stage is bracketed by a persisted step row so a crash mid-run leaves
// an accurate trail, and progress only ever moves forward.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leadforge/leadforge/internal/cache"
	"github.com/leadforge/leadforge/internal/dedupe"
	"github.com/leadforge/leadforge/internal/enrich"
	"github.com/leadforge/leadforge/internal/metrics"
	"github.com/leadforge/leadforge/internal/outreach"
	"github.com/leadforge/leadforge/internal/scraper"
	"github.com/leadforge/leadforge/internal/store"
	"github.com/leadforge/leadforge/pkg/models"
	"github.com/leadforge/leadforge/pkg/scrapefilter"
)

var (
	// ErrJobFinished is returned when an operation targets a job that has
	// already reached a terminal status.
	ErrJobFinished = errors.New("job already finished")
	// ErrScrapeNotRun is returned by Process when the job has no scrape run
	// to draw records from.
	ErrScrapeNotRun = errors.New("scrape has not been run for this job")
)

// scrapePollInterval paces the wait for a scrape run started by a concurrent
// /run request that has not yet recorded its dataset.
const scrapePollInterval = 2 * time.Second

// progressPercent fixes each stage's completion percentage. The values are
// part of the API contract with pollers and must stay monotonic in stage
// order.
var progressPercent = map[string]int{
	models.StageScrape:     35,
	models.StageVerifyMX:   42,
	models.StageVerifySMTP: 50,
	models.StageDedupe:     60,
	models.StageClassify:   70,
	models.StageEnrich:     80,
	models.StageStore:      85,
	models.StageNotify:     90,
	models.StageExport:     100,
}

// BatchVerifier is the slice of the verifier the pipeline needs.
type BatchVerifier interface {
	ResolveMX(ctx context.Context, domain string) (string, error)
	VerifyBatch(ctx context.Context, emails []string) []*models.VerificationResult
}

// Service orchestrates pipeline runs.
type Service struct {
	store        store.Store
	cache        cache.Cache
	scraper      scraper.Client
	outreach     outreach.Client
	verifier     BatchVerifier
	metrics      *metrics.Metrics
	logger       *slog.Logger
	defaultKey   string
	pollInterval time.Duration
}

// New creates a pipeline service. defaultOutreachKey is the process-wide
// outreach credential used when neither the client nor the account carries
// its own.
func New(st store.Store, c cache.Cache, sc scraper.Client, oc outreach.Client,
	v BatchVerifier, m *metrics.Metrics, logger *slog.Logger, defaultOutreachKey string) *Service {
	return &Service{
		store:        st,
		cache:        c,
		scraper:      sc,
		outreach:     oc,
		verifier:     v,
		metrics:      m,
		logger:       logger,
		defaultKey:   defaultOutreachKey,
		pollInterval: scrapePollInterval,
	}
}

// Run executes the scrape stage: it builds the filter from the job's ICP,
// submits a provider run, records the run id, then blocks until the provider
// finishes and records the dataset identifier. A scrape failure fails the
// job.
func (s *Service) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return fmt.Errorf("%w: job %s is %s", ErrJobFinished, job.ID, job.Status)
	}

	if err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		return err
	}
	job.Status = models.JobStatusRunning

	err = s.runStage(ctx, job, models.StageScrape, func(ctx context.Context) (string, error) {
		if job.ICPID == nil {
			return "", errors.New("job has no ICP to scrape against")
		}
		icp, err := s.store.GetICP(ctx, *job.ICPID, job.AccountID)
		if err != nil {
			return "", fmt.Errorf("loading ICP: %w", err)
		}

		req, err := scrapefilter.Build(icp, job.RequestedLeadCount)
		if err != nil {
			return "", fmt.Errorf("building scrape filter: %w", err)
		}

		runID, err := s.scraper.SubmitRun(ctx, req)
		if err != nil {
			return "", fmt.Errorf("starting scrape run: %w", err)
		}

		// The run id must be durable before the blocking wait so a Process
		// call arriving mid-scrape can find the run and wait on it.
		if err := s.store.SetJobExternalRefs(ctx, job.ID, runID, ""); err != nil {
			return "", fmt.Errorf("recording run id: %w", err)
		}
		job.ExternalRunID = &runID

		run, err := s.scraper.WaitForRun(ctx, runID)
		if err != nil {
			return "", fmt.Errorf("scrape run: %w", err)
		}
		if err := s.store.SetJobExternalRefs(ctx, job.ID, runID, run.DatasetID); err != nil {
			return "", fmt.Errorf("recording dataset: %w", err)
		}
		job.ExternalDatasetID = &run.DatasetID
		return fmt.Sprintf("run %s completed, dataset %s", runID, run.DatasetID), nil
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	s.logger.Info("scrape completed", "job_id", job.ID, "dataset_id", *job.ExternalDatasetID)
	return nil
}

// Process executes the remaining stages over the scraped dataset. Calling it
// on a succeeded job is a no-op; calling it while the scrape is still in
// flight waits for the run to finish without disturbing the job; calling it
// before any scrape was started returns ErrScrapeNotRun and leaves the job
// as it was. Any stage failure before export fails the job; an export
// failure is audited but does not.
func (s *Service) Process(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case models.JobStatusSucceeded:
		return nil
	case models.JobStatusFailed:
		return fmt.Errorf("%w: job %s is failed", ErrJobFinished, job.ID)
	}

	datasetID, err := s.awaitScrape(ctx, job)
	if err != nil {
		// Only a failed scrape run fails the job. Everything else (no run
		// started, a concurrent run still in flight, a dying context) leaves
		// the job untouched for a later call.
		if errors.Is(err, scraper.ErrRunFailed) {
			return s.failJob(ctx, job, err)
		}
		return err
	}

	if err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		return err
	}
	job.Status = models.JobStatusRunning

	limit := job.RequestedLeadCount
	if limit <= 0 {
		limit = job.BatchSize
	}

	// verify_mx: load the dataset and resolve mail exchangers for every
	// unique domain, warming the cache the SMTP stage reads from.
	var records []models.RawContact
	err = s.runStage(ctx, job, models.StageVerifyMX, func(ctx context.Context) (string, error) {
		records, err = s.scraper.FetchRecords(ctx, datasetID, limit)
		if err != nil {
			return "", fmt.Errorf("fetching records: %w", err)
		}
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}

		domains := make(map[string]struct{})
		for _, raw := range records {
			if d := dedupe.NormalizeDomain(raw.Domain, raw.Email); d != "" {
				domains[d] = struct{}{}
			}
		}

		resolved, missing := 0, 0
		for domain := range domains {
			host, err := s.verifier.ResolveMX(ctx, domain)
			if err != nil || host == "" {
				missing++
				continue
			}
			resolved++
		}
		return fmt.Sprintf("%d records, %d domains with MX, %d without", len(records), resolved, missing), nil
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	// verify_smtp: probe every unique address and persist the protocol trace.
	results := make(map[string]*models.VerificationResult)
	err = s.runStage(ctx, job, models.StageVerifySMTP, func(ctx context.Context) (string, error) {
		var emails []string
		for _, raw := range records {
			email := dedupe.NormalizeEmail(raw.Email)
			if email == "" {
				continue
			}
			if _, seen := results[email]; seen {
				continue
			}
			results[email] = nil
			emails = append(emails, email)
		}

		for _, res := range s.verifier.VerifyBatch(ctx, emails) {
			results[dedupe.NormalizeEmail(res.Email)] = res
			s.metrics.VerificationsTotal.WithLabelValues(res.Status).Inc()

			rec := &models.VerificationRecord{
				ID:        uuid.New(),
				AccountID: job.AccountID,
				JobID:     job.ID,
				Email:     res.Email,
				Status:    res.Status,
				MXValid:   res.MXValid,
				SMTPValid: res.SMTPValid,
				CatchAll:  res.CatchAll,
				Logs:      res.Logs,
				CreatedAt: time.Now().UTC(),
			}
			if err := s.store.CreateVerificationRecord(ctx, rec); err != nil {
				return "", fmt.Errorf("persisting verification for %s: %w", res.Email, err)
			}
		}
		return fmt.Sprintf("%d addresses probed", len(emails)), nil
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	// dedupe: normalize raw records into leads and drop everything already
	// known to the account, or repeated within the batch.
	var batch []*models.Lead
	err = s.runStage(ctx, job, models.StageDedupe, func(ctx context.Context) (string, error) {
		leads := make([]*models.Lead, 0, len(records))
		unusable := 0
		for _, raw := range records {
			lead, err := enrich.Normalize(raw, job.AccountID)
			if err != nil {
				unusable++
				continue
			}
			leads = append(leads, lead)
		}

		existingEmails, err := s.store.ExistingEmails(ctx, job.AccountID, job.ClientID)
		if err != nil {
			return "", fmt.Errorf("loading known emails: %w", err)
		}
		existingPairs, err := s.store.ExistingDomainNamePairs(ctx, job.AccountID, job.ClientID)
		if err != nil {
			return "", fmt.Errorf("loading known domain/name pairs: %w", err)
		}

		batch = dedupe.Dedupe(leads, existingEmails, existingPairs)
		return fmt.Sprintf("%d scraped, %d unusable, %d new after dedupe", len(records), unusable, len(batch)), nil
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	// classify: attach each lead's verification outcome and tally the
	// breakdown. Invalid addresses stay in the batch; export filters on
	// status later, so the stored record keeps its classification.
	breakdown := make(map[string]int)
	err = s.runStage(ctx, job, models.StageClassify, func(ctx context.Context) (string, error) {
		for _, lead := range batch {
			status := models.VerificationRisky
			if res := results[lead.EmailNormalized]; res != nil {
				status = res.Status
			}
			lead.VerificationStatus = status
			breakdown[status]++
		}
		return fmt.Sprintf("%d classified, %d invalid", len(batch), breakdown[models.VerificationInvalid]), nil
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	// enrich: copy auxiliary attributes from the raw records.
	err = s.runStage(ctx, job, models.StageEnrich, func(ctx context.Context) (string, error) {
		rawByEmail := make(map[string]models.RawContact, len(records))
		for _, raw := range records {
			email := dedupe.NormalizeEmail(raw.Email)
			if email == "" {
				continue
			}
			if _, seen := rawByEmail[email]; !seen {
				rawByEmail[email] = raw
			}
		}
		for _, lead := range batch {
			if raw, ok := rawByEmail[lead.EmailNormalized]; ok {
				enrich.Enrich(lead, raw)
			} else if lead.TechStack == nil {
				lead.TechStack = []string{}
			}
		}
		return "", nil
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	// store: upsert the batch and record the job's results.
	err = s.runStage(ctx, job, models.StageStore, func(ctx context.Context) (string, error) {
		now := time.Now().UTC()
		for _, lead := range batch {
			jobID := job.ID
			lead.JobID = &jobID
			lead.ClientID = job.ClientID
			lead.ICPID = job.ICPID
			lead.CreatedAt = now
			lead.UpdatedAt = now
		}

		stored, err := s.store.UpsertLeads(ctx, batch)
		if err != nil {
			return "", fmt.Errorf("storing leads: %w", err)
		}
		if err := s.store.SetJobResults(ctx, job.ID, stored, breakdown); err != nil {
			return "", fmt.Errorf("recording job results: %w", err)
		}
		job.ActualLeadCount = stored
		job.VerificationBreakdown = breakdown
		s.metrics.LeadsStored.Add(float64(stored))
		return fmt.Sprintf("%d leads stored", stored), nil
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	// notify: results are durable at this point; refresh the poll snapshot
	// and announce.
	err = s.runStage(ctx, job, models.StageNotify, func(ctx context.Context) (string, error) {
		s.logger.Info("job results ready",
			"job_id", job.ID,
			"lead_count", job.ActualLeadCount,
			"breakdown", breakdown)
		return "", nil
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	// export: best effort. Stored leads stay exportable, so a failed push is
	// audited in export_attempts rather than failing the job.
	err = s.runStage(ctx, job, models.StageExport, func(ctx context.Context) (string, error) {
		return s.exportLeads(ctx, job, batch), nil
	})
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	if err := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusSucceeded); err != nil {
		return err
	}
	job.Status = models.JobStatusSucceeded
	s.writeSnapshot(ctx, SnapshotFromJob(job))
	s.metrics.JobsTotal.WithLabelValues("succeeded").Inc()
	s.logger.Info("job succeeded", "job_id", job.ID, "lead_count", job.ActualLeadCount)
	return nil
}

// awaitScrape returns the job's dataset identifier, waiting out a scrape run
// that a concurrent /run request has started but not yet finished. It never
// mutates job status: ErrScrapeNotRun means no scrape was ever started and
// the caller leaves the job as it found it.
func (s *Service) awaitScrape(ctx context.Context, job *models.Job) (string, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if job.ExternalDatasetID != nil && *job.ExternalDatasetID != "" {
			return *job.ExternalDatasetID, nil
		}

		if job.ExternalRunID != nil && *job.ExternalRunID != "" {
			runID := *job.ExternalRunID
			state, err := s.scraper.RunStatus(ctx, runID)
			if err != nil {
				return "", err
			}
			switch state.Status {
			case scraper.RunStatusCompleted:
				return s.recoverDataset(ctx, job, runID, state.DatasetID)
			case scraper.RunStatusFailed:
				return "", fmt.Errorf("%w: %s", scraper.ErrRunFailed, state.Error)
			}
		} else {
			inFlight, err := s.scrapeInFlight(ctx, job.ID)
			if err != nil {
				return "", err
			}
			if !inFlight {
				return "", ErrScrapeNotRun
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		fresh, err := s.store.GetJobByID(ctx, job.ID)
		if err != nil {
			return "", err
		}
		if fresh.Terminal() {
			return "", fmt.Errorf("%w: job %s is %s", ErrJobFinished, job.ID, fresh.Status)
		}
		job.ExternalRunID = fresh.ExternalRunID
		job.ExternalDatasetID = fresh.ExternalDatasetID
	}
}

// recoverDataset persists the dataset id for a run whose Run invocation is
// not around to record it, and closes out the scrape step so a succeeded job
// never carries a running step. Harmless when Run is still alive: both sides
// write the same terminal state.
func (s *Service) recoverDataset(ctx context.Context, job *models.Job, runID, datasetID string) (string, error) {
	if err := s.store.SetJobExternalRefs(ctx, job.ID, runID, datasetID); err != nil {
		return "", err
	}
	job.ExternalDatasetID = &datasetID

	logs := fmt.Sprintf("run %s completed, dataset %s", runID, datasetID)
	if err := s.store.FinishJobStep(ctx, job.ID, models.StageScrape, models.JobStatusSucceeded, &logs); err != nil {
		return "", err
	}
	if err := s.store.UpdateJobProgress(ctx, job.ID, models.StageScrape, progressPercent[models.StageScrape]); err != nil {
		return "", err
	}
	return datasetID, nil
}

// scrapeInFlight reports whether the job has a scrape step started but not
// yet terminaled, meaning a concurrent Run holds the stage right now.
func (s *Service) scrapeInFlight(ctx context.Context, jobID uuid.UUID) (bool, error) {
	steps, err := s.store.ListJobSteps(ctx, jobID)
	if err != nil {
		return false, err
	}
	for _, step := range steps {
		if step.Stage == models.StageScrape && step.Status == models.JobStatusRunning {
			return true, nil
		}
	}
	return false, nil
}

// runStage brackets fn with a persisted step row, observes its duration and
// advances progress on success.
func (s *Service) runStage(ctx context.Context, job *models.Job, stage string, fn func(context.Context) (string, error)) error {
	if err := s.store.StartJobStep(ctx, job.ID, stage); err != nil {
		return err
	}

	start := time.Now()
	logs, err := fn(ctx)
	s.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())

	if err != nil {
		msg := err.Error()
		if ferr := s.store.FinishJobStep(ctx, job.ID, stage, models.JobStatusFailed, &msg); ferr != nil {
			s.logger.Error("finishing failed step", "job_id", job.ID, "stage", stage, "error", ferr)
		}
		return fmt.Errorf("stage %s: %w", stage, err)
	}

	var logsPtr *string
	if logs != "" {
		logsPtr = &logs
	}
	if err := s.store.FinishJobStep(ctx, job.ID, stage, models.JobStatusSucceeded, logsPtr); err != nil {
		return fmt.Errorf("stage %s: %w", stage, err)
	}

	percent := progressPercent[stage]
	if err := s.store.UpdateJobProgress(ctx, job.ID, stage, percent); err != nil {
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	job.ProgressStep = stage
	if percent > job.ProgressPercent {
		job.ProgressPercent = percent
	}
	s.writeSnapshot(ctx, SnapshotFromJob(job))

	s.logger.Info("stage completed", "job_id", job.ID, "stage", stage, "percent", percent)
	return nil
}

// failJob marks the job failed with the stage error and reports it back.
func (s *Service) failJob(ctx context.Context, job *models.Job, err error) error {
	msg := err.Error()
	if uerr := s.store.UpdateJobStatus(ctx, job.ID, models.JobStatusFailed, store.WithErrorMessage(msg)); uerr != nil {
		s.logger.Error("marking job failed", "job_id", job.ID, "error", uerr)
	}
	job.Status = models.JobStatusFailed
	job.ErrorMessage = &msg
	s.writeSnapshot(ctx, SnapshotFromJob(job))
	s.metrics.JobsTotal.WithLabelValues("failed").Inc()
	s.logger.Error("job failed", "job_id", job.ID, "error", err)
	return err
}

// exportLeads pushes exportable leads into the job's campaign, retrying a
// failed push once. Every attempt is audited. Returns the step log line.
func (s *Service) exportLeads(ctx context.Context, job *models.Job, batch []*models.Lead) string {
	if job.CampaignID == nil || *job.CampaignID == "" {
		return "no campaign configured, export skipped"
	}

	exportable := make([]*models.Lead, 0, len(batch))
	for _, lead := range batch {
		if lead.Exportable() {
			exportable = append(exportable, lead)
		}
	}
	if len(exportable) == 0 {
		return "no exportable leads"
	}

	apiKey, err := s.credentialFor(ctx, job)
	if err != nil {
		s.recordExportAttempt(ctx, job, false, 0, 0, err)
		return "export skipped: " + err.Error()
	}

	result, err := s.outreach.AddLeads(ctx, apiKey, *job.CampaignID, exportable)
	if err != nil {
		s.recordExportAttempt(ctx, job, false, 0, 0, err)
		s.logger.Warn("export attempt failed, retrying", "job_id", job.ID, "error", err)
		result, err = s.outreach.AddLeads(ctx, apiKey, *job.CampaignID, exportable)
		if err != nil {
			s.recordExportAttempt(ctx, job, false, 0, 0, err)
			return "export failed after retry: " + err.Error()
		}
	}
	s.recordExportAttempt(ctx, job, true, result.Added, result.Skipped, nil)

	emails := make([]string, 0, len(exportable))
	for _, lead := range exportable {
		emails = append(emails, lead.EmailNormalized)
	}
	if err := s.store.MarkLeadsExported(ctx, job.AccountID, emails); err != nil {
		s.logger.Error("marking leads exported", "job_id", job.ID, "error", err)
	}

	s.metrics.LeadsExported.Add(float64(result.Added))
	return fmt.Sprintf("%d leads added to campaign, %d skipped", result.Added, result.Skipped)
}

// credentialFor resolves the outreach key for a job: client key first, then
// account key, then the process default.
func (s *Service) credentialFor(ctx context.Context, job *models.Job) (string, error) {
	var clientKey *string
	if job.ClientID != nil {
		client, err := s.store.GetClient(ctx, *job.ClientID, job.AccountID)
		if err != nil {
			return "", fmt.Errorf("loading client credential: %w", err)
		}
		clientKey = client.OutreachAPIKey
	}

	account, err := s.store.GetAccount(ctx, job.AccountID)
	if err != nil {
		return "", fmt.Errorf("loading account credential: %w", err)
	}

	return outreach.CredentialFor(clientKey, account.OutreachAPIKey, s.defaultKey)
}

func (s *Service) recordExportAttempt(ctx context.Context, job *models.Job, success bool, sent, skipped int, attemptErr error) {
	att := &models.ExportAttempt{
		ID:           uuid.New(),
		AccountID:    job.AccountID,
		JobID:        job.ID,
		CampaignID:   derefOr(job.CampaignID, ""),
		Success:      success,
		LeadsSent:    sent,
		LeadsSkipped: skipped,
		CreatedAt:    time.Now().UTC(),
	}
	if attemptErr != nil {
		msg := attemptErr.Error()
		att.ErrorMessage = &msg
	}
	if err := s.store.CreateExportAttempt(ctx, att); err != nil {
		s.logger.Error("recording export attempt", "job_id", job.ID, "error", err)
	}
}

func derefOr(s *string, fallback string) string {
	if s != nil {
		return *s
	}
	return fallback
}

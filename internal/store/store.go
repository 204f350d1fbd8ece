package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/leadforge/leadforge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetDefaultAccount(ctx context.Context) (*models.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetClient(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Client, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, accountID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, accountID uuid.UUID) error

	CreateICP(ctx context.Context, icp *models.ICP) error
	GetICP(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.ICP, error)
	ListICPs(ctx context.Context, accountID uuid.UUID) ([]*models.ICP, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, accountID uuid.UUID) (*models.Job, error)
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, step string, percent int) error
	// SetJobExternalRefs records the scrape correlation ids. An empty
	// datasetID stores NULL so an in-flight run is distinguishable from a
	// completed one.
	SetJobExternalRefs(ctx context.Context, id uuid.UUID, runID, datasetID string) error
	SetJobResults(ctx context.Context, id uuid.UUID, actualLeadCount int, breakdown map[string]int) error

	StartJobStep(ctx context.Context, jobID uuid.UUID, stage string) error
	FinishJobStep(ctx context.Context, jobID uuid.UUID, stage, status string, logs *string) error
	ListJobSteps(ctx context.Context, jobID uuid.UUID) ([]*models.JobStep, error)

	// ExistingEmails and ExistingDomainNamePairs load the identity sets the
	// dedupe stage filters against, scoped to the account and, when set, the
	// client. Pair keys use the "domain:first last" form.
	ExistingEmails(ctx context.Context, accountID uuid.UUID, clientID *uuid.UUID) (map[string]struct{}, error)
	ExistingDomainNamePairs(ctx context.Context, accountID uuid.UUID, clientID *uuid.UUID) (map[string]struct{}, error)

	UpsertLeads(ctx context.Context, leads []*models.Lead) (int, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]*models.Lead, int, error)
	MarkLeadsExported(ctx context.Context, accountID uuid.UUID, emails []string) error

	CreateVerificationRecord(ctx context.Context, rec *models.VerificationRecord) error
	CreateExportAttempt(ctx context.Context, att *models.ExportAttempt) error
}

// LeadFilter narrows ListLeads. Zero values mean "no filter".
type LeadFilter struct {
	AccountID          uuid.UUID
	ClientID           *uuid.UUID
	JobID              *uuid.UUID
	VerificationStatus string
	ExportStatus       string
	Page               int
	Limit              int
}

type jobUpdateParams struct {
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

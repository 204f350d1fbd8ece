package verify

import (
	"context"

	"github.com/leadforge/leadforge/pkg/models"
	"golang.org/x/sync/errgroup"
)

// VerifyBatch probes every address concurrently, bounded by the configured
// concurrency cap so a large batch cannot exhaust local sockets against
// firewalled SMTP ports. Results come back in input order. Individual
// failures degrade to classifications inside Verify, so the batch itself
// never fails; a cancelled context leaves unstarted addresses classified
// risky. Such results carry MXValid=false meaning "not attempted" rather
// than "no MX record": the resolver never ran, and the log entry below is
// the marker that distinguishes the two.
func (v *Verifier) VerifyBatch(ctx context.Context, emails []string) []*models.VerificationResult {
	results := make([]*models.VerificationResult, len(emails))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)

	for i, email := range emails {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = &models.VerificationResult{
					Email:  email,
					Status: models.VerificationRisky,
					Logs:   []string{"mx and smtp not attempted, verification cancelled: " + err.Error()},
				}
				return nil
			}
			results[i] = v.Verify(gctx, email)
			return nil
		})
	}

	_ = g.Wait()
	return results
}

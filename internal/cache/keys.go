package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobSnapshotKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:snapshot:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// MXKey caches resolved mail-exchange hosts per domain so repeated probes of
// one domain inside a batch skip DNS.
func MXKey(domain string) string {
	return fmt.Sprintf("mx:%s", domain)
}

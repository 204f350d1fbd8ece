// Package dedupe filters freshly scraped contacts against previously seen
// records. Two independent identity keys are checked per record, because
// scraped data duplicates in two shapes: the same person recaptured with the
// same email (exact key), and the same company resurfacing under a different
// title variant of the same person (domain+name key).
package dedupe

import (
	"strings"

	"github.com/leadforge/leadforge/pkg/models"
)

// Dedupe returns the subset of batch that is genuinely new, in input order,
// with normalized derivatives attached. existingEmails holds normalized
// emails already stored; existingPairs holds "domain:first last" keys.
// Pure: deterministic given identical inputs and batch order.
func Dedupe(batch []*models.Lead, existingEmails, existingPairs map[string]struct{}) []*models.Lead {
	seenEmails := make(map[string]struct{}, len(batch))
	seenPairs := make(map[string]struct{}, len(batch))

	kept := make([]*models.Lead, 0, len(batch))
	for _, lead := range batch {
		email := NormalizeEmail(lead.Email)
		domain := NormalizeDomain(lead.Domain, lead.Email)
		name := normalizeName(lead.FirstName, lead.LastName)

		if email != "" {
			if _, dup := existingEmails[email]; dup {
				continue
			}
			if _, dup := seenEmails[email]; dup {
				continue
			}
		}

		pair := ""
		if domain != "" && name != "" {
			pair = domain + ":" + name
			if _, dup := existingPairs[pair]; dup {
				continue
			}
			if _, dup := seenPairs[pair]; dup {
				continue
			}
		}

		// A record with neither key is unconditionally kept: it cannot be
		// deduped, and dropping it would silently lose data.
		if email != "" {
			seenEmails[email] = struct{}{}
		}
		if pair != "" {
			seenPairs[pair] = struct{}{}
		}

		lead.EmailNormalized = email
		lead.DomainNormalized = domain
		kept = append(kept, lead)
	}
	return kept
}

// NormalizeEmail trims and lowercases an address. Empty in, empty out.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeDomain lowercases the domain, deriving it from the email's host
// part when the record carries no explicit domain.
func NormalizeDomain(domain, email string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if d != "" {
		return d
	}
	email = NormalizeEmail(email)
	if at := strings.LastIndex(email, "@"); at >= 0 && at < len(email)-1 {
		return email[at+1:]
	}
	return ""
}

// normalizeName joins trimmed, lowercased first and last names with a single
// space. Returns empty when both parts are empty.
func normalizeName(first, last string) string {
	first = strings.ToLower(strings.TrimSpace(first))
	last = strings.ToLower(strings.TrimSpace(last))
	switch {
	case first == "" && last == "":
		return ""
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

// Package verify classifies email addresses as valid, catch_all, invalid or
// risky by resolving MX records and holding a raw SMTP conversation against
// the primary mail exchanger. No deliverable mail is ever sent; the probe
// stops after RCPT and quits.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leadforge/leadforge/internal/cache"
	"github.com/leadforge/leadforge/internal/config"
	"github.com/leadforge/leadforge/pkg/models"
)

const mxCacheTTL = time.Hour

// Resolver looks up mail-exchange records. Satisfied by *net.Resolver.
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// Dialer opens probe connections. Satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Verifier probes addresses against their domain's mail server.
type Verifier struct {
	resolver    Resolver
	dialer      Dialer
	cache       cache.Cache
	heloDomain  string
	fromAddress string
	timeout     time.Duration
	concurrency int
	port        int
}

// Option customizes a Verifier. Used by tests to inject a fake resolver and
// point probes at a local listener port.
type Option func(*Verifier)

func WithResolver(r Resolver) Option {
	return func(v *Verifier) { v.resolver = r }
}

func WithDialer(d Dialer) Option {
	return func(v *Verifier) { v.dialer = d }
}

func WithPort(port int) Option {
	return func(v *Verifier) { v.port = port }
}

// WithMXCache caches resolved MX hosts per domain so a batch probing many
// addresses at one company resolves DNS once.
func WithMXCache(c cache.Cache) Option {
	return func(v *Verifier) { v.cache = c }
}

// New creates a Verifier from config.
func New(cfg config.VerifierConfig, opts ...Option) *Verifier {
	v := &Verifier{
		resolver:    net.DefaultResolver,
		dialer:      &net.Dialer{},
		heloDomain:  cfg.HeloDomain,
		fromAddress: cfg.FromAddress,
		timeout:     cfg.ProbeTimeout,
		concurrency: cfg.Concurrency,
		port:        25,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify classifies a single address. It never returns an error: every
// failure mode degrades to a terminal classification so one bad address can
// never abort a batch. The returned Logs carry the full ordered protocol
// trace for the audit row.
func (v *Verifier) Verify(ctx context.Context, email string) *models.VerificationResult {
	res := &models.VerificationResult{
		Email:  email,
		Status: models.VerificationInvalid,
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		res.Logs = append(res.Logs, fmt.Sprintf("address %q has no domain part, no probe attempted", email))
		return res
	}
	domain := strings.ToLower(email[at+1:])

	host, err := v.ResolveMX(ctx, domain)
	if err != nil {
		res.Logs = append(res.Logs, fmt.Sprintf("MX lookup for %s failed: %v", domain, err))
		return res
	}
	if host == "" {
		res.Logs = append(res.Logs, fmt.Sprintf("no MX records for %s", domain))
		return res
	}
	res.MXValid = true
	res.Logs = append(res.Logs, fmt.Sprintf("primary MX for %s: %s", domain, host))

	v.probe(ctx, host, email, domain, res)
	return res
}

type mxRecord struct {
	Host string `json:"host"`
	Pref uint16 `json:"pref"`
}

// ResolveMX resolves the domain's mail exchangers and returns the host with
// the lowest priority value, or "" when the domain has no MX records. Ties
// are broken by resolver order: the first record at the minimum preference
// wins. Results are cached, so resolving ahead of a batch warms the cache.
func (v *Verifier) ResolveMX(ctx context.Context, domain string) (string, error) {
	records, err := v.lookupMX(ctx, domain)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}

	best := records[0]
	for _, r := range records[1:] {
		if r.Pref < best.Pref {
			best = r
		}
	}
	return strings.TrimSuffix(best.Host, "."), nil
}

func (v *Verifier) lookupMX(ctx context.Context, domain string) ([]mxRecord, error) {
	if v.cache != nil {
		if raw, ok, err := v.cache.Get(ctx, cache.MXKey(domain)); err == nil && ok {
			var cached []mxRecord
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		}
	}

	mxs, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}

	records := make([]mxRecord, 0, len(mxs))
	for _, mx := range mxs {
		records = append(records, mxRecord{Host: mx.Host, Pref: mx.Pref})
	}

	if v.cache != nil {
		if raw, err := json.Marshal(records); err == nil {
			_ = v.cache.Set(ctx, cache.MXKey(domain), raw, mxCacheTTL)
		}
	}
	return records, nil
}

// probe performs the SMTP conversation. The MX exists at this point, so any
// transport failure means deliverability is unconfirmed, not disproven:
// the address classifies risky rather than invalid.
func (v *Verifier) probe(ctx context.Context, host, email, domain string, res *models.VerificationResult) {
	res.Status = models.VerificationRisky

	probeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(v.port))
	conn, err := v.dialer.DialContext(probeCtx, "tcp", addr)
	if err != nil {
		res.Logs = append(res.Logs, fmt.Sprintf("connect %s: %v", addr, err))
		return
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(v.timeout))

	tp := textproto.NewConn(conn)

	// Greeting banner.
	code, msg, err := tp.ReadResponse(0)
	if err != nil {
		res.Logs = append(res.Logs, fmt.Sprintf("read banner: %v", err))
		return
	}
	res.Logs = append(res.Logs, fmt.Sprintf("S: %d %s", code, msg))

	exchange := func(cmd string) (int, bool) {
		res.Logs = append(res.Logs, "C: "+cmd)
		if err := tp.PrintfLine("%s", cmd); err != nil {
			res.Logs = append(res.Logs, fmt.Sprintf("send: %v", err))
			return 0, false
		}
		code, msg, err := tp.ReadResponse(0)
		if err != nil {
			res.Logs = append(res.Logs, fmt.Sprintf("read: %v", err))
			return 0, false
		}
		res.Logs = append(res.Logs, fmt.Sprintf("S: %d %s", code, msg))
		return code, true
	}

	if _, ok := exchange("HELO " + v.heloDomain); !ok {
		return
	}
	if _, ok := exchange("MAIL FROM:<" + v.fromAddress + ">"); !ok {
		return
	}

	targetCode, ok := exchange("RCPT TO:<" + email + ">")
	if !ok {
		return
	}

	// Second probe with a local part that cannot plausibly exist, to detect
	// catch-all configuration.
	randomLocal := "lf-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
	randomCode, ok := exchange("RCPT TO:<" + randomLocal + "@" + domain + ">")
	if !ok {
		return
	}

	res.Logs = append(res.Logs, "C: QUIT")
	_ = tp.PrintfLine("QUIT")

	switch {
	case targetCode == 250 && randomCode == 250:
		res.Status = models.VerificationCatchAll
		res.SMTPValid = true
		res.CatchAll = true
	case targetCode == 250:
		res.Status = models.VerificationValid
		res.SMTPValid = true
	default:
		// Target rejected: risky regardless of the random probe's outcome.
		res.Status = models.VerificationRisky
	}
}

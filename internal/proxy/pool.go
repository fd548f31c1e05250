// Package proxy manages a pool of outbound proxy endpoints with health
// scoring and exponential cooldowns.
package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-review-scraper/internal/metrics"
)

var (
	ErrProxyExhausted = errors.New("no proxy endpoint available")
	ErrLeaseReleased  = errors.New("lease already released")
	ErrUnknownLease   = errors.New("lease does not belong to this pool")
)

// Outcome is what the caller observed while using a lease.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTimeout
	OutcomeChallenge
	OutcomeBanned
	// OutcomeRateLimited counts toward the failure streak like a challenge.
	OutcomeRateLimited
	// OutcomeAborted returns the lease without judging the endpoint (caller cancelled).
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeChallenge:
		return "challenge"
	case OutcomeBanned:
		return "banned"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

const (
	minHealth   = 0.01
	successGain = 0.25
)

var healthPenalty = map[Outcome]float64{
	OutcomeTimeout:     0.8,
	OutcomeChallenge:   0.6,
	OutcomeBanned:      0.5,
	OutcomeRateLimited: 0.7,
}

// ExhaustedError reports that every endpoint is cooling down. It matches ErrProxyExhausted.
type ExhaustedError struct {
	Endpoints int
	Until     time.Time
	// RetryAfter is the time left until the first endpoint leaves cooldown.
	RetryAfter time.Duration
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v: all %d endpoints cooling down until %s",
		ErrProxyExhausted, e.Endpoints, e.Until.Format(time.RFC3339))
}

func (e *ExhaustedError) Unwrap() error {
	return ErrProxyExhausted
}

type Options struct {
	FailureThreshold int
	CooldownBase     time.Duration
	CooldownMax      time.Duration

	// TopK bounds the set of healthiest endpoints a lease is drawn from.
	TopK    int
	Now     func() time.Time
	Rand    *rand.Rand
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func DefaultOptions() Options {
	return Options{
		FailureThreshold: 3,
		CooldownBase:     30 * time.Second,
		CooldownMax:      10 * time.Minute,
		TopK:             3,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = def.FailureThreshold
	}
	if o.CooldownBase <= 0 {
		o.CooldownBase = def.CooldownBase
	}
	if o.CooldownMax < o.CooldownBase {
		o.CooldownMax = def.CooldownMax
		if o.CooldownMax < o.CooldownBase {
			o.CooldownMax = o.CooldownBase
		}
	}
	if o.TopK <= 0 {
		o.TopK = def.TopK
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type endpoint struct {
	label     string
	protocol  string
	proxyURL  *url.URL
	health    float64
	streak    int
	level     int
	inUse     int
	coolUntil time.Time
	lastUsed  time.Time
	leases    int64
	failures  int64
}

// Lease is an exclusive-use grant on one endpoint. It must be released exactly once.
type Lease struct {
	id       string
	slot     int
	label    string
	proxyURL *url.URL
	pool     *Pool
	released bool
}

func (l *Lease) ID() string { return l.id }

// Label identifies the endpoint without credentials.
func (l *Lease) Label() string { return l.label }

// ProxyURL returns a copy of the endpoint URL, or nil for a direct connection.
func (l *Lease) ProxyURL() *url.URL {
	if l.proxyURL == nil {
		return nil
	}
	u := *l.proxyURL
	if l.proxyURL.User != nil {
		copied := *l.proxyURL.User
		u.User = &copied
	}
	return &u
}

type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	opts      Options
	logger    *slog.Logger
}

// NewPool parses the endpoint list. An empty list yields a single direct endpoint.
func NewPool(addresses []string, opts Options) (*Pool, error) {
	opts = opts.withDefaults()
	p := &Pool{
		opts:   opts,
		logger: opts.Logger.With("component", "proxy_pool"),
	}

	seen := make(map[string]bool)
	for _, raw := range addresses {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := ParseEndpoint(raw)
		if err != nil {
			return nil, err
		}
		if seen[u.String()] {
			continue
		}
		seen[u.String()] = true
		p.endpoints = append(p.endpoints, &endpoint{
			label:    u.Host,
			protocol: u.Scheme,
			proxyURL: u,
			health:   1.0,
		})
	}

	if len(p.endpoints) == 0 {
		p.endpoints = append(p.endpoints, &endpoint{
			label:    "direct",
			protocol: "direct",
			health:   1.0,
		})
	}

	return p, nil
}

// ParseEndpoint accepts "scheme://[user:pass@]host:port" or a bare "host:port" (http).
func ParseEndpoint(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy endpoint %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("invalid proxy endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("invalid proxy endpoint %q: host and port are required", raw)
	}
	return u, nil
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// Lease hands out a healthy endpoint, preferring idle ones, drawn with
// health-weighted randomness from the top candidates.
func (p *Pool) Lease() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.opts.Now()
	var idle, busy []int
	var nextFree time.Time
	for i, ep := range p.endpoints {
		if now.Before(ep.coolUntil) {
			if nextFree.IsZero() || ep.coolUntil.Before(nextFree) {
				nextFree = ep.coolUntil
			}
			continue
		}
		if ep.inUse == 0 {
			idle = append(idle, i)
		} else {
			busy = append(busy, i)
		}
	}

	candidates := idle
	if len(candidates) == 0 {
		candidates = busy
	}
	if len(candidates) == 0 {
		return nil, &ExhaustedError{
			Endpoints:  len(p.endpoints),
			Until:      nextFree,
			RetryAfter: nextFree.Sub(now),
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ea, eb := p.endpoints[candidates[a]], p.endpoints[candidates[b]]
		if ea.health != eb.health {
			return ea.health > eb.health
		}
		return ea.lastUsed.Before(eb.lastUsed)
	})
	if len(candidates) > p.opts.TopK {
		candidates = candidates[:p.opts.TopK]
	}

	slot := p.pick(candidates)
	ep := p.endpoints[slot]
	ep.inUse++
	ep.leases++
	ep.lastUsed = now

	return &Lease{
		id:       uuid.NewString(),
		slot:     slot,
		label:    ep.label,
		proxyURL: ep.proxyURL,
		pool:     p,
	}, nil
}

func (p *Pool) pick(candidates []int) int {
	total := 0.0
	for _, i := range candidates {
		total += p.endpoints[i].health
	}
	r := p.opts.Rand.Float64() * total
	for _, i := range candidates {
		r -= p.endpoints[i].health
		if r < 0 {
			return i
		}
	}
	return candidates[len(candidates)-1]
}

// Release returns the lease and updates the endpoint's health from the outcome.
func (p *Pool) Release(lease *Lease, outcome Outcome) error {
	if lease == nil || lease.pool != p {
		return ErrUnknownLease
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if lease.released {
		return fmt.Errorf("%w: %s", ErrLeaseReleased, lease.id)
	}
	lease.released = true

	ep := p.endpoints[lease.slot]
	if ep.inUse > 0 {
		ep.inUse--
	}

	switch outcome {
	case OutcomeAborted:
		return nil
	case OutcomeSuccess:
		ep.health += successGain * (1 - ep.health)
		ep.streak = 0
		ep.level = 0
		return nil
	}

	ep.failures++
	ep.streak++
	if penalty, ok := healthPenalty[outcome]; ok {
		ep.health *= penalty
	}
	if ep.health < minHealth {
		ep.health = minHealth
	}

	if outcome == OutcomeBanned || ep.streak >= p.opts.FailureThreshold {
		d := p.cooldown(ep.level)
		ep.coolUntil = p.opts.Now().Add(d)
		ep.level++
		p.opts.Metrics.IncCooldown()
		p.logger.Warn("proxy endpoint cooling down",
			"endpoint", ep.label,
			"outcome", outcome.String(),
			"streak", ep.streak,
			"cooldown", d)
	}

	return nil
}

func (p *Pool) cooldown(level int) time.Duration {
	d := p.opts.CooldownBase
	for i := 0; i < level; i++ {
		d *= 2
		if d >= p.opts.CooldownMax {
			return p.opts.CooldownMax
		}
	}
	if d > p.opts.CooldownMax {
		return p.opts.CooldownMax
	}
	return d
}

type EndpointStats struct {
	Label        string    `json:"label"`
	Protocol     string    `json:"protocol"`
	Health       float64   `json:"health"`
	InUse        int       `json:"inUse"`
	Leases       int64     `json:"leases"`
	Failures     int64     `json:"failures"`
	Streak       int       `json:"streak"`
	CoolingUntil time.Time `json:"coolingUntil,omitempty"`
	Available    bool      `json:"available"`
}

// Stats returns a snapshot of every endpoint.
func (p *Pool) Stats() []EndpointStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.opts.Now()
	stats := make([]EndpointStats, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		s := EndpointStats{
			Label:     ep.label,
			Protocol:  ep.protocol,
			Health:    ep.health,
			InUse:     ep.inUse,
			Leases:    ep.leases,
			Failures:  ep.failures,
			Streak:    ep.streak,
			Available: !now.Before(ep.coolUntil),
		}
		if !s.Available {
			s.CoolingUntil = ep.coolUntil
		}
		stats = append(stats, s)
	}
	return stats
}

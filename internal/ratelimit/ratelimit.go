package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Backoff computes exponential retry delays with optional jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Jitter adds up to this fraction of the delay on top, e.g. 0.2.
	Jitter float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewBackoff(base, max time.Duration, jitter float64) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Backoff{
		Base:   base,
		Max:    max,
		Jitter: jitter,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns the wait before retry number attempt (1-based).
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.Base
	for i := 1; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}

	if b.Jitter > 0 && b.rnd != nil {
		b.mu.Lock()
		extra := time.Duration(b.rnd.Float64() * b.Jitter * float64(d))
		b.mu.Unlock()
		d += extra
	}
	return d
}

// Sleep waits for Delay(attempt) or until ctx is done.
func (b *Backoff) Sleep(ctx context.Context, attempt int) error {
	return b.SleepAtLeast(ctx, attempt, 0)
}

// SleepAtLeast waits for Delay(attempt), stretched to floor when floor is
// longer. The floor itself is capped at Max.
func (b *Backoff) SleepAtLeast(ctx context.Context, attempt int, floor time.Duration) error {
	d := b.Delay(attempt)
	if floor > b.Max {
		floor = b.Max
	}
	if floor > d {
		d = floor
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HostLimiter rate-limits requests per marketplace host.
type HostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

// NewHostLimiter allows reqPerSec per host. A non-positive rate disables limiting.
func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	r := rate.Limit(reqPerSec)
	if reqPerSec <= 0 {
		r = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		m: make(map[string]*rate.Limiter),
		r: r,
		b: burst,
	}
}

func (hl *HostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.r, hl.b)
	hl.m[host] = lim
	return lim
}

func (hl *HostLimiter) Wait(ctx context.Context, host string) error {
	if host == "" {
		host = "_"
	}
	return hl.limiterFor(host).Wait(ctx)
}

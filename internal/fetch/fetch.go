// Package fetch performs one page request through a leased proxy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/maltedev/amazon-review-scraper/internal/classify"
	"github.com/maltedev/amazon-review-scraper/internal/metrics"
	"github.com/maltedev/amazon-review-scraper/internal/proxy"
	"github.com/maltedev/amazon-review-scraper/internal/query"
)

type FailureKind int

const (
	FailureTimeout FailureKind = iota
	FailureNetwork
	FailureProxyExhausted
	FailureCancelled
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureNetwork:
		return "network"
	case FailureProxyExhausted:
		return "proxy_exhausted"
	case FailureCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Failure is returned when no response was obtained.
type Failure struct {
	Kind  FailureKind
	Proxy string
	Err   error

	// RetryAfter is set for FailureProxyExhausted: the wait until an endpoint is usable again.
	RetryAfter time.Duration
}

func (f *Failure) Error() string {
	if f.Proxy != "" {
		return fmt.Sprintf("fetch %s via %s: %v", f.Kind, f.Proxy, f.Err)
	}
	return fmt.Sprintf("fetch %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Retryable reports whether a new attempt with a fresh lease may help.
func (f *Failure) Retryable() bool {
	return f.Kind == FailureTimeout || f.Kind == FailureNetwork
}

// RawResponse is what a transport brought back for a request.
type RawResponse struct {
	StatusCode int
	Body       []byte
	Header     http.Header
	Cookies    []*http.Cookie
	URL        string
}

// Transport sends a request, optionally through proxyURL. It must honour ctx.
type Transport interface {
	RoundTrip(ctx context.Context, req query.Request, proxyURL *url.URL) (*RawResponse, error)
}

// Response is a raw response plus the verdict used to score the proxy.
type Response struct {
	*RawResponse
	Verdict  classify.Verdict
	Proxy    string
	Duration time.Duration
}

type Fetcher struct {
	pool       *proxy.Pool
	transport  Transport
	classifier classify.Classifier
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewFetcher(pool *proxy.Pool, transport Transport, classifier classify.Classifier, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		pool:       pool,
		transport:  transport,
		classifier: classifier,
		timeout:    timeout,
		logger:     logger.With("component", "fetcher"),
		metrics:    m,
	}
}

// Fetch leases one endpoint, performs the request under a bounded timeout and
// releases the lease with the outcome it observed.
func (f *Fetcher) Fetch(ctx context.Context, req query.Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Failure{Kind: FailureCancelled, Err: err}
	}

	lease, err := f.pool.Lease()
	if err != nil {
		failure := &Failure{Kind: FailureProxyExhausted, Err: err}
		var exhausted *proxy.ExhaustedError
		if errors.As(err, &exhausted) {
			failure.RetryAfter = exhausted.RetryAfter
		}
		f.metrics.IncFetch(failure.Kind.String())
		return nil, failure
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	raw, err := f.transport.RoundTrip(callCtx, req, lease.ProxyURL())
	elapsed := time.Since(start)
	f.metrics.ObserveFetch(elapsed)

	if err != nil {
		failure := classifyError(ctx, err)
		failure.Proxy = lease.Label()
		outcome := proxy.OutcomeTimeout
		if failure.Kind == FailureCancelled {
			outcome = proxy.OutcomeAborted
		}
		f.release(lease, outcome)
		f.metrics.IncFetch(failure.Kind.String())
		f.logger.Debug("fetch failed",
			"url", req.URL(),
			"proxy", lease.Label(),
			"kind", failure.Kind.String(),
			"error", err)
		return nil, failure
	}

	verdict := f.classifier.Classify(raw.StatusCode, raw.Body)
	f.release(lease, outcomeFor(verdict.Kind))
	f.metrics.IncFetch(verdict.Kind.String())

	f.logger.Debug("page fetched",
		"url", req.URL(),
		"proxy", lease.Label(),
		"status", raw.StatusCode,
		"verdict", verdict.Kind.String(),
		"duration", elapsed)

	return &Response{
		RawResponse: raw,
		Verdict:     verdict,
		Proxy:       lease.Label(),
		Duration:    elapsed,
	}, nil
}

func (f *Fetcher) release(lease *proxy.Lease, outcome proxy.Outcome) {
	if err := f.pool.Release(lease, outcome); err != nil {
		f.logger.Warn("failed to release proxy lease", "lease", lease.ID(), "error", err)
	}
}

func outcomeFor(kind classify.Kind) proxy.Outcome {
	switch kind {
	case classify.Challenge:
		return proxy.OutcomeChallenge
	case classify.RateLimited:
		return proxy.OutcomeRateLimited
	default:
		return proxy.OutcomeSuccess
	}
}

func classifyError(parent context.Context, err error) *Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		return &Failure{Kind: failure.Kind, Err: failure.Err}
	}
	if parent.Err() != nil {
		return &Failure{Kind: FailureCancelled, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: FailureTimeout, Err: err}
	}
	return &Failure{Kind: FailureNetwork, Err: err}
}

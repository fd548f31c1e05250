package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/amazon-review-scraper/internal/classify"
	"github.com/maltedev/amazon-review-scraper/internal/fetch"
	"github.com/maltedev/amazon-review-scraper/internal/marketplace"
	"github.com/maltedev/amazon-review-scraper/internal/metrics"
	"github.com/maltedev/amazon-review-scraper/internal/models"
	"github.com/maltedev/amazon-review-scraper/internal/parser"
	"github.com/maltedev/amazon-review-scraper/internal/query"
	"github.com/maltedev/amazon-review-scraper/internal/ratelimit"
)

type Options struct {
	// MaxRetries is the number of retries after the first attempt of a page.
	MaxRetries  int
	Backoff     *ratelimit.Backoff
	HostLimiter *ratelimit.HostLimiter
	Resolver    classify.ChallengeResolver

	NotFoundCacheSize int
	NotFoundTTL       time.Duration
	Now               func() time.Time

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:        3,
		Backoff:           ratelimit.NewBackoff(2*time.Second, 30*time.Second, 0.2),
		HostLimiter:       ratelimit.NewHostLimiter(1, 2),
		NotFoundCacheSize: 1024,
		NotFoundTTL:       6 * time.Hour,
	}
}

// Controller walks the review pages of one job and aggregates them.
type Controller struct {
	builder  *query.Builder
	fetcher  PageFetcher
	parser   parser.Parser
	opts     Options
	notFound *notFoundCache
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewController(builder *query.Builder, fetcher PageFetcher, p parser.Parser, opts Options) (*Controller, error) {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff == nil {
		opts.Backoff = DefaultOptions().Backoff
	}
	if opts.HostLimiter == nil {
		opts.HostLimiter = ratelimit.NewHostLimiter(0, 1)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cache, err := newNotFoundCache(opts.NotFoundCacheSize, opts.NotFoundTTL, opts.Now)
	if err != nil {
		return nil, fmt.Errorf("failed to create not-found cache: %w", err)
	}

	return &Controller{
		builder:  builder,
		fetcher:  fetcher,
		parser:   p,
		opts:     opts,
		notFound: cache,
		logger:   opts.Logger.With("component", "controller"),
		metrics:  opts.Metrics,
	}, nil
}

type pageState int

const (
	pageOK pageState = iota
	pageNotFound
	pageMalformed
	pageExhausted
	pageCancelled
)

type pageResult struct {
	state  pageState
	page   *parser.Page
	reason string
}

// Run executes the job. It always returns exactly one record; failures are
// reported through StatusCode and StatusMessage.
func (c *Controller) Run(ctx context.Context, job models.JobConfig) models.ResultRecord {
	job = job.Normalize()
	agg := NewAggregator(job)
	logger := c.logger.With("asin", job.ASIN, "domain", job.DomainCode)

	if status, err := c.precheck(job); err != nil {
		logger.Info("job rejected", "status", status.Message, "error", err)
		return c.finish(logger, agg, status)
	}

	key := cacheKey(job.DomainCode, job.ASIN)
	if c.notFound.Contains(key) {
		logger.Info("product known as not found, skipping fetch")
		return c.finish(logger, agg, StatusNotFound)
	}

	var (
		session query.Session
		skipped bool
		limit   = job.PageLimit()
	)

	for n := 1; n <= limit; n++ {
		if ctx.Err() != nil {
			return c.finish(logger, agg, cancelledStatus(agg))
		}

		agg.Attempted(n)
		result := c.fetchPage(ctx, logger, job, n, &session)

		switch result.state {
		case pageOK:
			added := agg.AddPage(n, result.page)
			if result.page.Skipped > 0 {
				logger.Warn("dropped incomplete review entries", "page", n, "skipped", result.page.Skipped)
				c.metrics.AddSkipped(result.page.Skipped)
			}
			logger.Debug("page collected", "page", n, "reviews", added)
			if !result.page.HasNextPage || len(result.page.Reviews) == 0 {
				return c.finish(logger, agg, completedStatus(skipped))
			}

		case pageNotFound:
			if n == 1 {
				c.notFound.Add(key)
			}
			return c.finish(logger, agg, StatusNotFound)

		case pageMalformed:
			if n == 1 {
				logger.Warn("first page unparseable", "reason", result.reason)
				return c.finish(logger, agg, StatusMalformed)
			}
			logger.Warn("skipping unparseable page", "page", n, "reason", result.reason)
			skipped = true
			session.Token = ""

		case pageExhausted:
			logger.Warn("page retries exhausted", "page", n, "reason", result.reason)
			if agg.Pages() == 0 {
				return c.finish(logger, agg, StatusBlocked)
			}
			return c.finish(logger, agg, StatusPartial)

		case pageCancelled:
			return c.finish(logger, agg, cancelledStatus(agg))
		}
	}

	return c.finish(logger, agg, completedStatus(skipped))
}

func (c *Controller) precheck(job models.JobConfig) (Status, error) {
	if err := job.Validate(); err != nil {
		return StatusInvalidJob, err
	}
	if _, err := marketplace.Resolve(job.DomainCode); err != nil {
		return StatusUnsupportedDomain, err
	}
	if _, err := query.Params(job); err != nil {
		return StatusInvalidFilter, err
	}
	return Status{}, nil
}

func completedStatus(skipped bool) Status {
	if skipped {
		return StatusPartial
	}
	return StatusFound
}

func cancelledStatus(agg *Aggregator) Status {
	if agg.Pages() > 0 {
		return StatusPartial
	}
	return StatusCancelled
}

func (c *Controller) finish(logger *slog.Logger, agg *Aggregator, status Status) models.ResultRecord {
	record, err := agg.Emit(status)
	if err != nil {
		logger.Error("failed to emit result", "error", err)
		return record
	}
	if agg.Rebalanced() {
		logger.Warn("review summary did not add up to 100, rebalanced")
	}
	c.metrics.ObserveJob(record.StatusMessage, len(record.Reviews))
	logger.Info("job finished",
		"status", record.StatusMessage,
		"pages", record.CurrentPage,
		"reviews", record.CountReviews)
	return record
}

// fetchPage makes up to 1+MaxRetries attempts at page n, each through a fresh lease.
func (c *Controller) fetchPage(ctx context.Context, logger *slog.Logger, job models.JobConfig, n int, session *query.Session) pageResult {
	var (
		reason string
		// wait is how long the pool asked us to hold off before the next lease.
		wait time.Duration
	)

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.IncRetry(reason)
			logger.Info("retrying page", "page", n, "attempt", attempt, "reason", reason)
			if err := c.opts.Backoff.SleepAtLeast(ctx, attempt, wait); err != nil {
				return pageResult{state: pageCancelled, reason: err.Error()}
			}
			wait = 0
		}

		req, err := c.builder.Build(job, n, *session)
		if err != nil {
			return pageResult{state: pageMalformed, reason: err.Error()}
		}
		if err := c.opts.HostLimiter.Wait(ctx, req.Host()); err != nil {
			return pageResult{state: pageCancelled, reason: err.Error()}
		}

		resp, err := c.fetcher.Fetch(ctx, req)
		if err != nil {
			var failure *fetch.Failure
			if !errors.As(err, &failure) {
				reason = "network"
				continue
			}
			switch failure.Kind {
			case fetch.FailureCancelled:
				return pageResult{state: pageCancelled, reason: failure.Error()}
			case fetch.FailureProxyExhausted:
				reason = failure.Kind.String()
				wait = failure.RetryAfter
				continue
			default:
				reason = failure.Kind.String()
				continue
			}
		}

		switch resp.Verdict.Kind {
		case classify.Normal:
			page, err := c.parse(resp.Body)
			if err != nil {
				return pageResult{state: pageMalformed, reason: err.Error()}
			}
			next := session.Merge(query.Session{Cookies: resp.Cookies})
			next.Token = page.NextPageToken
			*session = next
			return pageResult{state: pageOK, page: page}

		case classify.NotFound:
			return pageResult{state: pageNotFound, reason: resp.Verdict.Reason}

		case classify.Malformed:
			page, err := c.parser.ParseFallback(resp.Body)
			if err != nil {
				return pageResult{state: pageMalformed, reason: resp.Verdict.Reason}
			}
			session.Token = page.NextPageToken
			return pageResult{state: pageOK, page: page}

		case classify.Challenge:
			reason = resp.Verdict.Kind.String()
			c.resolveChallenge(ctx, logger, req, resp, attempt, session)

		case classify.RateLimited:
			reason = resp.Verdict.Kind.String()
		}
	}

	return pageResult{state: pageExhausted, reason: reason}
}

func (c *Controller) parse(body []byte) (*parser.Page, error) {
	page, err := c.parser.Parse(body)
	if err == nil {
		return page, nil
	}
	return c.parser.ParseFallback(body)
}

func (c *Controller) resolveChallenge(ctx context.Context, logger *slog.Logger, req query.Request, resp *fetch.Response, attempt int, session *query.Session) {
	if c.opts.Resolver == nil {
		return
	}

	clearance, err := c.opts.Resolver.Resolve(ctx, classify.ChallengePage{
		URL:        req.URL(),
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Reason:     resp.Verdict.Reason,
		Attempt:    attempt + 1,
	})
	if err != nil {
		logger.Warn("challenge resolver failed", "page", req.Page(), "error", err)
		return
	}
	*session = session.Merge(query.Session{UserAgent: clearance.UserAgent, Cookies: clearance.Cookies})
}

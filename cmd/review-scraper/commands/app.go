package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-review-scraper/internal/batch"
	"github.com/maltedev/amazon-review-scraper/internal/browser"
	"github.com/maltedev/amazon-review-scraper/internal/classify"
	"github.com/maltedev/amazon-review-scraper/internal/config"
	"github.com/maltedev/amazon-review-scraper/internal/events"
	"github.com/maltedev/amazon-review-scraper/internal/fetch"
	"github.com/maltedev/amazon-review-scraper/internal/metrics"
	"github.com/maltedev/amazon-review-scraper/internal/parser"
	"github.com/maltedev/amazon-review-scraper/internal/proxy"
	"github.com/maltedev/amazon-review-scraper/internal/query"
	"github.com/maltedev/amazon-review-scraper/internal/ratelimit"
	"github.com/maltedev/amazon-review-scraper/internal/scraper"
)

// app holds the wired components shared by run and serve.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	metrics      *metrics.Metrics
	pool         *proxy.Pool
	controller   *scraper.Controller
	orchestrator *batch.Orchestrator
	publisher    *events.Publisher
	closers      []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	pool, err := proxy.NewPool(cfg.Scraper.Proxies, proxy.Options{
		FailureThreshold: cfg.Proxy.FailureThreshold,
		CooldownBase:     cfg.Proxy.CooldownBase,
		CooldownMax:      cfg.Proxy.CooldownMax,
		TopK:             cfg.Proxy.TopK,
		Rand:             rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger:           logger,
		Metrics:          a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy pool: %w", err)
	}
	a.pool = pool

	transport, err := a.newTransport()
	if err != nil {
		a.Close()
		return nil, err
	}

	fetcher := fetch.NewFetcher(pool, transport, classify.NewHeuristic(), cfg.Scraper.RequestTimeout, logger, a.metrics)

	controller, err := scraper.NewController(query.NewBuilder(cfg.Scraper.UserAgents), fetcher, parser.NewAmazonParser(), scraper.Options{
		MaxRetries:        cfg.Scraper.MaxRetries,
		Backoff:           ratelimit.NewBackoff(cfg.Scraper.RetryDelay, cfg.Scraper.RetryMaxDelay, cfg.Scraper.RetryJitter),
		HostLimiter:       ratelimit.NewHostLimiter(cfg.Scraper.RateLimit, cfg.Scraper.RateBurst),
		NotFoundCacheSize: cfg.Scraper.NotFoundCacheSize,
		NotFoundTTL:       cfg.Scraper.NotFoundTTL,
		Logger:            logger,
		Metrics:           a.metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.controller = controller

	order, err := batch.ParseOrder(cfg.Scraper.ResultOrder)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orchestrator = batch.New(controller, batch.Options{
		Workers: cfg.Scraper.ConcurrentLimit,
		Order:   order,
		Logger:  logger,
	})

	if cfg.Redis.Enabled {
		if err := a.connectRedis(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	logger.Info("scraper ready",
		"transport", cfg.Scraper.Transport,
		"proxies", pool.Size(),
		"workers", cfg.Scraper.ConcurrentLimit,
		"redis", cfg.Redis.Enabled)
	return a, nil
}

// newTransport picks the configured transport. Jobs flagged mock are served
// from synthetic pages whatever the transport is.
func (a *app) newTransport() (fetch.Transport, error) {
	mock := fetch.NewMockTransport()
	switch a.cfg.Scraper.Transport {
	case "mock":
		return mock, nil
	case "browser":
		live, err := a.newBrowser()
		if err != nil {
			return nil, err
		}
		return fetch.MockRouter{Live: live, Mock: mock}, nil
	default:
		return fetch.MockRouter{
			Live: fetch.NewCollyTransport(fetch.CollyConfig{
				Timeout:     a.cfg.Scraper.RequestTimeout,
				MaxBodySize: a.cfg.Scraper.MaxBodySize,
			}),
			Mock: mock,
		}, nil
	}
}

func (a *app) newBrowser() (*browser.Transport, error) {
	opts := browser.DefaultOptions()
	opts.Headless = a.cfg.Browser.Headless
	opts.Timeout = a.cfg.Browser.Timeout
	opts.ViewportWidth = a.cfg.Browser.ViewportWidth
	opts.ViewportHeight = a.cfg.Browser.ViewportHeight
	opts.ClickThrough = a.cfg.Browser.ClickThrough

	b, err := browser.New(opts, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	a.closers = append(a.closers, b.Close)
	return b, nil
}

func (a *app) connectRedis(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	a.publisher = events.NewPublisher(client, events.Config{
		Stream: a.cfg.Redis.Stream,
		MaxLen: a.cfg.Redis.MaxLen,
	}, a.logger)
	a.closers = append(a.closers, a.publisher.Close)
	return nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

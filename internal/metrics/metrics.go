// Package metrics bundles the Prometheus collectors of the review scraper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors on a dedicated registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry       *prometheus.Registry
	FetchesTotal   *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	RetriesTotal   *prometheus.CounterVec
	CooldownsTotal prometheus.Counter
	SkippedReviews prometheus.Counter
	JobsTotal      *prometheus.CounterVec
	ReviewsEmitted prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_scraper_fetches_total",
			Help: "Page fetch attempts by classified verdict.",
		},
		[]string{"verdict"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "review_scraper_fetch_duration_seconds",
			Help:    "Latency of page fetch attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_scraper_retries_total",
			Help: "Page retries by reason.",
		},
		[]string{"reason"},
	)
	cooldowns := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_scraper_proxy_cooldowns_total",
			Help: "Number of times a proxy endpoint was put into cooldown.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_scraper_skipped_reviews_total",
			Help: "Review entries dropped because a required field was missing.",
		},
	)
	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "review_scraper_jobs_total",
			Help: "Finished jobs by status message.",
		},
		[]string{"status"},
	)
	reviews := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "review_scraper_reviews_emitted_total",
			Help: "Reviews emitted in result records.",
		},
	)

	registry.MustRegister(fetches, fetchDuration, retries, cooldowns, skipped, jobs, reviews)

	return &Metrics{
		Registry:       registry,
		FetchesTotal:   fetches,
		FetchDuration:  fetchDuration,
		RetriesTotal:   retries,
		CooldownsTotal: cooldowns,
		SkippedReviews: skipped,
		JobsTotal:      jobs,
		ReviewsEmitted: reviews,
	}
}

func (m *Metrics) IncFetch(verdict string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(verdict).Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) IncRetry(reason string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncCooldown() {
	if m == nil {
		return
	}
	m.CooldownsTotal.Inc()
}

func (m *Metrics) AddSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedReviews.Add(float64(n))
}

// ObserveJob records a finished job and the reviews it carried.
func (m *Metrics) ObserveJob(status string, reviews int) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
	m.ReviewsEmitted.Add(float64(reviews))
}

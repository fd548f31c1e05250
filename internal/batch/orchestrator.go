// Package batch runs many review jobs concurrently and streams one result per job.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/amazon-review-scraper/internal/models"
	"github.com/maltedev/amazon-review-scraper/internal/scraper"
)

// Order controls the order in which results leave the orchestrator.
type Order int

const (
	// OrderInput releases results in the order jobs were submitted.
	OrderInput Order = iota
	// OrderArrival releases results as soon as each job finishes.
	OrderArrival
)

func (o Order) String() string {
	if o == OrderArrival {
		return "arrival"
	}
	return "input"
}

// ParseOrder accepts "input" and "arrival"; anything else is an error.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "input":
		return OrderInput, nil
	case "arrival":
		return OrderArrival, nil
	default:
		return OrderInput, fmt.Errorf("unknown result order %q", s)
	}
}

type Options struct {
	Workers int
	Order   Order
	Logger  *slog.Logger
}

type Orchestrator struct {
	runner  scraper.Scraper
	workers int
	order   Order
	logger  *slog.Logger
}

func New(runner scraper.Scraper, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		runner:  runner,
		workers: opts.Workers,
		order:   opts.Order,
		logger:  opts.Logger.With("component", "orchestrator"),
	}
}

// Run starts every job and returns a channel that yields exactly one record
// per job and is closed afterwards. Cancelling ctx makes the remaining jobs
// finish early; they still produce a record.
func (o *Orchestrator) Run(ctx context.Context, jobs []models.JobConfig) <-chan models.ResultRecord {
	out := make(chan models.ResultRecord, len(jobs))
	runID := uuid.New().String()
	logger := o.logger.With("run_id", runID)

	go func() {
		defer close(out)
		logger.Info("batch started", "jobs", len(jobs), "workers", o.workers, "order", o.order.String())

		var (
			g       errgroup.Group
			mu      sync.Mutex
			pending = make([]*models.ResultRecord, len(jobs))
			next    int
		)
		g.SetLimit(o.workers)

		deliver := func(i int, record models.ResultRecord) {
			mu.Lock()
			defer mu.Unlock()
			if o.order == OrderArrival {
				out <- record
				return
			}
			pending[i] = &record
			for next < len(pending) && pending[next] != nil {
				out <- *pending[next]
				pending[next] = nil
				next++
			}
		}

		for i, job := range jobs {
			i, job := i, job
			g.Go(func() error {
				deliver(i, o.runOne(ctx, logger, job))
				return nil
			})
		}
		_ = g.Wait()

		logger.Info("batch finished", "jobs", len(jobs))
	}()

	return out
}

// runOne turns a panicking job into an INTERNAL_ERROR record so siblings keep running.
func (o *Orchestrator) runOne(ctx context.Context, logger *slog.Logger, job models.JobConfig) (record models.ResultRecord) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "asin", job.ASIN, "domain", job.DomainCode, "panic", r)
			record = failedRecord(job, scraper.StatusInternalError)
		}
	}()
	return o.runner.Run(ctx, job)
}

func failedRecord(job models.JobConfig, status scraper.Status) models.ResultRecord {
	job = job.Normalize()
	return models.ResultRecord{
		StatusCode:    status.Code,
		StatusMessage: status.Message,
		ASIN:          job.ASIN,
		SortStrategy:  job.SortStrategy,
		DomainCode:    job.DomainCode,
		Filters:       job.Filters,
		Reviews:       []models.Review{},
	}
}

// Collect drains ch into a slice.
func Collect(ch <-chan models.ResultRecord) []models.ResultRecord {
	var records []models.ResultRecord
	for r := range ch {
		records = append(records, r)
	}
	return records
}

// Summary counts records per terminal status.
type Summary struct {
	Total     int
	Succeeded int
	Reviews   int
	ByStatus  map[string]int
}

func Summarize(records []models.ResultRecord) Summary {
	s := Summary{ByStatus: make(map[string]int)}
	for _, r := range records {
		s.Total++
		s.Reviews += len(r.Reviews)
		s.ByStatus[r.StatusMessage]++
		if r.Succeeded() {
			s.Succeeded++
		}
	}
	return s
}

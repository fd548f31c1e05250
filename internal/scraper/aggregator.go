package scraper

import (
	"sort"

	"github.com/maltedev/amazon-review-scraper/internal/models"
	"github.com/maltedev/amazon-review-scraper/internal/parser"
)

// Aggregator merges pages of one job into its result record.
type Aggregator struct {
	job         models.JobConfig
	summary     models.ProductSummary
	reviews     []models.Review
	seen        map[string]struct{}
	pages       int
	currentPage int
	emitted     bool
	rebalanced  bool
}

func NewAggregator(job models.JobConfig) *Aggregator {
	return &Aggregator{
		job:     job,
		reviews: []models.Review{},
		seen:    make(map[string]struct{}),
	}
}

// Attempted records n as the last page the job tried.
func (a *Aggregator) Attempted(n int) {
	a.currentPage = n
}

// AddPage appends the page's reviews in arrival order, dropping review IDs
// already seen, and returns how many were added.
func (a *Aggregator) AddPage(n int, page *parser.Page) int {
	a.currentPage = n
	a.pages++
	a.mergeSummary(page.Summary)

	added := 0
	for _, r := range page.Reviews {
		if _, dup := a.seen[r.ReviewID]; dup {
			continue
		}
		a.seen[r.ReviewID] = struct{}{}
		a.reviews = append(a.reviews, r)
		added++
	}
	return added
}

func (a *Aggregator) mergeSummary(s models.ProductSummary) {
	if a.summary.ASIN == "" {
		a.summary.ASIN = s.ASIN
	}
	if a.summary.ProductTitle == "" {
		a.summary.ProductTitle = s.ProductTitle
	}
	if a.summary.ProductRating == "" {
		a.summary.ProductRating = s.ProductRating
	}
	if a.summary.CountRatings == 0 {
		a.summary.CountRatings = s.CountRatings
	}
	if a.summary.ReviewSummary == nil && s.ReviewSummary != nil && s.ReviewSummary.Total() > 0 {
		rs := *s.ReviewSummary
		a.summary.ReviewSummary = &rs
	}
}

// Pages is the number of pages added so far.
func (a *Aggregator) Pages() int {
	return a.pages
}

// Reviews is the number of distinct reviews collected so far.
func (a *Aggregator) Reviews() int {
	return len(a.reviews)
}

// Rebalanced reports whether Emit had to rescale the star distribution.
func (a *Aggregator) Rebalanced() bool {
	return a.rebalanced
}

// Emit builds the result record. It succeeds once per aggregator.
func (a *Aggregator) Emit(status Status) (models.ResultRecord, error) {
	if a.emitted {
		return models.ResultRecord{}, ErrAlreadyEmitted
	}
	a.emitted = true

	record := models.ResultRecord{
		StatusCode:    status.Code,
		StatusMessage: status.Message,
		ASIN:          a.job.ASIN,
		CurrentPage:   a.currentPage,
		SortStrategy:  a.job.SortStrategy,
		DomainCode:    a.job.DomainCode,
		Filters:       a.job.Filters,
		Reviews:       []models.Review{},
	}

	if status == StatusNotFound {
		return record, nil
	}

	record.ProductTitle = a.summary.ProductTitle
	record.ProductRating = a.summary.ProductRating
	record.CountRatings = a.summary.CountRatings
	record.Reviews = append(record.Reviews, a.reviews...)
	record.CountReviews = len(record.Reviews)

	if a.summary.ReviewSummary != nil {
		rs, changed := rebalance(*a.summary.ReviewSummary)
		a.rebalanced = changed
		record.ReviewSummary = &rs
	}

	return record, nil
}

// rebalance rescales percentages that do not add up to 100 (beyond rounding)
// using the largest remainder method.
func rebalance(s models.ReviewSummary) (models.ReviewSummary, bool) {
	total := s.Total()
	diff := total - 100
	if total <= 0 || (diff >= -1 && diff <= 1) {
		return s, false
	}

	p := s.Percentages()
	var scaled [5]int
	type remainder struct {
		idx  int
		frac int
	}
	rems := make([]remainder, 0, len(p))
	sum := 0
	for i, v := range p {
		scaled[i] = v * 100 / total
		sum += scaled[i]
		rems = append(rems, remainder{idx: i, frac: v * 100 % total})
	}

	sort.SliceStable(rems, func(i, j int) bool {
		return rems[i].frac > rems[j].frac
	})
	for i := 0; sum < 100; i++ {
		scaled[rems[i%len(rems)].idx]++
		sum++
	}

	s.SetPercentages(scaled)
	return s, true
}

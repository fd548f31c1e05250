// Package input loads job files. A file holds either a single job object or
// {"defaults": {...}, "jobs": [...]}; JSON and YAML are both accepted.
package input

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maltedev/amazon-review-scraper/internal/models"
)

var ErrNoJobs = errors.New("input contains no jobs")

const DefaultDomainCode = "com"

// Entry is one job as written in a file. Pointer fields distinguish "unset"
// from zero values so defaults can be layered underneath.
type Entry struct {
	ASIN            *string  `yaml:"asin"`
	ASINs           []string `yaml:"asins"`
	DomainCode      *string  `yaml:"domainCode"`
	MaxPages        *int     `yaml:"maxPages"`
	SortBy          *string  `yaml:"sortBy"`
	SortStrategy    *string  `yaml:"sortStrategy"`
	FilterByStar    *string  `yaml:"filterByStar"`
	FilterByKeyword *string  `yaml:"filterByKeyword"`
	MediaType       *string  `yaml:"mediaType"`
	VerifiedOnly    *bool    `yaml:"verifiedOnly"`
	WithMediaOnly   *bool    `yaml:"withMediaOnly"`
	Mock            *bool    `yaml:"mock"`
	Filters         *Entry   `yaml:"filters"`
}

type document struct {
	Entry    `yaml:",inline"`
	Defaults Entry   `yaml:"defaults"`
	Jobs     []Entry `yaml:"jobs"`
}

// Overrides come from the command line and replace file level defaults.
type Overrides struct {
	DomainCode   string
	MaxPages     int
	SortStrategy string
}

type Loader struct {
	logger *slog.Logger
}

func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger.With("component", "input")}
}

func (l *Loader) LoadFile(path string, o Overrides) ([]models.JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	jobs, err := l.Parse(data, o)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// Parse expands every entry into one JobConfig per ASIN, in file order.
// Entries without any ASIN are skipped with a warning.
func (l *Loader) Parse(data []byte, o Overrides) ([]models.JobConfig, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}

	defaults := doc.Defaults.flatten()
	if o.DomainCode != "" {
		defaults.DomainCode = &o.DomainCode
	}
	if o.MaxPages > 0 {
		defaults.MaxPages = &o.MaxPages
	}
	if o.SortStrategy != "" {
		defaults.SortStrategy = &o.SortStrategy
	}

	entries := doc.Jobs
	if len(entries) == 0 {
		entries = []Entry{doc.Entry}
	}

	var jobs []models.JobConfig
	for i, e := range entries {
		merged := e.flatten().over(defaults)
		asins := merged.asins()
		if len(asins) == 0 {
			l.logger.Warn("skipping job with no ASINs", "index", i)
			continue
		}
		for _, asin := range asins {
			jobs = append(jobs, merged.job(asin))
		}
	}

	if len(jobs) == 0 {
		return nil, ErrNoJobs
	}
	return jobs, nil
}

// flatten lifts a nested filters block to the top level, where the flat keys
// win, and folds the legacy sortBy key into sortStrategy.
func (e Entry) flatten() Entry {
	if e.SortStrategy == nil {
		e.SortStrategy = e.SortBy
	}
	e.SortBy = nil
	if e.Filters == nil {
		return e
	}
	nested := *e.Filters
	nested.Filters = nil
	e.Filters = nil
	return e.over(nested)
}

// over returns e with its unset fields taken from base.
func (e Entry) over(base Entry) Entry {
	if e.ASIN == nil && len(e.ASINs) == 0 {
		e.ASIN = base.ASIN
		e.ASINs = base.ASINs
	}
	if e.DomainCode == nil {
		e.DomainCode = base.DomainCode
	}
	if e.MaxPages == nil {
		e.MaxPages = base.MaxPages
	}
	if e.SortStrategy == nil {
		e.SortStrategy = base.SortStrategy
	}
	if e.FilterByStar == nil {
		e.FilterByStar = base.FilterByStar
	}
	if e.FilterByKeyword == nil {
		e.FilterByKeyword = base.FilterByKeyword
	}
	if e.MediaType == nil {
		e.MediaType = base.MediaType
	}
	if e.VerifiedOnly == nil {
		e.VerifiedOnly = base.VerifiedOnly
	}
	if e.WithMediaOnly == nil {
		e.WithMediaOnly = base.WithMediaOnly
	}
	if e.Mock == nil {
		e.Mock = base.Mock
	}
	return e
}

func (e Entry) asins() []string {
	var out []string
	for _, a := range e.ASINs {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	if len(out) == 0 && e.ASIN != nil && strings.TrimSpace(*e.ASIN) != "" {
		out = append(out, strings.TrimSpace(*e.ASIN))
	}
	return out
}

func (e Entry) job(asin string) models.JobConfig {
	job := models.JobConfig{
		ASIN:       asin,
		DomainCode: DefaultDomainCode,
	}
	if e.DomainCode != nil {
		job.DomainCode = *e.DomainCode
	}
	if e.MaxPages != nil {
		job.MaxPages = *e.MaxPages
	}
	if e.SortStrategy != nil {
		job.SortStrategy = *e.SortStrategy
	}
	if e.FilterByStar != nil {
		job.Filters.FilterByStar = *e.FilterByStar
	}
	if e.FilterByKeyword != nil {
		job.Filters.FilterByKeyword = *e.FilterByKeyword
	}
	if e.Mock != nil {
		job.Mock = *e.Mock
	}
	if e.VerifiedOnly != nil {
		job.Filters.VerifiedOnly = *e.VerifiedOnly
	}
	switch {
	case e.MediaType != nil:
		job.Filters.MediaType = *e.MediaType
	case e.WithMediaOnly != nil && *e.WithMediaOnly:
		job.Filters.MediaType = "media_reviews_only"
	}
	return job
}

package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxPagesCeiling is the review listing's hard page limit. No job ever goes past it.
const MaxPagesCeiling = 10

const (
	SortRecent  = "recent"
	SortHelpful = "helpful"
)

var ErrInvalidJob = errors.New("invalid job config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// JobConfig describes one product run. It is immutable for the duration of the job.
type JobConfig struct {
	ASIN         string  `json:"asin" yaml:"asin" validate:"required,alphanum,len=10"`
	DomainCode   string  `json:"domainCode" yaml:"domainCode" validate:"required"`
	Filters      Filters `json:"filters" yaml:"filters"`
	SortStrategy string  `json:"sortStrategy" yaml:"sortStrategy" validate:"omitempty,oneof=recent helpful"`
	MaxPages     int     `json:"maxPages,omitempty" yaml:"maxPages,omitempty" validate:"gte=0"`

	// Mock serves the job from synthetic listing pages instead of Amazon.
	Mock bool `json:"mock,omitempty" yaml:"mock,omitempty"`
}

// Filters narrows the review listing.
type Filters struct {
	FilterByStar    string `json:"filterByStar,omitempty" yaml:"filterByStar,omitempty"`
	FilterByKeyword string `json:"filterByKeyword,omitempty" yaml:"filterByKeyword,omitempty"`
	MediaType       string `json:"mediaType,omitempty" yaml:"mediaType,omitempty"`
	VerifiedOnly    bool   `json:"verifiedOnly,omitempty" yaml:"verifiedOnly,omitempty"`
}

// Normalize returns a copy with defaults applied and MaxPages clamped to the ceiling.
func (j JobConfig) Normalize() JobConfig {
	j.ASIN = strings.ToUpper(strings.TrimSpace(j.ASIN))
	j.DomainCode = strings.ToLower(strings.TrimSpace(j.DomainCode))
	j.SortStrategy = strings.ToLower(strings.TrimSpace(j.SortStrategy))
	if j.SortStrategy == "" {
		j.SortStrategy = SortRecent
	}
	if j.MaxPages == 0 || j.MaxPages > MaxPagesCeiling {
		j.MaxPages = MaxPagesCeiling
	}
	j.Filters.FilterByKeyword = strings.TrimSpace(j.Filters.FilterByKeyword)
	return j
}

// PageLimit is min(MaxPages, MaxPagesCeiling), treating zero as the ceiling.
func (j JobConfig) PageLimit() int {
	if j.MaxPages <= 0 || j.MaxPages > MaxPagesCeiling {
		return MaxPagesCeiling
	}
	return j.MaxPages
}

// Validate checks the structural constraints of the job.
func (j JobConfig) Validate() error {
	err := validate.Struct(j)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatValidationError(e))
	}
	return fmt.Errorf("%w: %s", ErrInvalidJob, strings.Join(msgs, "; "))
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "len":
		return fmt.Sprintf("%s must be %s characters", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", e.Field(), e.Param())
	case "alphanum":
		return fmt.Sprintf("%s must be alphanumeric", e.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", e.Field(), e.Tag())
	}
}

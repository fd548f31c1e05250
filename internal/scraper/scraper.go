package scraper

import (
	"context"
	"errors"
	"net/http"

	"github.com/maltedev/amazon-review-scraper/internal/fetch"
	"github.com/maltedev/amazon-review-scraper/internal/models"
	"github.com/maltedev/amazon-review-scraper/internal/query"
)

var ErrAlreadyEmitted = errors.New("result already emitted")

// Scraper runs one job to its single result record.
type Scraper interface {
	Run(ctx context.Context, job models.JobConfig) models.ResultRecord
}

// PageFetcher is satisfied by *fetch.Fetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, req query.Request) (*fetch.Response, error)
}

// Status is the terminal state reported in a result record.
type Status struct {
	Code    int
	Message string
}

var (
	StatusFound             = Status{http.StatusOK, "FOUND"}
	StatusPartial           = Status{http.StatusPartialContent, "PARTIAL"}
	StatusNotFound          = Status{http.StatusNotFound, "NOT_FOUND"}
	StatusBlocked           = Status{http.StatusServiceUnavailable, "BLOCKED"}
	StatusMalformed         = Status{http.StatusBadGateway, "MALFORMED"}
	StatusCancelled         = Status{http.StatusServiceUnavailable, "CANCELLED"}
	StatusUnsupportedDomain = Status{http.StatusBadRequest, "UNSUPPORTED_DOMAIN"}
	StatusInvalidFilter     = Status{http.StatusBadRequest, "INVALID_FILTER"}
	StatusInvalidJob        = Status{http.StatusBadRequest, "INVALID_JOB"}
	StatusInternalError     = Status{http.StatusInternalServerError, "INTERNAL_ERROR"}
)

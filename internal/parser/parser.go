package parser

import (
	"errors"

	"github.com/maltedev/amazon-review-scraper/internal/models"
)

var ErrNoReviewContent = errors.New("no review content found")

// Parser turns a review listing page into normalized records.
type Parser interface {
	Parse(content []byte) (*Page, error)
	// ParseFallback is a more lenient pass for pages Parse rejected.
	ParseFallback(content []byte) (*Page, error)
}

// Page is everything extracted from one listing page.
type Page struct {
	Summary models.ProductSummary
	Reviews []models.Review

	// Skipped counts review entries dropped for missing required fields.
	Skipped       int
	NextPageToken string
	HasNextPage   bool
}

package models

import (
	"bytes"
	"encoding/json"
)

// Review is one customer review as it appears in the canonical output schema.
type Review struct {
	ReviewID        string    `json:"reviewId"`
	Text            string    `json:"text"`
	Date            string    `json:"date"`
	Rating          string    `json:"rating"`
	Title           string    `json:"title"`
	UserName        string    `json:"userName"`
	NumberOfHelpful int       `json:"numberOfHelpful"`
	VariationID     string    `json:"variationId,omitempty"`
	ImageURLList    MediaList `json:"imageUrlList"`
	VideoURLList    MediaList `json:"videoUrlList"`
	VariationList   []string  `json:"variationList"`
	Verified        bool      `json:"verified"`
	Vine            bool      `json:"vine"`
}

// MediaList is an optional list of media URLs. The zero value is absent and
// encodes as null; a valid list encodes as an array, even when empty.
type MediaList struct {
	URLs  []string
	Valid bool
}

// NewMediaList returns an absent list when urls is empty.
func NewMediaList(urls []string) MediaList {
	if len(urls) == 0 {
		return MediaList{}
	}
	return MediaList{URLs: urls, Valid: true}
}

func (m MediaList) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	if m.URLs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m.URLs)
}

func (m *MediaList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = MediaList{}
		return nil
	}
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return err
	}
	if urls == nil {
		urls = []string{}
	}
	*m = MediaList{URLs: urls, Valid: true}
	return nil
}

// StarBucket is one histogram bar.
type StarBucket struct {
	Percentage int `json:"percentage"`
}

// ReviewSummary is the per-star percentage distribution of a product's ratings.
type ReviewSummary struct {
	FiveStar  StarBucket `json:"fiveStar"`
	FourStar  StarBucket `json:"fourStar"`
	ThreeStar StarBucket `json:"threeStar"`
	TwoStar   StarBucket `json:"twoStar"`
	OneStar   StarBucket `json:"oneStar"`
}

// Percentages returns the buckets ordered from five to one star.
func (s ReviewSummary) Percentages() [5]int {
	return [5]int{
		s.FiveStar.Percentage,
		s.FourStar.Percentage,
		s.ThreeStar.Percentage,
		s.TwoStar.Percentage,
		s.OneStar.Percentage,
	}
}

// SetPercentages is the inverse of Percentages.
func (s *ReviewSummary) SetPercentages(p [5]int) {
	s.FiveStar.Percentage = p[0]
	s.FourStar.Percentage = p[1]
	s.ThreeStar.Percentage = p[2]
	s.TwoStar.Percentage = p[3]
	s.OneStar.Percentage = p[4]
}

func (s ReviewSummary) Total() int {
	total := 0
	for _, p := range s.Percentages() {
		total += p
	}
	return total
}

// ProductSummary holds the product level fields shown above the review list.
type ProductSummary struct {
	ASIN          string         `json:"asin"`
	ProductTitle  string         `json:"productTitle"`
	ProductRating string         `json:"productRating"`
	ReviewSummary *ReviewSummary `json:"reviewSummary"`
	CountReviews  int            `json:"countReviews"`
	CountRatings  int            `json:"countRatings"`
}

// ResultRecord is the single output of one job.
type ResultRecord struct {
	StatusCode    int            `json:"statusCode"`
	StatusMessage string         `json:"statusMessage"`
	ASIN          string         `json:"asin"`
	ProductTitle  string         `json:"productTitle"`
	CurrentPage   int            `json:"currentPage"`
	SortStrategy  string         `json:"sortStrategy"`
	CountReviews  int            `json:"countReviews"`
	DomainCode    string         `json:"domainCode"`
	Filters       Filters        `json:"filters"`
	CountRatings  int            `json:"countRatings"`
	ProductRating string         `json:"productRating"`
	ReviewSummary *ReviewSummary `json:"reviewSummary"`
	Reviews       []Review       `json:"reviews"`
}

// Succeeded reports whether the job reached its success terminal state.
func (r ResultRecord) Succeeded() bool {
	return r.StatusCode == 200
}

package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/amazon-review-scraper/internal/models"
)

type AmazonParser struct {
	numberPattern  *regexp.Regexp
	digitsPattern  *regexp.Regexp
	percentPattern *regexp.Regexp
	asinPatterns   []*regexp.Regexp
	oneVote        []string
}

func NewAmazonParser() *AmazonParser {
	return &AmazonParser{
		numberPattern:  regexp.MustCompile(`\d+(?:[.,]\d+)?`),
		digitsPattern:  regexp.MustCompile(`\d[\d.,\s\x{00a0}\x{202f}]*`),
		percentPattern: regexp.MustCompile(`(\d+)\s*%`),
		asinPatterns: []*regexp.Regexp{
			regexp.MustCompile(`/(?:dp|product-reviews|gp/product)/([A-Z0-9]{10})`),
			regexp.MustCompile(`[?&](?:ASIN|asin)=([A-Z0-9]{10})`),
		},
		oneVote: []string{
			"one person",
			"eine person",
			"une personne",
			"una persona",
			"één persoon",
		},
	}
}

var (
	reviewSelector      = "[data-hook='review']"
	lenientSelector     = "div[id^='customer_review-'], div[id^='customer_review_foreign-']"
	reviewListSelector  = "#cm_cr-review_list"
	titleSelector       = "[data-hook='review-title'] span:not(.a-icon-alt)"
	ratingSelector      = "i[data-hook='review-star-rating'] span, i[data-hook='cmps-review-star-rating'] span"
	titleIconSelector   = "[data-hook='review-title'] .a-icon-alt"
	bodySelector        = "span[data-hook='review-body'] span"
	bodyLooseSelector   = "span[data-hook='review-body']"
	helpfulSelector     = "span[data-hook='helpful-vote-statement']"
	verifiedSelector    = "span[data-hook='avp-badge'], span[data-hook='avp-badge-linkless']"
	vineSelector        = "span[data-hook='vine-review-badge']"
	formatStripSelector = "a[data-hook='format-strip'], span[data-hook='format-strip-linkless']"
	imageSelector       = "img.review-image-tile"
	videoSelector       = "div[data-hook='video-cmp'] video source, div[data-hook='video-cmp'] video"
)

var starRows = [5]string{"five", "four", "three", "two", "one"}

// Parse extracts the product summary and reviews from a listing page.
func (p *AmazonParser) Parse(content []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	reviews := doc.Find(reviewSelector)
	hasListing := doc.Find(reviewListSelector).Length() > 0 || doc.Find("#histogramTable").Length() > 0
	if reviews.Length() == 0 && !hasListing {
		return nil, ErrNoReviewContent
	}

	return p.buildPage(doc, reviews), nil
}

// ParseFallback decodes the review list's AJAX chunk format, or failing that
// looks for review containers by element id.
func (p *AmazonParser) ParseFallback(content []byte) (*Page, error) {
	if fragments := decodeChunks(content); len(fragments) > 0 {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(strings.Join(fragments, "\n")))
		if err != nil {
			return nil, fmt.Errorf("failed to parse review chunks: %w", err)
		}
		reviews := doc.Find(reviewSelector)
		if reviews.Length() == 0 {
			reviews = doc.Find(lenientSelector)
		}
		if reviews.Length() == 0 && doc.Find(reviewListSelector).Length() == 0 {
			return nil, ErrNoReviewContent
		}
		return p.buildPage(doc, reviews), nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	reviews := doc.Find(lenientSelector)
	if reviews.Length() == 0 {
		return nil, ErrNoReviewContent
	}
	return p.buildPage(doc, reviews), nil
}

func (p *AmazonParser) buildPage(doc *goquery.Document, reviews *goquery.Selection) *Page {
	page := &Page{
		Summary: p.extractSummary(doc),
		Reviews: make([]models.Review, 0, reviews.Length()),
	}

	reviews.Each(func(_ int, s *goquery.Selection) {
		review, ok := p.extractReview(s)
		if !ok {
			page.Skipped++
			return
		}
		page.Reviews = append(page.Reviews, review)
	})

	page.Summary.CountReviews = len(page.Reviews)
	page.NextPageToken, page.HasNextPage = p.extractPagination(doc)
	return page
}

func (p *AmazonParser) extractReview(s *goquery.Selection) (models.Review, bool) {
	review := models.Review{
		VariationList: []string{},
	}

	id, _ := s.Attr("id")
	review.ReviewID = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(id), "customer_review_foreign-"), "customer_review-")

	review.Title = cleanText(s.Find(titleSelector).Last().Text())
	if review.Title == "" {
		review.Title = cleanText(s.Find("[data-hook='review-title']").First().Text())
	}

	ratingText := cleanText(s.Find(ratingSelector).First().Text())
	if ratingText == "" {
		ratingText = cleanText(s.Find(titleIconSelector).First().Text())
	}
	if !p.validRating(ratingText) {
		return review, false
	}
	review.Rating = ratingText

	body := s.Find(bodySelector)
	if body.Length() == 0 {
		body = s.Find(bodyLooseSelector)
	}
	body.Find("br").ReplaceWithHtml(" ")
	review.Text = cleanText(body.First().Text())

	if review.ReviewID == "" || review.Title == "" || review.Text == "" {
		return review, false
	}

	review.UserName = cleanText(s.Find("span.a-profile-name").First().Text())
	review.Date = cleanText(s.Find("span[data-hook='review-date']").First().Text())
	review.NumberOfHelpful = p.parseHelpful(s.Find(helpfulSelector).First().Text())
	review.Verified = s.Find(verifiedSelector).Length() > 0
	review.Vine = s.Find(vineSelector).Length() > 0

	strip := s.Find(formatStripSelector).First()
	if strip.Length() > 0 {
		review.VariationList = splitFormatStrip(strip)
		if href, ok := strip.Attr("href"); ok {
			review.VariationID = p.extractASIN(href)
		}
	}

	review.ImageURLList = models.NewMediaList(collectAttr(s.Find(imageSelector), "src", "data-src"))
	review.VideoURLList = models.NewMediaList(collectAttr(s.Find(videoSelector), "src", "data-video-url"))

	return review, true
}

// validRating accepts texts whose star value lies in 1..5.
func (p *AmazonParser) validRating(text string) bool {
	if text == "" {
		return false
	}
	numbers := p.numberPattern.FindAllString(text, -1)
	if len(numbers) == 0 {
		return false
	}
	raw := numbers[0]
	// "5つ星のうち4.0" puts the scale first.
	if strings.Contains(text, "のうち") && len(numbers) > 1 {
		raw = numbers[len(numbers)-1]
	}
	v, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil {
		return false
	}
	return v >= 1 && v <= 5
}

func (p *AmazonParser) parseHelpful(text string) int {
	text = cleanText(text)
	if text == "" {
		return 0
	}
	if m := p.digitsPattern.FindString(text); m != "" {
		if n, err := strconv.Atoi(digitsOnly(m)); err == nil {
			return n
		}
	}
	lower := strings.ToLower(text)
	for _, phrase := range p.oneVote {
		if strings.Contains(lower, phrase) {
			return 1
		}
	}
	return 0
}

func (p *AmazonParser) extractASIN(href string) string {
	for _, pattern := range p.asinPatterns {
		if m := pattern.FindStringSubmatch(href); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

func (p *AmazonParser) extractSummary(doc *goquery.Document) models.ProductSummary {
	var summary models.ProductSummary

	summary.ProductTitle = cleanText(doc.Find("#cm_cr-product_info .product-title, #cm_cr-product_info h1").First().Text())
	if summary.ProductTitle == "" {
		summary.ProductTitle = cleanText(doc.Find("a[data-hook='product-link']").First().Text())
	}
	if href, ok := doc.Find("a[data-hook='product-link']").First().Attr("href"); ok {
		summary.ASIN = p.extractASIN(href)
	}

	summary.ProductRating = cleanText(doc.Find("span[data-hook='rating-out-of-text']").First().Text())

	countText := doc.Find("div[data-hook='total-review-count'] span").First().Text()
	if strings.TrimSpace(countText) == "" {
		countText = doc.Find("[data-hook='cr-filter-info-review-rating-count']").First().Text()
	}
	summary.CountRatings = p.firstInt(countText)

	var percentages [5]int
	found := false
	for i, star := range starRows {
		text := doc.Find(fmt.Sprintf("table#histogramTable tr.%s-star .a-text-right", star)).First().Text()
		if m := p.percentPattern.FindStringSubmatch(text); len(m) > 1 {
			percentages[i], _ = strconv.Atoi(m[1])
			found = true
		}
	}
	if !found {
		doc.Find("#histogramTable .a-histogram-row, #histogramTable li").Each(func(i int, s *goquery.Selection) {
			if i >= len(percentages) {
				return
			}
			text := s.Text()
			if label, ok := s.Find("[aria-valuenow]").Attr("aria-valuenow"); ok {
				text = label + "%"
			}
			if m := p.percentPattern.FindStringSubmatch(text); len(m) > 1 {
				percentages[i], _ = strconv.Atoi(m[1])
				found = true
			}
		})
	}
	if found {
		rs := &models.ReviewSummary{}
		rs.SetPercentages(percentages)
		summary.ReviewSummary = rs
	}

	return summary
}

// firstInt reads the first number in text, dropping thousands separators.
func (p *AmazonParser) firstInt(text string) int {
	m := p.digitsPattern.FindString(text)
	if m == "" {
		return 0
	}
	n, _ := strconv.Atoi(digitsOnly(m))
	return n
}

func (p *AmazonParser) extractPagination(doc *goquery.Document) (string, bool) {
	next := doc.Find("[data-hook='pagination-bar'] li.a-last, ul.a-pagination li.a-last").First()
	if next.Length() == 0 || next.HasClass("a-disabled") {
		return "", false
	}

	href, ok := next.Find("a").First().Attr("href")
	if !ok {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", true
	}
	return u.Query().Get("nextPageToken"), true
}

func splitFormatStrip(strip *goquery.Selection) []string {
	parts := []string{}
	var current strings.Builder
	flush := func() {
		if text := cleanText(current.String()); text != "" {
			parts = append(parts, text)
		}
		current.Reset()
	}

	strip.Contents().Each(func(_ int, s *goquery.Selection) {
		if s.Is("i.a-icon-text-separator") {
			flush()
			return
		}
		current.WriteString(s.Text())
		current.WriteString(" ")
	})
	flush()
	return parts
}

func collectAttr(sel *goquery.Selection, attrs ...string) []string {
	var out []string
	seen := make(map[string]bool)
	sel.Each(func(_ int, s *goquery.Selection) {
		for _, attr := range attrs {
			v, ok := s.Attr(attr)
			v = strings.TrimSpace(v)
			if !ok || v == "" {
				continue
			}
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
			return
		}
	})
	return out
}

// decodeChunks returns the HTML fragments of "append"/"update" chunks in an AJAX response.
func decodeChunks(content []byte) []string {
	var fragments []string
	for _, chunk := range bytes.Split(content, []byte("&&&")) {
		chunk = bytes.TrimSpace(chunk)
		if len(chunk) == 0 || chunk[0] != '[' {
			continue
		}
		var parts []string
		if err := json.Unmarshal(chunk, &parts); err != nil {
			continue
		}
		if len(parts) < 3 {
			continue
		}
		if parts[0] == "append" || parts[0] == "update" {
			fragments = append(fragments, parts[2])
		}
	}
	return fragments
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

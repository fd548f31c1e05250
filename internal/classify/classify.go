// Package classify decides what kind of page a fetch returned.
package classify

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Kind int

const (
	Normal Kind = iota
	Challenge
	RateLimited
	NotFound
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Challenge:
		return "challenge"
	case RateLimited:
		return "rate_limited"
	case NotFound:
		return "not_found"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt at the same page may succeed.
func (k Kind) Retryable() bool {
	return k == Challenge || k == RateLimited
}

type Verdict struct {
	Kind   Kind
	Reason string
}

type Classifier interface {
	Classify(statusCode int, body []byte) Verdict
}

var challengeSelectors = []string{
	"#captchacharacters",
	"form[action*='Captcha']",
	"form[action*='validateCaptcha']",
	"input[name='amzn-captcha-verify']",
}

var challengeText = []string{
	"Type the characters you see in this image",
	"Enter the characters you see below",
	"Geben Sie die Zeichen unten ein",
	"api-services-support@amazon.com",
}

// Interstitials that only count when the page has no review content.
var interstitialText = []string{
	"Click the button below to continue shopping",
	"Klicke auf die Schaltfläche unten",
	"Weiter shoppen",
}

var notFoundSelectors = []string{
	"#g img[alt*='Dogs of Amazon']",
	"a[href*='/ref=cs_404_logo']",
}

var notFoundText = []string{
	"Looking for something?",
	"We're sorry. The Web address you entered is not a functioning page on our site",
	"Suchen Sie bestimmte Informationen?",
	"Tut uns Leid!",
}

var contentSelectors = []string{
	"#cm_cr-review_list",
	"[data-hook='review']",
	"#histogramTable",
	"[data-hook='cr-filter-info-review-rating-count']",
	"[data-hook='product-link']",
}

// ajaxMarker separates chunks of the review list's AJAX response.
const ajaxMarker = "&&&"

// Heuristic classifies by status code, then by well-known markers in the body.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Classify(statusCode int, body []byte) Verdict {
	if statusCode == http.StatusNotFound {
		return Verdict{Kind: NotFound, Reason: "status 404"}
	}
	if statusCode == http.StatusTooManyRequests {
		return Verdict{Kind: RateLimited, Reason: "status 429"}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && bytes.Contains(trimmed, []byte(ajaxMarker)) && bytes.HasPrefix(trimmed, []byte("[")) {
		if statusCode >= 200 && statusCode < 300 {
			return Verdict{Kind: Normal, Reason: "ajax review chunks"}
		}
	}

	var doc *goquery.Document
	if len(trimmed) > 0 {
		doc, _ = goquery.NewDocumentFromReader(bytes.NewReader(trimmed))
	}

	if reason, ok := challengeMarker(doc, trimmed); ok {
		return Verdict{Kind: Challenge, Reason: reason}
	}
	if statusCode == http.StatusForbidden {
		return Verdict{Kind: Challenge, Reason: "status 403"}
	}
	if statusCode >= 500 {
		return Verdict{Kind: RateLimited, Reason: "server error"}
	}
	if len(trimmed) == 0 {
		return Verdict{Kind: Malformed, Reason: "empty body"}
	}
	if reason, ok := notFoundMarker(doc, trimmed); ok {
		return Verdict{Kind: NotFound, Reason: reason}
	}
	if statusCode >= 400 {
		return Verdict{Kind: Malformed, Reason: "unexpected status " + http.StatusText(statusCode)}
	}
	if doc != nil {
		for _, sel := range contentSelectors {
			if doc.Find(sel).Length() > 0 {
				return Verdict{Kind: Normal, Reason: "matched " + sel}
			}
		}
	}
	for _, text := range interstitialText {
		if bytes.Contains(trimmed, []byte(text)) {
			return Verdict{Kind: Challenge, Reason: "interstitial " + text}
		}
	}
	return Verdict{Kind: Malformed, Reason: "no review content"}
}

func challengeMarker(doc *goquery.Document, body []byte) (string, bool) {
	if doc != nil {
		for _, sel := range challengeSelectors {
			if doc.Find(sel).Length() > 0 {
				return "matched " + sel, true
			}
		}
		title := strings.ToLower(doc.Find("title").First().Text())
		if strings.Contains(title, "robot check") || strings.Contains(title, "captcha") {
			return "robot check title", true
		}
	}
	for _, text := range challengeText {
		if bytes.Contains(body, []byte(text)) {
			return "text " + text, true
		}
	}
	return "", false
}

func notFoundMarker(doc *goquery.Document, body []byte) (string, bool) {
	if doc != nil {
		for _, sel := range notFoundSelectors {
			if doc.Find(sel).Length() > 0 {
				return "matched " + sel, true
			}
		}
		title := strings.ToLower(doc.Find("title").First().Text())
		if strings.Contains(title, "page not found") || strings.Contains(title, "seite wurde nicht gefunden") {
			return "not found title", true
		}
	}
	for _, text := range notFoundText {
		if bytes.Contains(body, []byte(text)) {
			return "text " + text, true
		}
	}
	return "", false
}

// ChallengePage describes an anti-bot page the controller wants cleared.
type ChallengePage struct {
	URL        string
	StatusCode int
	Body       []byte
	Reason     string
	Attempt    int
}

// Clearance is what a resolver hands back. Clearance cookies are usually bound
// to the user agent that solved the challenge, so UserAgent is kept with them.
type Clearance struct {
	Cookies   []*http.Cookie
	UserAgent string
}

// ChallengeResolver is an optional hook for clearing challenges (manual, solver service, browser).
type ChallengeResolver interface {
	Resolve(ctx context.Context, challenge ChallengePage) (Clearance, error)
}

// ResolverFunc adapts a function to ChallengeResolver.
type ResolverFunc func(ctx context.Context, challenge ChallengePage) (Clearance, error)

func (f ResolverFunc) Resolve(ctx context.Context, challenge ChallengePage) (Clearance, error) {
	return f(ctx, challenge)
}

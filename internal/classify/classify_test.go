package classify

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewPage = `<html><head><title>Amazon.co.uk:Customer reviews</title></head><body>
<div id="cm_cr-review_list"><div data-hook="review" id="R1"></div></div>
</body></html>`

const captchaPage = `<html><head><title>Amazon.co.uk</title></head><body>
<form method="get" action="/errors/validateCaptcha">
<h4>Type the characters you see in this image:</h4>
<input id="captchacharacters" name="field-keywords">
</form></body></html>`

const robotPage = `<html><head><title>Robot Check</title></head><body>Sorry, we just need to make sure you're not a robot.</body></html>`

const continuePage = `<html><head><title>Amazon.de</title></head><body>
<p>Klicke auf die Schaltfläche unten, um mit dem Einkaufen fortzufahren.</p>
<button class="a-button-text">Weiter shoppen</button></body></html>`

const dogsPage = `<html><head><title>Page Not Found</title></head><body>
<div id="g"><a href="/ref=cs_404_logo"><img alt="Dogs of Amazon"></a></div>
<b>Looking for something?</b></body></html>`

func TestHeuristicClassify(t *testing.T) {
	h := NewHeuristic()

	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"review page", http.StatusOK, reviewPage, Normal},
		{"histogram only", http.StatusOK, `<table id="histogramTable"></table>`, Normal},
		{"ajax chunks", http.StatusOK, `["script","if(window.ue) { ue.count(\"foo\",1); }"]&&&["append","#cm_cr-review_list","<div></div>"]&&&`, Normal},
		{"captcha form", http.StatusOK, captchaPage, Challenge},
		{"robot title", http.StatusOK, robotPage, Challenge},
		{"continue shopping interstitial", http.StatusOK, continuePage, Challenge},
		{"forbidden", http.StatusForbidden, "<html><body>denied</body></html>", Challenge},
		{"captcha with 503", http.StatusServiceUnavailable, captchaPage, Challenge},
		{"too many requests", http.StatusTooManyRequests, "", RateLimited},
		{"service unavailable", http.StatusServiceUnavailable, "<html><body>oops</body></html>", RateLimited},
		{"status 404", http.StatusNotFound, reviewPage, NotFound},
		{"dogs of amazon", http.StatusOK, dogsPage, NotFound},
		{"empty body", http.StatusOK, "   ", Malformed},
		{"unrelated html", http.StatusOK, "<html><body><p>hello</p></body></html>", Malformed},
		{"bad request", http.StatusBadRequest, "<html><body>bad</body></html>", Malformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := h.Classify(tt.status, []byte(tt.body))
			assert.Equal(t, tt.want, v.Kind, v.Reason)
			assert.NotEmpty(t, v.Reason)
		})
	}
}

func TestReviewPageWithShoppingTextIsNormal(t *testing.T) {
	body := `<html><body><div id="cm_cr-review_list"></div><a>Weiter shoppen</a></body></html>`
	assert.Equal(t, Normal, NewHeuristic().Classify(http.StatusOK, []byte(body)).Kind)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "normal", Normal.String())
	assert.Equal(t, "challenge", Challenge.String())
	assert.Equal(t, "rate_limited", RateLimited.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "malformed", Malformed.String())
	assert.Equal(t, "unknown", Kind(99).String())

	assert.True(t, Challenge.Retryable())
	assert.True(t, RateLimited.Retryable())
	assert.False(t, Normal.Retryable())
	assert.False(t, NotFound.Retryable())
	assert.False(t, Malformed.Retryable())
}

func TestResolverFunc(t *testing.T) {
	var got ChallengePage
	r := ResolverFunc(func(ctx context.Context, c ChallengePage) (Clearance, error) {
		got = c
		return Clearance{UserAgent: "solver/1.0", Cookies: []*http.Cookie{{Name: "x", Value: "y"}}}, nil
	})

	clearance, err := r.Resolve(context.Background(), ChallengePage{URL: "https://www.amazon.de/", Attempt: 2})
	require.NoError(t, err)
	assert.Equal(t, "solver/1.0", clearance.UserAgent)
	assert.Equal(t, 2, got.Attempt)
}

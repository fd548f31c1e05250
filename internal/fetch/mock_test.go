package fetch

import (
	"context"
	"math/rand"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-review-scraper/internal/classify"
	"github.com/maltedev/amazon-review-scraper/internal/models"
	"github.com/maltedev/amazon-review-scraper/internal/parser"
	"github.com/maltedev/amazon-review-scraper/internal/query"
)

func mockRequest(t *testing.T, asin, domain string, page int) query.Request {
	t.Helper()
	req, err := query.NewBuilder(nil).Build(models.JobConfig{
		ASIN:       asin,
		DomainCode: domain,
		Mock:       true,
	}, page, query.Session{})
	require.NoError(t, err)
	return req
}

func TestMockTransportIsDeterministic(t *testing.T) {
	m := NewMockTransport()
	ctx := context.Background()

	first, err := m.RoundTrip(ctx, mockRequest(t, "B086K4ZMT3", "com", 1), nil)
	require.NoError(t, err)
	second, err := m.RoundTrip(ctx, mockRequest(t, "B086K4ZMT3", "com", 1), nil)
	require.NoError(t, err)
	assert.Equal(t, first.Body, second.Body)

	otherASIN, err := m.RoundTrip(ctx, mockRequest(t, "B000000001", "com", 1), nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.Body, otherASIN.Body)

	otherDomain, err := m.RoundTrip(ctx, mockRequest(t, "B086K4ZMT3", "de", 1), nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.Body, otherDomain.Body)
}

func TestMockTransportPagesParse(t *testing.T) {
	m := NewMockTransport()
	p := parser.NewAmazonParser()
	c := classify.NewHeuristic()
	ctx := context.Background()

	seen := map[string]bool{}
	page := 1
	for ; page <= 10; page++ {
		raw, err := m.RoundTrip(ctx, mockRequest(t, "B086K4ZMT3", "co.uk", page), nil)
		require.NoError(t, err)
		assert.Equal(t, 200, raw.StatusCode)
		assert.Equal(t, classify.Normal, c.Classify(raw.StatusCode, raw.Body).Kind)

		parsed, err := p.Parse(raw.Body)
		require.NoError(t, err)
		assert.Zero(t, parsed.Skipped)
		assert.GreaterOrEqual(t, len(parsed.Reviews), 5)
		assert.LessOrEqual(t, len(parsed.Reviews), 12)
		assert.Equal(t, "B086K4ZMT3", parsed.Summary.ASIN)
		assert.Equal(t, "Mock Product for B086K4ZMT3", parsed.Summary.ProductTitle)
		require.NotNil(t, parsed.Summary.ReviewSummary)

		for _, r := range parsed.Reviews {
			assert.Regexp(t, `^R\d{13}$`, r.ReviewID)
			assert.Equal(t, "B086K4ZMT3", r.VariationID)
			assert.Len(t, r.VariationList, 1)
			assert.Contains(t, r.Text, r.ReviewID)
			seen[r.ReviewID] = true
		}

		if !parsed.HasNextPage {
			break
		}
		assert.Equal(t, "mock-"+strconv.Itoa(page+1), parsed.NextPageToken)
	}

	assert.GreaterOrEqual(t, page, 2)
	assert.LessOrEqual(t, page, 5)
	assert.NotEmpty(t, seen)
}

func TestMockHistogramSumsToHundred(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		h := mockHistogram(rand.New(rand.NewSource(seed)))
		sum := 0
		for _, p := range h {
			assert.GreaterOrEqual(t, p, 0)
			sum += p
		}
		assert.Equal(t, 100, sum, "seed %d", seed)
		assert.GreaterOrEqual(t, h[0], 50)
	}
}

func TestMockTransportHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockTransport().RoundTrip(ctx, mockRequest(t, "B086K4ZMT3", "com", 1), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMockRouter(t *testing.T) {
	live := &fakeTransport{fn: respond(200, reviewHTML)}
	mock := &fakeTransport{fn: respond(200, reviewHTML)}
	router := MockRouter{Live: live, Mock: mock}
	proxyURL, _ := url.Parse("http://proxy.local:8080")

	_, err := router.RoundTrip(context.Background(), mockRequest(t, "B086K4ZMT3", "com", 1), nil)
	require.NoError(t, err)
	_, err = router.RoundTrip(context.Background(), testRequest(t), proxyURL)
	require.NoError(t, err)

	assert.Len(t, mock.proxies, 1)
	require.Len(t, live.proxies, 1)
	assert.Equal(t, proxyURL, live.proxies[0])
}

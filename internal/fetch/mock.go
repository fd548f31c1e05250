package fetch

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/amazon-review-scraper/internal/query"
)

var mockUserNames = []string{"Alex", "Jordan", "Taylor", "Sam", "Casey", "Riley"}

var mockVariations = []string{"Color: Black", "Size: Large", "Style: Single"}

// MockTransport renders synthetic review listings without touching the network.
// Output depends only on the ASIN, the marketplace host and the page number,
// so repeated runs produce identical records.
type MockTransport struct{}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) RoundTrip(ctx context.Context, req query.Request, _ *url.URL) (*RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	asin, host, page := req.ASIN(), req.Host(), req.Page()
	product := rand.New(rand.NewSource(mockSeed(asin, host, 0)))
	pages := 2 + product.Intn(4)
	rating := 3.8 + product.Float64()*1.1
	ratings := (5 + product.Intn(11)) * pages * 10

	var b strings.Builder
	b.WriteString(`<html><head><title>Amazon.com: Customer reviews</title></head><body><div id="cm_cr-product_info">`)
	fmt.Fprintf(&b, `<h1><a data-hook="product-link" href="/dp/%s">Mock Product for %s</a></h1>`, asin, asin)
	fmt.Fprintf(&b, `<span data-hook="rating-out-of-text">%.1f out of 5</span>`, rating)
	fmt.Fprintf(&b, `<div data-hook="total-review-count"><span>%d global ratings</span></div>`, ratings)
	b.WriteString(`<table id="histogramTable">`)
	for i, pct := range mockHistogram(product) {
		fmt.Fprintf(&b, `<tr class="%s-star"><td class="a-text-right">%d%%</td></tr>`, starClasses[i], pct)
	}
	b.WriteString(`</table></div><div id="cm_cr-review_list">`)

	if page <= pages {
		rnd := rand.New(rand.NewSource(mockSeed(asin, host, page)))
		size := 5 + rnd.Intn(8)
		for i := 0; i < size; i++ {
			writeMockReview(&b, rnd, asin)
		}
	}

	b.WriteString(`</div><ul class="a-pagination">`)
	if page < pages {
		fmt.Fprintf(&b, `<li class="a-last"><a href="/product-reviews/%s/ref=cm_cr_arp_d_paging_btm_next_%d?pageNumber=%d&amp;nextPageToken=mock-%d">Next page</a></li>`,
			asin, page+1, page+1, page+1)
	} else {
		b.WriteString(`<li class="a-last a-disabled">Next page</li>`)
	}
	b.WriteString(`</ul></body></html>`)

	header := http.Header{}
	header.Set("Content-Type", "text/html;charset=UTF-8")
	return &RawResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(b.String()),
		Header:     header,
		URL:        req.URL(),
	}, nil
}

var starClasses = [5]string{"five", "four", "three", "two", "one"}

// mockHistogram draws five percentages that add up to 100.
func mockHistogram(rnd *rand.Rand) [5]int {
	var p [5]int
	p[0] = 50 + rnd.Intn(41)
	rest := 100 - p[0]
	for i, ceiling := range []int{30, 15, 5} {
		if ceiling > rest {
			ceiling = rest
		}
		p[i+1] = rnd.Intn(ceiling + 1)
		rest -= p[i+1]
	}
	p[4] = rest
	return p
}

func writeMockReview(b *strings.Builder, rnd *rand.Rand, asin string) {
	id := fmt.Sprintf("R%013d", 1_000_000_000_000+rnd.Int63n(9_000_000_000_000))
	stars := 1 + rnd.Intn(5)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, rnd.Intn(365))
	helpful := rnd.Intn(26)

	fmt.Fprintf(b, `<div id="%s" data-hook="review">`, id)
	fmt.Fprintf(b, `<span class="a-profile-name">%s</span>`, mockUserNames[rnd.Intn(len(mockUserNames))])
	fmt.Fprintf(b, `<a data-hook="review-title"><span>Great product (%d★)</span></a>`, stars)
	fmt.Fprintf(b, `<i data-hook="review-star-rating"><span class="a-icon-alt">%d.0 out of 5 stars</span></i>`, stars)
	fmt.Fprintf(b, `<span data-hook="review-date">Reviewed on %s</span>`, date.Format("02 January 2006"))
	fmt.Fprintf(b, `<a data-hook="format-strip" href="/product-reviews/%s/ref=cm_cr_arp_d_rvw_fmt">%s</a>`,
		asin, mockVariations[rnd.Intn(len(mockVariations))])
	if rnd.Intn(3) != 0 {
		b.WriteString(`<span data-hook="avp-badge">Verified Purchase</span>`)
	}
	fmt.Fprintf(b, `<span data-hook="review-body"><span>This is a mock review text %s for ASIN %s. Works well.</span></span>`, id, asin)
	switch helpful {
	case 0:
	case 1:
		b.WriteString(`<span data-hook="helpful-vote-statement">One person found this helpful</span>`)
	default:
		fmt.Fprintf(b, `<span data-hook="helpful-vote-statement">%d people found this helpful</span>`, helpful)
	}
	b.WriteString(`</div>`)
}

func mockSeed(asin, host string, page int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", asin, host, page)
	return int64(h.Sum64())
}

// MockRouter serves requests of mock jobs from Mock and all others from Live.
type MockRouter struct {
	Live Transport
	Mock Transport
}

func (r MockRouter) RoundTrip(ctx context.Context, req query.Request, proxyURL *url.URL) (*RawResponse, error) {
	if req.Mock() {
		return r.Mock.RoundTrip(ctx, req, proxyURL)
	}
	return r.Live.RoundTrip(ctx, req, proxyURL)
}

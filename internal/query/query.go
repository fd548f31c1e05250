// Package query builds review listing requests for a job and page.
package query

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/maltedev/amazon-review-scraper/internal/marketplace"
	"github.com/maltedev/amazon-review-scraper/internal/models"
)

var (
	ErrInvalidFilter = errors.New("invalid filter")
	ErrInvalidPage   = errors.New("invalid page number")
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var starFilters = map[string]string{
	"all_stars":  "all_stars",
	"five_star":  "five_star",
	"four_star":  "four_star",
	"three_star": "three_star",
	"two_star":   "two_star",
	"one_star":   "one_star",
	"positive":   "positive",
	"critical":   "critical",
	"5":          "five_star",
	"4":          "four_star",
	"3":          "three_star",
	"2":          "two_star",
	"1":          "one_star",
}

var mediaTypes = map[string]bool{
	"all_contents":       true,
	"media_reviews_only": true,
}

var sortParams = map[string]string{
	models.SortRecent:  "recent",
	models.SortHelpful: "helpful",
}

// Session carries state that page n hands to page n+1.
type Session struct {
	// Token is the listing's nextPageToken.
	Token   string
	Cookies []*http.Cookie
	// UserAgent pins the User-Agent once a challenge was cleared for it.
	UserAgent string
}

// Merge returns a session with other's token and user agent (when set) and
// cookies layered on top.
func (s Session) Merge(other Session) Session {
	merged := Session{Token: s.Token, UserAgent: s.UserAgent}
	if other.Token != "" {
		merged.Token = other.Token
	}
	if other.UserAgent != "" {
		merged.UserAgent = other.UserAgent
	}

	byName := make(map[string]int)
	for _, c := range s.Cookies {
		byName[c.Name] = len(merged.Cookies)
		merged.Cookies = append(merged.Cookies, copyCookie(c))
	}
	for _, c := range other.Cookies {
		if i, ok := byName[c.Name]; ok {
			merged.Cookies[i] = copyCookie(c)
			continue
		}
		byName[c.Name] = len(merged.Cookies)
		merged.Cookies = append(merged.Cookies, copyCookie(c))
	}
	return merged
}

func copyCookie(c *http.Cookie) *http.Cookie {
	cp := *c
	return &cp
}

// Request is a fully specified page request. It is not modified after Build.
type Request struct {
	url     string
	page    int
	asin    string
	headers http.Header
	cookies []*http.Cookie
	mock    bool
}

func (r Request) URL() string { return r.url }

// Mock reports whether the request belongs to a mock job.
func (r Request) Mock() bool { return r.mock }

// Page is 1-based.
func (r Request) Page() int { return r.page }

func (r Request) ASIN() string { return r.asin }

func (r Request) Host() string {
	u, err := url.Parse(r.url)
	if err != nil {
		return ""
	}
	return u.Host
}

func (r Request) Headers() http.Header { return r.headers.Clone() }

func (r Request) Cookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(r.cookies))
	for _, c := range r.cookies {
		out = append(out, copyCookie(c))
	}
	return out
}

type Builder struct {
	userAgents []string
}

func NewBuilder(userAgents []string) *Builder {
	var agents []string
	for _, ua := range userAgents {
		if ua = strings.TrimSpace(ua); ua != "" {
			agents = append(agents, ua)
		}
	}
	if len(agents) == 0 {
		agents = []string{DefaultUserAgent}
	}
	return &Builder{userAgents: agents}
}

// Build produces the request for page (1-based) of job. It is a pure function of its inputs.
func (b *Builder) Build(job models.JobConfig, page int, session Session) (Request, error) {
	if page < 1 || page > models.MaxPagesCeiling {
		return Request{}, fmt.Errorf("%w: %d outside 1..%d", ErrInvalidPage, page, models.MaxPagesCeiling)
	}

	m, err := marketplace.Resolve(job.DomainCode)
	if err != nil {
		return Request{}, err
	}

	params, err := Params(job)
	if err != nil {
		return Request{}, err
	}
	params.Set("pageNumber", strconv.Itoa(page))
	if session.Token != "" {
		params.Set("nextPageToken", session.Token)
	}

	asin := strings.ToUpper(strings.TrimSpace(job.ASIN))
	u := fmt.Sprintf("%s/product-reviews/%s/ref=cm_cr_arp_d_paging_btm_next_%d?%s",
		m.BaseURL(), url.PathEscape(asin), page, params.Encode())

	headers := http.Header{}
	userAgent := session.UserAgent
	if userAgent == "" {
		userAgent = b.userAgent(asin, page)
	}
	headers.Set("User-Agent", userAgent)
	headers.Set("Accept-Language", m.AcceptLanguage)
	headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	cookies := make([]*http.Cookie, 0, len(session.Cookies))
	for _, c := range session.Cookies {
		cookies = append(cookies, copyCookie(c))
	}

	return Request{
		url:     u,
		page:    page,
		asin:    asin,
		headers: headers,
		cookies: cookies,
		mock:    job.Mock,
	}, nil
}

func (b *Builder) userAgent(asin string, page int) string {
	if len(b.userAgents) == 1 {
		return b.userAgents[0]
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%s/%d", asin, page)
	return b.userAgents[int(h.Sum32()%uint32(len(b.userAgents)))]
}

// Params validates the job's filters and sort and returns the matching query parameters.
func Params(job models.JobConfig) (url.Values, error) {
	v := url.Values{}

	sortStrategy := strings.ToLower(strings.TrimSpace(job.SortStrategy))
	if sortStrategy == "" {
		sortStrategy = models.SortRecent
	}
	sortBy, ok := sortParams[sortStrategy]
	if !ok {
		return nil, fmt.Errorf("%w: sortStrategy %q", ErrInvalidFilter, job.SortStrategy)
	}
	v.Set("sortBy", sortBy)

	if star := strings.ToLower(strings.TrimSpace(job.Filters.FilterByStar)); star != "" {
		mapped, ok := starFilters[star]
		if !ok {
			return nil, fmt.Errorf("%w: filterByStar %q", ErrInvalidFilter, job.Filters.FilterByStar)
		}
		v.Set("filterByStar", mapped)
	}

	if kw := strings.TrimSpace(job.Filters.FilterByKeyword); kw != "" {
		v.Set("filterByKeyword", kw)
	}

	if job.Filters.VerifiedOnly {
		v.Set("reviewerType", "avp_only_reviews")
	} else {
		v.Set("reviewerType", "all_reviews")
	}

	if media := strings.ToLower(strings.TrimSpace(job.Filters.MediaType)); media != "" {
		if !mediaTypes[media] {
			return nil, fmt.Errorf("%w: mediaType %q", ErrInvalidFilter, job.Filters.MediaType)
		}
		v.Set("mediaType", media)
	}

	return v, nil
}

package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/maltedev/amazon-review-scraper/internal/query"
)

type CollyConfig struct {
	Timeout     time.Duration
	MaxBodySize int
}

func DefaultCollyConfig() CollyConfig {
	return CollyConfig{
		Timeout:     30 * time.Second,
		MaxBodySize: 10 * 1024 * 1024,
	}
}

// CollyTransport fetches pages with a fresh colly collector per request.
type CollyTransport struct {
	config CollyConfig
	// roundTripper builds the HTTP transport for a proxy. Tests swap it for httpmock.
	roundTripper func(proxyURL *url.URL) http.RoundTripper
}

func NewCollyTransport(cfg CollyConfig) *CollyTransport {
	def := DefaultCollyConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = def.MaxBodySize
	}
	return &CollyTransport{
		config:       cfg,
		roundTripper: proxyTransport,
	}
}

func proxyTransport(proxyURL *url.URL) http.RoundTripper {
	return &http.Transport{
		Proxy: http.ProxyURL(proxyURL),
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		IdleConnTimeout:       30 * time.Second,
		MaxIdleConns:          4,
	}
}

// contextTransport binds every outgoing request to ctx.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func (t *CollyTransport) RoundTrip(ctx context.Context, req query.Request, proxyURL *url.URL) (*RawResponse, error) {
	headers := req.Headers()
	c := colly.NewCollector(
		colly.UserAgent(headers.Get("User-Agent")),
		colly.MaxBodySize(t.config.MaxBodySize),
	)
	c.SetRequestTimeout(t.config.Timeout)
	c.ParseHTTPErrorResponse = true
	c.DisableCookies()
	c.WithTransport(&contextTransport{ctx: ctx, base: t.roundTripper(proxyURL)})

	cookieHeader := encodeCookies(req.Cookies())
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		for k, vs := range headers {
			if k == "User-Agent" {
				continue
			}
			r.Headers.Del(k)
			for _, v := range vs {
				r.Headers.Add(k, v)
			}
		}
		if cookieHeader != "" {
			r.Headers.Set("Cookie", cookieHeader)
		}
	})

	var result *RawResponse
	c.OnResponse(func(r *colly.Response) {
		header := http.Header{}
		if r.Headers != nil {
			header = r.Headers.Clone()
		}
		result = &RawResponse{
			StatusCode: r.StatusCode,
			Body:       r.Body,
			Header:     header,
			Cookies:    (&http.Response{Header: header}).Cookies(),
			URL:        r.Request.URL.String(),
		}
	})

	var fetchErr error
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(req.URL()); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("visit %s: %w", req.URL(), ctxErr)
		}
		return nil, fmt.Errorf("visit %s: %w", req.URL(), err)
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("visit %s: %w", req.URL(), fetchErr)
	}
	if result == nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("visit %s: %w", req.URL(), err)
		}
		return nil, fmt.Errorf("visit %s: no response", req.URL())
	}
	return result, nil
}

func encodeCookies(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

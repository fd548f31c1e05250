package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/amazon-review-scraper/internal/fetch"
	"github.com/maltedev/amazon-review-scraper/internal/query"
)

// Transport renders review pages in headless Chromium. It implements fetch.Transport.
type Transport struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	// ClickThrough follows "continue shopping" interstitials before reading the page.
	ClickThrough bool
	ExtraHeaders map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		ClickThrough:   true,
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

var interstitialMarkers = []string{
	"Klicke auf die Schaltfläche unten",
	"Click the button below to continue shopping",
}

var continueButtons = []string{
	`button:has-text("Weiter shoppen")`,
	`button:has-text("Continue shopping")`,
	`input[type="submit"][value*="Weiter"]`,
	`.a-button-primary`,
	`button.a-button-text`,
}

func New(opts *Options, logger *slog.Logger) (*Transport, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Transport{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

// RoundTrip opens a fresh browser context for the request so proxy and cookies never leak between leases.
func (t *Transport) RoundTrip(ctx context.Context, req query.Request, proxyURL *url.URL) (*fetch.RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	headers := req.Headers()
	userAgent := headers.Get("User-Agent")
	extra := make(map[string]string, len(t.opts.ExtraHeaders)+1)
	for k, v := range t.opts.ExtraHeaders {
		extra[k] = v
	}
	if lang := headers.Get("Accept-Language"); lang != "" {
		extra["Accept-Language"] = lang
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(userAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  t.opts.ViewportWidth,
			Height: t.opts.ViewportHeight,
		},
		ExtraHttpHeaders: extra,
		Proxy:            proxySettings(proxyURL),
	}

	bctx, err := t.browser.NewContext(contextOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	defer bctx.Close()

	if cookies := optionalCookies(req.URL(), req.Cookies()); len(cookies) > 0 {
		if err := bctx.AddCookies(cookies); err != nil {
			return nil, fmt.Errorf("failed to add cookies: %w", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	timeout := timeoutFor(ctx, t.opts.Timeout)
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))

	resp, err := page.Goto(req.URL(), playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, fmt.Errorf("navigate %s: %w", req.URL(), context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("navigate %s: %w", req.URL(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to get page content: %w", err)
	}

	if t.opts.ClickThrough && isInterstitial(content) {
		if cleared, ok := t.clickThrough(page); ok {
			content = cleared
		}
	}

	status := http.StatusOK
	header := http.Header{}
	if resp != nil {
		status = resp.Status()
		for k, v := range resp.Headers() {
			header.Set(k, v)
		}
	}

	var cookies []*http.Cookie
	if pwCookies, err := bctx.Cookies(req.URL()); err == nil {
		cookies = httpCookies(pwCookies)
	} else {
		t.logger.Debug("failed to read cookies", "error", err)
	}

	return &fetch.RawResponse{
		StatusCode: status,
		Body:       []byte(content),
		Header:     header,
		Cookies:    cookies,
		URL:        page.URL(),
	}, nil
}

// clickThrough presses the continue button of an interstitial and returns the resulting content.
func (t *Transport) clickThrough(page playwright.Page) (string, bool) {
	t.logger.Info("interstitial detected, attempting click-through")

	for _, selector := range continueButtons {
		button := page.Locator(selector).First()
		count, err := button.Count()
		if err != nil || count == 0 {
			continue
		}
		if err := button.Click(); err != nil {
			t.logger.Debug("failed to click button", "selector", selector, "error", err)
			continue
		}
		if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State: playwright.LoadStateDomcontentloaded,
		}); err != nil {
			t.logger.Debug("wait after click failed", "error", err)
		}

		content, err := page.Content()
		if err != nil {
			continue
		}
		if !isInterstitial(content) {
			t.logger.Info("interstitial cleared", "selector", selector)
			return content, true
		}
	}
	return "", false
}

func (t *Transport) Close() error {
	var errs []error

	if t.browser != nil {
		if err := t.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if t.pw != nil {
		if err := t.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

func isInterstitial(content string) bool {
	for _, marker := range interstitialMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

func proxySettings(proxyURL *url.URL) *playwright.Proxy {
	if proxyURL == nil {
		return nil
	}
	p := &playwright.Proxy{
		Server: proxyURL.Scheme + "://" + proxyURL.Host,
	}
	if proxyURL.User != nil {
		p.Username = playwright.String(proxyURL.User.Username())
		if pass, ok := proxyURL.User.Password(); ok {
			p.Password = playwright.String(pass)
		}
	}
	return p
}

func optionalCookies(pageURL string, cookies []*http.Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		oc := playwright.OptionalCookie{
			Name:  c.Name,
			Value: c.Value,
		}
		if c.Domain != "" {
			oc.Domain = playwright.String(c.Domain)
			path := c.Path
			if path == "" {
				path = "/"
			}
			oc.Path = playwright.String(path)
		} else {
			oc.URL = playwright.String(pageURL)
		}
		out = append(out, oc)
	}
	return out
}

func httpCookies(cookies []playwright.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	return out
}

func timeoutFor(ctx context.Context, fallback time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Millisecond
	}
	if remaining < fallback {
		return remaining
	}
	return fallback
}

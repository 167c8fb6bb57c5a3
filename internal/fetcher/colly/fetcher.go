// Package collyfetcher fetches and crawls pages using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxPages bounds how many pages a Crawl visits. Zero means the default.
	MaxPages int
	// MaxDepth bounds link depth from the start URL. Zero means the default.
	MaxDepth int
}

const (
	defaultTimeout  = 15 * time.Second
	defaultMaxPages = 50
	defaultMaxDepth = 3
)

// Page is one fetched document. Title and Text are filled only for HTML
// responses.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	Title       string
	Text        string
	Duration    time.Duration
}

// Fetcher fetches single pages and crawls sites within one host.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultMaxDepth
	}
	return &Fetcher{cfg: cfg, transport: newHTTPTransport()}
}

// Fetch executes a single HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	var (
		result   Page
		fetchErr error
	)
	collector := f.newCollector(nil, 1)
	start := time.Now()

	collector.OnResponse(func(r *colly.Response) {
		result = pageFromResponse(r, start)
	})
	collector.OnHTML("html", func(e *colly.HTMLElement) {
		result.Title = strings.TrimSpace(e.ChildText("title"))
		result.Text = strings.TrimSpace(e.Text)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return Page{}, err
	}
	return result, nil
}

// Crawl visits startURL and follows same-host links breadth-first, calling
// visit for every fetched page until MaxPages or MaxDepth is reached. A visit
// error stops the crawl.
func (f *Fetcher) Crawl(ctx context.Context, startURL string, visit func(Page) error) error {
	u, err := url.Parse(startURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid start url %q", startURL)
	}

	var (
		mu       sync.Mutex
		pages    int
		visitErr error
		fetchErr error
	)
	collector := f.newCollector([]string{u.Hostname()}, f.cfg.MaxDepth)

	collector.OnRequest(func(r *colly.Request) {
		mu.Lock()
		full := pages >= f.cfg.MaxPages || visitErr != nil
		mu.Unlock()
		if full || ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		page := pageFromResponse(r, time.Now())
		r.Ctx.Put("page", &page)
	})
	collector.OnHTML("html", func(e *colly.HTMLElement) {
		if page, ok := e.Response.Ctx.GetAny("page").(*Page); ok {
			page.Title = strings.TrimSpace(e.ChildText("title"))
			page.Text = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		_ = e.Request.Visit(e.Attr("href"))
	})
	collector.OnScraped(func(r *colly.Response) {
		page, ok := r.Ctx.GetAny("page").(*Page)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if visitErr != nil || pages >= f.cfg.MaxPages {
			return
		}
		pages++
		if err := visit(*page); err != nil {
			visitErr = err
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := runCollector(ctx, collector, startURL, &fetchErr); err != nil {
		// The start page failing is fatal; link errors mid-crawl are not.
		mu.Lock()
		defer mu.Unlock()
		if pages == 0 {
			return err
		}
	}
	mu.Lock()
	defer mu.Unlock()
	return visitErr
}

func (f *Fetcher) newCollector(allowedDomains []string, maxDepth int) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.MaxDepth(maxDepth),
	}
	if f.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(f.cfg.UserAgent))
	}
	if len(allowedDomains) > 0 {
		opts = append(opts, colly.AllowedDomains(allowedDomains...))
	}
	c := colly.NewCollector(opts...)
	c.IgnoreRobotsTxt = !f.cfg.RespectRobots
	c.SetRequestTimeout(f.cfg.Timeout)
	c.WithTransport(f.transport)
	return c
}

func pageFromResponse(r *colly.Response, start time.Time) Page {
	return Page{
		URL:         r.Request.URL.String(),
		StatusCode:  r.StatusCode,
		ContentType: r.Headers.Get("Content-Type"),
		Body:        append([]byte(nil), r.Body...),
		Duration:    time.Since(start),
	}
}

func runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

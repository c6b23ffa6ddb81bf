// Package collyfetcher fetches listing detail pages using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Page is the outcome of one detail-page fetch.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher wraps a base Colly collector that is cloned per request.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single GET for a detail page.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		page     Page
		fetchErr error
	)
	start := time.Now()

	collector.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
			fetchErr = ctx.Err()
		default:
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		page = Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		if r.Headers != nil {
			page.Headers = r.Headers.Clone()
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if fetchErr == nil {
			fetchErr = err
		}
		if r != nil && r.StatusCode > 0 {
			page.URL = r.Request.URL.String()
			page.StatusCode = r.StatusCode
			page.Body = append([]byte(nil), r.Body...)
			page.Duration = time.Since(start)
		}
	})

	if err := collector.Visit(url); err != nil {
		return Page{}, fmt.Errorf("visit %s: %w", url, err)
	}
	collector.Wait()

	if fetchErr != nil && page.StatusCode == 0 {
		return Page{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	return page, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

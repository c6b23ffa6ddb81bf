// Package renderer escalates anti-bot walled pages to a headless browser.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ErrDisabled indicates rendering has been disabled via configuration.
var ErrDisabled = errors.New("renderer disabled")

// Config controls the headless rendering subsystem.
type Config struct {
	MaxParallel int
	UserAgent   string
	NavTimeout  time.Duration
}

// Page is a rendered DOM snapshot.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Chromedp renders pages with headless Chrome. Listing portals that gate
// content behind JavaScript interstitials get a real browser instead of the
// plain HTTP client.
type Chromedp struct {
	cfg         Config
	logger      *zap.Logger
	sem         chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New creates a renderer. A non-positive MaxParallel disables rendering.
func New(cfg Config, logger *zap.Logger) (*Chromedp, error) {
	if cfg.MaxParallel <= 0 {
		return nil, ErrDisabled
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Chromedp{
		cfg:         cfg,
		logger:      logger,
		sem:         make(chan struct{}, cfg.MaxParallel),
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (r *Chromedp) Close() {
	if r == nil {
		return
	}
	r.allocCancel()
}

// Render navigates with a headless browser and returns the rendered DOM.
func (r *Chromedp) Render(ctx context.Context, url string) (Page, error) {
	if r == nil {
		return Page{}, ErrDisabled
	}
	if err := r.acquire(ctx); err != nil {
		return Page{}, err
	}
	defer r.release()

	tabCtx, cancelTab := chromedp.NewContext(r.allocator)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.cfg.NavTimeout)
	defer cancelTask()

	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		r.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return Page{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, headers := meta.snapshot()
	if finalURL == "" {
		finalURL = url
	}
	return Page{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
	}, nil
}

func (r *Chromedp) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (r *Chromedp) acquire(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (r *Chromedp) release() {
	select {
	case <-r.sem:
	default:
	}
}

// forwardCancel propagates an outer context cancellation into the chromedp
// task, returning a stop function for the watcher goroutine.
func forwardCancel(ctx context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// responseMeta captures the main document response from CDP events.
type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = int(resp.Response.Status)
	for k, v := range resp.Response.Headers {
		if s, ok := v.(string); ok {
			m.headers.Set(k, s)
		}
	}
}

func (m *responseMeta) snapshot() (int, http.Header) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	return status, m.headers.Clone()
}

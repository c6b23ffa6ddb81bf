// Package httpx implements the hardened HTTP client used against listing
// portals: browser emulation, anti-bot retry rotation, proxy fallback, and
// tolerant decompression.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAntiBot is returned when every retry still lands on a bot interstitial.
var ErrAntiBot = errors.New("anti-bot interstitial persisted after retries")

// Config controls client behavior.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	MaxAntiBotTries int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	Proxies         []string
	MaxBodyBytes    int64
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.MaxAntiBotTries <= 0 {
		c.MaxAntiBotTries = 4
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 5 << 20
	}
}

// Response is a fully drained, decoded HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Text       string
	Duration   time.Duration
}

// Client wraps http.Client with portal-specific hardening.
type Client struct {
	cfg    Config
	direct *http.Client
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		direct: &http.Client{
			Timeout: cfg.Timeout,
			// Manual decompression: browser emulation advertises encodings
			// the transport would not request on its own.
			Transport: &http.Transport{DisableCompression: true},
		},
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepCtx,
	}
}

// Get fetches the URL with retries, profile rotation, and anti-bot handling.
// A 404 is returned immediately without retrying.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	var lastResp *Response
	var lastErr error

	antiBotAttempt := 0
	for attempt := 0; attempt <= c.cfg.MaxRetries+c.cfg.MaxAntiBotTries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt, antiBotAttempt)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := c.doOnce(ctx, rawURL, antiBotAttempt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt >= c.cfg.MaxRetries {
				break
			}
			continue
		}
		lastResp = resp
		lastErr = nil

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			if err := c.sleep(ctx, retryAfter(resp.Header)); err != nil {
				return nil, err
			}
			continue
		case resp.StatusCode >= 400:
			lastErr = fmt.Errorf("http status %d for %s", resp.StatusCode, rawURL)
			if attempt >= c.cfg.MaxRetries {
				return resp, lastErr
			}
			continue
		}

		pattern, detected := DetectAntiBot(resp.Text)
		if !detected {
			if antiBotAttempt > 0 {
				c.logger.Info("anti-bot measures bypassed",
					zap.String("url", rawURL),
					zap.Int("retries", antiBotAttempt))
			}
			return resp, nil
		}
		antiBotAttempt++
		c.logger.Warn("anti-bot pattern detected",
			zap.String("url", rawURL),
			zap.String("pattern", pattern),
			zap.Int("attempt", antiBotAttempt))
		if antiBotAttempt > c.cfg.MaxAntiBotTries {
			return resp, fmt.Errorf("%w: %s", ErrAntiBot, rawURL)
		}
	}

	if lastErr != nil {
		return lastResp, lastErr
	}
	return lastResp, fmt.Errorf("%w: %s", ErrAntiBot, rawURL)
}

func (c *Client) doOnce(ctx context.Context, rawURL string, antiBotAttempt int) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	c.mu.Lock()
	profile := pickProfile(c.rng, antiBotAttempt)
	req.Header = headersFor(c.rng, profile)
	proxy := c.pickProxyLocked()
	c.mu.Unlock()

	start := time.Now()
	httpResp, err := c.clientFor(proxy).Do(req)
	if err != nil && proxy != "" {
		// Proxy paths are best-effort; retry the same attempt directly.
		c.logger.Warn("proxy request failed, falling back to direct",
			zap.String("url", rawURL), zap.Error(err))
		httpResp, err = c.direct.Do(req.Clone(ctx))
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer httpResp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}

	body := decompress(raw, httpResp.Header.Get("Content-Encoding"))
	text := decodeText(body, extractCharset(httpResp.Header.Get("Content-Type")))

	return &Response{
		URL:        rawURL,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
		Text:       text,
		Duration:   time.Since(start),
	}, nil
}

func (c *Client) clientFor(proxy string) *http.Client {
	if proxy == "" {
		return c.direct
	}
	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return c.direct
	}
	return &http.Client{
		Timeout: c.cfg.Timeout,
		Transport: &http.Transport{
			Proxy:              http.ProxyURL(proxyURL),
			DisableCompression: true,
		},
	}
}

func (c *Client) pickProxyLocked() string {
	if len(c.cfg.Proxies) == 0 {
		return ""
	}
	return c.cfg.Proxies[c.rng.Intn(len(c.cfg.Proxies))]
}

// backoff grows exponentially with the attempt, plus jitter; anti-bot
// retries get proportionally longer waits to look less mechanical.
func (c *Client) backoff(attempt, antiBotAttempt int) time.Duration {
	delay := float64(c.cfg.BackoffBase) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.cfg.BackoffMax) {
		delay = float64(c.cfg.BackoffMax)
	}
	if antiBotAttempt > 0 {
		delay *= float64(antiBotAttempt + 1)
	}
	c.mu.Lock()
	jitter := c.rng.Int63n(int64(delay)/2 + 1)
	c.mu.Unlock()
	return time.Duration(int64(delay)/2 + jitter)
}

func retryAfter(h http.Header) time.Duration {
	if raw := h.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 5 * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

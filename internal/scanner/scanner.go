// Package scanner runs the scrape pipeline: paginated city searches per
// source, detail enrichment, dedup, persistence and notifications.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	collyfetcher "github.com/rentradar/rentradar/internal/fetcher/colly"
	"github.com/rentradar/rentradar/internal/httpx"
	"github.com/rentradar/rentradar/internal/listing"
	"github.com/rentradar/rentradar/internal/notify"
	"github.com/rentradar/rentradar/internal/renderer"
	"github.com/rentradar/rentradar/internal/scraper"
	"github.com/rentradar/rentradar/internal/store"
	"github.com/rentradar/rentradar/internal/telemetry"
)

// PageFetcher fetches search pages with portal hardening.
type PageFetcher interface {
	Get(ctx context.Context, url string) (*httpx.Response, error)
}

// DetailFetcher fetches listing detail pages.
type DetailFetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Page, error)
}

// Renderer is the headless fallback for detail pages behind bot walls.
type Renderer interface {
	Render(ctx context.Context, url string) (renderer.Page, error)
}

// DomainLimiter spaces requests per portal domain.
type DomainLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// BlobStore archives raw payloads.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Options select what one scan run covers.
type Options struct {
	Sources  []string
	Cities   []string
	MaxPages int
}

// Config holds the scanner's tunables.
type Config struct {
	Concurrency  int
	MaxPages     int
	FetchDetails bool
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
}

// Scanner orchestrates one scan run at a time.
type Scanner struct {
	cfg      Config
	fetcher  PageFetcher
	details  DetailFetcher
	renderer Renderer
	limiter  DomainLimiter
	listings store.ListingStore
	runs     store.ScanStore
	blobs    BlobStore
	events   notify.Publisher
	logger   *zap.Logger

	now func() time.Time
}

// New wires a Scanner. The renderer, blob store and publisher are optional.
func New(cfg Config, deps Deps) (*Scanner, error) {
	cfg.applyDefaults()
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Listings == nil {
		return nil, fmt.Errorf("listing store is required")
	}
	if deps.Runs == nil {
		return nil, fmt.Errorf("scan store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		cfg:      cfg,
		fetcher:  deps.Fetcher,
		details:  deps.Details,
		renderer: deps.Renderer,
		limiter:  deps.Limiter,
		listings: deps.Listings,
		runs:     deps.Runs,
		blobs:    deps.Blobs,
		events:   deps.Events,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Deps carries the scanner's collaborators.
type Deps struct {
	Fetcher  PageFetcher
	Details  DetailFetcher
	Renderer Renderer
	Limiter  DomainLimiter
	Listings store.ListingStore
	Runs     store.ScanStore
	Blobs    BlobStore
	Events   notify.Publisher
	Logger   *zap.Logger
}

type job struct {
	source scraper.Source
	city   string
}

type counters struct {
	mu      sync.Mutex
	found   int
	created int
	updated int
	failed  int
}

// Run executes one scan across the requested sources and cities. The run row
// is persisted before scraping starts so it is observable while running.
func (s *Scanner) Run(ctx context.Context, opts Options) (*store.ScanRun, error) {
	run, sources, maxPages, err := s.begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.execute(ctx, run, sources, opts.Cities, maxPages)
	return run, nil
}

// Start persists the run row and continues scanning in the background. The
// scan outlives the caller's context.
func (s *Scanner) Start(ctx context.Context, opts Options) (*store.ScanRun, error) {
	run, sources, maxPages, err := s.begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	go s.execute(context.WithoutCancel(ctx), run, sources, opts.Cities, maxPages)
	return run, nil
}

func (s *Scanner) begin(ctx context.Context, opts Options) (*store.ScanRun, []scraper.Source, int, error) {
	sources, err := resolveSources(opts.Sources)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(opts.Cities) == 0 {
		return nil, nil, 0, fmt.Errorf("at least one city is required")
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = s.cfg.MaxPages
	}

	run := &store.ScanRun{
		Sources:   opts.Sources,
		Cities:    opts.Cities,
		Status:    store.ScanStatusRunning,
		StartedAt: s.now().UTC(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, nil, 0, fmt.Errorf("create scan run: %w", err)
	}
	return run, sources, maxPages, nil
}

func (s *Scanner) execute(ctx context.Context, run *store.ScanRun, sources []scraper.Source, cities []string, maxPages int) {
	jobs := make(chan job)
	cnt := &counters{}
	seen := &sync.Map{}

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			telemetry.IncActiveWorkers()
			defer telemetry.DecActiveWorkers()
			for j := range jobs {
				s.scanCity(ctx, j, maxPages, seen, cnt)
			}
		}()
	}

	for _, src := range sources {
		for _, city := range cities {
			select {
			case jobs <- job{source: src, city: city}:
			case <-ctx.Done():
			}
		}
	}
	close(jobs)
	wg.Wait()

	finished := s.now().UTC()
	run.FinishedAt = &finished
	run.Found = cnt.found
	run.New = cnt.created
	run.Updated = cnt.updated
	run.Failed = cnt.failed
	run.Status = store.ScanStatusCompleted
	if ctx.Err() != nil {
		run.Status = store.ScanStatusFailed
		run.Error = ctx.Err().Error()
	}
	telemetry.ObserveRun(run.Status)

	// The outcome row is written even when the scan context was canceled.
	if err := s.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("finish scan run", zap.Int64("run_id", run.ID), zap.Error(err))
	}
	s.logger.Info("scan finished",
		zap.Int64("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("found", run.Found),
		zap.Int("new", run.New),
		zap.Int("updated", run.Updated),
		zap.Int("failed", run.Failed))
}

func (s *Scanner) scanCity(ctx context.Context, j job, maxPages int, seen *sync.Map, cnt *counters) {
	name := j.source.Name()
	logger := s.logger.With(zap.String("source", name), zap.String("city", j.city))

	for page := 1; page <= maxPages; page++ {
		if ctx.Err() != nil {
			return
		}
		url, err := j.source.SearchURL(ctx, scraper.SearchQuery{City: j.city, Page: page})
		if err != nil {
			logger.Error("build search url", zap.Error(err))
			cnt.fail(1)
			return
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx, url); err != nil {
				return
			}
		}
		resp, err := s.fetcher.Get(ctx, url)
		if err != nil || resp == nil {
			logger.Warn("search page fetch failed",
				zap.Int("page", page), zap.Error(err))
			cnt.fail(1)
			return
		}
		telemetry.ObservePage(name, resp.StatusCode, len(resp.Body))
		s.archive(ctx, name, fmt.Sprintf("search/%s/p%d.json", citySlug(j.city), page), resp.Header.Get("Content-Type"), resp.Body)

		found, err := j.source.ParseSearch(ctx, resp.Body)
		if err != nil {
			logger.Warn("search page parse failed",
				zap.Int("page", page), zap.Error(err))
			cnt.fail(1)
			return
		}
		if len(found) == 0 {
			logger.Debug("empty search page, stopping pagination", zap.Int("page", page))
			return
		}

		for i := range found {
			s.processListing(ctx, j.source, &found[i], seen, cnt, logger)
		}
	}
}

func (s *Scanner) processListing(ctx context.Context, src scraper.Source, l *listing.Listing, seen *sync.Map, cnt *counters, logger *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	if s.cfg.FetchDetails && l.URL != "" {
		if detail, ok := s.fetchDetail(ctx, src, l.URL, logger); ok {
			*l = detail
		}
	}
	l.Finalize(s.now().UTC())
	cnt.find(1)

	if _, dup := seen.LoadOrStore(l.Hash, struct{}{}); dup {
		telemetry.ObserveListing(l.Source, "duplicate")
		return
	}

	res, err := s.listings.Upsert(ctx, l)
	if err != nil {
		logger.Error("upsert listing", zap.String("hash", l.Hash), zap.Error(err))
		telemetry.ObserveListing(l.Source, "error")
		cnt.fail(1)
		return
	}
	if res.Inserted {
		telemetry.ObserveListing(l.Source, "new")
		cnt.create(1)
		s.publish(ctx, l, logger)
		return
	}
	telemetry.ObserveListing(l.Source, "updated")
	cnt.update(1)
}

// fetchDetail grabs the detail page and parses it, escalating to the
// headless renderer when the plain fetch lands on a bot interstitial.
func (s *Scanner) fetchDetail(ctx context.Context, src scraper.Source, url string, logger *zap.Logger) (listing.Listing, bool) {
	if s.details == nil {
		return listing.Listing{}, false
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, url); err != nil {
			return listing.Listing{}, false
		}
	}

	var body []byte
	page, err := s.details.Fetch(ctx, url)
	if err != nil {
		logger.Debug("detail fetch failed", zap.String("url", url), zap.Error(err))
	} else {
		body = page.Body
		telemetry.ObservePage(src.Name(), page.StatusCode, len(page.Body))
	}

	if pattern, blocked := httpx.DetectAntiBot(string(body)); (blocked || len(body) == 0) && s.renderer != nil {
		if blocked {
			logger.Info("detail page behind bot wall, rendering",
				zap.String("url", url), zap.String("pattern", pattern))
		}
		rendered, rerr := s.renderer.Render(ctx, url)
		if rerr != nil {
			logger.Debug("detail render failed", zap.String("url", url), zap.Error(rerr))
		} else {
			body = rendered.Body
		}
	}
	if len(body) == 0 {
		return listing.Listing{}, false
	}

	detail, err := src.ParseDetail(ctx, body, url)
	if err != nil {
		logger.Debug("detail parse failed", zap.String("url", url), zap.Error(err))
		return listing.Listing{}, false
	}
	s.archive(ctx, src.Name(), fmt.Sprintf("detail/%s.json", detail.SourceID), "application/json", body)
	return detail, true
}

func (s *Scanner) publish(ctx context.Context, l *listing.Listing, logger *zap.Logger) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, notify.NewEvent(l, s.now())); err != nil {
		logger.Warn("publish listing event",
			zap.String("hash", l.Hash), zap.Error(err))
	}
}

func (s *Scanner) archive(ctx context.Context, source, name, contentType string, body []byte) {
	if s.blobs == nil || len(body) == 0 {
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	path := fmt.Sprintf("%s/%s/%s", source, s.now().UTC().Format("2006-01-02"), name)
	if _, err := s.blobs.PutObject(ctx, path, contentType, bytes.NewReader(body)); err != nil {
		s.logger.Debug("archive payload failed",
			zap.String("path", path), zap.Error(err))
	}
}

func resolveSources(names []string) ([]scraper.Source, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}
	sources := make([]scraper.Source, 0, len(names))
	for _, name := range names {
		src, err := scraper.New(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func citySlug(city string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(city)), " ", "-")
}

func (c *counters) find(n int)   { c.mu.Lock(); c.found += n; c.mu.Unlock() }
func (c *counters) create(n int) { c.mu.Lock(); c.created += n; c.mu.Unlock() }
func (c *counters) update(n int) { c.mu.Lock(); c.updated += n; c.mu.Unlock() }
func (c *counters) fail(n int)   { c.mu.Lock(); c.failed += n; c.mu.Unlock() }

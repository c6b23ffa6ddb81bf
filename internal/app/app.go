// Package app assembles the service from its configured components.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rentradar/rentradar/internal/config"
	collyfetcher "github.com/rentradar/rentradar/internal/fetcher/colly"
	"github.com/rentradar/rentradar/internal/httpx"
	"github.com/rentradar/rentradar/internal/logging"
	"github.com/rentradar/rentradar/internal/notify"
	notifypubsub "github.com/rentradar/rentradar/internal/notify/pubsub"
	"github.com/rentradar/rentradar/internal/ratelimit"
	"github.com/rentradar/rentradar/internal/renderer"
	"github.com/rentradar/rentradar/internal/scanner"
	storegcs "github.com/rentradar/rentradar/internal/storage/gcs"
	storelocal "github.com/rentradar/rentradar/internal/storage/local"
	storepg "github.com/rentradar/rentradar/internal/store/postgres"
	"github.com/rentradar/rentradar/internal/telemetry"
)

// App holds the wired service components shared by the CLI commands.
type App struct {
	Cfg      config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Listings *storepg.ListingStore
	Runs     *storepg.ScanStore
	Telegram *storepg.TelegramStore
	Migrator *storepg.Migrator
	Scanner  *scanner.Scanner

	closers []func() error
}

// New loads configuration and wires every component the commands need.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, logClose, err := logging.NewWithFile(cfg.Logging.Development, cfg.Logging.Dir)
	if err != nil {
		return nil, err
	}

	telemetry.Init()

	a := &App{Cfg: cfg, Logger: logger}
	a.closers = append(a.closers, logClose)

	pool, err := storepg.NewPool(ctx, storepg.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if a.Listings, err = storepg.NewListingStore(pool); err != nil {
		a.Close()
		return nil, err
	}
	if a.Runs, err = storepg.NewScanStore(pool); err != nil {
		a.Close()
		return nil, err
	}
	if a.Telegram, err = storepg.NewTelegramStore(pool); err != nil {
		a.Close()
		return nil, err
	}
	if a.Migrator, err = storepg.NewMigrator(pool, logger); err != nil {
		a.Close()
		return nil, err
	}

	if a.Scanner, err = a.buildScanner(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildScanner(ctx context.Context) (*scanner.Scanner, error) {
	cfg := a.Cfg

	fetcher := httpx.New(httpx.Config{
		Timeout:         cfg.HTTPTimeout(),
		MaxRetries:      cfg.HTTP.MaxRetries,
		MaxAntiBotTries: cfg.HTTP.MaxAntiBotTries,
		BackoffBase:     time.Duration(cfg.HTTP.BackoffInitialMs) * time.Millisecond,
		BackoffMax:      time.Duration(cfg.HTTP.BackoffMaxMs) * time.Millisecond,
		Proxies:         cfg.HTTP.Proxies,
	}, a.Logger)

	details := collyfetcher.New(collyfetcher.Config{
		Timeout: cfg.HTTPTimeout(),
	})

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS: cfg.Scan.PerDomainRPS,
	})

	var rend scanner.Renderer
	if cfg.Headless.Enabled {
		chrome, err := renderer.New(renderer.Config{
			MaxParallel: cfg.Headless.MaxParallel,
			NavTimeout:  time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		}, a.Logger)
		switch {
		case err == nil:
			rend = chrome
			a.closers = append(a.closers, func() error { chrome.Close(); return nil })
		case errors.Is(err, renderer.ErrDisabled):
			a.Logger.Warn("headless rendering disabled despite config")
		default:
			return nil, fmt.Errorf("init renderer: %w", err)
		}
	}

	blobs, err := a.buildBlobStore(ctx)
	if err != nil {
		return nil, err
	}

	events, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	return scanner.New(scanner.Config{
		Concurrency:  cfg.Scan.Concurrency,
		MaxPages:     cfg.Scan.MaxPages,
		FetchDetails: cfg.Scan.FetchDetails,
	}, scanner.Deps{
		Fetcher:  fetcher,
		Details:  details,
		Renderer: rend,
		Limiter:  limiter,
		Listings: a.Listings,
		Runs:     a.Runs,
		Blobs:    blobs,
		Events:   events,
		Logger:   a.Logger,
	})
}

func (a *App) buildBlobStore(ctx context.Context) (scanner.BlobStore, error) {
	switch a.Cfg.Storage.Backend {
	case "local":
		return storelocal.New(storelocal.Config{BaseDir: a.Cfg.Storage.LocalDir})
	case "gcs":
		store, err := storegcs.New(ctx, storegcs.Config{
			Bucket: a.Cfg.Storage.GCSBucket,
			Prefix: a.Cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return nil, nil
	}
}

func (a *App) buildPublisher(ctx context.Context) (notify.Publisher, error) {
	if !a.Cfg.PubSub.Enabled {
		return nil, nil
	}
	pub, err := notifypubsub.New(ctx, notifypubsub.Config{
		ProjectID: a.Cfg.PubSub.ProjectID,
		TopicID:   a.Cfg.PubSub.TopicName,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

// Close releases every component in reverse wiring order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("component close failed", zap.Error(err))
		}
	}
	a.closers = nil
}

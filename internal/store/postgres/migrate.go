package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Extensions required by the listing schema. The vector extension powers the
// embedding column and is tolerated when the server image lacks it.
const (
	extPostGIS       = "postgis"
	extVector        = "vector"
	extFuzzyStrMatch = "fuzzystrmatch"
)

// Migrator bootstraps the database: readiness wait, extensions and schema.
type Migrator struct {
	db     DB
	logger *zap.Logger

	// sleep is replaceable in tests.
	sleep func(time.Duration)

	// extensionAttempts and extensionDelay control the create-extension
	// retry loop.
	extensionAttempts int
	extensionDelay    time.Duration
}

// NewMigrator creates a migrator over an existing pool.
func NewMigrator(db DB, logger *zap.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{
		db:                db,
		logger:            logger,
		sleep:             time.Sleep,
		extensionAttempts: 10,
		extensionDelay:    5 * time.Second,
	}, nil
}

// WaitForReady pings the database until it answers or the context expires.
func (m *Migrator) WaitForReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("database not ready: %w (last error: %v)", err, lastErr)
			}
			return fmt.Errorf("database not ready: %w", err)
		}
		lastErr = m.db.Ping(ctx)
		if lastErr == nil {
			m.logger.Info("database ready", zap.Int("attempts", attempt))
			return nil
		}
		m.logger.Debug("database not ready yet",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		select {
		case <-ctx.Done():
		case <-time.After(interval):
		}
	}
}

// CreateExtensions installs the required Postgres extensions, retrying for
// each one. A missing vector extension is logged and skipped so the rest of
// the schema still comes up; it reports whether vector ended up installed.
func (m *Migrator) CreateExtensions(ctx context.Context) (vectorAvailable bool, err error) {
	required := []string{extPostGIS, extVector, extFuzzyStrMatch}
	vectorAvailable = true

	for _, ext := range required {
		if err := m.createExtension(ctx, ext); err != nil {
			if ext == extVector {
				m.logger.Warn("vector extension unavailable, embedding support disabled",
					zap.Error(err))
				vectorAvailable = false
				continue
			}
			return false, fmt.Errorf("create extension %s: %w", ext, err)
		}
		m.logger.Info("extension ready", zap.String("extension", ext))
	}
	return vectorAvailable, nil
}

func (m *Migrator) createExtension(ctx context.Context, name string) error {
	var lastErr error
	for attempt := 1; attempt <= m.extensionAttempts; attempt++ {
		_, lastErr = m.db.Exec(ctx, fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %q", name))
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Debug("create extension failed, retrying",
			zap.String("extension", name),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		if attempt < m.extensionAttempts {
			m.sleep(m.extensionDelay)
		}
	}
	return lastErr
}

var listingDDL = []string{
	`CREATE TABLE IF NOT EXISTS listings (
	id BIGSERIAL PRIMARY KEY,
	hash TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL,
	source_id TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	neighborhood TEXT NOT NULL DEFAULT '',
	price TEXT NOT NULL DEFAULT '',
	price_numeric INTEGER NOT NULL DEFAULT 0,
	price_period TEXT NOT NULL DEFAULT '',
	service_costs DOUBLE PRECISION NOT NULL DEFAULT 0,
	property_type TEXT NOT NULL DEFAULT '',
	interior TEXT NOT NULL DEFAULT '',
	offering TEXT NOT NULL DEFAULT '',
	living_area INTEGER NOT NULL DEFAULT 0,
	plot_area INTEGER NOT NULL DEFAULT 0,
	rooms INTEGER NOT NULL DEFAULT 0,
	bedrooms INTEGER NOT NULL DEFAULT 0,
	energy_label TEXT NOT NULL DEFAULT '',
	construction_year INTEGER NOT NULL DEFAULT 0,
	date_available TEXT NOT NULL DEFAULT '',
	date_listed TEXT NOT NULL DEFAULT '',
	balcony BOOLEAN NOT NULL DEFAULT FALSE,
	garden BOOLEAN NOT NULL DEFAULT FALSE,
	parking BOOLEAN NOT NULL DEFAULT FALSE,
	description TEXT NOT NULL DEFAULT '',
	images JSONB NOT NULL DEFAULT '[]',
	features JSONB NOT NULL DEFAULT '[]',
	latitude DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude DOUBLE PRECISION NOT NULL DEFAULT 0,
	location geography(Point, 4326),
	scraped_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_source ON listings (source)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_city ON listings (lower(city))`,
	`CREATE INDEX IF NOT EXISTS idx_listings_scraped_at ON listings (scraped_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_listings_location ON listings USING GIST (location)`,
	`CREATE TABLE IF NOT EXISTS scan_runs (
	id BIGSERIAL PRIMARY KEY,
	sources TEXT[] NOT NULL DEFAULT '{}',
	cities TEXT[] NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	found_count INTEGER NOT NULL DEFAULT 0,
	new_count INTEGER NOT NULL DEFAULT 0,
	updated_count INTEGER NOT NULL DEFAULT 0,
	failed_count INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	error_message TEXT NOT NULL DEFAULT ''
)`,
}

const embeddingDDL = `ALTER TABLE listings ADD COLUMN IF NOT EXISTS embedding vector(1536)`

var telegramDDL = []string{
	`CREATE TABLE IF NOT EXISTS telegram_users (
	chat_id BIGINT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS telegram_subscriptions (
	id BIGSERIAL PRIMARY KEY,
	chat_id BIGINT NOT NULL REFERENCES telegram_users (chat_id) ON DELETE CASCADE,
	city TEXT NOT NULL,
	max_price INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (chat_id, city)
)`,
	`CREATE TABLE IF NOT EXISTS telegram_sent_listings (
	chat_id BIGINT NOT NULL,
	listing_hash TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chat_id, listing_hash)
)`,
}

// Migrate creates the listing schema. All statements are idempotent. When
// withEmbedding is true the vector-backed embedding column is added as well.
func (m *Migrator) Migrate(ctx context.Context, withEmbedding bool) error {
	for _, stmt := range listingDDL {
		if _, err := m.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply listing schema: %w", err)
		}
	}
	if withEmbedding {
		if _, err := m.db.Exec(ctx, embeddingDDL); err != nil {
			return fmt.Errorf("add embedding column: %w", err)
		}
	}
	m.logger.Info("listing schema ready", zap.Bool("embedding", withEmbedding))
	return nil
}

// MigrateTelegram creates the Telegram bot tables.
func (m *Migrator) MigrateTelegram(ctx context.Context) error {
	for _, stmt := range telegramDDL {
		if _, err := m.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply telegram schema: %w", err)
		}
	}
	m.logger.Info("telegram schema ready")
	return nil
}

// ListTables returns the public table names, for the post-init report.
func (m *Migrator) ListTables(ctx context.Context) ([]string, error) {
	rows, err := m.db.Query(ctx, `
SELECT table_name FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rentradar/rentradar/internal/store"
)

// TelegramUser is a chat registered with the notification bot.
type TelegramUser struct {
	ChatID    int64     `json:"chat_id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// TelegramSubscription is a city filter attached to a chat.
type TelegramSubscription struct {
	ID       int64  `json:"id"`
	ChatID   int64  `json:"chat_id"`
	City     string `json:"city"`
	MaxPrice int    `json:"max_price,omitempty"`
}

// TelegramStore persists bot users, their subscriptions and the per-chat
// delivery log that keeps a listing from being sent twice.
type TelegramStore struct {
	db DB
}

// NewTelegramStore creates a telegram store on top of an existing pool.
func NewTelegramStore(db DB) (*TelegramStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &TelegramStore{db: db}, nil
}

// UpsertUser registers a chat or reactivates an existing one.
func (s *TelegramStore) UpsertUser(ctx context.Context, u TelegramUser) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO telegram_users (chat_id, username, first_name, active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (chat_id) DO UPDATE SET
	username = EXCLUDED.username,
	first_name = EXCLUDED.first_name,
	active = TRUE`,
		u.ChatID, u.Username, u.FirstName)
	if err != nil {
		return fmt.Errorf("upsert telegram user: %w", err)
	}
	return nil
}

// DeactivateUser marks a chat inactive without losing its subscriptions.
func (s *TelegramStore) DeactivateUser(ctx context.Context, chatID int64) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE telegram_users SET active = FALSE WHERE chat_id = $1", chatID)
	if err != nil {
		return fmt.Errorf("deactivate telegram user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Subscribe adds a city subscription for a chat, replacing the price cap on
// an existing one.
func (s *TelegramStore) Subscribe(ctx context.Context, sub TelegramSubscription) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO telegram_subscriptions (chat_id, city, max_price)
VALUES ($1, lower($2), $3)
ON CONFLICT (chat_id, city) DO UPDATE SET max_price = EXCLUDED.max_price`,
		sub.ChatID, sub.City, sub.MaxPrice)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

// Unsubscribe removes a city subscription from a chat.
func (s *TelegramStore) Unsubscribe(ctx context.Context, chatID int64, city string) error {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM telegram_subscriptions WHERE chat_id = $1 AND city = lower($2)",
		chatID, city)
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SubscribersFor returns the active chats whose subscriptions match the city
// and price.
func (s *TelegramStore) SubscribersFor(ctx context.Context, city string, price int) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
SELECT DISTINCT sub.chat_id
FROM telegram_subscriptions sub
JOIN telegram_users u ON u.chat_id = sub.chat_id
WHERE u.active
  AND sub.city = lower($1)
  AND (sub.max_price = 0 OR $2 <= sub.max_price)
ORDER BY sub.chat_id`,
		city, price)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, chatID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	return out, nil
}

// MarkSent records that a listing was delivered to a chat. It reports false
// when the pair was already in the log.
func (s *TelegramStore) MarkSent(ctx context.Context, chatID int64, listingHash string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO telegram_sent_listings (chat_id, listing_hash)
VALUES ($1, $2)
ON CONFLICT (chat_id, listing_hash) DO NOTHING`,
		chatID, listingHash)
	if err != nil {
		return false, fmt.Errorf("mark sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetUser fetches one registered chat.
func (s *TelegramStore) GetUser(ctx context.Context, chatID int64) (*TelegramUser, error) {
	var u TelegramUser
	err := s.db.QueryRow(ctx, `
SELECT chat_id, username, first_name, active, created_at
FROM telegram_users WHERE chat_id = $1`, chatID).
		Scan(&u.ChatID, &u.Username, &u.FirstName, &u.Active, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get telegram user: %w", err)
	}
	return &u, nil
}

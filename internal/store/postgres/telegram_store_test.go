package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/rentradar/rentradar/internal/store"
)

func newTestTelegramStore(t *testing.T) (*TelegramStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewTelegramStore(mock)
	require.NoError(t, err)
	return s, mock
}

func TestUpsertUser(t *testing.T) {
	t.Parallel()

	s, mock := newTestTelegramStore(t)

	mock.ExpectExec("INSERT INTO telegram_users").
		WithArgs(int64(1001), "renter01", "Ada").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertUser(context.Background(), TelegramUser{
		ChatID:    1001,
		Username:  "renter01",
		FirstName: "Ada",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscribeReplacesPriceCap(t *testing.T) {
	t.Parallel()

	s, mock := newTestTelegramStore(t)

	mock.ExpectExec("INSERT INTO telegram_subscriptions").
		WithArgs(int64(1001), "Leiden", 1600).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Subscribe(context.Background(), TelegramSubscription{
		ChatID:   1001,
		City:     "Leiden",
		MaxPrice: 1600,
	})
	require.NoError(t, err)
}

func TestUnsubscribeNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newTestTelegramStore(t)

	mock.ExpectExec("DELETE FROM telegram_subscriptions").
		WithArgs(int64(1001), "utrecht").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.Unsubscribe(context.Background(), 1001, "utrecht")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubscribersFor(t *testing.T) {
	t.Parallel()

	s, mock := newTestTelegramStore(t)

	mock.ExpectQuery("FROM telegram_subscriptions").
		WithArgs("leiden", 1450).
		WillReturnRows(pgxmock.NewRows([]string{"chat_id"}).
			AddRow(int64(1001)).
			AddRow(int64(1002)))

	chats, err := s.SubscribersFor(context.Background(), "leiden", 1450)
	require.NoError(t, err)
	require.Equal(t, []int64{1001, 1002}, chats)
}

func TestMarkSentReportsDuplicate(t *testing.T) {
	t.Parallel()

	s, mock := newTestTelegramStore(t)

	mock.ExpectExec("INSERT INTO telegram_sent_listings").
		WithArgs(int64(1001), "abc123").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO telegram_sent_listings").
		WithArgs(int64(1001), "abc123").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	first, err := s.MarkSent(context.Background(), 1001, "abc123")
	require.NoError(t, err)
	require.True(t, first)

	second, err := s.MarkSent(context.Background(), 1001, "abc123")
	require.NoError(t, err)
	require.False(t, second)
}

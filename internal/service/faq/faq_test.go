package faq

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quickcomm/internal/config"
	"quickcomm/internal/logging"
	"quickcomm/internal/models"
	"quickcomm/internal/storage"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.Migrate(ctx, db, "sqlite3"))
	return db
}

func TestSeedIsIdempotent(t *testing.T) {
	svc := NewService(newTestDB(t), "sqlite3", logging.Discard())
	ctx := context.Background()

	added, err := svc.Seed(ctx)
	require.NoError(t, err)
	require.Equal(t, len(Defaults), added)

	added, err = svc.Seed(ctx)
	require.NoError(t, err)
	require.Zero(t, added)

	faqs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, faqs, len(Defaults))
	require.Equal(t, Defaults[0].Question, faqs[0].Question)
	require.False(t, faqs[0].CreatedAt.IsZero())
}

func TestAddValidatesInput(t *testing.T) {
	svc := NewService(newTestDB(t), "sqlite3", logging.Discard())
	_, err := svc.Add(context.Background(), "  ", "answer")
	require.Error(t, err)

	ok, err := svc.Add(context.Background(), "Can I pay with PayPal?", "Yes.")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestListWithoutDatabase(t *testing.T) {
	var svc *Service
	faqs, err := svc.List(context.Background())
	require.NoError(t, err)
	require.NotNil(t, faqs)
	require.Empty(t, faqs)
}

func TestRefresherAppliesImmediatelyAndOnTick(t *testing.T) {
	svc := NewService(newTestDB(t), "sqlite3", logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []int
	)
	apply := func(faqs []models.FAQ) {
		mu.Lock()
		seen = append(seen, len(faqs))
		mu.Unlock()
	}
	svc.StartRefresher(ctx, 20*time.Millisecond, apply)

	mu.Lock()
	require.Equal(t, []int{0}, seen, "first load happens before StartRefresher returns")
	mu.Unlock()

	_, err := svc.Seed(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[len(seen)-1] == len(Defaults)
	}, 2*time.Second, 10*time.Millisecond)
}

package transcript

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"quickcomm/internal/logging"
	"quickcomm/internal/models"
	"quickcomm/internal/redis"
)

func setupStore(t *testing.T, opts Options) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, NewStore(client, opts, logging.Discard())
}

func TestAppendKeepsNewestHistoryMax(t *testing.T) {
	_, store := setupStore(t, Options{HistoryMax: 5})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, store.Append(ctx, "s1", models.NewMessage(models.RoleUser, fmt.Sprintf("m%d", i))))
	}

	history, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, msg := range history {
		require.Equal(t, fmt.Sprintf("m%d", i+3), msg.Content)
	}
}

func TestAppendThenReadRoundTrip(t *testing.T) {
	_, store := setupStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", models.NewMessage(models.RoleUser, "hi")))
	require.NoError(t, store.Append(ctx, "s1", models.Message{Role: models.RoleAssistant, Content: "hello there"}))

	history, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	last := history[len(history)-1]
	require.Equal(t, models.RoleAssistant, last.Role)
	require.Equal(t, "hello there", last.Content)
	require.False(t, last.CreatedAt.IsZero(), "append should stamp a timestamp")
}

func TestAppendRejectsUnknownRole(t *testing.T) {
	_, store := setupStore(t, Options{})
	err := store.Append(context.Background(), "s1", models.Message{Role: "robot", Content: "beep"})
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestReadUnknownSessionIsEmpty(t *testing.T) {
	_, store := setupStore(t, Options{})
	history, err := store.Read(context.Background(), "nobody")
	require.NoError(t, err)
	require.NotNil(t, history)
	require.Empty(t, history)
}

func TestReadSkipsMalformedEntries(t *testing.T) {
	mr, store := setupStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", models.NewMessage(models.RoleUser, "first")))
	_, err := mr.Push("session:s1", "{not json", `{"role":"alien","content":"x"}`)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "s1", models.NewMessage(models.RoleAssistant, "second")))

	history, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "first", history[0].Content)
	require.Equal(t, "second", history[1].Content)
}

func TestClearIsIdempotent(t *testing.T) {
	_, store := setupStore(t, Options{})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", models.NewMessage(models.RoleUser, "hi")))

	cleared, err := store.Clear(ctx, "s1")
	require.NoError(t, err)
	require.True(t, cleared)

	cleared, err = store.Clear(ctx, "s1")
	require.NoError(t, err)
	require.False(t, cleared)

	history, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestSessionTTL(t *testing.T) {
	mr, store := setupStore(t, Options{KeyPrefix: "chat:", TTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", models.NewMessage(models.RoleUser, "hi")))
	require.True(t, mr.Exists("chat:s1"))
	require.Equal(t, time.Hour, mr.TTL("chat:s1"))

	mr.FastForward(2 * time.Hour)
	history, err := store.Read(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestUnavailableRedis(t *testing.T) {
	mr, store := setupStore(t, Options{})
	mr.Close()
	ctx := context.Background()

	require.ErrorIs(t, store.Append(ctx, "s1", models.NewMessage(models.RoleUser, "hi")), ErrStoreUnavailable)
	_, err := store.Read(ctx, "s1")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = store.Clear(ctx, "s1")
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

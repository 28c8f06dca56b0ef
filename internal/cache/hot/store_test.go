package hot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/parrotgw/parrot/internal/fingerprint"
)

func testEnvelope() *Envelope {
	return &Envelope{
		EntryID:   "e-1",
		Model:     "gpt-4",
		Mode:      fingerprint.ModeText,
		Response:  []byte(`{"id":"chatcmpl-1","object":"chat.completion"}`),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func runStoreTests(t *testing.T, store Store) {
	t.Helper()

	ctx := context.Background()

	t.Run("miss returns ErrNotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "tenant-a", "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set then get round-trips", func(t *testing.T) {
		want := testEnvelope()
		require.NoError(t, store.Set(ctx, "tenant-a", "key-1", want, time.Minute))

		got, err := store.Get(ctx, "tenant-a", "key-1")
		require.NoError(t, err)
		require.Equal(t, want.EntryID, got.EntryID)
		require.Equal(t, want.Response, got.Response)
		require.Equal(t, want.Mode, got.Mode)
	})

	t.Run("tenants are isolated", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "tenant-a", "key-2", testEnvelope(), time.Minute))

		_, err := store.Get(ctx, "tenant-b", "key-2")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete removes entry", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "tenant-a", "key-3", testEnvelope(), time.Minute))
		require.NoError(t, store.Delete(ctx, "tenant-a", "key-3"))

		_, err := store.Get(ctx, "tenant-a", "key-3")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("clear removes tenant entries only", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "tenant-a", "key-4", testEnvelope(), time.Minute))
		require.NoError(t, store.Set(ctx, "tenant-b", "key-4", testEnvelope(), time.Minute))
		require.NoError(t, store.Clear(ctx, "tenant-a"))

		_, err := store.Get(ctx, "tenant-a", "key-4")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = store.Get(ctx, "tenant-b", "key-4")
		require.NoError(t, err)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemoryStore(time.Minute, time.Minute))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	runStoreTests(t, NewRedisStore(client, time.Second))
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, time.Second)

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "tenant-a", "key-ttl", testEnvelope(), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "tenant-a", "key-ttl")
	require.ErrorIs(t, err, ErrNotFound)
}

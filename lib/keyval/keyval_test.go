package keyval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLRUStore(t *testing.T) {
	ctx := context.Background()
	store := NewLRUStore(16)

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	err = store.Set(ctx, "a", "1", time.Minute)
	require.NoError(t, err)
	v, ok, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)

	err = store.Delete(ctx, "a")
	require.NoError(t, err)
	_, ok, _ = store.Get(ctx, "a")
	require.False(t, ok)
}

func TestLRUStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewLRUStore(16)

	err := store.Set(ctx, "short", "x", time.Millisecond*10)
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 30)

	_, ok, err := store.Get(ctx, "short")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLRUStoreKeys(t *testing.T) {
	ctx := context.Background()
	store := NewLRUStore(16)

	require.NoError(t, store.Set(ctx, "leaderboard:attendance:1", "a", time.Minute))
	require.NoError(t, store.Set(ctx, "leaderboard:midmarks:1", "b", time.Minute))
	require.NoError(t, store.Set(ctx, "attendance:23KB1A0599", "c", time.Minute))

	keys, err := store.Keys(ctx, "leaderboard:")
	require.NoError(t, err)
	require.Len(t, keys, 2)
}

package cache_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratibha-marketing/offline-gateway/internal/cache"
)

func openTestRegistry(t *testing.T) (*cache.SQLiteRegistry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	registry, err := cache.OpenSQLiteRegistry(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })
	return registry, path
}

func TestSQLiteStore_PutGet(t *testing.T) {
	ctx := context.Background()
	registry, _ := openTestRegistry(t)
	store := registry.Store("pratibha-api-v1")

	require.NoError(t, store.Put(ctx, entry("/api/products?page=1", `{"items":[]}`)))

	got, ok, err := store.Get(ctx, "/api/products?page=1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"items":[]}`, string(got.Body))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))

	_, ok, err = store.Get(ctx, "/api/products?page=2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	registry, err := cache.OpenSQLiteRegistry(path)
	require.NoError(t, err)
	require.NoError(t, registry.Store("pratibha-api-v1").Put(ctx, entry("/api/market-rates", `[1,2]`)))
	require.NoError(t, registry.Close())

	reopened, err := cache.OpenSQLiteRegistry(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, ok, err := reopened.Store("pratibha-api-v1").Get(ctx, "/api/market-rates")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[1,2]`, string(got.Body))
}

func TestSQLiteStore_TrimEvictsOldestFirst(t *testing.T) {
	ctx := context.Background()
	registry, _ := openTestRegistry(t)
	store := registry.Store("pratibha-api-v1")

	for _, url := range []string{"/a", "/b", "/c", "/d"} {
		require.NoError(t, store.Put(ctx, entry(url, url)))
	}

	deleted, err := store.Trim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/c", "/d"}, keys)
}

func TestSQLiteStore_OverwriteKeepsSlot(t *testing.T) {
	ctx := context.Background()
	registry, _ := openTestRegistry(t)
	store := registry.Store("pratibha-api-v1")

	require.NoError(t, store.Put(ctx, entry("/a", "1")))
	require.NoError(t, store.Put(ctx, entry("/b", "2")))
	require.NoError(t, store.Put(ctx, entry("/a", "updated")))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, keys)
}

func TestSQLiteStore_StoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	registry, _ := openTestRegistry(t)

	require.NoError(t, registry.Store("pratibha-assets-v1").Put(ctx, entry("/app.js", "js")))
	require.NoError(t, registry.Store("pratibha-api-v1").Put(ctx, entry("/api/products", "{}")))

	_, ok, err := registry.Store("pratibha-api-v1").Get(ctx, "/app.js")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, registry.Drop(ctx, "pratibha-assets-v1"))

	count, err := registry.Store("pratibha-api-v1").Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteRegistry_Names(t *testing.T) {
	ctx := context.Background()
	registry, _ := openTestRegistry(t)

	require.NoError(t, registry.Store("pratibha-assets-v1").Put(ctx, entry("/a", "1")))
	require.NoError(t, registry.Store("pratibha-api-v1").Put(ctx, entry("/b", "2")))

	names, err := registry.Names(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"pratibha-assets-v1", "pratibha-api-v1"}, names)
}

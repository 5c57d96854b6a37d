package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratibha-marketing/offline-gateway/internal/cache"
)

// fakeUpstream plays the backend: programmable bodies per path, a network
// kill switch, and per-path call counts.
type fakeUpstream struct {
	mu     sync.Mutex
	calls  map[string]int
	bodies map[string]string
	down   bool
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		calls:  make(map[string]int),
		bodies: make(map[string]string),
	}
}

func (f *fakeUpstream) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeUpstream) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeUpstream) fetch(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[req.URL.Path]++
	if f.down {
		return nil, errors.New("dial tcp: connection refused")
	}

	body, ok := f.bodies[req.URL.Path]
	if !ok {
		body = "ok:" + req.URL.Path
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func newTestRouter(t *testing.T, upstream *fakeUpstream, version string, maxAPI int, registry cache.Registry) *Router {
	t.Helper()
	if registry == nil {
		registry = cache.NewMemoryRegistry()
	}
	rt := New(Config{
		Rules:         DefaultRules(""),
		Registry:      registry,
		Version:       version,
		MaxAPIEntries: maxAPI,
		Fetch:         upstream.fetch,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	// Run stale-while-revalidate refreshes inline so tests are deterministic.
	rt.spawn = func(f func()) { f() }
	require.NoError(t, rt.Activate(context.Background()))
	return rt
}

func get(path string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path, nil)
}

func TestRoute_NotActiveNotIntercepted(t *testing.T) {
	upstream := newFakeUpstream()
	registry := cache.NewMemoryRegistry()
	rt := New(Config{
		Rules:         DefaultRules(""),
		Registry:      registry,
		Version:       "v1",
		MaxAPIEntries: 10,
		Fetch:         upstream.fetch,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, handled := rt.Route(context.Background(), get("/api/products"))
	assert.False(t, handled)

	rt.Supersede()
	_, handled = rt.Route(context.Background(), get("/api/products"))
	assert.False(t, handled)
}

func TestRoute_NonGETNotIntercepted(t *testing.T) {
	upstream := newFakeUpstream()
	rt := newTestRouter(t, upstream, "v1", 10, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{}"))
	_, handled := rt.Route(context.Background(), req)

	assert.False(t, handled)
	assert.Zero(t, upstream.callCount("/api/orders"))
}

func TestRoute_DenyListNeverCached(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeUpstream()
	registry := cache.NewMemoryRegistry()
	rt := newTestRouter(t, upstream, "v1", 10, registry)

	for _, path := range []string{"/api/auth/me", "/api/csrf-token", "/api/payments/ledger", "/api/reconciliation/42"} {
		_, handled := rt.Route(ctx, get(path))
		assert.False(t, handled, path)
	}

	stats, err := rt.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.APIEntries)
	assert.Zero(t, stats.AssetEntries)
}

func TestAPIStrategy_OfflineReplayOfAllowListed(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeUpstream()
	upstream.bodies["/api/products"] = `{"success":true,"data":[{"name":"Tomato"}]}`
	rt := newTestRouter(t, upstream, "v1", 10, nil)

	res, handled := rt.Route(ctx, get("/api/products"))
	require.True(t, handled)
	assert.Equal(t, http.StatusOK, res.Status)

	upstream.setDown(true)

	replay, handled := rt.Route(ctx, get("/api/products"))
	require.True(t, handled)
	assert.Equal(t, http.StatusOK, replay.Status)
	assert.Equal(t, res.Body, replay.Body)
}

func TestAPIStrategy_EligibleMissWhileOffline(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.setDown(true)
	rt := newTestRouter(t, upstream, "v1", 10, nil)

	res, handled := rt.Route(context.Background(), get("/api/market-rates"))
	require.True(t, handled)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Contains(t, string(res.Body), `"offline":true`)
}

func TestAPIStrategy_NonEligibleNeverCached(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeUpstream()
	rt := newTestRouter(t, upstream, "v1", 10, nil)

	res, handled := rt.Route(ctx, get("/api/orders"))
	require.True(t, handled)
	assert.Equal(t, http.StatusOK, res.Status)

	stats, err := rt.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.APIEntries)

	upstream.setDown(true)

	res, handled = rt.Route(ctx, get("/api/orders"))
	require.True(t, handled)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.NotContains(t, string(res.Body), `"offline":true`)
}

func TestAPIStrategy_CapacityBoundIsFIFO(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeUpstream()
	rt := newTestRouter(t, upstream, "v1", 3, nil)

	paths := []string{
		"/api/products?page=1",
		"/api/products?page=2",
		"/api/products?page=3",
		"/api/products?page=4",
		"/api/products?page=5",
	}
	for _, path := range paths {
		_, handled := rt.Route(ctx, get(path))
		require.True(t, handled)
	}

	keys, err := rt.apiData.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, paths[2:], keys)
}

func TestDocumentStrategy_FallsBackToCacheThenOfflinePage(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeUpstream()
	upstream.bodies["/orders"] = "<html>orders</html>"
	rt := newTestRouter(t, upstream, "v1", 10, nil)

	res, handled := rt.Route(ctx, get("/orders"))
	require.True(t, handled)
	assert.Equal(t, http.StatusOK, res.Status)

	upstream.setDown(true)

	cached, handled := rt.Route(ctx, get("/orders"))
	require.True(t, handled)
	assert.Equal(t, "<html>orders</html>", string(cached.Body))

	missed, handled := rt.Route(ctx, get("/customers"))
	require.True(t, handled)
	assert.Equal(t, http.StatusServiceUnavailable, missed.Status)
	assert.Contains(t, string(missed.Body), "You are offline")
	assert.Contains(t, missed.Header.Get("Content-Type"), "text/html")
}

func TestImmutableStrategy_CacheFirst(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeUpstream()
	rt := newTestRouter(t, upstream, "v1", 10, nil)

	const asset = "/assets/index-BfK9vQ3c.js"

	_, handled := rt.Route(ctx, get(asset))
	require.True(t, handled)
	_, handled = rt.Route(ctx, get(asset))
	require.True(t, handled)

	// Second hit is served from cache; the hashed name guarantees freshness.
	assert.Equal(t, 1, upstream.callCount(asset))
}

func TestImmutableStrategy_EmptyBodyOnTotalFailure(t *testing.T) {
	upstream := newFakeUpstream()
	upstream.setDown(true)
	rt := newTestRouter(t, upstream, "v1", 10, nil)

	res, handled := rt.Route(context.Background(), get("/assets/missing-00000000.js"))
	require.True(t, handled)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Empty(t, res.Body)
}

func TestRevalidateStrategy_ServesStaleAndRefreshes(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeUpstream()
	upstream.bodies["/favicon.ico"] = "v1-icon"
	rt := newTestRouter(t, upstream, "v1", 10, nil)

	first, handled := rt.Route(ctx, get("/favicon.ico"))
	require.True(t, handled)
	assert.Equal(t, "v1-icon", string(first.Body))

	upstream.mu.Lock()
	upstream.bodies["/favicon.ico"] = "v2-icon"
	upstream.mu.Unlock()

	// Stale copy is returned; the inline refresh updates the store.
	second, handled := rt.Route(ctx, get("/favicon.ico"))
	require.True(t, handled)
	assert.Equal(t, "v1-icon", string(second.Body))

	third, handled := rt.Route(ctx, get("/favicon.ico"))
	require.True(t, handled)
	assert.Equal(t, "v2-icon", string(third.Body))
}

func TestActivate_PrunesPreviousVersionKeepsAPIStore(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeUpstream()
	registry := cache.NewMemoryRegistry()

	v1 := newTestRouter(t, upstream, "v1", 10, registry)
	_, handled := v1.Route(ctx, get("/assets/app-11111111.js"))
	require.True(t, handled)
	_, handled = v1.Route(ctx, get("/api/products"))
	require.True(t, handled)
	v1.Supersede()

	v2 := newTestRouter(t, upstream, "v2", 10, registry)

	names, err := registry.Names(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, AssetStoreName("v1"))
	assert.Contains(t, names, APIStoreName)

	stats, err := v2.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.APIEntries)
	assert.Zero(t, stats.AssetEntries)
}

func TestApply_LogoutClearsEveryStore(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeUpstream()
	registry := cache.NewMemoryRegistry()
	rt := newTestRouter(t, upstream, "v1", 10, registry)

	_, handled := rt.Route(ctx, get("/api/products"))
	require.True(t, handled)
	_, handled = rt.Route(ctx, get("/assets/app-22222222.js"))
	require.True(t, handled)

	require.NoError(t, rt.Apply(ctx, Command{Kind: CommandLogout}))

	stats, err := rt.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.APIEntries)
	assert.Zero(t, stats.AssetEntries)

	names, err := registry.Names(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{AssetStoreName("v1"), APIStoreName}, names)
}

func TestApply_LogoutKeepsHeldStoresAttachedToRegistry(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeUpstream()
	registry := cache.NewMemoryRegistry()
	rt := newTestRouter(t, upstream, "v1", 10, registry)

	// A leftover store from an older deployment goes away with the rest.
	require.NoError(t, registry.Store(AssetStoreName("v0")).Put(ctx, &cache.Entry{URL: "/assets/old.js"}))

	require.NoError(t, rt.Apply(ctx, Command{Kind: CommandLogout}))

	names, err := registry.Names(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, AssetStoreName("v0"))

	// Caching after a logout must land in a store the registry still reports,
	// so a later activation can find and prune it.
	_, handled := rt.Route(ctx, get("/api/products"))
	require.True(t, handled)

	keys, err := registry.Store(APIStoreName).Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/api/products"}, keys)
}

func TestApply_SkipWaitingActivates(t *testing.T) {
	upstream := newFakeUpstream()
	rt := New(Config{
		Rules:         DefaultRules(""),
		Registry:      cache.NewMemoryRegistry(),
		Version:       "v1",
		MaxAPIEntries: 10,
		Fetch:         upstream.fetch,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	assert.Equal(t, StateInstalling, rt.State())
	require.NoError(t, rt.Apply(context.Background(), Command{Kind: CommandSkipWaiting}))
	assert.Equal(t, StateActive, rt.State())
}

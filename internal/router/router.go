// Package router is the caching policy engine in front of the Pratibha
// backend. It intercepts same-origin GET requests, dispatches each to one of
// four strategies based on URL shape, and manages two named cache stores: a
// version-tagged asset store recreated on each deployment and a fixed-name
// API store bounded by entry count.
package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pratibha-marketing/offline-gateway/internal/cache"
)

// APIStoreName is fixed across deployments; cached API data outlives
// version bumps until explicitly cleared.
const APIStoreName = "pratibha-api-v1"

// AssetStoreName embeds the build version so activation of a new deployment
// abandons the previous version's assets wholesale.
func AssetStoreName(version string) string {
	return "pratibha-assets-" + version
}

// State tracks the router lifecycle: a new instance installs, activates
// (and starts routing), and is eventually superseded by its replacement.
type State int32

const (
	StateInstalling State = iota
	StateActive
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSuperseded:
		return "superseded"
	default:
		return "installing"
	}
}

// Response is a materialized HTTP response, either fetched upstream or
// synthesized from cache.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Config wires a Router.
type Config struct {
	Rules         Rules
	Registry      cache.Registry
	Version       string
	MaxAPIEntries int

	// Fetch performs the upstream network call. The proxy supplies one that
	// rewrites the request to the backend origin.
	Fetch func(*http.Request) (*http.Response, error)

	Logger *slog.Logger
}

// Router dispatches intercepted requests to caching strategies.
type Router struct {
	rules         Rules
	registry      cache.Registry
	assets        cache.Store
	apiData       cache.Store
	assetStore    string
	maxAPIEntries int
	fetch         func(*http.Request) (*http.Response, error)
	logger        *slog.Logger
	state         atomic.Int32

	// spawn runs background revalidation work. Tests replace it to make
	// stale-while-revalidate deterministic.
	spawn func(func())
}

func New(cfg Config) *Router {
	assetStore := AssetStoreName(cfg.Version)
	return &Router{
		rules:         cfg.Rules,
		registry:      cfg.Registry,
		assets:        cfg.Registry.Store(assetStore),
		apiData:       cfg.Registry.Store(APIStoreName),
		assetStore:    assetStore,
		maxAPIEntries: cfg.MaxAPIEntries,
		fetch:         cfg.Fetch,
		logger:        cfg.Logger,
		spawn:         func(f func()) { go f() },
	}
}

func (rt *Router) State() State {
	return State(rt.state.Load())
}

// Activate prunes every cache store whose name is not in the current
// expected set, then begins routing. The API store keeps its fixed name and
// survives; the previous version's asset store does not.
func (rt *Router) Activate(ctx context.Context) error {
	names, err := rt.registry.Names(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if name == rt.assetStore || name == APIStoreName {
			continue
		}
		if err := rt.registry.Drop(ctx, name); err != nil {
			return err
		}
		rt.logger.Info("dropped stale cache store", "store", name)
	}

	rt.state.Store(int32(StateActive))
	rt.logger.Info("cache router active",
		"asset_store", rt.assetStore,
		"api_store", APIStoreName,
	)
	return nil
}

// Supersede stops this instance from routing. Its replacement takes over on
// its own activation.
func (rt *Router) Supersede() {
	rt.state.Store(int32(StateSuperseded))
}

// Apply executes a decoded control command.
func (rt *Router) Apply(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandSkipWaiting:
		return rt.Activate(ctx)
	case CommandClearCache, CommandLogout:
		rt.logger.Info("clearing all cache stores", "command", cmd.Kind.String())
		return rt.clearAll(ctx)
	}
	return nil
}

// clearAll empties the held stores in place and drops every other registry
// store. Dropping the held names would detach rt.assets and rt.apiData from
// the registry; entries cached afterwards would live in stores the registry
// no longer reports, invisible to later activation pruning.
func (rt *Router) clearAll(ctx context.Context) error {
	if err := rt.assets.Clear(ctx); err != nil {
		return err
	}
	if err := rt.apiData.Clear(ctx); err != nil {
		return err
	}

	names, err := rt.registry.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == rt.assetStore || name == APIStoreName {
			continue
		}
		if err := rt.registry.Drop(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Route applies the caching strategy for req. handled=false means the
// request is not intercepted and must pass through to the network untouched.
func (rt *Router) Route(ctx context.Context, req *http.Request) (*Response, bool) {
	if rt.State() != StateActive {
		return nil, false
	}

	switch rt.rules.Classify(req.Method, req.URL) {
	case StrategyDocument:
		return rt.serveDocument(ctx, req), true
	case StrategyImmutableAsset:
		return rt.serveImmutable(ctx, req), true
	case StrategyRevalidate:
		return rt.serveRevalidate(ctx, req), true
	case StrategyAPI:
		return rt.serveAPI(ctx, req), true
	default:
		return nil, false
	}
}

// Stats reports entry counts per store, for the daemon's status endpoint.
type Stats struct {
	State        string `json:"state"`
	AssetStore   string `json:"assetStore"`
	AssetEntries int    `json:"assetEntries"`
	APIStore     string `json:"apiStore"`
	APIEntries   int    `json:"apiEntries"`
}

func (rt *Router) Stats(ctx context.Context) (Stats, error) {
	assetCount, err := rt.assets.Len(ctx)
	if err != nil {
		return Stats{}, err
	}
	apiCount, err := rt.apiData.Len(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		State:        rt.State().String(),
		AssetStore:   rt.assetStore,
		AssetEntries: assetCount,
		APIStore:     APIStoreName,
		APIEntries:   apiCount,
	}, nil
}

func cacheKey(req *http.Request) string {
	return req.URL.String()
}

func responseOK(status int) bool {
	return status >= 200 && status < 300
}

func (rt *Router) fetchUpstream(ctx context.Context, req *http.Request) (*Response, error) {
	resp, err := rt.fetch(req.Clone(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}

func (rt *Router) store(ctx context.Context, store cache.Store, req *http.Request, res *Response) error {
	return store.Put(ctx, &cache.Entry{
		URL:      cacheKey(req),
		Status:   res.Status,
		Header:   res.Header,
		Body:     res.Body,
		StoredAt: time.Now(),
	})
}

func (rt *Router) cached(ctx context.Context, store cache.Store, req *http.Request) *Response {
	entry, ok, err := store.Get(ctx, cacheKey(req))
	if err != nil {
		rt.logger.Warn("cache read failed", "url", cacheKey(req), "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &Response{
		Status: entry.Status,
		Header: entry.Header.Clone(),
		Body:   entry.Body,
	}
}

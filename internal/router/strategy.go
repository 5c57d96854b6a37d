package router

import (
	"net/http"
	"net/url"
	"strings"
)

// Strategy is the caching behavior selected for one intercepted request.
type Strategy int

const (
	// StrategyPassThrough leaves the request alone: straight to network,
	// nothing cached.
	StrategyPassThrough Strategy = iota
	// StrategyDocument is network-first with an offline HTML fallback.
	StrategyDocument
	// StrategyImmutableAsset is cache-first; content-hashed assets never go
	// stale under their own name.
	StrategyImmutableAsset
	// StrategyRevalidate is stale-while-revalidate.
	StrategyRevalidate
	// StrategyAPI is network-first with a bounded cache for allow-listed
	// read-only endpoints.
	StrategyAPI
)

func (s Strategy) String() string {
	switch s {
	case StrategyDocument:
		return "document"
	case StrategyImmutableAsset:
		return "immutable-asset"
	case StrategyRevalidate:
		return "revalidate"
	case StrategyAPI:
		return "api"
	default:
		return "pass-through"
	}
}

// Rules is the path-shape contract that maps a request to a strategy.
// Classification is a pure function of method and URL so it can be tested
// without a live routing context.
type Rules struct {
	// Host is the gateway's own origin. Requests addressed elsewhere are
	// never intercepted. Empty matches any host.
	Host string

	// RawPrefixes cover uploaded/raw files that must always hit the network.
	RawPrefixes []string

	APIPrefix string

	// DenyPrefixes are API paths that must never be cached or intercepted:
	// credential-bearing and mutation-capable endpoints. Serving any of
	// these from cache would be a security bug.
	DenyPrefixes []string

	// AllowPrefixes are the only API paths eligible for caching.
	AllowPrefixes []string

	// AssetPrefix holds content-hashed build artifacts.
	AssetPrefix string
}

// DefaultRules returns the routing contract for the Pratibha backend.
func DefaultRules(host string) Rules {
	return Rules{
		Host:        host,
		RawPrefixes: []string{"/uploads/"},
		APIPrefix:   "/api/",
		DenyPrefixes: []string{
			"/api/auth",
			"/api/csrf-token",
			"/api/payments",
			"/api/reconciliation",
		},
		AllowPrefixes: []string{
			"/api/products",
			"/api/market-rates",
		},
		AssetPrefix: "/assets/",
	}
}

// Classify selects the strategy for one request. Evaluation order matters:
// deny-listed API paths must win over the document heuristic, and the
// document heuristic must win over the asset prefix.
func (r Rules) Classify(method string, u *url.URL) Strategy {
	if method != http.MethodGet {
		return StrategyPassThrough
	}
	if r.Host != "" && u.Host != "" && u.Host != r.Host {
		return StrategyPassThrough
	}

	path := u.Path
	for _, prefix := range r.RawPrefixes {
		if strings.HasPrefix(path, prefix) {
			return StrategyPassThrough
		}
	}

	if strings.HasPrefix(path, r.APIPrefix) {
		for _, prefix := range r.DenyPrefixes {
			if strings.HasPrefix(path, prefix) {
				return StrategyPassThrough
			}
		}
		return StrategyAPI
	}

	if looksLikeDocument(path) {
		return StrategyDocument
	}

	if strings.HasPrefix(path, r.AssetPrefix) {
		return StrategyImmutableAsset
	}

	return StrategyRevalidate
}

// CacheableAPI reports whether an API path is on the read-only allow-list.
func (r Rules) CacheableAPI(path string) bool {
	for _, prefix := range r.AllowPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// looksLikeDocument matches navigations: the root path, explicit HTML
// documents, and extension-less paths (client-side routes).
func looksLikeDocument(path string) bool {
	if path == "" || path == "/" {
		return true
	}
	if strings.HasSuffix(path, ".html") || strings.HasSuffix(path, ".htm") {
		return true
	}
	base := path[strings.LastIndex(path, "/")+1:]
	return !strings.Contains(base, ".")
}

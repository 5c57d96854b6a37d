package router

import (
	"context"
	"net/http"
	"time"
)

const offlinePage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Pratibha Marketing - Offline</title>
</head>
<body>
<h1>You are offline</h1>
<p>Pratibha Marketing needs a connection to load this page. Cached data stays available once you have visited it online.</p>
</body>
</html>`

const (
	offlineAPIBody = `{"success":false,"offline":true,"message":"You are offline and this data has not been cached yet."}`
	genericAPIBody = `{"success":false,"message":"Unable to reach the server. Please check your connection."}`
)

const revalidateTimeout = 30 * time.Second

// serveDocument: network-first. A fresh copy lands in the asset store; when
// the network is down we fall back to the last cached copy, and past that to
// a synthesized offline page.
func (rt *Router) serveDocument(ctx context.Context, req *http.Request) *Response {
	res, err := rt.fetchUpstream(ctx, req)
	if err == nil {
		if responseOK(res.Status) {
			if werr := rt.store(ctx, rt.assets, req, res); werr != nil {
				rt.logger.Warn("document cache write failed", "url", cacheKey(req), "error", werr)
			}
		}
		return res
	}

	rt.logger.Debug("document fetch failed, trying cache", "url", cacheKey(req), "error", err)
	if cached := rt.cached(ctx, rt.assets, req); cached != nil {
		return cached
	}

	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:   []byte(offlinePage),
	}
}

// serveImmutable: cache-first. Asset names carry a content hash, so a cached
// copy is always current; no revalidation.
func (rt *Router) serveImmutable(ctx context.Context, req *http.Request) *Response {
	if cached := rt.cached(ctx, rt.assets, req); cached != nil {
		return cached
	}

	res, err := rt.fetchUpstream(ctx, req)
	if err == nil {
		if responseOK(res.Status) {
			if werr := rt.store(ctx, rt.assets, req, res); werr != nil {
				rt.logger.Warn("asset cache write failed", "url", cacheKey(req), "error", werr)
			}
		}
		return res
	}

	return &Response{Status: http.StatusServiceUnavailable, Header: http.Header{}}
}

// serveRevalidate: stale-while-revalidate. A cached copy is returned
// immediately while a background fetch refreshes the store for next time.
func (rt *Router) serveRevalidate(ctx context.Context, req *http.Request) *Response {
	if cached := rt.cached(ctx, rt.assets, req); cached != nil {
		refresh := req.Clone(context.WithoutCancel(ctx))
		rt.spawn(func() { rt.revalidate(refresh) })
		return cached
	}

	res, err := rt.fetchUpstream(ctx, req)
	if err == nil {
		if responseOK(res.Status) {
			if werr := rt.store(ctx, rt.assets, req, res); werr != nil {
				rt.logger.Warn("cache write failed", "url", cacheKey(req), "error", werr)
			}
		}
		return res
	}

	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte("offline: resource unavailable"),
	}
}

// revalidate refreshes one cached entry in the background. Failures are
// logged, never surfaced; the caller already has a response.
func (rt *Router) revalidate(req *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(req.Context()), revalidateTimeout)
	defer cancel()

	res, err := rt.fetchUpstream(ctx, req)
	if err != nil {
		rt.logger.Debug("background revalidation failed", "url", cacheKey(req), "error", err)
		return
	}
	if !responseOK(res.Status) {
		return
	}
	if err := rt.store(ctx, rt.assets, req, res); err != nil {
		rt.logger.Warn("revalidation cache write failed", "url", cacheKey(req), "error", err)
	}
}

// serveAPI: network-first with a bounded cache. Only allow-listed read-only
// endpoints are ever written to the API store; after each write the store is
// trimmed FIFO back to capacity.
func (rt *Router) serveAPI(ctx context.Context, req *http.Request) *Response {
	eligible := rt.rules.CacheableAPI(req.URL.Path)

	res, err := rt.fetchUpstream(ctx, req)
	if err == nil {
		if eligible && responseOK(res.Status) {
			if werr := rt.store(ctx, rt.apiData, req, res); werr != nil {
				rt.logger.Warn("api cache write failed", "url", cacheKey(req), "error", werr)
			} else if _, terr := rt.apiData.Trim(ctx, rt.maxAPIEntries); terr != nil {
				rt.logger.Warn("api cache trim failed", "error", terr)
			}
		}
		return res
	}

	if eligible {
		if cached := rt.cached(ctx, rt.apiData, req); cached != nil {
			rt.logger.Debug("serving api response from cache", "url", cacheKey(req))
			return cached
		}
		return jsonUnavailable(offlineAPIBody)
	}

	return jsonUnavailable(genericAPIBody)
}

func jsonUnavailable(body string) *Response {
	return &Response{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(body),
	}
}

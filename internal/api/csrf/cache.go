// Package csrf caches the anti-forgery token required on state-changing
// requests. The token lives in the csrf_token cookie; refreshes go through
// a single-flight group so concurrent callers share one network call.
package csrf

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/sync/singleflight"
)

const cookieName = "csrf_token"

// Cache reads the anti-forgery token from the client's cookie jar and
// refreshes it from the token endpoint when missing.
type Cache struct {
	endpoint   *url.URL
	httpClient *http.Client
	group      singleflight.Group
	logger     *slog.Logger
}

// New builds a token cache over the given HTTP client. The client must carry
// a cookie jar; the server sets the token cookie as a refresh side effect.
func New(httpClient *http.Client, endpoint *url.URL, logger *slog.Logger) *Cache {
	return &Cache{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Token returns the cached token from the cookie jar, or "" when absent.
// Never touches the network.
func (c *Cache) Token() string {
	if c.httpClient.Jar == nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(c.endpoint) {
		if cookie.Name == cookieName {
			return cookie.Value
		}
	}
	return ""
}

// Refresh fetches a fresh token from the token endpoint. Concurrent callers
// during an in-flight refresh all receive that refresh's outcome instead of
// issuing duplicate network calls. Failures are swallowed and reported as an
// absent token; the server will reject the mutating request and the gateway
// surfaces that through its normal error path.
func (c *Cache) Refresh(ctx context.Context) string {
	token, _, _ := c.group.Do(cookieName, func() (interface{}, error) {
		return c.fetch(ctx), nil
	})
	return token.(string)
}

// Ensure returns the cached token if present, else refreshes.
func (c *Cache) Ensure(ctx context.Context) string {
	if token := c.Token(); token != "" {
		return token
	}
	return c.Refresh(ctx)
}

func (c *Cache) fetch(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.String(), nil)
	if err != nil {
		return ""
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("csrf token refresh failed", "error", err)
		return ""
	}
	defer resp.Body.Close()

	var body struct {
		CSRFToken string `json:"csrfToken"`
		Data      struct {
			CSRFToken string `json:"csrfToken"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if body.CSRFToken != "" {
			return body.CSRFToken
		}
		if body.Data.CSRFToken != "" {
			return body.Data.CSRFToken
		}
	}

	// The server also sets the cookie as a side effect of the refresh call.
	return c.Token()
}

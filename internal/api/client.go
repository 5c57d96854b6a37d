// Package api implements the HTTP request gateway used for every
// application-originated call to the Pratibha backend. Callers receive a
// uniform Result instead of raw errors: status codes are classified into a
// fixed taxonomy, transient network failures are retried with a linear
// back-off, and csrf-rejected mutations are replayed once with a fresh
// anti-forgery token.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pratibha-marketing/offline-gateway/internal/api/csrf"
)

const (
	headerCSRFToken = "X-CSRF-Token"
	headerRequestID = "X-Request-ID"

	msgOffline    = "You appear to be offline. Please check your connection."
	msgCancelled  = "Request was cancelled"
	msgConnection = "Unable to reach the server. Please check your connection and try again."
)

// Options is the caller-facing request shape. Body is kept as bytes so the
// gateway can replay it on retry.
type Options struct {
	Method string
	Header http.Header
	Body   []byte

	// ContentType overrides the default JSON content type. Multipart bodies
	// must set it (with boundary); the JSON default is skipped for them.
	ContentType string
}

// ClientConfig wires a gateway client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration

	// RetryBaseDelay and MaxRetries tune the transient-failure retry loop.
	// Zero values take the defaults: 1s base delay, 2 extra attempts.
	RetryBaseDelay time.Duration
	MaxRetries     int

	// Online reports current connectivity. When it returns false the gateway
	// fails fast with an offline result instead of touching the network.
	Online func() bool

	// OnUnauthorized runs once per 401 response. It owns clearing local auth
	// state and navigating to the login entry point.
	OnUnauthorized func()

	Logger    *slog.Logger
	Transport http.RoundTripper
}

// Client is the single entry point for API calls.
type Client struct {
	baseURL        *url.URL
	httpClient     *http.Client
	tokens         *csrf.Cache
	online         func() bool
	onUnauthorized func()
	logger         *slog.Logger
	retryBaseDelay time.Duration
	maxRetries     int
}

// NewClient builds a gateway client with its own cookie jar; session and
// csrf cookies set by the backend ride along on every call.
func NewClient(cfg ClientConfig) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Jar:       jar,
		Timeout:   cfg.Timeout,
		Transport: cfg.Transport,
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	online := cfg.Online
	if online == nil {
		online = func() bool { return true }
	}

	retryBaseDelay := cfg.RetryBaseDelay
	if retryBaseDelay == 0 {
		retryBaseDelay = time.Second
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}

	tokenEndpoint := *base
	tokenEndpoint.Path = strings.TrimSuffix(base.Path, "/") + "/api/csrf-token"

	return &Client{
		baseURL:        base,
		httpClient:     httpClient,
		tokens:         csrf.New(httpClient, &tokenEndpoint, logger),
		online:         online,
		onUnauthorized: cfg.OnUnauthorized,
		logger:         logger,
		retryBaseDelay: retryBaseDelay,
		maxRetries:     maxRetries,
	}, nil
}

// Tokens exposes the anti-forgery token cache.
func (c *Client) Tokens() *csrf.Cache {
	return c.tokens
}

// Request issues an API call and classifies its outcome. It never returns a
// Go error; every failure mode is a Result.
func (c *Client) Request(ctx context.Context, endpoint string, opts Options) Result {
	return c.do(ctx, endpoint, opts, "", false)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, endpoint string) Result {
	return c.Request(ctx, endpoint, Options{Method: http.MethodGet})
}

// Post marshals body as JSON and issues a POST request.
func (c *Client) Post(ctx context.Context, endpoint string, body any) Result {
	raw, err := json.Marshal(body)
	if err != nil {
		return failure(KindGeneric, 0, "Invalid request body")
	}
	return c.Request(ctx, endpoint, Options{Method: http.MethodPost, Body: raw})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	}
	return false
}

// do runs the request loop. freshToken, when set, is a just-refreshed
// anti-forgery token that must ride on the replayed request even if the
// refresh did not update the cookie jar.
func (c *Client) do(ctx context.Context, endpoint string, opts Options, freshToken string, csrfRetried bool) Result {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	mutating := isMutating(method)

	if !c.online() {
		return failure(KindOffline, 0, msgOffline)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return failure(KindCancelled, 0, msgCancelled)
			case <-time.After(c.retryBaseDelay * time.Duration(attempt)):
			}
		}

		resp, err := c.send(ctx, method, endpoint, opts, mutating, freshToken)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return failure(KindCancelled, 0, msgCancelled)
			}
			if !c.online() {
				return failure(KindOffline, 0, msgOffline)
			}
			lastErr = err
			continue
		}
		return c.classify(ctx, resp, endpoint, opts, csrfRetried)
	}

	c.logger.Warn("request failed after retries",
		"method", method,
		"endpoint", endpoint,
		"error", lastErr,
	)

	if !mutating {
		// Background polls should not produce noisy UI errors.
		return Result{Kind: KindNetworkError, Silent: true}
	}
	return failure(KindNetworkError, 0, msgConnection)
}

func (c *Client) send(ctx context.Context, method, endpoint string, opts Options, mutating bool, freshToken string) (*http.Response, error) {
	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+endpoint, body)
	if err != nil {
		return nil, err
	}

	switch {
	case opts.ContentType != "":
		req.Header.Set("Content-Type", opts.ContentType)
	case len(opts.Body) > 0:
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set(headerRequestID, uuid.NewString())

	for key, values := range opts.Header {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	if mutating {
		token := freshToken
		if token == "" {
			token = c.tokens.Ensure(ctx)
		}
		if token != "" {
			req.Header.Set(headerCSRFToken, token)
		}
	}

	return c.httpClient.Do(req)
}

func (c *Client) classify(ctx context.Context, resp *http.Response, endpoint string, opts Options, csrfRetried bool) Result {
	defer resp.Body.Close()

	status := resp.StatusCode
	raw, readErr := io.ReadAll(resp.Body)

	var env envelope
	parsed := false
	if readErr == nil && len(bytes.TrimSpace(raw)) > 0 {
		parsed = json.Unmarshal(raw, &env) == nil
	}

	switch {
	case status >= 200 && status < 300:
		if readErr != nil {
			return failure(KindParseError, status, "Server response could not be read")
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			return success(status, nil)
		}
		if !parsed {
			return failure(KindParseError, status, "Server returned an unreadable response")
		}
		if env.Data != nil {
			return success(status, env.Data)
		}
		return success(status, raw)

	case status == http.StatusUnauthorized:
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return failure(KindUnauthorized, status, "Your session has expired. Please log in again.")

	case status == http.StatusForbidden:
		if strings.Contains(strings.ToLower(env.Message), "csrf") && !csrfRetried {
			c.logger.Debug("csrf token rejected, refreshing and retrying once", "endpoint", endpoint)
			token := c.tokens.Refresh(ctx)
			return c.do(ctx, endpoint, opts, token, true)
		}
		return failure(KindForbidden, status, messageOr(env.Message, "You do not have permission to perform this action"))

	case status == http.StatusNotFound:
		return failure(KindNotFound, status, messageOr(env.Message, "The requested resource was not found"))

	case status == http.StatusUnprocessableEntity:
		result := failure(KindValidation, status, messageOr(env.Message, "Validation failed"))
		result.Errors = env.Errors
		return result

	case status == http.StatusTooManyRequests:
		return failure(KindRateLimited, status, messageOr(env.Message, "Too many requests. Please slow down and try again."))

	case status == http.StatusRequestTimeout:
		return failure(KindTimeout, status, messageOr(env.Message, "The request timed out. Please try again."))

	case status == http.StatusInternalServerError:
		return failure(KindServerError, status, messageOr(env.Message, "Something went wrong on the server. Please try again later."))

	case status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return failure(KindServiceUnavailable, status, messageOr(env.Message, "Service is temporarily unavailable. Please try again shortly."))

	default:
		return failure(KindGeneric, status, messageOr(env.Message, fallbackMessage(status)))
	}
}

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}

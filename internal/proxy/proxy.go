// Package proxy is the HTTP surface of the offline gateway daemon. Every
// inbound request flows through the cache router; requests the router does
// not intercept are reverse-proxied to the backend untouched.
package proxy

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/pratibha-marketing/offline-gateway/internal/router"
)

const (
	controlPath = "/__gateway/control"
	statusPath  = "/__gateway/status"
)

// Handler routes inbound requests through the cache router and falls back
// to a reverse proxy for pass-through traffic.
type Handler struct {
	router   *router.Router
	upstream *httputil.ReverseProxy
	online   func() bool
	logger   *slog.Logger
}

func New(upstreamURL *url.URL, rt *router.Router, online func() bool, logger *slog.Logger) *Handler {
	reverse := httputil.NewSingleHostReverseProxy(upstreamURL)
	reverse.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("upstream unreachable", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSONError(w, http.StatusBadGateway, "Upstream unreachable")
	}

	if online == nil {
		online = func() bool { return true }
	}

	return &Handler{
		router:   rt,
		upstream: reverse,
		online:   online,
		logger:   logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case controlPath:
		h.handleControl(w, r)
		return
	case statusPath:
		h.handleStatus(w, r)
		return
	}

	if res, handled := h.router.Route(r.Context(), r); handled {
		writeResponse(w, res)
		return
	}

	h.upstream.ServeHTTP(w, r)
}

// controlRequest is the page-to-router message envelope.
type controlRequest struct {
	Command string `json:"command"`
}

func (h *Handler) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var body controlRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid control message")
		return
	}

	cmd, err := router.ParseCommand(body.Command)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.router.Apply(r.Context(), cmd); err != nil {
		h.logger.Error("control command failed", "command", body.Command, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Command failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]string{"command": body.Command},
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	stats, err := h.router.Stats(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Stats unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"online": h.online(),
			"caches": stats,
		},
	})
}

// UpstreamFetch builds the router's network function: it rewrites an
// intercepted request to the backend origin and issues it with client.
func UpstreamFetch(base *url.URL, client *http.Client) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		out := req.Clone(req.Context())
		out.URL.Scheme = base.Scheme
		out.URL.Host = base.Host
		out.Host = base.Host
		// Inbound server requests carry RequestURI, which client calls must
		// not set.
		out.RequestURI = ""
		return client.Do(out)
	}
}

func writeResponse(w http.ResponseWriter, res *router.Response) {
	for key, values := range res.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(res.Status)
	_, _ = w.Write(res.Body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}

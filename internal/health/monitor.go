// Package health tracks backend connectivity. The gateway consults the
// monitor before touching the network so offline calls fail fast instead of
// waiting out a dial timeout.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Monitor polls the backend health endpoint and exposes the last observed
// connectivity state. It starts optimistic: callers see online until the
// first probe says otherwise.
type Monitor struct {
	url        string
	httpClient *http.Client
	interval   time.Duration
	logger     *slog.Logger
	offline    atomic.Bool
}

func NewMonitor(healthURL string, interval, timeout time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		url:        healthURL,
		httpClient: &http.Client{Timeout: timeout},
		interval:   interval,
		logger:     logger,
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	return !m.offline.Load()
}

// SetOnline overrides the observed state. Probes will overwrite it.
func (m *Monitor) SetOnline(online bool) {
	m.offline.Store(!online)
}

// Start probes immediately and then on every tick until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopping")
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return
	}

	resp, err := m.httpClient.Do(req)
	online := err == nil && resp.StatusCode < http.StatusInternalServerError
	if resp != nil {
		resp.Body.Close()
	}

	was := m.Online()
	m.offline.Store(!online)

	if online != was {
		if online {
			m.logger.Info("backend reachable again", "url", m.url)
		} else {
			m.logger.Warn("backend unreachable, entering offline mode", "url", m.url, "error", err)
		}
	}
}

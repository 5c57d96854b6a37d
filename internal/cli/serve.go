package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pratibha-marketing/offline-gateway/internal/cache"
	"github.com/pratibha-marketing/offline-gateway/internal/config"
	"github.com/pratibha-marketing/offline-gateway/internal/health"
	"github.com/pratibha-marketing/offline-gateway/internal/proxy"
	"github.com/pratibha-marketing/offline-gateway/internal/router"
)

func (c *CLI) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the caching gateway daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	upstreamURL, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return err
	}

	var registry cache.Registry
	if cfg.Cache.Path != "" {
		registry, err = cache.OpenSQLiteRegistry(cfg.Cache.Path)
		if err != nil {
			return err
		}
	} else {
		registry = cache.NewMemoryRegistry()
	}
	defer registry.Close()

	fetchClient := &http.Client{Timeout: cfg.Upstream.ConnTimeout}

	rt := router.New(router.Config{
		Rules:         router.DefaultRules(""),
		Registry:      registry,
		Version:       cfg.Cache.Version,
		MaxAPIEntries: cfg.Cache.MaxAPIEntries,
		Fetch:         proxy.UpstreamFetch(upstreamURL, fetchClient),
		Logger:        logger,
	})
	if err := rt.Activate(ctx); err != nil {
		return err
	}

	healthURL := strings.TrimSuffix(cfg.Upstream.BaseURL, "/") + "/api/health"
	monitor := health.NewMonitor(healthURL, cfg.Health.Interval, cfg.Health.Timeout, logger)

	monitorCtx, cancelMonitor := context.WithCancel(context.Background())
	defer cancelMonitor()
	go monitor.Start(monitorCtx)

	handler := http.Handler(proxy.New(upstreamURL, rt, monitor.Online, logger))
	handler = proxy.Timeout(cfg.Server.WriteTimeout)(handler)
	handler = proxy.Logging(logger)(handler)
	handler = proxy.Recovery(logger)(handler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			"addr", server.Addr,
			"upstream", cfg.Upstream.BaseURL,
			"cache_version", cfg.Cache.Version,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down gateway...")
	rt.Supersede()
	cancelMonitor()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return err
	}

	logger.Info("gateway exited")
	return nil
}

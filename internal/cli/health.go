package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pratibha-marketing/offline-gateway/internal/api"
	"github.com/pratibha-marketing/offline-gateway/internal/config"
)

func (c *CLI) newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check backend reachability through the request gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			clientCfg := api.ClientConfig{BaseURL: addr}
			if addr == "" {
				cfg, err := config.LoadConfig()
				if err != nil {
					return err
				}
				clientCfg.BaseURL = cfg.Upstream.BaseURL
				clientCfg.Timeout = cfg.Upstream.ConnTimeout
				clientCfg.RetryBaseDelay = cfg.Retry.BaseDelay
				clientCfg.MaxRetries = cfg.Retry.MaxRetries
			}

			client, err := api.NewClient(clientCfg)
			if err != nil {
				return err
			}

			result := client.Get(cmd.Context(), "/api/health")
			if !result.Success {
				return fmt.Errorf("backend unhealthy (%s): %s", result.Kind, result.Message)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "backend healthy (status %d)\n", result.Status)
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Backend base URL (defaults to the configured upstream)")

	return cmd
}

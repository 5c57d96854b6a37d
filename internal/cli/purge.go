package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pratibha-marketing/offline-gateway/internal/api"
)

func (c *CLI) newPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Clear every cache store of a running gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			logout, _ := cmd.Flags().GetBool("logout")

			command := "clearCache"
			if logout {
				command = "logout"
			}

			client, err := api.NewClient(api.ClientConfig{BaseURL: addr})
			if err != nil {
				return err
			}

			result := client.Post(cmd.Context(), "/__gateway/control", map[string]string{
				"command": command,
			})
			if !result.Success {
				return fmt.Errorf("purge failed: %s", result.Message)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}

	cmd.Flags().String("addr", "http://localhost:8787", "Address of the running gateway")
	cmd.Flags().Bool("logout", false, "Send the logout command instead of clearCache")

	return cmd
}

// Package cli implements the gateway command line interface.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// CLI is the cobra command tree for the gateway binary.
type CLI struct {
	rootCmd *cobra.Command
}

func New() *CLI {
	rootCmd := &cobra.Command{
		Use:           "gateway",
		Short:         "Offline caching gateway for Pratibha Marketing",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	c := &CLI{rootCmd: rootCmd}

	rootCmd.AddCommand(c.newServeCmd())
	rootCmd.AddCommand(c.newPurgeCmd())
	rootCmd.AddCommand(c.newHealthCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

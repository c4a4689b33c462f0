// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the appsync CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "appsync",
		Short:         "Render and simulate ManagedApp reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Render())
	cmd.AddCommand(Simulate())
	cmd.AddCommand(Version())

	return cmd
}

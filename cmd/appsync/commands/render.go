package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/appsync/cmd/appsync/handlers"
)

// Render returns the command that prints the dependents of a manifest.
func Render() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the Deployment and Service a ManagedApp produces",
		Long: `Render the desired dependents of every ManagedApp in a manifest.

The output is a multi-document YAML stream with a controlling owner
reference on each dependent, exactly as the controller would write it.
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Render(manifestPath, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "Path to a ManagedApp manifest (- for stdin)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/imamik/appsync/cmd/appsync/handlers"
)

// Simulate returns the command that runs the controller in memory.
func Simulate() *cobra.Command {
	var (
		manifestPath string
		configPath   string
		deleteAfter  bool
		verbose      bool
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Reconcile a manifest against an in-memory store",
		Long: `Run the ManagedApp controller against an in-memory object store.

Every ManagedApp in the manifest is created, the controller runs until
each one has been observed, and the resulting objects and events are
printed. With --delete the apps are then deleted to show that their
dependents are removed through owner references.
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Simulate(cmd.Context(), handlers.SimulateOptions{
				ManifestPath: manifestPath,
				ConfigPath:   configPath,
				Delete:       deleteAfter,
				Timeout:      timeout,
				Verbose:      verbose,
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "Path to a ManagedApp manifest (- for stdin)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the operator configuration file")
	cmd.Flags().BoolVar(&deleteAfter, "delete", false, "Delete the apps after they converge")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log controller activity to stderr")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the apps to converge")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

package commands

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
)

// buildInfo describes the running binary.
type buildInfo struct {
	Version string
	Commit  string
	Date    string
}

var build = buildInfo{Version: "dev", Commit: "none", Date: "unknown"}

// SetVersionInfo sets the version information from main.
func SetVersionInfo(v, c, d string) {
	build = buildInfo{Version: v, Commit: c, Date: d}
}

func (b buildInfo) write(out io.Writer, short bool) {
	if short {
		fmt.Fprintln(out, b.Version)
		return
	}
	fmt.Fprintf(out, "appsync %s\n", b.Version)
	fmt.Fprintf(out, "  commit: %s\n", b.Commit)
	fmt.Fprintf(out, "  built:  %s\n", b.Date)
	fmt.Fprintf(out, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Version returns the version command.
func Version() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			build.write(cmd.OutOrStdout(), short)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}

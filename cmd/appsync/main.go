// Package main is the entry point for the appsync CLI.
//
// appsync works on ManagedApp manifests without a cluster: it renders the
// dependents a manifest produces and simulates the controller against an
// in-memory store.
//
// Commands: render, simulate, version.
//
// For detailed usage information, run:
//
//	appsync --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/imamik/appsync/cmd/appsync/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Root().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package main is the entry point for the flotilla CLI.
//
// flotilla orchestrates the lifecycle of Kubernetes clusters across AWS
// accounts: a regional control-plane cluster per region plus the
// management clusters that depend on it. Provisioning, teardown and
// orphan reconciliation are driven from declarative deployment
// descriptors.
//
// Commands: validate, apply, destroy, reconcile.
//
// For detailed usage information, run:
//
//	flotilla --help
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tobkre/flotilla/cmd/flotilla/commands"
	"github.com/tobkre/flotilla/cmd/flotilla/handlers"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// Interrupts cancel the context rather than killing the process so
	// that in-flight steps finish recording their outcome.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Root().ExecuteContext(ctx); err != nil {
		var exit *handlers.ExitError
		if errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exit.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing and flag binding. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tobkre/flotilla/cmd/flotilla/handlers"
)

var buildVersion = "dev"

// SetVersionInfo records build metadata from main. The root command
// renders it through cobra's --version flag.
func SetVersionInfo(version, commit, date string) {
	buildVersion = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}

// Root returns the root command for the flotilla CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "flotilla",
		Short:   "Orchestrate cluster lifecycles across AWS accounts",
		Version: buildVersion,
	}

	cmd.AddCommand(Validate())
	cmd.AddCommand(Apply())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Reconcile())

	return cmd
}

// lifecycleFlags binds the flags shared by validate, apply and destroy
// to an options struct.
func lifecycleFlags(cmd *cobra.Command, opts *handlers.Options) {
	cmd.Flags().StringVarP(&opts.Dir, "dir", "d", "deployments", "Directory holding deployment-unit descriptors")
	cmd.Flags().StringVar(&opts.RootsDir, "roots", "terraform", "Directory holding engine configuration roots")
	cmd.Flags().StringVarP(&opts.Region, "region", "r", os.Getenv("AWS_REGION"), "AWS region to operate in")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/tobkre/flotilla/cmd/flotilla/handlers"
)

// Validate returns the validate command.
//
// Validate resolves every descriptor in the deployment directory,
// including parameter-store account indirection, and checks the result
// without touching any infrastructure. A failing descriptor does not
// stop validation of its siblings.
func Validate() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Resolve and validate all deployment descriptors",
		Long: `Validate resolves every deployment descriptor, including account
lookups against the regional parameter store, and checks the result.

No infrastructure is touched. The command exits non-zero when any
descriptor fails to resolve or validate.

Example:
  flotilla validate -d deployments -r eu-central-1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Validate(cmd.Context(), opts)
		},
	}

	lifecycleFlags(cmd, &opts)

	return cmd
}

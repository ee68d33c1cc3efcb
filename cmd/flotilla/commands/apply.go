package commands

import (
	"github.com/spf13/cobra"

	"github.com/tobkre/flotilla/cmd/flotilla/handlers"
)

// Apply returns the command for provisioning deployment units.
//
// Apply resolves all descriptors, groups them by regional account and
// drives each group through infrastructure apply and CD bootstrap.
// Regional units always precede the management units that depend on
// them; independent groups run in parallel.
//
// Optional flags:
//
//	--dir, -d:    descriptor directory (default: deployments)
//	--roots:      engine configuration roots (default: terraform)
//	--region, -r: AWS region (default: $AWS_REGION)
//	--parallel:   concurrent dependency groups (default: 4)
func Apply() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Provision all deployment units",
		Long: `Apply provisions every deployment unit that is not marked for
deletion: infrastructure is applied in the unit's target account, then
the continuous-delivery controller is bootstrapped onto the cluster.

Regional control-plane units are provisioned before the management
units that depend on them. Independent regional groups run in parallel.

Examples:
  # Provision everything described under deployments/
  flotilla apply -d deployments -r eu-central-1

  # Limit concurrency to one group at a time
  flotilla apply --parallel 1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Apply(cmd.Context(), opts)
		},
	}

	lifecycleFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 4, "Maximum dependency groups processed concurrently")

	return cmd
}

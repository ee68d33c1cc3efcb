package commands

import (
	"github.com/spf13/cobra"

	"github.com/tobkre/flotilla/cmd/flotilla/handlers"
)

// Destroy returns the destroy command.
//
// Destroy tears down every unit whose descriptor explicitly requests
// deletion. Management units go before their regional control plane,
// and a regional unit is refused while any of its management units
// still exists. Within a unit, infrastructure is destroyed first and
// the delivery pipeline last.
func Destroy() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down units marked for deletion",
		Long: `Destroy tears down deployment units whose descriptor carries an
explicit delete request. Units without one are never touched: an
absent, null or malformed request counts as "do not destroy".

Management units are destroyed before their regional control plane.
Destroying a regional unit while a dependent management unit still
exists is refused. The delivery pipeline is removed last, after the
delete request has been re-read from the descriptor.

Example:
  flotilla destroy -d deployments -r eu-central-1

WARNING: this removes cloud infrastructure. The descriptor's delete
request is the only thing standing between a unit and teardown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Destroy(cmd.Context(), opts)
		},
	}

	lifecycleFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 4, "Maximum dependency groups processed concurrently")

	return cmd
}

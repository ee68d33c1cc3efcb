package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tobkre/flotilla/cmd/flotilla/handlers"
)

// Reconcile returns the reconcile command.
//
// Reconcile hunts down resources an interrupted run left behind:
// secrets stuck in their deletion grace period, unattached elastic IPs
// and abandoned NAT gateways. Only resources carrying the
// orchestrator's management tag are touched.
func Reconcile() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reclaim orphaned cloud resources",
		Long: `Reconcile scans one region for resources whose lifecycle has
desynchronized from the orchestrator and reclaims them:

  - secrets pending deletion are restored and force-deleted
  - unattached elastic IP allocations are released
  - abandoned NAT gateways are deleted, then their addresses released

Reconciliation is best-effort: every action is retried and recorded,
and one irreclaimable resource never blocks the rest. Only resources
tagged as managed by the orchestrator are ever considered.

Example:
  flotilla reconcile -r eu-central-1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Reconcile(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Region, "region", "r", os.Getenv("AWS_REGION"), "AWS region to scan")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/orgsync/cmd/orgsync/handlers"
)

// Integrate returns the integrate command.
func Integrate() *cobra.Command {
	var opts handlers.IntegrateOptions

	cmd := &cobra.Command{
		Use:   "integrate",
		Short: "Integrate organization accounts with the platform",
		Long: `Integrate converges every selected account with the control plane.

For each account it:
  - Registers the account when the control plane does not know it
  - Deploys the initial stack and waits for the account to initialize
  - Commits the regions the account runs workloads in
  - Deploys a collection stack into every committed region that lacks one

Accounts are independent: one failure never stops the others. Running the
command again only fills what is missing.

Example:
  orgsync integrate --accounts 111111111111,222222222222 --parallel 4
  orgsync integrate --regions us-east-1,eu-west-1 --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Integrate(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts.CommonOptions)
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 0, "Number of accounts processed at once (default: 1)")
	cmd.Flags().StringSliceVar(&opts.Regions, "regions", nil, "Regions to commit instead of detecting them")
	cmd.Flags().StringVar(&opts.Tags, "tags", "", "Stack tags as key|value pairs separated by commas")
	cmd.Flags().StringVar(&opts.AccountsFile, "accounts-file", "", "YAML file with per-account display names and regions")
	cmd.Flags().StringVar(&opts.WorkspaceID, "workspace-id", "", "Control-plane workspace id")
	cmd.Flags().StringVar(&opts.WorkspaceName, "workspace-name", "", "Control-plane workspace name")
	cmd.Flags().BoolVar(&opts.AuditLogs, "audit-logs", false, "Deploy the audit log stack after collection")
	cmd.Flags().StringSliceVar(&opts.AuditLogsRegions, "audit-logs-regions", nil, "Restrict the audit log stack to these regions")
	cmd.Flags().BoolVar(&opts.Remediation, "remediation", false, "Deploy the remediation stack after collection")
	cmd.Flags().StringSliceVar(&opts.RemediationRegions, "remediation-regions", nil, "Restrict the remediation stack to these regions")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Plan the changes without applying them")
	cmd.MarkFlagsMutuallyExclusive("workspace-id", "workspace-name")

	return cmd
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/orgsync/cmd/orgsync/handlers"
)

// Offboard returns the offboard command.
func Offboard() *cobra.Command {
	var opts handlers.OffboardOptions

	cmd := &cobra.Command{
		Use:   "offboard",
		Short: "Delete platform stacks from accounts",
		Long: `Offboard deletes every platform stack that reports to this environment
from the given accounts, in every enabled region.

Example:
  orgsync offboard --accounts 111111111111 --dry-run

WARNING: Deleted stacks stop all collection for the account.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Offboard(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts.CommonOptions)
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "List matching stacks without deleting them")
	_ = cmd.MarkFlagRequired("accounts")

	return cmd
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/orgsync/cmd/orgsync/handlers"
)

// UpdateStacks returns the update-stacks command.
func UpdateStacks() *cobra.Command {
	var opts handlers.UpdateStacksOptions

	cmd := &cobra.Command{
		Use:   "update-stacks",
		Short: "Re-apply platform stacks in every account",
		Long: `Update-stacks re-applies the current template of every platform stack that
reports to this environment, in every enabled region of the selected
accounts. Stacks stuck in UPDATE_ROLLBACK_FAILED have their rollback
continued first. Nested stacks are updated through their parent.

Without --accounts every active member of the organization is updated.

Example:
  orgsync update-stacks --dry-run
  orgsync update-stacks --accounts 111111111111 --parallel 4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.UpdateStacks(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts.CommonOptions)
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 0, "Number of accounts processed at once (default: 1)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "List the stacks that would be updated without changing them")

	return cmd
}

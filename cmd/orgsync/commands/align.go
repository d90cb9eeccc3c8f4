package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/orgsync/cmd/orgsync/handlers"
)

// AlignNames returns the align-names command.
func AlignNames() *cobra.Command {
	var opts handlers.AlignOptions

	cmd := &cobra.Command{
		Use:   "align-names",
		Short: "Replace placeholder display names with account names",
		Long: `Align-names renames every integrated account whose control-plane display
name is still its raw account id to its organization account name.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Align(cmd.Context(), opts)
		},
	}

	addCommonFlags(cmd, &opts.CommonOptions)

	return cmd
}

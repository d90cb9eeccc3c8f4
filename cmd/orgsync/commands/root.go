// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/orgsync/cmd/orgsync/handlers"
)

// Root returns the root command for the orgsync CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orgsync",
		Short: "Integrate AWS organization accounts with Stream Security",
		Long: `orgsync connects the member accounts of an AWS organization to the
Stream Security platform.

Configuration is read from ORGSYNC_* environment variables. Flags override
the environment for a single run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Integrate())
	cmd.AddCommand(Offboard())
	cmd.AddCommand(UpdateStacks())
	cmd.AddCommand(AlignNames())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

// addCommonFlags binds the flags every AWS-facing command shares.
func addCommonFlags(cmd *cobra.Command, opts *handlers.CommonOptions) {
	cmd.Flags().StringSliceVar(&opts.Accounts, "accounts", nil, "Comma-separated account ids to process (default: all active accounts)")
	cmd.Flags().StringVar(&opts.ControlRole, "control-role", "", "Role assumed in member accounts (default: OrganizationAccountAccessRole)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "AWS shared config profile of the management account")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "table", "Summary format: table or json")
}

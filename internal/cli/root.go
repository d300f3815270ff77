package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root guardctl command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "guardctl",
		Short: "Operator tooling for marketguard",
		Long: `guardctl manages the marketguard database, checks the counter store,
prepares admin credentials and replays rate limit policies against a
virtual clock.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newMigrateCmd(),
		newProbeCmd(),
		newHashPasswordCmd(),
		newGenSecretCmd(),
		newSimulateCmd(),
	)

	return root
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/tallyfi/tally/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var dir string

	rootCmd := &cobra.Command{
		Use:     "tally",
		Short:   "Recurring transactions and derived account balances",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dir, "dir", ".", "data directory")

	rootCmd.AddCommand(
		newInitCommand(&dir),
		newAccountCommand(&dir),
		newTxCommand(&dir),
		newRuleCommand(&dir),
		newLiabilityCommand(&dir),
		newSyncCommand(&dir),
		newRunCommand(&dir),
	)

	return rootCmd
}

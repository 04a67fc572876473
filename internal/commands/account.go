package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyfi/tally/internal/app"
	"github.com/tallyfi/tally/internal/config"
	"github.com/tallyfi/tally/internal/model"
)

func newAccountCommand(dir *string) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage asset accounts and view balances",
	}
	accountCmd.AddCommand(
		newAccountAddCommand(dir),
		newAccountRenameCommand(dir),
		newAccountSetBaseCommand(dir),
		newAccountListCommand(dir),
		newAccountRecomputeCommand(dir),
	)
	return accountCmd
}

func newAccountAddCommand(dir *string) *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an asset account",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		amount, err := parseAmount(base)
		if err != nil {
			return err
		}
		acct, err := a.AddAccount(cmd.Context(), model.Account{Name: args[0], Base: amount})
		if err := persisted(cmd, err); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", acct.Name, acct.ID)
		return nil
	})
	cmd.Flags().StringVar(&base, "base", "0", "starting value")
	return cmd
}

func newAccountRenameCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <account> <new-name>",
		Short: "Rename an account; its history follows it",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		id, err := accountID(a, args[0])
		if err != nil {
			return err
		}
		if err := persisted(cmd, a.RenameAccount(cmd.Context(), id, args[1])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s\n", id, args[1])
		return nil
	})
	return cmd
}

func newAccountSetBaseCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-base <account> <amount>",
		Short: "Change an asset account's base value",
		Args:  cobra.ExactArgs(2),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		id, err := accountID(a, args[0])
		if err != nil {
			return err
		}
		base, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		return persisted(cmd, a.SetAccountBase(cmd.Context(), id, base))
	})
	return cmd
}

func newAccountListCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with their current values",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, _ []string) error {
		var rows [][]string
		for _, b := range a.Balances() {
			rows = append(rows, []string{b.Account.Name, string(b.Account.Class), money(b.Account.Base), money(b.Value), b.Account.ID})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Account", "Class", "Base", "Current", "ID"}, rows))
		return nil
	})
	return cmd
}

func newAccountRecomputeCommand(dir *string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "recompute [account]",
		Short: "Rebuild balances from the full ledger and report drift",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		out := cmd.OutOrStdout()
		if all || len(args) == 0 {
			drifts, err := a.ForceRefresh(cmd.Context())
			if err := persisted(cmd, err); err != nil {
				return err
			}
			if len(drifts) == 0 {
				fmt.Fprintln(out, "All balances consistent")
				return nil
			}
			for _, d := range drifts {
				fmt.Fprintf(out, "%s %s: %s -> %s\n", warnStyle.Render("repaired"), accountName(a, d.AccountID), d.Incremental.StringFixed(2), d.Recomputed.StringFixed(2))
			}
			return nil
		}

		id, err := accountID(a, args[0])
		if err != nil {
			return err
		}
		d, err := a.Recompute(id)
		if err != nil {
			return err
		}
		if d.Diverged() {
			fmt.Fprintf(out, "%s %s: %s -> %s\n", warnStyle.Render("repaired"), accountName(a, id), d.Incremental.StringFixed(2), d.Recomputed.StringFixed(2))
		} else {
			fmt.Fprintf(out, "%s: %s\n", accountName(a, id), d.Recomputed.StringFixed(2))
		}
		return nil
	})
	cmd.Flags().BoolVar(&all, "all", false, "recompute every account")
	return cmd
}

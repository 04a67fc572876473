package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tallyfi/tally/internal/app"
	"github.com/tallyfi/tally/internal/config"
	"github.com/tallyfi/tally/internal/model"
)

func newLiabilityCommand(dir *string) *cobra.Command {
	liabilityCmd := &cobra.Command{
		Use:   "liability",
		Short: "Manage liabilities and their autopay rules",
	}
	liabilityCmd.AddCommand(
		newLiabilitySyncCommand(dir),
		newLiabilityDeleteCommand(dir),
		newLiabilityListCommand(dir),
	)
	return liabilityCmd
}

// findLiability resolves a liability by ID or name.
func findLiability(a *app.App, ref string) (model.Liability, bool) {
	if l, ok := a.Liability(ref); ok {
		return l, true
	}
	for _, l := range a.Liabilities() {
		if strings.EqualFold(l.Name, ref) {
			return l, true
		}
	}
	return model.Liability{}, false
}

func newLiabilitySyncCommand(dir *string) *cobra.Command {
	var balance, payment, from, start string
	var day int

	cmd := &cobra.Command{
		Use:   "sync <name>",
		Short: "Create or update a liability; full payment terms keep one autopay rule in step",
		Long: `Create or update a liability by name.

With --payment, --from and --day all set, the liability gets exactly one active
monthly autopay rule. Clearing any of them (--day 0) deactivates that rule and
keeps the payments already recorded. Running sync again with the same values
changes nothing.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		l, _ := findLiability(a, args[0])
		if l.Name == "" {
			l.Name = args[0]
		}
		flags := cmd.Flags()
		if flags.Changed("balance") {
			v, err := parseAmount(balance)
			if err != nil {
				return err
			}
			l.Balance = v
		}
		if flags.Changed("payment") {
			v, err := parseAmount(payment)
			if err != nil {
				return err
			}
			l.MonthlyPayment = v
		}
		if flags.Changed("from") {
			id, err := accountID(a, from)
			if err != nil {
				return err
			}
			l.PaymentAccountID = id
		}
		if flags.Changed("day") {
			l.PaymentDay = day
		}
		if flags.Changed("start") {
			d, err := parseDate(start)
			if err != nil {
				return err
			}
			l.StartDate = d
		}

		synced, err := a.SyncLiability(cmd.Context(), l)
		if err := persisted(cmd, err); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Synced %s (%s)\n", synced.Name, synced.ID)
		if synced.RuleID != "" {
			if r, ok := a.Rule(synced.RuleID); ok {
				fmt.Fprintf(out, "Autopay rule %s active=%t\n", r.ID, r.Active)
			}
		}
		return nil
	})
	cmd.Flags().StringVar(&balance, "balance", "0", "amount owed at the start")
	cmd.Flags().StringVar(&payment, "payment", "0", "monthly payment amount")
	cmd.Flags().StringVar(&from, "from", "", "account the payment is made from")
	cmd.Flags().IntVar(&day, "day", 0, "payment day of month, 1-31")
	cmd.Flags().StringVar(&start, "start", "", "first payment on or after this date (default today)")
	return cmd
}

func newLiabilityDeleteCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <liability>",
		Short: "Delete a liability with its autopay rule and every payment it recorded",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		l, ok := findLiability(a, args[0])
		if !ok {
			return model.NotFound("liability", args[0])
		}
		removed, err := a.DeleteLiability(cmd.Context(), l.ID)
		if err := persisted(cmd, err); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s and %d payment(s)\n", l.Name, len(removed))
		return nil
	})
	return cmd
}

func newLiabilityListCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List liabilities with the amount still owed",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, _ []string) error {
		var rows [][]string
		for _, l := range a.Liabilities() {
			owed, _ := a.Balance(l.ID)
			autopay := mutedStyle.Render("none")
			if r, ok := a.Rule(l.RuleID); ok && r.Active {
				autopay = fmt.Sprintf("%s on day %d from %s", money(l.MonthlyPayment), l.PaymentDay, accountName(a, l.PaymentAccountID))
			}
			rows = append(rows, []string{l.Name, money(l.Balance), money(owed), autopay, l.ID})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Liability", "Opening", "Owed", "Autopay", "ID"}, rows))
		return nil
	})
	return cmd
}

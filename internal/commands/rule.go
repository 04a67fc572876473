package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"google.golang.org/api/iterator"

	"github.com/tallyfi/tally/internal/app"
	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/config"
	"github.com/tallyfi/tally/internal/model"
)

func newRuleCommand(dir *string) *cobra.Command {
	ruleCmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage recurring transaction rules",
	}
	ruleCmd.AddCommand(
		newRuleCreateCommand(dir),
		newRuleListCommand(dir),
		newRulePreviewCommand(dir),
		newRuleStateCommand(dir, "deactivate", "Stop a rule from generating occurrences; history is kept", (*app.App).DeactivateRule),
		newRuleStateCommand(dir, "activate", "Resume a deactivated rule", (*app.App).ActivateRule),
		newRuleDeleteCommand(dir),
		newRuleMaterializeCommand(dir),
	)
	return ruleCmd
}

func newRuleCreateCommand(dir *string) *cobra.Command {
	var tf templateFlags
	var frequency, start string
	var day, maxOcc int

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recurring rule and record its first occurrence",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, _ []string) error {
		tmpl, err := tf.template(a)
		if err != nil {
			return err
		}
		freq, err := calendar.ParseFrequency(frequency)
		if err != nil {
			return err
		}
		d, err := parseDate(start)
		if err != nil {
			return err
		}
		r, err := a.CreateRule(cmd.Context(), model.Rule{
			Template:       tmpl,
			Frequency:      freq,
			Start:          d,
			DayOfMonth:     day,
			MaxOccurrences: maxOcc,
		})
		if err := persisted(cmd, err); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s rule %s starting %s\n", r.Frequency, r.ID, r.Start)
		return nil
	})
	tf.register(cmd)
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&frequency, "frequency", string(calendar.Monthly), "daily, weekly, monthly or yearly")
	cmd.Flags().StringVar(&start, "start", "", "anchor date as YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&day, "day", 0, "day of month for monthly and yearly rules (default the start day)")
	cmd.Flags().IntVar(&maxOcc, "max", 0, "maximum number of occurrences (0 for no limit)")
	return cmd
}

func newRuleListCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recurring rules",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, _ []string) error {
		var rows [][]string
		for _, r := range a.Rules() {
			state := "active"
			if !r.Active {
				state = mutedStyle.Render("inactive")
			}
			remaining := "-"
			if n := r.Remaining(); n >= 0 {
				remaining = strconv.Itoa(n)
			}
			rows = append(rows, []string{
				r.ID, string(r.Frequency), r.Start.String(), money(r.Amount), string(r.Kind),
				accountName(a, r.AccountID), strconv.Itoa(r.Materialized), remaining, state,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Frequency", "Start", "Amount", "Kind", "Account", "Recorded", "Remaining", "State"}, rows))
		return nil
	})
	return cmd
}

func newRulePreviewCommand(dir *string) *cobra.Command {
	var months int

	cmd := &cobra.Command{
		Use:   "preview <rule-id>",
		Short: "Show upcoming occurrences that have not been recorded yet",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		p, err := a.PreviewFuture(args[0], months)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headingStyle.Render("Upcoming "+args[0]))
		n := 0
		for {
			d, err := p.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, d)
			n++
		}
		if n == 0 {
			fmt.Fprintln(out, mutedStyle.Render("nothing scheduled"))
		}
		return nil
	})
	cmd.Flags().IntVar(&months, "months", 0, "horizon in months (default from config)")
	return cmd
}

func newRuleStateCommand(dir *string, verb, short string, op func(*app.App, context.Context, string) (model.Rule, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   verb + " <rule-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		r, err := op(a, cmd.Context(), args[0])
		if err := persisted(cmd, err); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule %s active=%t\n", args[0], r.Active)
		return nil
	})
	return cmd
}

func newRuleDeleteCommand(dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete a rule and every occurrence it recorded",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		removed, err := a.DeleteRule(cmd.Context(), args[0])
		if err := persisted(cmd, err); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted rule %s and %d transaction(s)\n", args[0], len(removed))
		return nil
	})
	return cmd
}

func newRuleMaterializeCommand(dir *string) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Record every occurrence due on or before a date",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, _ []string) error {
		d, err := parseDate(asOf)
		if err != nil {
			return err
		}
		created, err := a.MaterializeDue(cmd.Context(), d)
		if err := persisted(cmd, err); err != nil {
			return err
		}
		for _, tx := range created {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", tx.Date, money(tx.Amount), tx.ID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d occurrence(s)\n", len(created))
		return nil
	})
	cmd.Flags().StringVar(&asOf, "as-of", "", "date as YYYY-MM-DD (default today)")
	return cmd
}

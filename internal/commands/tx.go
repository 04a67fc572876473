package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tallyfi/tally/internal/app"
	"github.com/tallyfi/tally/internal/config"
	"github.com/tallyfi/tally/internal/importer"
	"github.com/tallyfi/tally/internal/model"
)

func newTxCommand(dir *string) *cobra.Command {
	txCmd := &cobra.Command{
		Use:   "tx",
		Short: "Record, edit and list transactions",
	}
	txCmd.AddCommand(
		newTxAddCommand(dir),
		newTxEditCommand(dir),
		newTxRemoveCommand(dir),
		newTxListCommand(dir),
		newTxImportCommand(dir),
	)
	return txCmd
}

func newTxAddCommand(dir *string) *cobra.Command {
	var tf templateFlags
	var date string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a one-off transaction",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, _ []string) error {
		tmpl, err := tf.template(a)
		if err != nil {
			return err
		}
		d, err := parseDate(date)
		if err != nil {
			return err
		}
		tx, err := a.AddTransaction(cmd.Context(), tmpl.Transaction("", "", d))
		if err := persisted(cmd, err); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s %s on %s (%s)\n", tx.Kind, tx.Amount.StringFixed(2), tx.Date, tx.ID)
		return nil
	})
	tf.register(cmd)
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default today)")
	return cmd
}

func newTxEditCommand(dir *string) *cobra.Command {
	var tf templateFlags
	var date, scope string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a transaction; --scope decides how much of a recurring series changes",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		sc, err := model.ParseScope(scope)
		if err != nil {
			return err
		}
		patch, err := tf.patch(cmd, a)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("date") {
			d, err := parseDate(date)
			if err != nil {
				return err
			}
			patch.Date = &d
		}
		changed, err := a.UpdateTransaction(cmd.Context(), args[0], patch, sc)
		if err := persisted(cmd, err); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %d transaction(s)\n", len(changed))
		return nil
	})
	tf.register(cmd)
	cmd.Flags().StringVar(&date, "date", "", "new date as YYYY-MM-DD (single scope only)")
	cmd.Flags().StringVar(&scope, "scope", string(model.ScopeSingle), "single, future or all")
	return cmd
}

func newTxRemoveCommand(dir *string) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a transaction; --scope decides how much of a recurring series goes",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		sc, err := model.ParseScope(scope)
		if err != nil {
			return err
		}
		removed, err := a.RemoveTransaction(cmd.Context(), args[0], sc)
		if err := persisted(cmd, err); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d transaction(s)\n", len(removed))
		return nil
	})
	cmd.Flags().StringVar(&scope, "scope", string(model.ScopeSingle), "single, future or all")
	return cmd
}

func newTxListCommand(dir *string) *cobra.Command {
	var since, until string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions by date",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, _ []string) error {
		txs := a.Transactions()
		if since != "" || until != "" {
			from, to, err := dateRange(since, until)
			if err != nil {
				return err
			}
			txs = a.TransactionsBetween(from, to)
		}
		var rows [][]string
		for _, tx := range txs {
			account := accountName(a, tx.AccountID)
			if tx.Kind == model.KindTransfer {
				account += " -> " + accountName(a, tx.ToAccountID)
			}
			rows = append(rows, []string{tx.Date.String(), string(tx.Kind), money(tx.Amount), tx.Category, account, tx.ID})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Date", "Kind", "Amount", "Category", "Account", "ID"}, rows))
		return nil
	})
	cmd.Flags().StringVar(&since, "since", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&until, "until", "", "last date, YYYY-MM-DD")
	return cmd
}

func newTxImportCommand(dir *string) *cobra.Command {
	var format, account string

	registry := importer.DefaultRegistry()
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a bank statement CSV; with no file, every CSV in <dir>/import is imported",
		Args:  cobra.MaximumNArgs(1),
	}
	cmd.RunE = appRunE(dir, func(cmd *cobra.Command, a *app.App, _ *config.Config, args []string) error {
		parser := registry.Get(format)
		if parser == nil {
			return fmt.Errorf("unknown format %q (available: %s)", format, strings.Join(registry.Formats(), ", "))
		}
		acctID, err := accountID(a, account)
		if err != nil {
			return err
		}

		if len(args) == 1 {
			return importFile(cmd, a, parser, acctID, args[0])
		}

		root, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		files, err := importer.Scan(root)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No files in "+filepath.Join(root, importer.ImportDir)))
			return nil
		}
		for _, f := range files {
			if err := importFile(cmd, a, parser, acctID, f.Path); err != nil {
				return err
			}
			if err := importer.MarkProcessed(root, f.Name); err != nil {
				return err
			}
		}
		return nil
	})
	cmd.Flags().StringVar(&format, "format", "generic", "statement format ("+strings.Join(registry.Formats(), ", ")+")")
	cmd.Flags().StringVar(&account, "account", "", "account the statement belongs to")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func importFile(cmd *cobra.Command, a *app.App, parser importer.Parser, acctID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening statement: %w", err)
	}
	defer f.Close()

	txs, err := parser.Parse(f, acctID)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	added, skipped, err := a.ImportTransactions(cmd.Context(), txs)
	if err := persisted(cmd, err); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: imported %d, skipped %d already recorded\n", filepath.Base(path), len(added), skipped)
	return nil
}

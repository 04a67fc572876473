package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/tallyfi/tally/internal/app"
	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/config"
	"github.com/tallyfi/tally/internal/logger"
	"github.com/tallyfi/tally/internal/model"
	"github.com/tallyfi/tally/internal/synclog"
)

// appRunE opens the data directory, runs fn against the loaded App and
// closes it again.
func appRunE(dir *string, fn func(cmd *cobra.Command, a *app.App, cfg *config.Config, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		absDir, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		cfg, err := config.Load(filepath.Join(absDir, config.FileName))
		if err != nil {
			return fmt.Errorf("%s is not a tally directory (run tally init): %w", absDir, err)
		}

		log := logger.New(cfg.Log.Level)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = logger.WithContext(ctx, log)
		cmd.SetContext(ctx)

		a, err := app.Open(ctx, absDir, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd, a, cfg, args)
	}
}

// persisted turns a failed write of an already applied change into a
// warning. Other errors pass through.
func persisted(cmd *cobra.Command, err error) error {
	var pe *app.PersistError
	if !errors.As(err, &pe) {
		return err
	}
	hint := "run `tally sync push` to retry"
	if pe.Target == synclog.TargetLocal {
		hint = "the change was not saved locally"
	}
	fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render(fmt.Sprintf("warning: %v (%s)", err, hint)))
	return nil
}

func parseDate(s string) (civil.Date, error) {
	if s == "" {
		return calendar.Today(calendar.Real{}), nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return d, nil
}

// dateRange parses optional inclusive bounds. Missing bounds are open.
func dateRange(since, until string) (civil.Date, civil.Date, error) {
	from := civil.Date{Year: 1, Month: time.January, Day: 1}
	to := civil.Date{Year: 9999, Month: time.December, Day: 31}
	var err error
	if since != "" {
		if from, err = parseDate(since); err != nil {
			return from, to, err
		}
	}
	if until != "" {
		if to, err = parseDate(until); err != nil {
			return from, to, err
		}
	}
	return from, to, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

// accountID resolves an account ID or display name.
func accountID(a *app.App, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	acct, ok := a.LookupAccount(ref)
	if !ok {
		return "", model.NotFound("account", ref)
	}
	return acct.ID, nil
}

// templateFlags are the transaction fields shared by tx and rule commands.
type templateFlags struct {
	amount   string
	kind     string
	category string
	account  string
	to       string
	note     string
}

func (f *templateFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.amount, "amount", "", "amount, a positive number")
	cmd.Flags().StringVar(&f.kind, "kind", "expense", "income, expense or transfer")
	cmd.Flags().StringVar(&f.category, "category", "", "category label")
	cmd.Flags().StringVar(&f.account, "account", "", "account name or ID (transfer source)")
	cmd.Flags().StringVar(&f.to, "to", "", "transfer destination account")
	cmd.Flags().StringVar(&f.note, "note", "", "free-form note")
}

func (f *templateFlags) template(a *app.App) (model.Template, error) {
	amount, err := parseAmount(f.amount)
	if err != nil {
		return model.Template{}, err
	}
	kind, err := model.ParseKind(f.kind)
	if err != nil {
		return model.Template{}, err
	}
	from, err := accountID(a, f.account)
	if err != nil {
		return model.Template{}, err
	}
	to, err := accountID(a, f.to)
	if err != nil {
		return model.Template{}, err
	}
	return model.Template{Amount: amount, Kind: kind, Category: f.category, AccountID: from, ToAccountID: to, Note: f.note}, nil
}

// patch builds a patch from the flags the user actually set.
func (f *templateFlags) patch(cmd *cobra.Command, a *app.App) (model.TransactionPatch, error) {
	var p model.TransactionPatch
	flags := cmd.Flags()
	if flags.Changed("amount") {
		amount, err := parseAmount(f.amount)
		if err != nil {
			return p, err
		}
		p.Amount = &amount
	}
	if flags.Changed("kind") {
		kind, err := model.ParseKind(f.kind)
		if err != nil {
			return p, err
		}
		p.Kind = &kind
	}
	if flags.Changed("category") {
		p.Category = &f.category
	}
	if flags.Changed("account") {
		id, err := accountID(a, f.account)
		if err != nil {
			return p, err
		}
		p.AccountID = &id
	}
	if flags.Changed("to") {
		id, err := accountID(a, f.to)
		if err != nil {
			return p, err
		}
		p.ToAccountID = &id
	}
	if flags.Changed("note") {
		p.Note = &f.note
	}
	return p, nil
}

func accountName(a *app.App, id string) string {
	if id == "" {
		return ""
	}
	if acct, ok := a.LookupAccount(id); ok {
		return acct.Name
	}
	return id
}

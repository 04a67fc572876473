package remote

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/model"
)

// TransactionRow is one row of the transactions table.
type TransactionRow struct {
	UserID      string              `bigquery:"user_id"`
	Ord         int64               `bigquery:"ord"`
	ID          string              `bigquery:"id"`
	Date        civil.Date          `bigquery:"date"`
	Kind        string              `bigquery:"kind"`
	Amount      *big.Rat            `bigquery:"amount"` // NUMERIC
	Category    string              `bigquery:"category"`
	AccountID   string              `bigquery:"account_id"`
	ToAccountID bigquery.NullString `bigquery:"to_account_id"`
	RuleID      bigquery.NullString `bigquery:"rule_id"`
	Note        string              `bigquery:"note"`
	CreatedTS   time.Time           `bigquery:"created_ts"`
	UpdatedTS   time.Time           `bigquery:"updated_ts"`
}

// RuleRow is one row of the rules table.
type RuleRow struct {
	UserID         string              `bigquery:"user_id"`
	Ord            int64               `bigquery:"ord"`
	ID             string              `bigquery:"id"`
	Kind           string              `bigquery:"kind"`
	Amount         *big.Rat            `bigquery:"amount"`
	Category       string              `bigquery:"category"`
	AccountID      string              `bigquery:"account_id"`
	ToAccountID    bigquery.NullString `bigquery:"to_account_id"`
	Note           string              `bigquery:"note"`
	Frequency      string              `bigquery:"frequency"`
	Start          civil.Date          `bigquery:"start"`
	DayOfMonth     int64               `bigquery:"day_of_month"`
	MaxOccurrences int64               `bigquery:"max_occurrences"`
	Materialized   int64               `bigquery:"materialized"`
	Active         bool                `bigquery:"active"`
	LiabilityID    bigquery.NullString `bigquery:"liability_id"`
	CreatedTS      time.Time           `bigquery:"created_ts"`
	UpdatedTS      time.Time           `bigquery:"updated_ts"`
}

// AccountRow is one row of the accounts table.
type AccountRow struct {
	UserID    string    `bigquery:"user_id"`
	Ord       int64     `bigquery:"ord"`
	ID        string    `bigquery:"id"`
	Name      string    `bigquery:"name"`
	Class     string    `bigquery:"class"`
	Base      *big.Rat  `bigquery:"base"`
	CreatedTS time.Time `bigquery:"created_ts"`
}

// LiabilityRow is one row of the liabilities table.
type LiabilityRow struct {
	UserID           string              `bigquery:"user_id"`
	Ord              int64               `bigquery:"ord"`
	ID               string              `bigquery:"id"`
	Name             string              `bigquery:"name"`
	Balance          *big.Rat            `bigquery:"balance"`
	MonthlyPayment   *big.Rat            `bigquery:"monthly_payment"`
	PaymentAccountID bigquery.NullString `bigquery:"payment_account_id"`
	PaymentDay       int64               `bigquery:"payment_day"`
	StartDate        bigquery.NullDate   `bigquery:"start_date"`
	RuleID           bigquery.NullString `bigquery:"rule_id"`
	UpdatedTS        time.Time           `bigquery:"updated_ts"`
}

// numericScale is BigQuery NUMERIC's fixed scale.
const numericScale = 9

func ratOf(d decimal.Decimal) *big.Rat {
	return d.Rat()
}

func decimalOf(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(r.FloatString(numericScale))
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func transactionRow(userID string, ord int, tx model.Transaction) *TransactionRow {
	return &TransactionRow{
		UserID:      userID,
		Ord:         int64(ord),
		ID:          tx.ID,
		Date:        tx.Date,
		Kind:        string(tx.Kind),
		Amount:      ratOf(tx.Amount),
		Category:    tx.Category,
		AccountID:   tx.AccountID,
		ToAccountID: nullString(tx.ToAccountID),
		RuleID:      nullString(tx.RuleID),
		Note:        tx.Note,
		CreatedTS:   tx.CreatedAt,
		UpdatedTS:   tx.UpdatedAt,
	}
}

func (r *TransactionRow) transaction() (model.Transaction, error) {
	kind, err := model.ParseKind(r.Kind)
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := decimalOf(r.Amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s amount: %w", r.ID, err)
	}
	return model.Transaction{
		ID:          r.ID,
		Amount:      amount,
		Kind:        kind,
		Category:    r.Category,
		AccountID:   r.AccountID,
		ToAccountID: r.ToAccountID.StringVal,
		Date:        r.Date,
		RuleID:      r.RuleID.StringVal,
		Note:        r.Note,
		CreatedAt:   r.CreatedTS,
		UpdatedAt:   r.UpdatedTS,
	}, nil
}

func ruleRow(userID string, ord int, r model.Rule) *RuleRow {
	return &RuleRow{
		UserID:         userID,
		Ord:            int64(ord),
		ID:             r.ID,
		Kind:           string(r.Kind),
		Amount:         ratOf(r.Amount),
		Category:       r.Category,
		AccountID:      r.AccountID,
		ToAccountID:    nullString(r.ToAccountID),
		Note:           r.Note,
		Frequency:      string(r.Frequency),
		Start:          r.Start,
		DayOfMonth:     int64(r.DayOfMonth),
		MaxOccurrences: int64(r.MaxOccurrences),
		Materialized:   int64(r.Materialized),
		Active:         r.Active,
		LiabilityID:    nullString(r.LiabilityID),
		CreatedTS:      r.CreatedAt,
		UpdatedTS:      r.UpdatedAt,
	}
}

func (r *RuleRow) rule() (model.Rule, error) {
	kind, err := model.ParseKind(r.Kind)
	if err != nil {
		return model.Rule{}, err
	}
	freq, err := calendar.ParseFrequency(r.Frequency)
	if err != nil {
		return model.Rule{}, err
	}
	amount, err := decimalOf(r.Amount)
	if err != nil {
		return model.Rule{}, fmt.Errorf("rule %s amount: %w", r.ID, err)
	}
	return model.Rule{
		ID: r.ID,
		Template: model.Template{
			Amount:      amount,
			Kind:        kind,
			Category:    r.Category,
			AccountID:   r.AccountID,
			ToAccountID: r.ToAccountID.StringVal,
			Note:        r.Note,
		},
		Frequency:      freq,
		Start:          r.Start,
		DayOfMonth:     int(r.DayOfMonth),
		MaxOccurrences: int(r.MaxOccurrences),
		Materialized:   int(r.Materialized),
		Active:         r.Active,
		LiabilityID:    r.LiabilityID.StringVal,
		CreatedAt:      r.CreatedTS,
		UpdatedAt:      r.UpdatedTS,
	}, nil
}

func accountRow(userID string, ord int, a model.Account) *AccountRow {
	return &AccountRow{
		UserID:    userID,
		Ord:       int64(ord),
		ID:        a.ID,
		Name:      a.Name,
		Class:     string(a.Class),
		Base:      ratOf(a.Base),
		CreatedTS: a.CreatedAt,
	}
}

func (r *AccountRow) account() (model.Account, error) {
	base, err := decimalOf(r.Base)
	if err != nil {
		return model.Account{}, fmt.Errorf("account %s base: %w", r.ID, err)
	}
	a := model.Account{ID: r.ID, Name: r.Name, Class: model.AccountClass(r.Class), Base: base, CreatedAt: r.CreatedTS}
	return a, a.Validate()
}

func liabilityRow(userID string, ord int, l model.Liability) *LiabilityRow {
	return &LiabilityRow{
		UserID:           userID,
		Ord:              int64(ord),
		ID:               l.ID,
		Name:             l.Name,
		Balance:          ratOf(l.Balance),
		MonthlyPayment:   ratOf(l.MonthlyPayment),
		PaymentAccountID: nullString(l.PaymentAccountID),
		PaymentDay:       int64(l.PaymentDay),
		StartDate:        bigquery.NullDate{Date: l.StartDate, Valid: l.StartDate.IsValid()},
		RuleID:           nullString(l.RuleID),
		UpdatedTS:        l.UpdatedAt,
	}
}

func (r *LiabilityRow) liability() (model.Liability, error) {
	balance, err := decimalOf(r.Balance)
	if err != nil {
		return model.Liability{}, fmt.Errorf("liability %s balance: %w", r.ID, err)
	}
	payment, err := decimalOf(r.MonthlyPayment)
	if err != nil {
		return model.Liability{}, fmt.Errorf("liability %s monthly payment: %w", r.ID, err)
	}
	l := model.Liability{
		ID:               r.ID,
		Name:             r.Name,
		Balance:          balance,
		MonthlyPayment:   payment,
		PaymentAccountID: r.PaymentAccountID.StringVal,
		PaymentDay:       int(r.PaymentDay),
		RuleID:           r.RuleID.StringVal,
		UpdatedAt:        r.UpdatedTS,
	}
	if r.StartDate.Valid {
		l.StartDate = r.StartDate.Date
	}
	return l, nil
}

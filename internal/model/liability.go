package model

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/calendar"
)

// DebtPaymentCategory labels auto-generated liability payments.
const DebtPaymentCategory = "Debt Payment"

// Liability is a debt with optional scheduled payment terms. Its ID doubles
// as the ID of the liability account tracking the amount owed.
type Liability struct {
	ID               string
	Name             string
	Balance          decimal.Decimal // opening amount owed
	MonthlyPayment   decimal.Decimal // zero when absent
	PaymentAccountID string
	PaymentDay       int // 0 when absent
	StartDate        civil.Date
	RuleID           string // linked autopay rule, kept while deactivated
	UpdatedAt        time.Time
}

// HasPaymentTerms reports whether all three autopay fields are present.
func (l Liability) HasPaymentTerms() bool {
	return l.MonthlyPayment.IsPositive() && l.PaymentAccountID != "" && l.PaymentDay > 0
}

// Account returns the liability account backing l.
func (l Liability) Account() Account {
	return Account{ID: l.ID, Name: l.Name, Class: ClassLiability, Base: l.Balance}
}

// PaymentTemplate is the transfer each autopay occurrence records.
func (l Liability) PaymentTemplate() Template {
	return Template{
		Amount:      l.MonthlyPayment,
		Kind:        KindTransfer,
		Category:    DebtPaymentCategory,
		AccountID:   l.PaymentAccountID,
		ToAccountID: l.ID,
		Note:        l.Name + " payment",
	}
}

// FirstPayment returns the first payment date on or after from: the payment
// day of from's month (clamped), or of the next month if that already passed.
func (l Liability) FirstPayment(from civil.Date) civil.Date {
	d := calendar.OnDay(from, l.PaymentDay)
	if d.Before(from) {
		d = calendar.AddMonths(from, 1, l.PaymentDay)
	}
	return d
}

// Validate checks the liability's fields.
func (l Liability) Validate() error {
	var errs ValidationErrors
	if l.ID == "" {
		errs = append(errs, ValidationError{Field: "id", Description: "id is required"})
	}
	if l.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Description: "name is required"})
	}
	if l.MonthlyPayment.IsNegative() {
		errs = append(errs, ValidationError{Field: "monthly_payment", Description: "must not be negative"})
	}
	if l.PaymentDay < 0 || l.PaymentDay > 31 {
		errs = append(errs, ValidationError{Field: "payment_day", Description: fmt.Sprintf("must be 1-31, got %d", l.PaymentDay)})
	}
	if l.PaymentAccountID != "" && l.PaymentAccountID == l.ID {
		errs = append(errs, ValidationError{Field: "payment_account", Description: "a liability cannot pay itself"})
	}
	return errs.OrNil()
}

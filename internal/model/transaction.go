package model

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Kind classifies a transaction's balance effect.
type Kind string

const (
	KindIncome   Kind = "income"
	KindExpense  Kind = "expense"
	KindTransfer Kind = "transfer"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindIncome, KindExpense, KindTransfer:
		return true
	}
	return false
}

// ParseKind accepts the canonical kind names case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown transaction kind %q", s)
	}
	return k, nil
}

// Transaction is one dated ledger record.
type Transaction struct {
	ID          string
	Amount      decimal.Decimal // always a positive magnitude
	Kind        Kind
	Category    string
	AccountID   string // income/expense account, or transfer source
	ToAccountID string // transfer destination only
	Date        civil.Date
	RuleID      string // set iff generated from a recurring rule
	Note        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Recurring reports whether the record was generated from a rule.
func (t Transaction) Recurring() bool {
	return t.RuleID != ""
}

// AccountIDs returns every account the record touches.
func (t Transaction) AccountIDs() []string {
	if t.Kind == KindTransfer {
		return []string{t.AccountID, t.ToAccountID}
	}
	return []string{t.AccountID}
}

// References reports whether the record touches accountID.
func (t Transaction) References(accountID string) bool {
	for _, id := range t.AccountIDs() {
		if id == accountID {
			return true
		}
	}
	return false
}

// Validate checks the record's structural invariants.
func (t Transaction) Validate() error {
	var errs ValidationErrors
	if !t.Amount.IsPositive() {
		errs = append(errs, ValidationError{Field: "amount", Description: fmt.Sprintf("must be positive, got %s", t.Amount)})
	}
	if !t.Kind.Valid() {
		errs = append(errs, ValidationError{Field: "kind", Description: fmt.Sprintf("unknown kind %q", t.Kind)})
	}
	if t.AccountID == "" {
		errs = append(errs, ValidationError{Field: "account", Description: "account is required"})
	}
	switch t.Kind {
	case KindTransfer:
		if t.ToAccountID == "" {
			errs = append(errs, ValidationError{Field: "to_account", Description: "transfer requires a destination account"})
		} else if t.ToAccountID == t.AccountID {
			errs = append(errs, ValidationError{Field: "to_account", Description: "transfer source and destination must differ"})
		}
	case KindIncome, KindExpense:
		if t.ToAccountID != "" {
			errs = append(errs, ValidationError{Field: "to_account", Description: fmt.Sprintf("%s records carry exactly one account", t.Kind)})
		}
	}
	if !t.Date.IsValid() {
		errs = append(errs, ValidationError{Field: "date", Description: fmt.Sprintf("invalid date %s", t.Date)})
	}
	return errs.OrNil()
}

// TransactionPatch holds the fields an update changes. Nil fields are kept.
type TransactionPatch struct {
	Amount      *decimal.Decimal
	Kind        *Kind
	Category    *string
	AccountID   *string
	ToAccountID *string
	Date        *civil.Date
	Note        *string
}

// Empty reports whether the patch changes nothing.
func (p TransactionPatch) Empty() bool {
	return p.Amount == nil && p.Kind == nil && p.Category == nil && p.AccountID == nil &&
		p.ToAccountID == nil && p.Date == nil && p.Note == nil
}

// Apply returns t with the patch applied.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Kind != nil {
		t.Kind = *p.Kind
		if t.Kind != KindTransfer && p.ToAccountID == nil {
			t.ToAccountID = ""
		}
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.ToAccountID != nil {
		t.ToAccountID = *p.ToAccountID
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	return t
}

// WithoutDate returns a copy of the patch that leaves dates untouched.
func (p TransactionPatch) WithoutDate() TransactionPatch {
	p.Date = nil
	return p
}

package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountClass separates things owned from things owed.
type AccountClass string

const (
	ClassAsset     AccountClass = "asset"
	ClassLiability AccountClass = "liability"
)

// Account is an asset or liability whose current value is derived from Base
// plus the ledger's effects on it. Name is a display attribute only; records
// reference accounts by ID.
type Account struct {
	ID        string
	Name      string
	Class     AccountClass
	Base      decimal.Decimal // cost basis for assets, opening balance owed for liabilities
	CreatedAt time.Time
}

// Validate checks the account's fields.
func (a Account) Validate() error {
	var errs ValidationErrors
	if a.ID == "" {
		errs = append(errs, ValidationError{Field: "id", Description: "id is required"})
	}
	if a.Name == "" {
		errs = append(errs, ValidationError{Field: "name", Description: "name is required"})
	}
	if a.Class != ClassAsset && a.Class != ClassLiability {
		errs = append(errs, ValidationError{Field: "class", Description: fmt.Sprintf("unknown class %q", a.Class)})
	}
	return errs.OrNil()
}

// Value turns a net ledger effect into the account's current value. An
// inflow raises an asset and pays down a liability.
func (a Account) Value(effect decimal.Decimal) decimal.Decimal {
	if a.Class == ClassLiability {
		return a.Base.Sub(effect)
	}
	return a.Base.Add(effect)
}

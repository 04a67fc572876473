package ledger

import (
	"fmt"

	"github.com/tallyfi/tally/internal/model"
)

// AccountChecker tests whether an account ID exists.
type AccountChecker interface {
	Exists(id string) bool
}

// ValidateTransaction checks a record's own invariants and that every
// account it references is known.
func ValidateTransaction(tx model.Transaction, accounts AccountChecker) error {
	var errs model.ValidationErrors
	if err := tx.Validate(); err != nil {
		if ve, ok := err.(model.ValidationErrors); ok {
			errs = append(errs, ve...)
		}
	}
	if tx.AccountID != "" && !accounts.Exists(tx.AccountID) {
		errs = append(errs, model.ValidationError{Field: "account", Description: fmt.Sprintf("unknown account %s", tx.AccountID)})
	}
	if tx.Kind == model.KindTransfer && tx.ToAccountID != "" && !accounts.Exists(tx.ToAccountID) {
		errs = append(errs, model.ValidationError{Field: "to_account", Description: fmt.Sprintf("unknown account %s", tx.ToAccountID)})
	}
	return errs.OrNil()
}

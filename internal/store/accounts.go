package store

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/model"
)

// AccountHeader is the CSV header of the accounts blob.
var AccountHeader = []string{"id", "name", "class", "base", "created_at"}

const (
	acctFields     = 5
	colAcctID      = 0
	colAcctName    = 1
	colAcctClass   = 2
	colAcctBase    = 3
	colAcctCreated = 4
)

// ReadAccounts reads the accounts blob.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	return readRows(r, "accounts", acctFields, UnmarshalAccount)
}

// WriteAccounts writes the accounts blob, header included.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	return writeRows(w, AccountHeader, accounts, MarshalAccount)
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(a model.Account) []string {
	row := make([]string, acctFields)
	row[colAcctID] = a.ID
	row[colAcctName] = a.Name
	row[colAcctClass] = string(a.Class)
	row[colAcctBase] = a.Base.String()
	row[colAcctCreated] = formatTime(a.CreatedAt)
	return row
}

// UnmarshalAccount converts a CSV row to an Account.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != acctFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", acctFields, len(record))
	}

	base := decimal.Zero
	if record[colAcctBase] != "" {
		var err error
		base, err = decimal.NewFromString(record[colAcctBase])
		if err != nil {
			return model.Account{}, fmt.Errorf("parsing base %q: %w", record[colAcctBase], err)
		}
	}
	created, err := parseTime(record[colAcctCreated])
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing created_at: %w", err)
	}

	a := model.Account{
		ID:        record[colAcctID],
		Name:      record[colAcctName],
		Class:     model.AccountClass(record[colAcctClass]),
		Base:      base,
		CreatedAt: created,
	}
	if err := a.Validate(); err != nil {
		return model.Account{}, err
	}
	return a, nil
}

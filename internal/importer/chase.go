package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/model"
)

// ImportedCategory labels records that came from a statement.
const ImportedCategory = "Imported"

// ChaseParser parses Chase bank checking CSV exports.
type ChaseParser struct{}

const (
	chaseDateFormat = "01/02/2006"
	chaseNumFields  = 7
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV. Debits become expenses and credits income on
// accountID; zero-amount rows are skipped.
func (p *ChaseParser) Parse(r io.Reader, accountID string) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = chaseNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chase CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	seen := refs{}
	var txns []model.Transaction
	for i, rec := range records[1:] {
		t, err := time.Parse(chaseDateFormat, rec[chaseColDate])
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing date %q: %w", i+2, rec[chaseColDate], err)
		}
		amount, err := decimal.NewFromString(rec[chaseColAmount])
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing amount %q: %w", i+2, rec[chaseColAmount], err)
		}
		if amount.IsZero() {
			continue
		}
		date := civil.DateOf(t)
		desc := rec[chaseColDesc]
		ref := rowRef("chase", accountID, date, desc, amount)
		txns = append(txns, signed(seen.id(ref), accountID, date, amount, desc))
	}
	return txns, nil
}

// signed builds a record from a signed statement amount.
func signed(txID, accountID string, date civil.Date, amount decimal.Decimal, desc string) model.Transaction {
	kind := model.KindIncome
	if amount.IsNegative() {
		kind = model.KindExpense
	}
	return model.Transaction{
		ID:        txID,
		Amount:    amount.Abs(),
		Kind:      kind,
		Category:  ImportedCategory,
		AccountID: accountID,
		Date:      date,
		Note:      desc,
	}
}

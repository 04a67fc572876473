package store

import (
	"fmt"
	"io"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/model"
)

// LiabilityHeader is the CSV header of the liabilities blob.
var LiabilityHeader = []string{"id", "name", "balance", "monthly_payment", "payment_account_id", "payment_day", "start_date", "rule_id", "updated_at"}

const (
	liabFields     = 9
	colLiabID      = 0
	colLiabName    = 1
	colLiabBalance = 2
	colLiabPayment = 3
	colLiabAccount = 4
	colLiabDay     = 5
	colLiabStart   = 6
	colLiabRule    = 7
	colLiabUpdated = 8
)

// ReadLiabilities reads the liabilities blob.
func ReadLiabilities(r io.Reader) ([]model.Liability, error) {
	return readRows(r, "liabilities", liabFields, UnmarshalLiability)
}

// WriteLiabilities writes the liabilities blob, header included.
func WriteLiabilities(w io.Writer, liabilities []model.Liability) error {
	return writeRows(w, LiabilityHeader, liabilities, MarshalLiability)
}

// MarshalLiability converts a Liability to a CSV row.
func MarshalLiability(l model.Liability) []string {
	row := make([]string, liabFields)
	row[colLiabID] = l.ID
	row[colLiabName] = l.Name
	row[colLiabBalance] = l.Balance.String()
	if !l.MonthlyPayment.IsZero() {
		row[colLiabPayment] = l.MonthlyPayment.String()
	}
	row[colLiabAccount] = l.PaymentAccountID
	if l.PaymentDay != 0 {
		row[colLiabDay] = strconv.Itoa(l.PaymentDay)
	}
	if l.StartDate.IsValid() {
		row[colLiabStart] = l.StartDate.String()
	}
	row[colLiabRule] = l.RuleID
	row[colLiabUpdated] = formatTime(l.UpdatedAt)
	return row
}

// UnmarshalLiability converts a CSV row to a Liability.
func UnmarshalLiability(record []string) (model.Liability, error) {
	if len(record) != liabFields {
		return model.Liability{}, fmt.Errorf("expected %d fields, got %d", liabFields, len(record))
	}

	balance, err := decimal.NewFromString(record[colLiabBalance])
	if err != nil {
		return model.Liability{}, fmt.Errorf("parsing balance %q: %w", record[colLiabBalance], err)
	}
	var payment decimal.Decimal
	if record[colLiabPayment] != "" {
		payment, err = decimal.NewFromString(record[colLiabPayment])
		if err != nil {
			return model.Liability{}, fmt.Errorf("parsing monthly_payment %q: %w", record[colLiabPayment], err)
		}
	}
	day, err := atoiOrZero(record[colLiabDay])
	if err != nil {
		return model.Liability{}, fmt.Errorf("parsing payment_day %q: %w", record[colLiabDay], err)
	}
	var start civil.Date
	if record[colLiabStart] != "" {
		start, err = civil.ParseDate(record[colLiabStart])
		if err != nil {
			return model.Liability{}, fmt.Errorf("parsing start_date %q: %w", record[colLiabStart], err)
		}
	}
	updated, err := parseTime(record[colLiabUpdated])
	if err != nil {
		return model.Liability{}, fmt.Errorf("parsing updated_at: %w", err)
	}

	return model.Liability{
		ID:               record[colLiabID],
		Name:             record[colLiabName],
		Balance:          balance,
		MonthlyPayment:   payment,
		PaymentAccountID: record[colLiabAccount],
		PaymentDay:       day,
		StartDate:        start,
		RuleID:           record[colLiabRule],
		UpdatedAt:        updated,
	}, nil
}

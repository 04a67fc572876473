package store

import (
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/model"
)

// TransactionHeader is the CSV header of the ledger blob.
var TransactionHeader = []string{"id", "date", "kind", "amount", "category", "account_id", "to_account_id", "rule_id", "note", "created_at", "updated_at"}

const (
	txFields      = 11
	colTxID       = 0
	colTxDate     = 1
	colTxKind     = 2
	colTxAmount   = 3
	colTxCategory = 4
	colTxAccount  = 5
	colTxTo       = 6
	colTxRule     = 7
	colTxNote     = 8
	colTxCreated  = 9
	colTxUpdated  = 10
)

// ReadTransactions reads the ledger blob.
func ReadTransactions(r io.Reader) ([]model.Transaction, error) {
	return readRows(r, "ledger", txFields, UnmarshalTransaction)
}

// WriteTransactions writes the ledger blob, header included.
func WriteTransactions(w io.Writer, txs []model.Transaction) error {
	return writeRows(w, TransactionHeader, txs, MarshalTransaction)
}

// MarshalTransaction converts a Transaction to a CSV row.
func MarshalTransaction(tx model.Transaction) []string {
	row := make([]string, txFields)
	row[colTxID] = tx.ID
	row[colTxDate] = tx.Date.String()
	row[colTxKind] = string(tx.Kind)
	row[colTxAmount] = tx.Amount.String()
	row[colTxCategory] = tx.Category
	row[colTxAccount] = tx.AccountID
	row[colTxTo] = tx.ToAccountID
	row[colTxRule] = tx.RuleID
	row[colTxNote] = tx.Note
	row[colTxCreated] = formatTime(tx.CreatedAt)
	row[colTxUpdated] = formatTime(tx.UpdatedAt)
	return row
}

// UnmarshalTransaction converts a CSV row to a Transaction.
func UnmarshalTransaction(record []string) (model.Transaction, error) {
	if len(record) != txFields {
		return model.Transaction{}, fmt.Errorf("expected %d fields, got %d", txFields, len(record))
	}

	date, err := civil.ParseDate(record[colTxDate])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing date %q: %w", record[colTxDate], err)
	}
	kind, err := model.ParseKind(record[colTxKind])
	if err != nil {
		return model.Transaction{}, err
	}
	amount, err := decimal.NewFromString(record[colTxAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", record[colTxAmount], err)
	}
	created, err := parseTime(record[colTxCreated])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	updated, err := parseTime(record[colTxUpdated])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing updated_at: %w", err)
	}

	return model.Transaction{
		ID:          record[colTxID],
		Amount:      amount,
		Kind:        kind,
		Category:    record[colTxCategory],
		AccountID:   record[colTxAccount],
		ToAccountID: record[colTxTo],
		Date:        date,
		RuleID:      record[colTxRule],
		Note:        record[colTxNote],
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

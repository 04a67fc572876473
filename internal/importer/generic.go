package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/model"
)

// GenericParser reads a plain "date,description,amount" CSV with ISO dates
// and signed amounts. An optional fourth column sets the category.
type GenericParser struct{}

// Format returns the parser name.
func (p *GenericParser) Format() string { return "generic" }

// Parse reads the CSV, skipping its header row.
func (p *GenericParser) Parse(r io.Reader, accountID string) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	seen := refs{}
	var txns []model.Transaction
	for i, rec := range records[1:] {
		if len(rec) < 3 {
			return nil, fmt.Errorf("row %d: want at least 3 fields, got %d", i+2, len(rec))
		}
		date, err := civil.ParseDate(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing date %q: %w", i+2, rec[0], err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing amount %q: %w", i+2, rec[2], err)
		}
		if amount.IsZero() {
			continue
		}
		ref := rowRef("csv", accountID, date, rec[1], amount)
		tx := signed(seen.id(ref), accountID, date, amount, rec[1])
		if len(rec) > 3 && strings.TrimSpace(rec[3]) != "" {
			tx.Category = strings.TrimSpace(rec[3])
		}
		txns = append(txns, tx)
	}
	return txns, nil
}

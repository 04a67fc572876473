package store

import (
	"fmt"
	"io"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/model"
)

// RuleHeader is the CSV header of the rules blob.
var RuleHeader = []string{
	"id", "kind", "amount", "category", "account_id", "to_account_id", "note",
	"frequency", "start", "day_of_month", "max_occurrences", "materialized", "active",
	"liability_id", "created_at", "updated_at",
}

const (
	ruleFields       = 16
	colRuleID        = 0
	colRuleKind      = 1
	colRuleAmount    = 2
	colRuleCategory  = 3
	colRuleAccount   = 4
	colRuleTo        = 5
	colRuleNote      = 6
	colRuleFrequency = 7
	colRuleStart     = 8
	colRuleDay       = 9
	colRuleMax       = 10
	colRuleCursor    = 11
	colRuleActive    = 12
	colRuleLiability = 13
	colRuleCreated   = 14
	colRuleUpdated   = 15
)

// ReadRules reads the rules blob.
func ReadRules(r io.Reader) ([]model.Rule, error) {
	return readRows(r, "rules", ruleFields, UnmarshalRule)
}

// WriteRules writes the rules blob, header included.
func WriteRules(w io.Writer, rules []model.Rule) error {
	return writeRows(w, RuleHeader, rules, MarshalRule)
}

// MarshalRule converts a Rule to a CSV row.
func MarshalRule(r model.Rule) []string {
	row := make([]string, ruleFields)
	row[colRuleID] = r.ID
	row[colRuleKind] = string(r.Kind)
	row[colRuleAmount] = r.Amount.String()
	row[colRuleCategory] = r.Category
	row[colRuleAccount] = r.AccountID
	row[colRuleTo] = r.ToAccountID
	row[colRuleNote] = r.Note
	row[colRuleFrequency] = string(r.Frequency)
	row[colRuleStart] = r.Start.String()
	if r.DayOfMonth != 0 {
		row[colRuleDay] = strconv.Itoa(r.DayOfMonth)
	}
	if r.MaxOccurrences != 0 {
		row[colRuleMax] = strconv.Itoa(r.MaxOccurrences)
	}
	row[colRuleCursor] = strconv.Itoa(r.Materialized)
	row[colRuleActive] = strconv.FormatBool(r.Active)
	row[colRuleLiability] = r.LiabilityID
	row[colRuleCreated] = formatTime(r.CreatedAt)
	row[colRuleUpdated] = formatTime(r.UpdatedAt)
	return row
}

// UnmarshalRule converts a CSV row to a Rule.
func UnmarshalRule(record []string) (model.Rule, error) {
	if len(record) != ruleFields {
		return model.Rule{}, fmt.Errorf("expected %d fields, got %d", ruleFields, len(record))
	}

	kind, err := model.ParseKind(record[colRuleKind])
	if err != nil {
		return model.Rule{}, err
	}
	amount, err := decimal.NewFromString(record[colRuleAmount])
	if err != nil {
		return model.Rule{}, fmt.Errorf("parsing amount %q: %w", record[colRuleAmount], err)
	}
	freq, err := calendar.ParseFrequency(record[colRuleFrequency])
	if err != nil {
		return model.Rule{}, err
	}
	start, err := civil.ParseDate(record[colRuleStart])
	if err != nil {
		return model.Rule{}, fmt.Errorf("parsing start %q: %w", record[colRuleStart], err)
	}
	day, err := atoiOrZero(record[colRuleDay])
	if err != nil {
		return model.Rule{}, fmt.Errorf("parsing day_of_month %q: %w", record[colRuleDay], err)
	}
	maxOcc, err := atoiOrZero(record[colRuleMax])
	if err != nil {
		return model.Rule{}, fmt.Errorf("parsing max_occurrences %q: %w", record[colRuleMax], err)
	}
	cursor, err := atoiOrZero(record[colRuleCursor])
	if err != nil {
		return model.Rule{}, fmt.Errorf("parsing materialized %q: %w", record[colRuleCursor], err)
	}
	active, err := strconv.ParseBool(record[colRuleActive])
	if err != nil {
		return model.Rule{}, fmt.Errorf("parsing active %q: %w", record[colRuleActive], err)
	}
	created, err := parseTime(record[colRuleCreated])
	if err != nil {
		return model.Rule{}, fmt.Errorf("parsing created_at: %w", err)
	}
	updated, err := parseTime(record[colRuleUpdated])
	if err != nil {
		return model.Rule{}, fmt.Errorf("parsing updated_at: %w", err)
	}

	return model.Rule{
		ID: record[colRuleID],
		Template: model.Template{
			Amount:      amount,
			Kind:        kind,
			Category:    record[colRuleCategory],
			AccountID:   record[colRuleAccount],
			ToAccountID: record[colRuleTo],
			Note:        record[colRuleNote],
		},
		Frequency:      freq,
		Start:          start,
		DayOfMonth:     day,
		MaxOccurrences: maxOcc,
		Materialized:   cursor,
		Active:         active,
		LiabilityID:    record[colRuleLiability],
		CreatedAt:      created,
		UpdatedAt:      updated,
	}, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

package model

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/calendar"
)

// Template holds the transaction fields a rule stamps onto each occurrence.
type Template struct {
	Amount      decimal.Decimal
	Kind        Kind
	Category    string
	AccountID   string
	ToAccountID string
	Note        string
}

// Transaction builds an occurrence of the template on date.
func (t Template) Transaction(id, ruleID string, date civil.Date) Transaction {
	return Transaction{
		ID:          id,
		Amount:      t.Amount,
		Kind:        t.Kind,
		Category:    t.Category,
		AccountID:   t.AccountID,
		ToAccountID: t.ToAccountID,
		Date:        date,
		RuleID:      ruleID,
		Note:        t.Note,
	}
}

// Equal reports whether two templates produce identical occurrences.
func (t Template) Equal(o Template) bool {
	return t.Amount.Equal(o.Amount) && t.Kind == o.Kind && t.Category == o.Category &&
		t.AccountID == o.AccountID && t.ToAccountID == o.ToAccountID && t.Note == o.Note
}

// Patch applies the template-relevant fields of p. Dates are ignored.
func (t Template) Patch(p TransactionPatch) Template {
	tx := p.WithoutDate().Apply(t.Transaction("", "", civil.Date{}))
	return Template{
		Amount:      tx.Amount,
		Kind:        tx.Kind,
		Category:    tx.Category,
		AccountID:   tx.AccountID,
		ToAccountID: tx.ToAccountID,
		Note:        tx.Note,
	}
}

// Validate checks the template as if it were a dated record.
func (t Template) Validate() error {
	// Any valid date works; only the template fields are under test.
	return t.Transaction("", "", civil.Date{Year: 2000, Month: time.January, Day: 1}).Validate()
}

// Rule is a recurring-transaction definition.
//
// Materialized is the number of occurrence slots, counted from Start, that
// have been written to the ledger (or skipped over by a reschedule). It is
// the only occurrence counter; the remaining count is always derived.
type Rule struct {
	ID string
	Template
	Frequency      calendar.Frequency
	Start          civil.Date
	DayOfMonth     int // 0 means Start.Day
	MaxOccurrences int // 0 means unbounded
	Materialized   int
	Active         bool
	LiabilityID    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AnchorDay is the day of month monthly and yearly occurrences aim for.
func (r Rule) AnchorDay() int {
	if r.DayOfMonth > 0 {
		return r.DayOfMonth
	}
	return r.Start.Day
}

// Occurrence returns the date of the n-th (0-based) occurrence.
func (r Rule) Occurrence(n int) civil.Date {
	return calendar.Nth(r.Start, r.Frequency, r.AnchorDay(), n)
}

// Capped reports whether slot n lies beyond the maximum occurrence count.
func (r Rule) Capped(n int) bool {
	return r.MaxOccurrences > 0 && n >= r.MaxOccurrences
}

// Exhausted reports whether every allowed occurrence has been materialized.
func (r Rule) Exhausted() bool {
	return r.Capped(r.Materialized)
}

// Remaining returns how many occurrences may still be materialized, or -1
// when the rule is unbounded.
func (r Rule) Remaining() int {
	if r.MaxOccurrences == 0 {
		return -1
	}
	if n := r.MaxOccurrences - r.Materialized; n > 0 {
		return n
	}
	return 0
}

// ScheduleEqual reports whether two rules produce the same dates.
func (r Rule) ScheduleEqual(o Rule) bool {
	return r.Frequency == o.Frequency && r.Start == o.Start && r.AnchorDay() == o.AnchorDay()
}

// Validate checks the rule's template and schedule.
func (r Rule) Validate() error {
	var errs ValidationErrors
	if err := r.Template.Validate(); err != nil {
		if ve, ok := err.(ValidationErrors); ok {
			errs = append(errs, ve...)
		}
	}
	if !r.Frequency.Valid() {
		errs = append(errs, ValidationError{Field: "frequency", Description: fmt.Sprintf("unknown frequency %q", r.Frequency)})
	}
	if !r.Start.IsValid() {
		errs = append(errs, ValidationError{Field: "start", Description: fmt.Sprintf("invalid start date %s", r.Start)})
	}
	if r.DayOfMonth < 0 || r.DayOfMonth > 31 {
		errs = append(errs, ValidationError{Field: "day_of_month", Description: fmt.Sprintf("must be 1-31, got %d", r.DayOfMonth)})
	}
	if r.MaxOccurrences < 0 {
		errs = append(errs, ValidationError{Field: "max_occurrences", Description: "must not be negative"})
	}
	return errs.OrNil()
}

// Scope selects how much of a recurring series an edit or delete touches.
type Scope string

const (
	ScopeSingle Scope = "single"
	ScopeFuture Scope = "future"
	ScopeAll    Scope = "all"
)

// ParseScope accepts the canonical scope names case-insensitively.
func ParseScope(s string) (Scope, error) {
	sc := Scope(strings.ToLower(strings.TrimSpace(s)))
	switch sc {
	case ScopeSingle, ScopeFuture, ScopeAll:
		return sc, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// Package calendar holds the month-end-aware date arithmetic that every
// recurrence computation goes through. All functions are pure.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Frequency is the period of a recurring series.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// Valid reports whether f is one of the known frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// ParseFrequency accepts the canonical names case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown frequency %q", s)
	}
	return f, nil
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddInterval advances d by one period of f, anchored on d's own day of month.
func AddInterval(d civil.Date, f Frequency) civil.Date {
	return AddIntervalAnchored(d, f, d.Day)
}

// AddIntervalAnchored advances d by one period of f. For monthly and yearly
// frequencies the result lands on anchorDay, clamped to the target month's
// last day. Passing the series' original day keeps a 31st anchor on the 31st
// after passing through a shorter month.
func AddIntervalAnchored(d civil.Date, f Frequency, anchorDay int) civil.Date {
	switch f {
	case Daily:
		return d.AddDays(1)
	case Weekly:
		return d.AddDays(7)
	case Monthly:
		return AddMonths(d, 1, anchorDay)
	case Yearly:
		return AddMonths(d, 12, anchorDay)
	}
	return d
}

// Nth returns the n-th occurrence (0-based) of a series starting at anchor.
// It is computed directly from the anchor rather than by chaining, so clamping
// in one month never shifts later occurrences.
func Nth(anchor civil.Date, f Frequency, anchorDay, n int) civil.Date {
	switch f {
	case Daily:
		return anchor.AddDays(n)
	case Weekly:
		return anchor.AddDays(7 * n)
	case Monthly:
		return AddMonths(anchor, n, anchorDay)
	case Yearly:
		return AddMonths(anchor, 12*n, anchorDay)
	}
	return anchor
}

// AddMonths moves d by n months (n may be negative) and places the result on
// day, clamped to the length of the target month. A non-positive day means
// d's own day.
func AddMonths(d civil.Date, n, day int) civil.Date {
	if day <= 0 {
		day = d.Day
	}
	total := int(d.Month) - 1 + n
	year := d.Year + floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// MonthStart returns the first day of d's month.
func MonthStart(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: 1}
}

// InMonthOrLater reports whether d falls in ref's month or any later month.
func InMonthOrLater(d, ref civil.Date) bool {
	return !d.Before(MonthStart(ref))
}

// Within reports whether start <= d <= end.
func Within(d, start, end civil.Date) bool {
	return !d.Before(start) && !d.After(end)
}

// OnDay returns the date in d's month with the given day, clamped to the
// month's length.
func OnDay(d civil.Date, day int) civil.Date {
	return AddMonths(d, 0, day)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

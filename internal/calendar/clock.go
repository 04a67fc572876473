package calendar

import (
	"time"

	"cloud.google.com/go/civil"
)

// Clock provides the current time. Services take a Clock instead of calling
// time.Now so tests can pin "today".
type Clock interface {
	Now() time.Time
}

// Real reads the system clock. Only entry points should construct it.
type Real struct{}

// Now returns the current system time.
func (Real) Now() time.Time { return time.Now() }

// Fixed always returns T.
type Fixed struct {
	T time.Time
}

// Now returns the fixed time.
func (c Fixed) Now() time.Time { return c.T }

// FixedDate returns a Fixed clock at noon UTC on d.
func FixedDate(d civil.Date) Fixed {
	return Fixed{T: time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)}
}

// Today returns the civil date of c.Now() in c's location.
func Today(c Clock) civil.Date {
	return civil.DateOf(c.Now())
}

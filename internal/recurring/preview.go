package recurring

import (
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/model"
)

// DefaultPreviewMonths is the preview horizon used when none is given.
const DefaultPreviewMonths = 12

// Preview iterates the upcoming occurrence dates of a rule, strictly after
// a start date and up to a horizon. Dates already due but not yet
// materialized are skipped: MaterializeDue will write them, so they still
// count toward the rule's occurrence cap. It computes one date per call to
// Next and holds a snapshot of the rule, so later changes to the rule do not
// affect it.
//
//	p := engine.PreviewFuture(r, 12)
//	for {
//		d, err := p.Next()
//		if err == iterator.Done {
//			break
//		}
//		...
//	}
type Preview struct {
	rule    model.Rule
	after   civil.Date
	horizon civil.Date
	n       int
}

// PreviewFuture returns a preview of r from tomorrow through horizonMonths
// from today, bounded by the rule's maximum occurrence count. Inactive rules
// preview nothing. Preview output is for display only and is never written
// to the ledger.
func (e *Engine) PreviewFuture(r model.Rule, horizonMonths int) *Preview {
	if horizonMonths <= 0 {
		horizonMonths = DefaultPreviewMonths
	}
	today := calendar.Today(e.clock)
	return NewPreview(r, today, calendar.AddMonths(today, horizonMonths, 0))
}

// NewPreview returns a preview of r covering dates after `after` through
// horizon inclusive.
func NewPreview(r model.Rule, after, horizon civil.Date) *Preview {
	return &Preview{rule: r, after: after, horizon: horizon, n: r.Materialized}
}

// Next returns the next occurrence date, or iterator.Done when the horizon
// or the occurrence cap has been reached.
func (p *Preview) Next() (civil.Date, error) {
	for p.rule.Active && !p.rule.Capped(p.n) {
		d := p.rule.Occurrence(p.n)
		if d.After(p.horizon) {
			break
		}
		p.n++
		if d.After(p.after) {
			return d, nil
		}
	}
	return civil.Date{}, iterator.Done
}

// Reset rewinds the preview to its first date.
func (p *Preview) Reset() {
	p.n = p.rule.Materialized
}

// All drains a fresh pass over the preview.
func (p *Preview) All() []civil.Date {
	p.Reset()
	var out []civil.Date
	for {
		d, err := p.Next()
		if err == iterator.Done {
			break
		}
		out = append(out, d)
	}
	p.Reset()
	return out
}

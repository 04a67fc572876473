// Package recurring owns recurring-rule definitions and expands them into
// ledger occurrences.
//
// Each rule carries a single occurrence cursor (Rule.Materialized). Slot n of
// a rule is calendar.Nth(start, frequency, anchorDay, n); slots below the
// cursor have been written to the ledger (or skipped by a reschedule), so
// materialized and previewed occurrences never overlap and together never
// exceed the rule's maximum.
package recurring

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/events"
	"github.com/tallyfi/tally/internal/id"
	"github.com/tallyfi/tally/internal/ledger"
	"github.com/tallyfi/tally/internal/model"
)

// Ledger is the subset of the transaction ledger the engine writes through.
type Ledger interface {
	Add(tx model.Transaction) (model.Transaction, error)
	Update(txID string, patch model.TransactionPatch) (model.Transaction, error)
	Remove(txID string) (model.Transaction, error)
	Get(txID string) (model.Transaction, bool)
	Has(txID string) bool
	ByRule(ruleID string) []model.Transaction
}

// Engine stores rules and materializes their occurrences.
type Engine struct {
	rules    map[string]model.Rule
	ledger   Ledger
	accounts ledger.AccountChecker
	bus      events.Publisher
	clock    calendar.Clock
	log      zerolog.Logger
}

// NewEngine creates an engine with no rules.
func NewEngine(l Ledger, accounts ledger.AccountChecker, bus events.Publisher, clock calendar.Clock, log zerolog.Logger) *Engine {
	return &Engine{
		rules:    make(map[string]model.Rule),
		ledger:   l,
		accounts: accounts,
		bus:      bus,
		clock:    clock,
		log:      log.With().Str("component", "recurring").Logger(),
	}
}

// Validate checks a rule's own fields and that its template references
// known accounts.
func (e *Engine) Validate(r model.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return ledger.ValidateTransaction(r.Transaction("", r.ID, r.Start), e.accounts)
}

// CreateRule stores a new active rule and immediately materializes its
// anchor occurrence, even when the anchor lies in the future.
func (e *Engine) CreateRule(r model.Rule) (model.Rule, error) {
	if r.ID == "" {
		r.ID = id.New(id.PrefixRule)
	}
	if _, exists := e.rules[r.ID]; exists {
		return model.Rule{}, model.ValidationErrors{{Field: "id", Description: fmt.Sprintf("rule %s already exists", r.ID)}}
	}
	r.Active = true
	r.Materialized = 0
	if err := e.Validate(r); err != nil {
		return model.Rule{}, err
	}

	now := e.clock.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	e.rules[r.ID] = r

	if _, err := e.apply([]pending{{rule: r, slots: []int{0}}}); err != nil {
		delete(e.rules, r.ID)
		return model.Rule{}, fmt.Errorf("materializing anchor of rule %s: %w", r.ID, err)
	}
	e.log.Info().Str("rule_id", r.ID).Str("frequency", string(r.Frequency)).Stringer("start", r.Start).Msg("rule created")
	return e.rules[r.ID], nil
}

// Get returns a rule by ID.
func (e *Engine) Get(ruleID string) (model.Rule, bool) {
	r, ok := e.rules[ruleID]
	return r, ok
}

// Rules returns every rule ordered by creation time.
func (e *Engine) Rules() []model.Rule {
	out := make([]model.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Replace swaps the whole rule set. Used when loading from storage.
func (e *Engine) Replace(rules []model.Rule) {
	e.rules = make(map[string]model.Rule, len(rules))
	for _, r := range rules {
		e.rules[r.ID] = r
	}
}

// DueOccurrences returns the not-yet-materialized dates of r on or before
// asOf, stopping at the rule's maximum occurrence count.
func DueOccurrences(r model.Rule, asOf civil.Date) []civil.Date {
	var out []civil.Date
	for _, n := range dueSlots(r, asOf) {
		out = append(out, r.Occurrence(n))
	}
	return out
}

func dueSlots(r model.Rule, asOf civil.Date) []int {
	var slots []int
	for n := r.Materialized; !r.Capped(n); n++ {
		if r.Occurrence(n).After(asOf) {
			break
		}
		slots = append(slots, n)
	}
	return slots
}

// MaterializeDue writes every due occurrence of every active rule to the
// ledger. The full set of new records is computed and validated before the
// first one is written; a rule whose template no longer validates is skipped
// and reported in the log.
func (e *Engine) MaterializeDue(asOf civil.Date) ([]model.Transaction, error) {
	var plan []pending
	for _, r := range e.Rules() {
		if !r.Active {
			continue
		}
		slots := dueSlots(r, asOf)
		if len(slots) == 0 {
			continue
		}
		if err := e.Validate(r); err != nil {
			e.log.Error().Err(err).Str("rule_id", r.ID).Msg("skipping rule with invalid template")
			continue
		}
		plan = append(plan, pending{rule: r, slots: slots})
	}

	created, err := e.apply(plan)
	if err != nil {
		return created, err
	}
	if len(created) > 0 {
		e.log.Info().Int("count", len(created)).Stringer("as_of", asOf).Msg("materialized due occurrences")
	}
	return created, nil
}

type pending struct {
	rule  model.Rule
	slots []int
}

func (e *Engine) apply(plan []pending) ([]model.Transaction, error) {
	var created []model.Transaction
	for _, p := range plan {
		r := p.rule
		for _, n := range p.slots {
			occID := id.FormatOccurrenceID(r.ID, n)
			r.Materialized = n + 1
			if e.ledger.Has(occID) {
				continue
			}
			tx, err := e.ledger.Add(r.Transaction(occID, r.ID, r.Occurrence(n)))
			if err != nil {
				e.rules[r.ID] = r
				return created, fmt.Errorf("adding occurrence %s: %w", occID, err)
			}
			created = append(created, tx)
			cur := tx
			e.bus.Publish(events.Event{Type: events.RuleMaterialized, RuleID: r.ID, Date: tx.Date, Current: &cur})
		}
		e.rules[r.ID] = r
	}
	return created, nil
}

// Deactivate stops further materialization of a rule. History is kept.
func (e *Engine) Deactivate(ruleID string) (model.Rule, error) {
	return e.setActive(ruleID, false)
}

// Activate resumes a deactivated rule from its cursor.
func (e *Engine) Activate(ruleID string) (model.Rule, error) {
	return e.setActive(ruleID, true)
}

func (e *Engine) setActive(ruleID string, active bool) (model.Rule, error) {
	r, ok := e.rules[ruleID]
	if !ok {
		return model.Rule{}, model.NotFound("rule", ruleID)
	}
	if r.Active == active {
		return r, nil
	}
	r.Active = active
	r.UpdatedAt = e.clock.Now()
	e.rules[ruleID] = r
	e.log.Info().Str("rule_id", ruleID).Bool("active", active).Msg("rule state changed")
	return r, nil
}

// Delete removes a rule and every occurrence ever materialized from it.
func (e *Engine) Delete(ruleID string) ([]model.Transaction, error) {
	if _, ok := e.rules[ruleID]; !ok {
		return nil, model.NotFound("rule", ruleID)
	}
	removed, err := e.removeAll(e.ledger.ByRule(ruleID))
	if err != nil {
		return removed, err
	}
	delete(e.rules, ruleID)
	e.log.Info().Str("rule_id", ruleID).Int("removed", len(removed)).Msg("rule deleted")
	return removed, nil
}

// UpdateRule replaces a rule's template, schedule and cap. Active state,
// cursor position and liability link are kept. A template change only
// affects occurrences materialized later. A schedule change re-anchors the
// rule and moves the cursor past the last materialized slot so no date is
// written twice.
func (e *Engine) UpdateRule(next model.Rule) (model.Rule, error) {
	cur, ok := e.rules[next.ID]
	if !ok {
		return model.Rule{}, model.NotFound("rule", next.ID)
	}
	next.Active = cur.Active
	next.Materialized = cur.Materialized
	next.LiabilityID = cur.LiabilityID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = cur.UpdatedAt
	if err := e.Validate(next); err != nil {
		return model.Rule{}, err
	}
	if cur.Template.Equal(next.Template) && cur.ScheduleEqual(next) && cur.MaxOccurrences == next.MaxOccurrences {
		return cur, nil
	}

	if !cur.ScheduleEqual(next) {
		next.Materialized = 0
		if cur.Materialized > 0 {
			last := cur.Occurrence(cur.Materialized - 1)
			for !next.Occurrence(next.Materialized).After(last) {
				next.Materialized++
			}
		}
	}
	next.UpdatedAt = e.clock.Now()
	e.rules[next.ID] = next
	e.log.Info().Str("rule_id", next.ID).Int("cursor", next.Materialized).Msg("rule updated")
	return next, nil
}

// DeleteOccurrence removes a record with the given scope and returns every
// record removed. Records not generated by a rule are always removed alone.
func (e *Engine) DeleteOccurrence(recordID string, scope model.Scope) ([]model.Transaction, error) {
	target, r, err := e.resolve(recordID, scope)
	if err != nil {
		return nil, err
	}
	if r == nil || scope == model.ScopeSingle {
		removed, err := e.ledger.Remove(target.ID)
		if err != nil {
			return nil, err
		}
		return []model.Transaction{removed}, nil
	}

	if scope == model.ScopeAll {
		return e.Delete(r.ID)
	}
	if _, err := e.Deactivate(r.ID); err != nil {
		return nil, err
	}
	return e.removeAll(e.fromMonthOf(r.ID, target.Date))
}

// EditOccurrence patches a record with the given scope and returns every
// record changed. For future and all scopes the rule's template is patched
// too, so later occurrences carry the change. Date changes apply to single
// occurrences only.
func (e *Engine) EditOccurrence(recordID string, patch model.TransactionPatch, scope model.Scope) ([]model.Transaction, error) {
	target, r, err := e.resolve(recordID, scope)
	if err != nil {
		return nil, err
	}
	if r == nil || scope == model.ScopeSingle {
		updated, err := e.ledger.Update(target.ID, patch)
		if err != nil {
			return nil, err
		}
		return []model.Transaction{updated}, nil
	}
	if patch.Date != nil {
		return nil, model.ValidationErrors{{Field: "date", Description: "date changes apply to a single occurrence"}}
	}

	rule := *r
	rule.Template = rule.Template.Patch(patch)
	if err := e.Validate(rule); err != nil {
		return nil, err
	}
	targets := e.ledger.ByRule(rule.ID)
	if scope == model.ScopeFuture {
		targets = e.fromMonthOf(rule.ID, target.Date)
	}
	for _, tx := range targets {
		if err := ledger.ValidateTransaction(patch.Apply(tx), e.accounts); err != nil {
			return nil, fmt.Errorf("occurrence %s: %w", tx.ID, err)
		}
	}

	if !rule.Template.Equal(r.Template) {
		rule.UpdatedAt = e.clock.Now()
		e.rules[rule.ID] = rule
	}
	var changed []model.Transaction
	for _, tx := range targets {
		updated, err := e.ledger.Update(tx.ID, patch)
		if err != nil {
			return changed, fmt.Errorf("updating occurrence %s: %w", tx.ID, err)
		}
		changed = append(changed, updated)
	}
	return changed, nil
}

// resolve looks up a record and, for scoped operations, its owning rule. A
// nil rule means the record stands alone.
func (e *Engine) resolve(recordID string, scope model.Scope) (model.Transaction, *model.Rule, error) {
	switch scope {
	case model.ScopeSingle, model.ScopeFuture, model.ScopeAll:
	default:
		return model.Transaction{}, nil, model.ValidationErrors{{Field: "scope", Description: fmt.Sprintf("unknown scope %q", scope)}}
	}
	target, ok := e.ledger.Get(recordID)
	if !ok {
		return model.Transaction{}, nil, model.NotFound("transaction", recordID)
	}
	if !target.Recurring() {
		return target, nil, nil
	}
	r, ok := e.rules[target.RuleID]
	if !ok {
		return target, nil, nil
	}
	return target, &r, nil
}

func (e *Engine) fromMonthOf(ruleID string, ref civil.Date) []model.Transaction {
	var out []model.Transaction
	for _, tx := range e.ledger.ByRule(ruleID) {
		if calendar.InMonthOrLater(tx.Date, ref) {
			out = append(out, tx)
		}
	}
	return out
}

func (e *Engine) removeAll(txs []model.Transaction) ([]model.Transaction, error) {
	removed := make([]model.Transaction, 0, len(txs))
	for _, tx := range txs {
		prev, err := e.ledger.Remove(tx.ID)
		if err != nil {
			return removed, fmt.Errorf("removing occurrence %s: %w", tx.ID, err)
		}
		removed = append(removed, prev)
	}
	return removed, nil
}

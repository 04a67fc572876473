// Package liabilities keeps each liability's account and its autopay rule in
// step with the liability's payment terms. Every liability create or update
// goes through Linker.Sync.
package liabilities

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/events"
	"github.com/tallyfi/tally/internal/id"
	"github.com/tallyfi/tally/internal/model"
)

// Accounts is the account registry view the linker needs.
type Accounts interface {
	Get(id string) (model.Account, bool)
	Exists(id string) bool
	Upsert(a model.Account) error
	Remove(id string) error
}

// Rules is the rule engine view the linker needs.
type Rules interface {
	Get(ruleID string) (model.Rule, bool)
	CreateRule(r model.Rule) (model.Rule, error)
	UpdateRule(r model.Rule) (model.Rule, error)
	Activate(ruleID string) (model.Rule, error)
	Deactivate(ruleID string) (model.Rule, error)
	Delete(ruleID string) ([]model.Transaction, error)
}

// Records finds ledger records touching an account.
type Records interface {
	ByAccount(accountID string) []model.Transaction
}

// Linker stores liabilities and owns the liability-to-rule link.
type Linker struct {
	liabilities map[string]model.Liability
	accounts    Accounts
	rules       Rules
	records     Records
	bus         events.Publisher
	clock       calendar.Clock
	log         zerolog.Logger
}

// NewLinker creates a linker with no liabilities.
func NewLinker(accounts Accounts, rules Rules, records Records, bus events.Publisher, clock calendar.Clock, log zerolog.Logger) *Linker {
	return &Linker{
		liabilities: make(map[string]model.Liability),
		accounts:    accounts,
		rules:       rules,
		records:     records,
		bus:         bus,
		clock:       clock,
		log:         log.With().Str("component", "liabilities").Logger(),
	}
}

// Sync creates or updates a liability. With full payment terms it ensures
// exactly one active autopay rule exists, updating the linked rule in place
// when there is one. Without them it deactivates the linked rule and keeps
// its history. Calling Sync again with the same liability changes nothing.
func (k *Linker) Sync(l model.Liability) (model.Liability, error) {
	if l.ID == "" {
		l.ID = id.New(id.PrefixLiability)
	}
	if err := l.Validate(); err != nil {
		return model.Liability{}, err
	}
	if l.PaymentAccountID != "" && !k.accounts.Exists(l.PaymentAccountID) {
		return model.Liability{}, model.ValidationErrors{{Field: "payment_account", Description: fmt.Sprintf("unknown account %s", l.PaymentAccountID)}}
	}
	prev, existed := k.liabilities[l.ID]
	l.RuleID = prev.RuleID
	if !l.StartDate.IsValid() {
		l.StartDate = prev.StartDate
		if !l.StartDate.IsValid() {
			l.StartDate = calendar.Today(k.clock)
		}
	}

	prevAccount, hadAccount := k.accounts.Get(l.ID)
	if err := k.accounts.Upsert(l.Account()); err != nil {
		return model.Liability{}, fmt.Errorf("liability account: %w", err)
	}

	var err error
	if l.HasPaymentTerms() {
		err = k.link(&l)
	} else {
		err = k.unlink(l)
	}
	if err != nil {
		if hadAccount {
			_ = k.accounts.Upsert(prevAccount)
		} else {
			_ = k.accounts.Remove(l.ID)
		}
		return model.Liability{}, err
	}

	if !existed || !sameLiability(prev, l) {
		l.UpdatedAt = k.clock.Now()
	} else {
		l.UpdatedAt = prev.UpdatedAt
	}
	k.liabilities[l.ID] = l
	return l, nil
}

func (k *Linker) link(l *model.Liability) error {
	want := model.Rule{
		ID:          l.RuleID,
		Template:    l.PaymentTemplate(),
		Frequency:   calendar.Monthly,
		Start:       l.FirstPayment(l.StartDate),
		DayOfMonth:  l.PaymentDay,
		LiabilityID: l.ID,
	}

	cur, ok := k.rules.Get(l.RuleID)
	if !ok {
		want.ID = ""
		r, err := k.rules.CreateRule(want)
		if err != nil {
			return fmt.Errorf("creating autopay rule: %w", err)
		}
		l.RuleID = r.ID
		k.log.Info().Str("liability_id", l.ID).Str("rule_id", r.ID).Msg("autopay linked")
		k.bus.Publish(events.Event{Type: events.LiabilityLinked, LiabilityID: l.ID, RuleID: r.ID})
		return nil
	}

	changed := !cur.Template.Equal(want.Template) || !cur.ScheduleEqual(want) || cur.MaxOccurrences != 0
	if _, err := k.rules.UpdateRule(want); err != nil {
		return fmt.Errorf("updating autopay rule: %w", err)
	}
	if !cur.Active {
		if _, err := k.rules.Activate(cur.ID); err != nil {
			return fmt.Errorf("reactivating autopay rule: %w", err)
		}
		changed = true
	}
	if changed {
		k.log.Info().Str("liability_id", l.ID).Str("rule_id", cur.ID).Msg("autopay rule updated")
		k.bus.Publish(events.Event{Type: events.LiabilityLinked, LiabilityID: l.ID, RuleID: cur.ID})
	}
	return nil
}

func (k *Linker) unlink(l model.Liability) error {
	cur, ok := k.rules.Get(l.RuleID)
	if !ok || !cur.Active {
		return nil
	}
	if _, err := k.rules.Deactivate(cur.ID); err != nil {
		return fmt.Errorf("deactivating autopay rule: %w", err)
	}
	k.log.Info().Str("liability_id", l.ID).Str("rule_id", cur.ID).Msg("autopay unlinked")
	k.bus.Publish(events.Event{Type: events.LiabilityUnlinked, LiabilityID: l.ID, RuleID: cur.ID})
	return nil
}

// Delete removes a liability, its linked rule with every payment occurrence,
// and its account. It refuses while other ledger records still reference the
// liability account.
func (k *Linker) Delete(liabilityID string) ([]model.Transaction, error) {
	l, ok := k.liabilities[liabilityID]
	if !ok {
		return nil, model.NotFound("liability", liabilityID)
	}
	for _, tx := range k.records.ByAccount(l.ID) {
		if tx.RuleID == "" || tx.RuleID != l.RuleID {
			return nil, model.ValidationErrors{{Field: "liability", Description: fmt.Sprintf("transaction %s still references %s", tx.ID, l.Name)}}
		}
	}

	var removed []model.Transaction
	if _, ok := k.rules.Get(l.RuleID); ok {
		var err error
		removed, err = k.rules.Delete(l.RuleID)
		if err != nil {
			return removed, fmt.Errorf("deleting autopay rule: %w", err)
		}
	}
	if k.accounts.Exists(l.ID) {
		if err := k.accounts.Remove(l.ID); err != nil {
			return removed, fmt.Errorf("removing liability account: %w", err)
		}
	}
	delete(k.liabilities, liabilityID)
	k.log.Info().Str("liability_id", liabilityID).Int("removed", len(removed)).Msg("liability deleted")
	return removed, nil
}

// Get returns a liability by ID.
func (k *Linker) Get(liabilityID string) (model.Liability, bool) {
	l, ok := k.liabilities[liabilityID]
	return l, ok
}

// List returns every liability ordered by name.
func (k *Linker) List() []model.Liability {
	out := make([]model.Liability, 0, len(k.liabilities))
	for _, l := range k.liabilities {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Replace swaps the whole liability set. Used when loading from storage.
func (k *Linker) Replace(liabilities []model.Liability) {
	k.liabilities = make(map[string]model.Liability, len(liabilities))
	for _, l := range liabilities {
		k.liabilities[l.ID] = l
	}
}

func sameLiability(a, b model.Liability) bool {
	return a.Name == b.Name && a.Balance.Equal(b.Balance) && a.MonthlyPayment.Equal(b.MonthlyPayment) &&
		a.PaymentAccountID == b.PaymentAccountID && a.PaymentDay == b.PaymentDay &&
		a.StartDate == b.StartDate && a.RuleID == b.RuleID
}

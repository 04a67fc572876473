// Package balances maintains each account's current value as its stored base
// value plus the net effect of every ledger record that references it.
//
// The net effect is updated incrementally from ledger-changed events: an
// update is a reversal of the previous record followed by an application of
// the new one, never a field diff. Full recomputation exists only for
// explicit refreshes and drift repair.
package balances

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/events"
	"github.com/tallyfi/tally/internal/model"
)

// AccountSource provides the registry view the synchronizer needs.
type AccountSource interface {
	Get(id string) (model.Account, bool)
	All() []model.Account
}

// RecordSource provides the full ledger for recomputation.
type RecordSource interface {
	List() []model.Transaction
}

// Balance is an account with its derived current value.
type Balance struct {
	Account model.Account
	Value   decimal.Decimal
}

// Drift reports an account whose incrementally maintained value differs from
// a full recomputation.
type Drift struct {
	AccountID   string
	Incremental decimal.Decimal
	Recomputed  decimal.Decimal
}

// Diverged reports whether the two values differ.
func (d Drift) Diverged() bool {
	return !d.Incremental.Equal(d.Recomputed)
}

// Synchronizer owns the derived balances. Nothing else writes them.
type Synchronizer struct {
	accounts AccountSource
	ledger   RecordSource
	effects  map[string]decimal.Decimal
	log      zerolog.Logger
}

// New creates a Synchronizer with zero effects. Call Rebuild after loading a
// non-empty ledger.
func New(accounts AccountSource, ledger RecordSource, log zerolog.Logger) *Synchronizer {
	return &Synchronizer{
		accounts: accounts,
		ledger:   ledger,
		effects:  make(map[string]decimal.Decimal),
		log:      log.With().Str("component", "balances").Logger(),
	}
}

// Attach subscribes the synchronizer to ledger-changed and force-refresh-all
// events. It should be the first ledger subscriber so observers registered
// later see balances that already include the change.
func (s *Synchronizer) Attach(bus *events.Bus) func() {
	return bus.Subscribe(s.handle, events.LedgerChanged, events.ForceRefreshAll)
}

func (s *Synchronizer) handle(e events.Event) {
	switch e.Type {
	case events.LedgerChanged:
		if e.Previous != nil {
			s.Reverse(*e.Previous)
		}
		if e.Current != nil {
			s.Apply(*e.Current)
		}
	case events.ForceRefreshAll:
		s.RecomputeAll()
	}
}

// Effects returns the signed delta a record contributes to each account it
// references: income +amount, expense -amount, transfer -amount on the
// source and +amount on the destination.
func Effects(tx model.Transaction) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, 2)
	switch tx.Kind {
	case model.KindIncome:
		out[tx.AccountID] = tx.Amount
	case model.KindExpense:
		out[tx.AccountID] = tx.Amount.Neg()
	case model.KindTransfer:
		out[tx.AccountID] = tx.Amount.Neg()
		out[tx.ToAccountID] = out[tx.ToAccountID].Add(tx.Amount)
	}
	return out
}

// Apply adds a record's effect.
func (s *Synchronizer) Apply(tx model.Transaction) {
	for acct, delta := range Effects(tx) {
		s.effects[acct] = s.effects[acct].Add(delta)
	}
}

// Reverse removes a record's effect. Apply followed by Reverse of the same
// record is net zero.
func (s *Synchronizer) Reverse(tx model.Transaction) {
	for acct, delta := range Effects(tx) {
		s.effects[acct] = s.effects[acct].Sub(delta)
	}
}

// Effect returns the net ledger effect currently attributed to an account.
func (s *Synchronizer) Effect(accountID string) decimal.Decimal {
	return s.effects[accountID]
}

// Current returns an account's current value: an asset's current value or a
// liability's balance owed.
func (s *Synchronizer) Current(accountID string) (decimal.Decimal, bool) {
	a, ok := s.accounts.Get(accountID)
	if !ok {
		return decimal.Zero, false
	}
	return a.Value(s.effects[accountID]), true
}

// Balances returns every registered account with its current value.
func (s *Synchronizer) Balances() []Balance {
	accts := s.accounts.All()
	out := make([]Balance, len(accts))
	for i, a := range accts {
		out[i] = Balance{Account: a, Value: a.Value(s.effects[a.ID])}
	}
	return out
}

// Recompute rebuilds one account's effect from a full ledger scan and
// reports how the incremental value compared.
func (s *Synchronizer) Recompute(accountID string) (Drift, error) {
	a, ok := s.accounts.Get(accountID)
	if !ok {
		return Drift{}, model.NotFound("account", accountID)
	}
	fresh := decimal.Zero
	for _, tx := range s.ledger.List() {
		if delta, ok := Effects(tx)[accountID]; ok {
			fresh = fresh.Add(delta)
		}
	}
	d := Drift{AccountID: accountID, Incremental: a.Value(s.effects[accountID]), Recomputed: a.Value(fresh)}
	if d.Diverged() {
		s.log.Warn().
			Str("account_id", accountID).
			Stringer("incremental", d.Incremental).
			Stringer("recomputed", d.Recomputed).
			Msg("balance drift repaired")
	}
	s.effects[accountID] = fresh
	return d, nil
}

// Rebuild replaces every effect with a full ledger scan without reporting
// drift. Used after the ledger is loaded or replaced wholesale.
func (s *Synchronizer) Rebuild() {
	s.effects = s.scan()
}

// RecomputeAll rebuilds every effect from the ledger and returns the
// accounts that had drifted.
func (s *Synchronizer) RecomputeAll() []Drift {
	fresh := s.scan()
	drifts := s.compare(fresh)
	for _, d := range drifts {
		s.log.Warn().
			Str("account_id", d.AccountID).
			Stringer("incremental", d.Incremental).
			Stringer("recomputed", d.Recomputed).
			Msg("balance drift repaired")
	}
	s.effects = fresh
	return drifts
}

// Check compares incremental values against a full recomputation without
// repairing anything.
func (s *Synchronizer) Check() []Drift {
	return s.compare(s.scan())
}

func (s *Synchronizer) scan() map[string]decimal.Decimal {
	fresh := make(map[string]decimal.Decimal)
	for _, tx := range s.ledger.List() {
		for acct, delta := range Effects(tx) {
			fresh[acct] = fresh[acct].Add(delta)
		}
	}
	return fresh
}

func (s *Synchronizer) compare(fresh map[string]decimal.Decimal) []Drift {
	var drifts []Drift
	for _, a := range s.accounts.All() {
		d := Drift{AccountID: a.ID, Incremental: a.Value(s.effects[a.ID]), Recomputed: a.Value(fresh[a.ID])}
		if d.Diverged() {
			drifts = append(drifts, d)
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].AccountID < drifts[j].AccountID })
	return drifts
}

package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/balances"
	"github.com/tallyfi/tally/internal/events"
	"github.com/tallyfi/tally/internal/id"
	"github.com/tallyfi/tally/internal/ledger"
	"github.com/tallyfi/tally/internal/model"
	"github.com/tallyfi/tally/internal/recurring"
	"github.com/tallyfi/tally/internal/store"
)

// Mutating operations return their in-memory result even when persisting it
// fails; the error is then a *PersistError (or a join of them).

// AddTransaction records a one-off transaction.
func (a *App) AddTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx.RuleID = ""
	added, err := a.ledger.Add(tx)
	if err != nil {
		return model.Transaction{}, err
	}
	return added, a.persist(ctx, "tx-add", store.KeyLedger)
}

// ImportTransactions adds statement records in one pass. Records whose ID
// is already in the ledger are skipped. Every remaining record is validated
// before any is added, so a bad row adds nothing.
func (a *App) ImportTransactions(ctx context.Context, txs []model.Transaction) ([]model.Transaction, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var todo []model.Transaction
	skipped := 0
	for i, tx := range txs {
		if a.ledger.Has(tx.ID) {
			skipped++
			continue
		}
		tx.RuleID = ""
		if err := ledger.ValidateTransaction(tx, a.accounts); err != nil {
			return nil, 0, fmt.Errorf("record %d (%s): %w", i+1, tx.ID, err)
		}
		todo = append(todo, tx)
	}
	if len(todo) == 0 {
		return nil, skipped, nil
	}

	added := make([]model.Transaction, 0, len(todo))
	for _, tx := range todo {
		stored, err := a.ledger.Add(tx)
		if err != nil {
			return added, skipped, err
		}
		added = append(added, stored)
	}
	return added, skipped, a.persist(ctx, "import", store.KeyLedger)
}

// UpdateTransaction edits a record. For a recurring occurrence the scope
// decides whether siblings and the rule template change too.
func (a *App) UpdateTransaction(ctx context.Context, txID string, patch model.TransactionPatch, scope model.Scope) ([]model.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.seriesScopeAllowed(txID, scope); err != nil {
		return nil, err
	}
	changed, err := a.rules.EditOccurrence(txID, patch, scope)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return nil, nil
	}
	return changed, a.persist(ctx, "tx-edit", store.KeyRules, store.KeyLedger)
}

// RemoveTransaction deletes a record with the given scope.
func (a *App) RemoveTransaction(ctx context.Context, txID string, scope model.Scope) ([]model.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.seriesScopeAllowed(txID, scope); err != nil {
		return nil, err
	}
	removed, err := a.rules.DeleteOccurrence(txID, scope)
	if err != nil {
		return removed, err
	}
	return removed, a.persist(ctx, "tx-remove", store.KeyRules, store.KeyLedger)
}

// Transaction returns a record by ID.
func (a *App) Transaction(txID string) (model.Transaction, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.Get(txID)
}

// Transactions returns every record ordered by date.
func (a *App) Transactions() []model.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.List()
}

// TransactionsBetween returns records dated start through end inclusive.
func (a *App) TransactionsBetween(start, end civil.Date) []model.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.ListByDateRange(start, end)
}

// CreateRule stores a recurring rule and materializes its anchor.
func (a *App) CreateRule(ctx context.Context, r model.Rule) (model.Rule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r.LiabilityID = ""
	created, err := a.rules.CreateRule(r)
	if err != nil {
		return model.Rule{}, err
	}
	return created, a.persist(ctx, "rule-create", store.KeyRules, store.KeyLedger)
}

// UpdateRule changes a rule's template or schedule in place.
func (a *App) UpdateRule(ctx context.Context, r model.Rule) (model.Rule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.notLinked(r.ID); err != nil {
		return model.Rule{}, err
	}
	updated, err := a.rules.UpdateRule(r)
	if err != nil {
		return model.Rule{}, err
	}
	return updated, a.persist(ctx, "rule-update", store.KeyRules)
}

// DeactivateRule stops a rule from generating further occurrences.
func (a *App) DeactivateRule(ctx context.Context, ruleID string) (model.Rule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, err := a.rules.Deactivate(ruleID)
	if err != nil {
		return model.Rule{}, err
	}
	return r, a.persist(ctx, "rule-deactivate", store.KeyRules)
}

// ActivateRule resumes a deactivated rule from where it stopped.
func (a *App) ActivateRule(ctx context.Context, ruleID string) (model.Rule, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, err := a.rules.Activate(ruleID)
	if err != nil {
		return model.Rule{}, err
	}
	return r, a.persist(ctx, "rule-activate", store.KeyRules)
}

// DeleteRule removes a rule and every occurrence it materialized. Autopay
// rules belong to their liability and are removed with it.
func (a *App) DeleteRule(ctx context.Context, ruleID string) ([]model.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.notLinked(ruleID); err != nil {
		return nil, err
	}
	removed, err := a.rules.Delete(ruleID)
	if err != nil {
		return removed, err
	}
	return removed, a.persist(ctx, "rule-delete", store.KeyRules, store.KeyLedger)
}

func (a *App) notLinked(ruleID string) error {
	r, ok := a.rules.Get(ruleID)
	if !ok || r.LiabilityID == "" {
		return nil
	}
	name := r.LiabilityID
	if l, ok := a.liabilities.Get(r.LiabilityID); ok {
		name = l.Name
	}
	return model.ValidationErrors{{Field: "rule", Description: fmt.Sprintf("rule %s is managed by liability %s", ruleID, name)}}
}

// seriesScopeAllowed refuses future and all scopes on autopay payments.
// Those would change or drop the rule behind the liability's back; the
// terms are edited with SyncLiability and removed with DeleteLiability.
func (a *App) seriesScopeAllowed(txID string, scope model.Scope) error {
	if scope == model.ScopeSingle {
		return nil
	}
	tx, ok := a.ledger.Get(txID)
	if !ok || tx.RuleID == "" {
		return nil
	}
	r, ok := a.rules.Get(tx.RuleID)
	if !ok || r.LiabilityID == "" {
		return nil
	}
	name := r.LiabilityID
	if l, ok := a.liabilities.Get(r.LiabilityID); ok {
		name = l.Name
	}
	return model.ValidationErrors{{
		Field:       "scope",
		Description: fmt.Sprintf("%s is an autopay payment of liability %s; only scope single applies (change its terms with liability sync, or remove it with liability delete)", txID, name),
	}}
}

// Rule returns a rule by ID.
func (a *App) Rule(ruleID string) (model.Rule, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rules.Get(ruleID)
}

// Rules returns every rule ordered by creation time.
func (a *App) Rules() []model.Rule {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rules.Rules()
}

// MaterializeDue writes every occurrence due on or before asOf.
func (a *App) MaterializeDue(ctx context.Context, asOf civil.Date) ([]model.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	created, err := a.rules.MaterializeDue(asOf)
	if err != nil {
		return created, err
	}
	if len(created) == 0 {
		return nil, nil
	}
	return created, a.persist(ctx, "materialize", store.KeyRules, store.KeyLedger)
}

// PreviewFuture returns a lazy preview of a rule's upcoming dates. A
// horizon of zero uses the configured default.
func (a *App) PreviewFuture(ruleID string, horizonMonths int) (*recurring.Preview, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.rules.Get(ruleID)
	if !ok {
		return nil, model.NotFound("rule", ruleID)
	}
	if horizonMonths <= 0 {
		horizonMonths = a.previewMonths
	}
	return a.rules.PreviewFuture(r, horizonMonths), nil
}

// AddAccount registers an asset account. An empty ID is filled in.
func (a *App) AddAccount(ctx context.Context, acct model.Account) (model.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if acct.ID == "" {
		acct.ID = id.New(id.PrefixAccount)
	}
	if acct.Class == "" {
		acct.Class = model.ClassAsset
	}
	if acct.Class == model.ClassLiability {
		return model.Account{}, model.ValidationErrors{{Field: "class", Description: "liability accounts are created through liabilities"}}
	}
	acct.CreatedAt = a.clock.Now()
	if err := a.accounts.Add(acct); err != nil {
		return model.Account{}, err
	}
	return acct, a.persist(ctx, "account-add", store.KeyAccounts)
}

// RenameAccount changes an account's display name. A liability account is
// renamed through its liability so the two stay in step.
func (a *App) RenameAccount(ctx context.Context, accountID, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if l, ok := a.liabilities.Get(accountID); ok {
		l.Name = name
		if _, err := a.liabilities.Sync(l); err != nil {
			return err
		}
		return a.persist(ctx, "account-rename", store.KeyAccounts, store.KeyLiabilities, store.KeyRules, store.KeyLedger)
	}
	if err := a.accounts.Rename(accountID, name); err != nil {
		return err
	}
	return a.persist(ctx, "account-rename", store.KeyAccounts)
}

// SetAccountBase changes an asset account's stored base value. Current
// values follow without any ledger event.
func (a *App) SetAccountBase(ctx context.Context, accountID string, base decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.liabilities.Get(accountID); ok {
		return model.ValidationErrors{{Field: "account", Description: "set a liability's balance through the liability"}}
	}
	if err := a.accounts.SetBase(accountID, base); err != nil {
		return err
	}
	return a.persist(ctx, "account-base", store.KeyAccounts)
}

// LookupAccount resolves an account ID or display name.
func (a *App) LookupAccount(ref string) (model.Account, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accounts.Lookup(ref)
}

// Balances returns every account with its current value.
func (a *App) Balances() []balances.Balance {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances.Balances()
}

// Balance returns one account's current value.
func (a *App) Balance(accountID string) (decimal.Decimal, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances.Current(accountID)
}

// Recompute rebuilds one account's value from the full ledger and reports
// any drift it repaired.
func (a *App) Recompute(accountID string) (balances.Drift, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balances.Recompute(accountID)
}

// ForceRefresh retries pending writes, then asks every subscriber to rebuild
// its derived view. It returns the drift found before the rebuild.
func (a *App) ForceRefresh(ctx context.Context) ([]balances.Drift, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.persist(ctx, "refresh")
	drifts := a.balances.Check()
	a.bus.Publish(events.Event{Type: events.ForceRefreshAll})
	a.log.Info().Int("drifted", len(drifts)).Msg("force refresh")
	return drifts, err
}

// SyncLiability creates or updates a liability and its autopay rule.
func (a *App) SyncLiability(ctx context.Context, l model.Liability) (model.Liability, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	synced, err := a.liabilities.Sync(l)
	if err != nil {
		return model.Liability{}, err
	}
	return synced, a.persist(ctx, "liability-sync", store.KeyAccounts, store.KeyLiabilities, store.KeyRules, store.KeyLedger)
}

// DeleteLiability removes a liability with its autopay rule and payments.
func (a *App) DeleteLiability(ctx context.Context, liabilityID string) ([]model.Transaction, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed, err := a.liabilities.Delete(liabilityID)
	if err != nil {
		return removed, err
	}
	return removed, a.persist(ctx, "liability-delete", store.KeyAccounts, store.KeyLiabilities, store.KeyRules, store.KeyLedger)
}

// Liability returns a liability by ID.
func (a *App) Liability(liabilityID string) (model.Liability, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liabilities.Get(liabilityID)
}

// Liabilities returns every liability ordered by name.
func (a *App) Liabilities() []model.Liability {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.liabilities.List()
}

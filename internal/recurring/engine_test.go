package recurring

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"

	"github.com/tallyfi/tally/internal/accounts"
	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/events"
	"github.com/tallyfi/tally/internal/ledger"
	"github.com/tallyfi/tally/internal/model"
)

func date(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

type fixture struct {
	ledger   *ledger.Service
	engine   *Engine
	recorder *events.Recorder
}

func newFixture(t *testing.T, today civil.Date) *fixture {
	t.Helper()
	bus := events.NewBus()
	accts := accounts.NewService([]model.Account{
		{ID: "acct_checking", Name: "Checking", Class: model.ClassAsset},
		{ID: "acct_savings", Name: "Savings", Class: model.ClassAsset},
	})
	clock := calendar.FixedDate(today)
	led := ledger.NewService(accts, bus, clock, zerolog.Nop())
	rec := &events.Recorder{}
	rec.Attach(bus)
	return &fixture{
		ledger:   led,
		engine:   NewEngine(led, accts, bus, clock, zerolog.Nop()),
		recorder: rec,
	}
}

func rent(start civil.Date, max int) model.Rule {
	return model.Rule{
		Template: model.Template{
			Amount:    dec("100"),
			Kind:      model.KindExpense,
			Category:  "Rent",
			AccountID: "acct_checking",
		},
		Frequency:      calendar.Monthly,
		Start:          start,
		MaxOccurrences: max,
	}
}

func dates(txs []model.Transaction) []civil.Date {
	out := make([]civil.Date, len(txs))
	for i, tx := range txs {
		out[i] = tx.Date
	}
	return out
}

func TestCreateRuleMaterializesAnchor(t *testing.T) {
	f := newFixture(t, date(2024, 1, 1))

	r, err := f.engine.CreateRule(rent(date(2024, 3, 10), 0))
	require.NoError(t, err)
	assert.True(t, r.Active)
	assert.Equal(t, 1, r.Materialized)

	occ := f.ledger.ByRule(r.ID)
	require.Len(t, occ, 1)
	assert.Equal(t, r.ID+"#001", occ[0].ID)
	assert.Equal(t, date(2024, 3, 10), occ[0].Date, "anchor is materialized even when in the future")
	assert.Equal(t, []events.Type{events.LedgerChanged, events.RuleMaterialized}, f.recorder.Types())
}

func TestCreateRuleRejectsInvalid(t *testing.T) {
	f := newFixture(t, date(2024, 1, 1))

	bad := rent(date(2024, 1, 1), 0)
	bad.Frequency = "fortnightly"
	_, err := f.engine.CreateRule(bad)
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	unknown := rent(date(2024, 1, 1), 0)
	unknown.AccountID = "acct_missing"
	_, err = f.engine.CreateRule(unknown)
	assert.True(t, model.IsValidation(err))

	assert.Empty(t, f.engine.Rules())
	assert.Zero(t, f.ledger.Len())
	assert.Empty(t, f.recorder.Events())
}

func TestOccurrenceCapAcrossMaterializedAndPreview(t *testing.T) {
	f := newFixture(t, date(2024, 2, 15))

	r, err := f.engine.CreateRule(rent(date(2024, 1, 1), 3))
	require.NoError(t, err)

	created, err := f.engine.MaterializeDue(date(2024, 2, 15))
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{date(2024, 2, 1)}, dates(created))

	r, _ = f.engine.Get(r.ID)
	preview := f.engine.PreviewFuture(r, 12).All()
	assert.Equal(t, []civil.Date{date(2024, 3, 1)}, preview)

	combined := append(dates(f.ledger.ByRule(r.ID)), preview...)
	assert.Equal(t, []civil.Date{date(2024, 1, 1), date(2024, 2, 1), date(2024, 3, 1)}, combined)

	created, err = f.engine.MaterializeDue(date(2025, 6, 1))
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{date(2024, 3, 1)}, dates(created))

	r, _ = f.engine.Get(r.ID)
	assert.True(t, r.Exhausted())
	assert.Empty(t, f.engine.PreviewFuture(r, 24).All())
	assert.Len(t, f.ledger.ByRule(r.ID), 3)
}

func TestMonthEndAnchorDoesNotRatchet(t *testing.T) {
	f := newFixture(t, date(2024, 1, 31))

	r, err := f.engine.CreateRule(rent(date(2024, 1, 31), 0))
	require.NoError(t, err)
	_, err = f.engine.MaterializeDue(date(2024, 5, 31))
	require.NoError(t, err)

	assert.Equal(t, []civil.Date{
		date(2024, 1, 31), date(2024, 2, 29), date(2024, 3, 31), date(2024, 4, 30), date(2024, 5, 31),
	}, dates(f.ledger.ByRule(r.ID)))
}

func TestDueOccurrences(t *testing.T) {
	r := rent(date(2024, 1, 15), 0)
	r.Materialized = 1
	assert.Equal(t, []civil.Date{date(2024, 2, 15), date(2024, 3, 15)}, DueOccurrences(r, date(2024, 4, 14)))
	assert.Empty(t, DueOccurrences(r, date(2024, 2, 14)))

	weekly := rent(date(2024, 1, 1), 2)
	weekly.Frequency = calendar.Weekly
	assert.Equal(t, []civil.Date{date(2024, 1, 1), date(2024, 1, 8)}, DueOccurrences(weekly, date(2024, 12, 31)))
}

func TestMaterializeDueIsIdempotent(t *testing.T) {
	f := newFixture(t, date(2024, 3, 20))

	_, err := f.engine.CreateRule(rent(date(2024, 1, 15), 0))
	require.NoError(t, err)

	first, err := f.engine.MaterializeDue(date(2024, 3, 20))
	require.NoError(t, err)
	assert.Len(t, first, 2)

	f.recorder.Reset()
	again, err := f.engine.MaterializeDue(date(2024, 3, 20))
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Empty(t, f.recorder.Events())
}

// seriesJanToMar creates a monthly rule with Jan, Feb and Mar materialized.
func seriesJanToMar(t *testing.T, f *fixture) (model.Rule, []model.Transaction) {
	t.Helper()
	r, err := f.engine.CreateRule(rent(date(2024, 1, 15), 0))
	require.NoError(t, err)
	_, err = f.engine.MaterializeDue(date(2024, 3, 20))
	require.NoError(t, err)
	occ := f.ledger.ByRule(r.ID)
	require.Len(t, occ, 3)
	return r, occ
}

func TestDeleteScopes(t *testing.T) {
	t.Run("single", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		r, occ := seriesJanToMar(t, f)

		removed, err := f.engine.DeleteOccurrence(occ[1].ID, model.ScopeSingle)
		require.NoError(t, err)
		assert.Equal(t, []civil.Date{date(2024, 2, 15)}, dates(removed))

		got, _ := f.engine.Get(r.ID)
		assert.True(t, got.Active)

		_, err = f.engine.MaterializeDue(date(2024, 4, 20))
		require.NoError(t, err)
		assert.Equal(t, []civil.Date{date(2024, 1, 15), date(2024, 3, 15), date(2024, 4, 15)}, dates(f.ledger.ByRule(r.ID)))
	})

	t.Run("future", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		r, occ := seriesJanToMar(t, f)

		removed, err := f.engine.DeleteOccurrence(occ[1].ID, model.ScopeFuture)
		require.NoError(t, err)
		assert.Equal(t, []civil.Date{date(2024, 2, 15), date(2024, 3, 15)}, dates(removed))
		assert.Equal(t, []civil.Date{date(2024, 1, 15)}, dates(f.ledger.ByRule(r.ID)))

		got, ok := f.engine.Get(r.ID)
		require.True(t, ok)
		assert.False(t, got.Active)

		created, err := f.engine.MaterializeDue(date(2024, 12, 31))
		require.NoError(t, err)
		assert.Empty(t, created)
	})

	t.Run("future preserves earlier months", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		r, occ := seriesJanToMar(t, f)

		// Move Feb's occurrence to Feb 1; it is still in the target month.
		moved := date(2024, 2, 1)
		_, err := f.engine.EditOccurrence(occ[1].ID, model.TransactionPatch{Date: &moved}, model.ScopeSingle)
		require.NoError(t, err)

		_, err = f.engine.DeleteOccurrence(occ[2].ID, model.ScopeFuture)
		require.NoError(t, err)
		assert.Equal(t, []civil.Date{date(2024, 1, 15), date(2024, 2, 1)}, dates(f.ledger.ByRule(r.ID)))
	})

	t.Run("all", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		r, occ := seriesJanToMar(t, f)

		removed, err := f.engine.DeleteOccurrence(occ[1].ID, model.ScopeAll)
		require.NoError(t, err)
		assert.Len(t, removed, 3)
		assert.Empty(t, f.ledger.ByRule(r.ID))
		_, ok := f.engine.Get(r.ID)
		assert.False(t, ok)
	})

	t.Run("unknown record", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		_, err := f.engine.DeleteOccurrence("txn_missing", model.ScopeAll)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("standalone record ignores scope", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		tx, err := f.ledger.Add(model.Transaction{Amount: dec("5"), Kind: model.KindExpense, AccountID: "acct_checking", Date: date(2024, 3, 1)})
		require.NoError(t, err)

		removed, err := f.engine.DeleteOccurrence(tx.ID, model.ScopeFuture)
		require.NoError(t, err)
		assert.Len(t, removed, 1)
		assert.Zero(t, f.ledger.Len())
	})
}

func TestEditScopes(t *testing.T) {
	amount := dec("120")
	patch := model.TransactionPatch{Amount: &amount}

	t.Run("single", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		r, occ := seriesJanToMar(t, f)

		changed, err := f.engine.EditOccurrence(occ[1].ID, patch, model.ScopeSingle)
		require.NoError(t, err)
		require.Len(t, changed, 1)

		got, _ := f.engine.Get(r.ID)
		assert.True(t, got.Amount.Equal(dec("100")), "template untouched")
	})

	t.Run("future", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		r, occ := seriesJanToMar(t, f)

		changed, err := f.engine.EditOccurrence(occ[1].ID, patch, model.ScopeFuture)
		require.NoError(t, err)
		assert.Equal(t, []civil.Date{date(2024, 2, 15), date(2024, 3, 15)}, dates(changed))

		created, err := f.engine.MaterializeDue(date(2024, 4, 20))
		require.NoError(t, err)
		require.Len(t, created, 1)

		var amounts []string
		for _, tx := range f.ledger.ByRule(r.ID) {
			amounts = append(amounts, tx.Amount.String())
		}
		assert.Equal(t, []string{"100", "120", "120", "120"}, amounts)
	})

	t.Run("all", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		r, occ := seriesJanToMar(t, f)

		changed, err := f.engine.EditOccurrence(occ[2].ID, patch, model.ScopeAll)
		require.NoError(t, err)
		assert.Len(t, changed, 3)
		for _, tx := range f.ledger.ByRule(r.ID) {
			assert.True(t, tx.Amount.Equal(amount))
		}
	})

	t.Run("date edits are single only", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		_, occ := seriesJanToMar(t, f)

		d := date(2024, 2, 20)
		_, err := f.engine.EditOccurrence(occ[1].ID, model.TransactionPatch{Date: &d}, model.ScopeFuture)
		assert.True(t, model.IsValidation(err))
		assert.Equal(t, date(2024, 2, 15), f.ledger.ByRule(occ[1].RuleID)[1].Date)
	})

	t.Run("invalid patch changes nothing", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 20))
		r, occ := seriesJanToMar(t, f)

		missing := "acct_missing"
		_, err := f.engine.EditOccurrence(occ[0].ID, model.TransactionPatch{AccountID: &missing}, model.ScopeAll)
		assert.True(t, model.IsValidation(err))
		got, _ := f.engine.Get(r.ID)
		assert.Equal(t, "acct_checking", got.AccountID)
	})
}

func TestDeactivateAndActivate(t *testing.T) {
	f := newFixture(t, date(2024, 3, 20))
	r, err := f.engine.CreateRule(rent(date(2024, 1, 15), 0))
	require.NoError(t, err)

	_, err = f.engine.Deactivate(r.ID)
	require.NoError(t, err)
	created, err := f.engine.MaterializeDue(date(2024, 3, 20))
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Len(t, f.ledger.ByRule(r.ID), 1, "history kept")

	got, _ := f.engine.Get(r.ID)
	assert.Empty(t, f.engine.PreviewFuture(got, 12).All())

	_, err = f.engine.Activate(r.ID)
	require.NoError(t, err)
	created, err = f.engine.MaterializeDue(date(2024, 3, 20))
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{date(2024, 2, 15), date(2024, 3, 15)}, dates(created))

	_, err = f.engine.Deactivate("rule_missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.engine.Delete("rule_missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateRule(t *testing.T) {
	t.Run("unchanged is a no-op", func(t *testing.T) {
		f := newFixture(t, date(2024, 1, 31))
		r, err := f.engine.CreateRule(rent(date(2024, 1, 31), 0))
		require.NoError(t, err)

		got, err := f.engine.UpdateRule(r)
		require.NoError(t, err)
		assert.Equal(t, r, got)
	})

	t.Run("schedule change skips materialized dates", func(t *testing.T) {
		f := newFixture(t, date(2024, 3, 31))
		r, err := f.engine.CreateRule(rent(date(2024, 1, 31), 0))
		require.NoError(t, err)
		_, err = f.engine.MaterializeDue(date(2024, 3, 31))
		require.NoError(t, err)

		r, _ = f.engine.Get(r.ID)
		r.Start = date(2024, 1, 15)
		r.Amount = dec("80")
		updated, err := f.engine.UpdateRule(r)
		require.NoError(t, err)
		assert.Equal(t, 3, updated.Materialized)

		created, err := f.engine.MaterializeDue(date(2024, 4, 30))
		require.NoError(t, err)
		require.Len(t, created, 1)
		assert.Equal(t, date(2024, 4, 15), created[0].Date)
		assert.True(t, created[0].Amount.Equal(dec("80")))
		assert.Len(t, f.ledger.ByRule(r.ID), 4)
	})

	t.Run("unknown rule", func(t *testing.T) {
		f := newFixture(t, date(2024, 1, 1))
		_, err := f.engine.UpdateRule(rent(date(2024, 1, 1), 0))
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestPreviewIsLazyAndRestartable(t *testing.T) {
	f := newFixture(t, date(2024, 1, 10))
	r, err := f.engine.CreateRule(rent(date(2024, 1, 10), 0))
	require.NoError(t, err)

	p := f.engine.PreviewFuture(r, 3)
	first, err := p.Next()
	require.NoError(t, err)
	assert.Equal(t, date(2024, 2, 10), first)

	all := p.All()
	assert.Equal(t, []civil.Date{date(2024, 2, 10), date(2024, 3, 10), date(2024, 4, 10)}, all)
	assert.Equal(t, all, p.All())

	for range all {
		_, err := p.Next()
		require.NoError(t, err)
	}
	_, err = p.Next()
	assert.Equal(t, iterator.Done, err)
	_, err = p.Next()
	assert.Equal(t, iterator.Done, err)

	assert.Empty(t, f.ledger.ListByDateRange(date(2024, 2, 1), date(2024, 12, 31)), "preview writes nothing")
	assert.Len(t, f.engine.PreviewFuture(r, 0).All(), DefaultPreviewMonths)
}

func TestPreviewSkipsDueOccurrences(t *testing.T) {
	f := newFixture(t, date(2024, 4, 10))
	r, err := f.engine.CreateRule(rent(date(2024, 1, 10), 6))
	require.NoError(t, err)

	// Feb through Apr are due but not yet written.
	got := f.engine.PreviewFuture(r, 3).All()
	assert.Equal(t, []civil.Date{date(2024, 5, 10), date(2024, 6, 10)}, got, "the cap of six still counts the due dates")

	created, err := f.engine.MaterializeDue(date(2024, 4, 10))
	require.NoError(t, err)
	assert.Len(t, created, 3)
	r, _ = f.engine.Get(r.ID)
	assert.Equal(t, got, f.engine.PreviewFuture(r, 3).All())
}

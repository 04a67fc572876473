package liabilities

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfi/tally/internal/accounts"
	"github.com/tallyfi/tally/internal/balances"
	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/events"
	"github.com/tallyfi/tally/internal/ledger"
	"github.com/tallyfi/tally/internal/model"
	"github.com/tallyfi/tally/internal/recurring"
)

func date(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

type fixture struct {
	accounts *accounts.Service
	ledger   *ledger.Service
	engine   *recurring.Engine
	sync     *balances.Synchronizer
	linker   *Linker
	recorder *events.Recorder
}

func newFixture(t *testing.T, today civil.Date) *fixture {
	t.Helper()
	bus := events.NewBus()
	clock := calendar.FixedDate(today)
	accts := accounts.NewService([]model.Account{
		{ID: "acct_checking", Name: "Checking", Class: model.ClassAsset, Base: dec("20000")},
	})
	led := ledger.NewService(accts, bus, clock, zerolog.Nop())
	sync := balances.New(accts, led, zerolog.Nop())
	sync.Attach(bus)
	engine := recurring.NewEngine(led, accts, bus, clock, zerolog.Nop())
	rec := &events.Recorder{}
	rec.Attach(bus, events.LiabilityLinked, events.LiabilityUnlinked)
	return &fixture{
		accounts: accts,
		ledger:   led,
		engine:   engine,
		sync:     sync,
		linker:   NewLinker(accts, engine, led, bus, clock, zerolog.Nop()),
		recorder: rec,
	}
}

func carLoan() model.Liability {
	return model.Liability{
		ID:               "liab_car",
		Name:             "Car Loan",
		Balance:          dec("30000"),
		MonthlyPayment:   dec("5000"),
		PaymentAccountID: "acct_checking",
		PaymentDay:       31,
		StartDate:        date(2024, 1, 31),
	}
}

func (f *fixture) activeRulesFor(liabilityID string) []model.Rule {
	var out []model.Rule
	for _, r := range f.engine.Rules() {
		if r.LiabilityID == liabilityID && r.Active {
			out = append(out, r)
		}
	}
	return out
}

func (f *fixture) value(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	v, ok := f.sync.Current(accountID)
	require.True(t, ok)
	return v
}

func TestCarLoanEndToEnd(t *testing.T) {
	f := newFixture(t, date(2024, 1, 31))

	l, err := f.linker.Sync(carLoan())
	require.NoError(t, err)
	require.NotEmpty(t, l.RuleID)

	r, ok := f.engine.Get(l.RuleID)
	require.True(t, ok)
	assert.Equal(t, calendar.Monthly, r.Frequency)
	assert.Equal(t, model.DebtPaymentCategory, r.Category)
	assert.Equal(t, "acct_checking", r.AccountID)
	assert.Equal(t, "liab_car", r.ToAccountID)

	assert.True(t, f.value(t, "acct_checking").Equal(dec("15000")))
	assert.True(t, f.value(t, "liab_car").Equal(dec("25000")))

	_, err = f.engine.MaterializeDue(date(2024, 3, 31))
	require.NoError(t, err)

	payments := f.ledger.ByAccount("acct_checking")
	var got []civil.Date
	running := dec("20000")
	wantBalances := []string{"15000", "10000", "5000"}
	for i, tx := range payments {
		got = append(got, tx.Date)
		running = running.Sub(tx.Amount)
		assert.True(t, running.Equal(dec(wantBalances[i])), "after %s", tx.Date)
	}
	assert.Equal(t, []civil.Date{date(2024, 1, 31), date(2024, 2, 29), date(2024, 3, 31)}, got)
	assert.True(t, f.value(t, "acct_checking").Equal(dec("5000")))
	assert.True(t, f.value(t, "liab_car").Equal(dec("15000")))
	assert.Empty(t, f.sync.Check())
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t, date(2024, 1, 31))

	first, err := f.linker.Sync(carLoan())
	require.NoError(t, err)
	second, err := f.linker.Sync(carLoan())
	require.NoError(t, err)

	assert.Equal(t, first.RuleID, second.RuleID)
	assert.Len(t, f.activeRulesFor("liab_car"), 1)
	assert.Len(t, f.engine.Rules(), 1)
	assert.Equal(t, 1, f.ledger.Len())
	assert.Equal(t, []events.Type{events.LiabilityLinked}, f.recorder.Types())
}

func TestSyncUpdatesLinkedRuleInPlace(t *testing.T) {
	f := newFixture(t, date(2024, 1, 31))
	l, err := f.linker.Sync(carLoan())
	require.NoError(t, err)

	changed := carLoan()
	changed.MonthlyPayment = dec("4500")
	updated, err := f.linker.Sync(changed)
	require.NoError(t, err)
	assert.Equal(t, l.RuleID, updated.RuleID)

	r, _ := f.engine.Get(l.RuleID)
	assert.True(t, r.Amount.Equal(dec("4500")))
	assert.Len(t, f.engine.Rules(), 1)

	created, err := f.engine.MaterializeDue(date(2024, 2, 29))
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.True(t, created[0].Amount.Equal(dec("4500")))
}

func TestRemovingTermsDeactivatesAndRestoringReactivates(t *testing.T) {
	f := newFixture(t, date(2024, 1, 31))
	l, err := f.linker.Sync(carLoan())
	require.NoError(t, err)

	noTerms := carLoan()
	noTerms.PaymentDay = 0
	unlinked, err := f.linker.Sync(noTerms)
	require.NoError(t, err)
	assert.Equal(t, l.RuleID, unlinked.RuleID, "link is kept while deactivated")
	assert.Empty(t, f.activeRulesFor("liab_car"))
	assert.Equal(t, 1, f.ledger.Len(), "history kept")

	created, err := f.engine.MaterializeDue(date(2024, 4, 30))
	require.NoError(t, err)
	assert.Empty(t, created)

	relinked, err := f.linker.Sync(carLoan())
	require.NoError(t, err)
	assert.Equal(t, l.RuleID, relinked.RuleID)
	assert.Len(t, f.activeRulesFor("liab_car"), 1)
	assert.Equal(t, []events.Type{events.LiabilityLinked, events.LiabilityUnlinked, events.LiabilityLinked}, f.recorder.Types())
}

func TestSyncWithoutTermsCreatesNoRule(t *testing.T) {
	f := newFixture(t, date(2024, 5, 2))

	l, err := f.linker.Sync(model.Liability{Name: "Credit Card", Balance: dec("800")})
	require.NoError(t, err)
	assert.NotEmpty(t, l.ID)
	assert.Empty(t, l.RuleID)
	assert.Equal(t, date(2024, 5, 2), l.StartDate)
	assert.Empty(t, f.engine.Rules())

	acct, ok := f.accounts.Get(l.ID)
	require.True(t, ok)
	assert.Equal(t, model.ClassLiability, acct.Class)
	assert.True(t, f.value(t, l.ID).Equal(dec("800")))
}

func TestSyncRejectsUnknownPaymentAccount(t *testing.T) {
	f := newFixture(t, date(2024, 1, 31))

	bad := carLoan()
	bad.PaymentAccountID = "acct_missing"
	_, err := f.linker.Sync(bad)
	assert.True(t, model.IsValidation(err))
	assert.False(t, f.accounts.Exists("liab_car"))
	assert.Empty(t, f.linker.List())
	assert.Empty(t, f.recorder.Events())
}

func TestDeleteCascadesToRuleAndOccurrences(t *testing.T) {
	f := newFixture(t, date(2024, 3, 31))
	l, err := f.linker.Sync(carLoan())
	require.NoError(t, err)
	_, err = f.engine.MaterializeDue(date(2024, 3, 31))
	require.NoError(t, err)
	require.Equal(t, 3, f.ledger.Len())

	removed, err := f.linker.Delete(l.ID)
	require.NoError(t, err)
	assert.Len(t, removed, 3)
	assert.Zero(t, f.ledger.Len())
	_, ok := f.engine.Get(l.RuleID)
	assert.False(t, ok)
	assert.False(t, f.accounts.Exists(l.ID))
	assert.True(t, f.value(t, "acct_checking").Equal(dec("20000")))

	_, err = f.linker.Delete(l.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteRefusesWhileManualRecordsReferenceAccount(t *testing.T) {
	f := newFixture(t, date(2024, 1, 31))
	l, err := f.linker.Sync(carLoan())
	require.NoError(t, err)

	_, err = f.ledger.Add(model.Transaction{Amount: dec("50"), Kind: model.KindExpense, Category: "Fees", AccountID: l.ID, Date: date(2024, 2, 1)})
	require.NoError(t, err)

	_, err = f.linker.Delete(l.ID)
	assert.True(t, model.IsValidation(err))
	_, ok := f.linker.Get(l.ID)
	assert.True(t, ok)
	assert.Equal(t, 2, f.ledger.Len())
}

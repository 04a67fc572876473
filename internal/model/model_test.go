package model

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfi/tally/internal/calendar"
)

func date(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name   string
		tx     Transaction
		fields []string
	}{
		{
			name: "valid expense",
			tx:   Transaction{Amount: dec("12.50"), Kind: KindExpense, AccountID: "acct_a", Date: date(2024, 1, 1)},
		},
		{
			name: "valid transfer",
			tx:   Transaction{Amount: dec("100"), Kind: KindTransfer, AccountID: "acct_a", ToAccountID: "acct_b", Date: date(2024, 1, 1)},
		},
		{
			name:   "transfer missing destination",
			tx:     Transaction{Amount: dec("100"), Kind: KindTransfer, AccountID: "acct_a", Date: date(2024, 1, 1)},
			fields: []string{"to_account"},
		},
		{
			name:   "transfer to itself",
			tx:     Transaction{Amount: dec("100"), Kind: KindTransfer, AccountID: "acct_a", ToAccountID: "acct_a", Date: date(2024, 1, 1)},
			fields: []string{"to_account"},
		},
		{
			name:   "income with two accounts",
			tx:     Transaction{Amount: dec("1"), Kind: KindIncome, AccountID: "acct_a", ToAccountID: "acct_b", Date: date(2024, 1, 1)},
			fields: []string{"to_account"},
		},
		{
			name:   "everything wrong",
			tx:     Transaction{Amount: dec("-1"), Kind: "gift"},
			fields: []string{"amount", "kind", "account", "date"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if len(tt.fields) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			var got []string
			for _, ve := range err.(ValidationErrors) {
				got = append(got, ve.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}
}

func TestPatchApply(t *testing.T) {
	tx := Transaction{ID: "txn_1", Amount: dec("10"), Kind: KindTransfer, AccountID: "a", ToAccountID: "b", Category: "Move"}
	expense := KindExpense
	amount := dec("15")

	got := TransactionPatch{Kind: &expense, Amount: &amount}.Apply(tx)
	assert.Equal(t, KindExpense, got.Kind)
	assert.True(t, got.Amount.Equal(amount))
	assert.Empty(t, got.ToAccountID, "changing away from transfer drops the destination")
	assert.Equal(t, "Move", got.Category)
	assert.Equal(t, "txn_1", got.ID)
	assert.True(t, TransactionPatch{}.Empty())
}

func TestRuleOccurrenceAndCap(t *testing.T) {
	r := Rule{
		Template:       Template{Amount: dec("5"), Kind: KindExpense, AccountID: "a"},
		Frequency:      calendar.Monthly,
		Start:          date(2024, 1, 31),
		MaxOccurrences: 3,
	}
	assert.Equal(t, date(2024, 2, 29), r.Occurrence(1))
	assert.Equal(t, date(2024, 3, 31), r.Occurrence(2))
	assert.False(t, r.Capped(2))
	assert.True(t, r.Capped(3))
	assert.Equal(t, 3, r.Remaining())

	r.Materialized = 3
	assert.True(t, r.Exhausted())
	assert.Equal(t, 0, r.Remaining())

	r.MaxOccurrences = 0
	assert.Equal(t, -1, r.Remaining())
	assert.False(t, r.Exhausted())
}

func TestRuleAnchorDay(t *testing.T) {
	r := Rule{Frequency: calendar.Monthly, Start: date(2024, 2, 29), DayOfMonth: 31}
	assert.Equal(t, 31, r.AnchorDay())
	assert.Equal(t, date(2024, 3, 31), r.Occurrence(1))

	r.DayOfMonth = 0
	assert.Equal(t, 29, r.AnchorDay())
}

func TestRuleValidate(t *testing.T) {
	r := Rule{
		Template:  Template{Amount: dec("5"), Kind: KindTransfer, AccountID: "a"},
		Frequency: "hourly",
	}
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "to_account")
	assert.Contains(t, err.Error(), "frequency")
	assert.Contains(t, err.Error(), "start")
}

func TestTemplatePatchIgnoresDate(t *testing.T) {
	tmpl := Template{Amount: dec("5"), Kind: KindExpense, AccountID: "a", Category: "Rent"}
	cat := "Housing"
	d := date(2030, 1, 1)
	got := tmpl.Patch(TransactionPatch{Category: &cat, Date: &d})
	assert.Equal(t, "Housing", got.Category)
	assert.True(t, got.Amount.Equal(dec("5")))
	assert.False(t, got.Equal(tmpl))
}

func TestLiabilityTerms(t *testing.T) {
	l := Liability{ID: "liab_1", Name: "Car Loan", MonthlyPayment: dec("5000"), PaymentAccountID: "acct_checking", PaymentDay: 31}
	require.NoError(t, l.Validate())
	assert.True(t, l.HasPaymentTerms())

	assert.Equal(t, date(2024, 1, 31), l.FirstPayment(date(2024, 1, 31)))
	assert.Equal(t, date(2024, 2, 29), l.FirstPayment(date(2024, 2, 1)))
	l.PaymentDay = 5
	assert.Equal(t, date(2024, 3, 5), l.FirstPayment(date(2024, 2, 6)))

	tmpl := l.PaymentTemplate()
	assert.Equal(t, KindTransfer, tmpl.Kind)
	assert.Equal(t, "acct_checking", tmpl.AccountID)
	assert.Equal(t, "liab_1", tmpl.ToAccountID)

	l.PaymentAccountID = ""
	assert.False(t, l.HasPaymentTerms())
}

func TestAccountValue(t *testing.T) {
	asset := Account{Class: ClassAsset, Base: dec("100")}
	debt := Account{Class: ClassLiability, Base: dec("100")}
	assert.True(t, asset.Value(dec("25")).Equal(dec("125")))
	assert.True(t, debt.Value(dec("25")).Equal(dec("75")))
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("FUTURE")
	require.NoError(t, err)
	assert.Equal(t, ScopeFuture, s)
	_, err = ParseScope("some")
	require.Error(t, err)
}

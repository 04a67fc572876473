package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/model"
)

func date(y, m, d int) civil.Date {
	return civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

var stamp = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func sampleSnapshot() model.Snapshot {
	return model.Snapshot{
		Accounts: []model.Account{
			{ID: "acct_checking", Name: "Checking", Class: model.ClassAsset, Base: dec("1000.50"), CreatedAt: stamp},
			{ID: "liab_car", Name: "Car Loan", Class: model.ClassLiability, Base: dec("30000")},
		},
		Liabilities: []model.Liability{
			{
				ID: "liab_car", Name: "Car Loan", Balance: dec("30000"), MonthlyPayment: dec("5000"),
				PaymentAccountID: "acct_checking", PaymentDay: 31, StartDate: date(2024, 1, 31),
				RuleID: "rule_car", UpdatedAt: stamp,
			},
			{ID: "liab_card", Name: "Card", Balance: dec("12.34")},
		},
		Rules: []model.Rule{
			{
				ID: "rule_car",
				Template: model.Template{
					Amount: dec("5000"), Kind: model.KindTransfer, Category: model.DebtPaymentCategory,
					AccountID: "acct_checking", ToAccountID: "liab_car", Note: "Car Loan payment",
				},
				Frequency: calendar.Monthly, Start: date(2024, 1, 31), DayOfMonth: 31,
				Materialized: 3, Active: true, LiabilityID: "liab_car", CreatedAt: stamp, UpdatedAt: stamp,
			},
			{
				ID:             "rule_gym",
				Template:       model.Template{Amount: dec("29.99"), Kind: model.KindExpense, Category: "Health", AccountID: "acct_checking"},
				Frequency:      calendar.Weekly,
				Start:          date(2024, 2, 5),
				MaxOccurrences: 10,
				Materialized:   4,
			},
		},
		Transactions: []model.Transaction{
			{
				ID: "rule_car#001", Amount: dec("5000"), Kind: model.KindTransfer, Category: model.DebtPaymentCategory,
				AccountID: "acct_checking", ToAccountID: "liab_car", Date: date(2024, 1, 31), RuleID: "rule_car",
				Note: "payment, with \"quotes\"", CreatedAt: stamp, UpdatedAt: stamp,
			},
			{ID: "txn_1", Amount: dec("0.01"), Kind: model.KindIncome, AccountID: "acct_checking", Date: date(2024, 2, 29)},
		},
	}
}

func assertSnapshotsEqual(t *testing.T, want, got model.Snapshot) {
	t.Helper()
	require.Len(t, got.Accounts, len(want.Accounts))
	for i := range want.Accounts {
		w, g := want.Accounts[i], got.Accounts[i]
		assert.True(t, w.Base.Equal(g.Base), "account %s base", w.ID)
		w.Base, g.Base = decimal.Zero, decimal.Zero
		assert.Equal(t, w, g)
	}

	require.Len(t, got.Liabilities, len(want.Liabilities))
	for i := range want.Liabilities {
		w, g := want.Liabilities[i], got.Liabilities[i]
		assert.True(t, w.Balance.Equal(g.Balance))
		assert.True(t, w.MonthlyPayment.Equal(g.MonthlyPayment))
		w.Balance, g.Balance = decimal.Zero, decimal.Zero
		w.MonthlyPayment, g.MonthlyPayment = decimal.Zero, decimal.Zero
		assert.Equal(t, w, g)
	}

	require.Len(t, got.Rules, len(want.Rules))
	for i := range want.Rules {
		w, g := want.Rules[i], got.Rules[i]
		assert.True(t, w.Amount.Equal(g.Amount))
		w.Amount, g.Amount = decimal.Zero, decimal.Zero
		assert.Equal(t, w, g)
	}

	require.Len(t, got.Transactions, len(want.Transactions))
	for i := range want.Transactions {
		w, g := want.Transactions[i], got.Transactions[i]
		assert.True(t, w.Amount.Equal(g.Amount))
		w.Amount, g.Amount = decimal.Zero, decimal.Zero
		assert.Equal(t, w, g)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	backends := map[string]Blobs{
		"file":   FileBlobs{Dir: filepath.Join(t.TempDir(), "data")},
		"memory": NewMemBlobs(),
	}
	for name, blobs := range backends {
		t.Run(name, func(t *testing.T) {
			s := New(blobs)
			want := sampleSnapshot()
			require.NoError(t, s.Save(ctx, want, Keys...))

			got, err := s.Load(ctx)
			require.NoError(t, err)
			assertSnapshotsEqual(t, want, got)
		})
	}
}

func TestLoadMissingBlobsIsEmpty(t *testing.T) {
	snap, err := New(FileBlobs{Dir: t.TempDir()}).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Empty())
}

func TestSaveReportsFailedKeys(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemBlobs()
	boom := errors.New("disk full")
	blobs.Fail[KeyLedger] = boom

	err := New(blobs).Save(ctx, sampleSnapshot(), KeyAccounts, KeyLedger)
	require.Error(t, err)

	var saveErr *SaveError
	require.True(t, errors.As(err, &saveErr))
	assert.Equal(t, []string{KeyLedger}, saveErr.Keys)
	assert.ErrorIs(t, err, boom)

	_, ok := blobs.Data[KeyAccounts]
	assert.True(t, ok, "other keys are still written")
}

func TestFileBlobsLayout(t *testing.T) {
	dir := t.TempDir()
	b := FileBlobs{Dir: dir}
	require.NoError(t, b.Put(context.Background(), KeyRules, []byte("x")))

	data, err := os.ReadFile(filepath.Join(dir, "rules.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	_, err = b.Get(context.Background(), KeyLedger)
	assert.ErrorIs(t, err, ErrNoBlob)
}

func TestTransactionCSVHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTransactions(&buf, nil))
	assert.Equal(t, strings.Join(TransactionHeader, ",")+"\n", buf.String())

	got, err := ReadTransactions(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnmarshalErrors(t *testing.T) {
	row := MarshalTransaction(sampleSnapshot().Transactions[0])

	short := row[:3]
	_, err := UnmarshalTransaction(short)
	assert.Error(t, err)

	badDate := append([]string(nil), row...)
	badDate[colTxDate] = "2024-02-30x"
	_, err = UnmarshalTransaction(badDate)
	assert.Error(t, err)

	badKind := append([]string(nil), row...)
	badKind[colTxKind] = "refund"
	_, err = UnmarshalTransaction(badKind)
	assert.Error(t, err)

	rule := MarshalRule(sampleSnapshot().Rules[0])
	rule[colRuleFrequency] = "hourly"
	_, err = UnmarshalRule(rule)
	assert.Error(t, err)

	acct := MarshalAccount(sampleSnapshot().Accounts[0])
	acct[colAcctClass] = "equity"
	_, err = UnmarshalAccount(acct)
	assert.Error(t, err)
}

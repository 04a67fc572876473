package accounts

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyfi/tally/internal/model"
)

func testAccounts() []model.Account {
	return []model.Account{
		{ID: "acct_checking", Name: "Checking", Class: model.ClassAsset, Base: decimal.NewFromInt(1000)},
		{ID: "acct_savings", Name: "Savings", Class: model.ClassAsset},
		{ID: "liab_car", Name: "Car Loan", Class: model.ClassLiability, Base: decimal.NewFromInt(20000)},
	}
}

func TestNewService(t *testing.T) {
	svc := NewService(testAccounts())
	assert.Len(t, svc.All(), 3)
}

func TestGetExists(t *testing.T) {
	svc := NewService(testAccounts())

	acct, ok := svc.Get("acct_checking")
	assert.True(t, ok)
	assert.Equal(t, "Checking", acct.Name)

	_, ok = svc.Get("acct_missing")
	assert.False(t, ok)

	assert.True(t, svc.Exists("liab_car"))
	assert.False(t, svc.Exists("acct_missing"))
}

func TestByClass(t *testing.T) {
	svc := NewService(testAccounts())

	assets := svc.ByClass(model.ClassAsset)
	assert.Len(t, assets, 2)
	for _, a := range assets {
		assert.Equal(t, model.ClassAsset, a.Class)
	}
	assert.Len(t, svc.ByClass(model.ClassLiability), 1)
}

func TestLookup(t *testing.T) {
	svc := NewService(testAccounts())

	a, ok := svc.Lookup("checking")
	require.True(t, ok)
	assert.Equal(t, "acct_checking", a.ID)

	a, ok = svc.Lookup("acct_savings")
	require.True(t, ok)
	assert.Equal(t, "Savings", a.Name)

	_, ok = svc.Lookup("Brokerage")
	assert.False(t, ok)
}

func TestAdd(t *testing.T) {
	svc := NewService(testAccounts())

	require.NoError(t, svc.Add(model.Account{ID: "acct_cash", Name: "Cash", Class: model.ClassAsset}))
	assert.True(t, svc.Exists("acct_cash"))

	err := svc.Add(model.Account{ID: "acct_cash", Name: "Wallet", Class: model.ClassAsset})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))

	err = svc.Add(model.Account{ID: "acct_other", Name: "CHECKING", Class: model.ClassAsset})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already used")

	err = svc.Add(model.Account{ID: "acct_bad", Name: "Bad", Class: "equity"})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestRenameKeepsID(t *testing.T) {
	svc := NewService(testAccounts())

	require.NoError(t, svc.Rename("acct_checking", "Everyday"))
	a, ok := svc.Get("acct_checking")
	require.True(t, ok)
	assert.Equal(t, "Everyday", a.Name)

	_, ok = svc.Lookup("Checking")
	assert.False(t, ok)

	err := svc.Rename("acct_missing", "X")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	err = svc.Rename("acct_savings", "everyday")
	assert.True(t, model.IsValidation(err))
}

func TestUpsertAndRemove(t *testing.T) {
	svc := NewService(testAccounts())

	require.NoError(t, svc.Upsert(model.Account{ID: "liab_car", Name: "Auto Loan", Class: model.ClassLiability, Base: decimal.NewFromInt(19000)}))
	a, _ := svc.Get("liab_car")
	assert.Equal(t, "Auto Loan", a.Name)
	assert.True(t, a.Base.Equal(decimal.NewFromInt(19000)))
	assert.Len(t, svc.All(), 3)

	require.NoError(t, svc.Remove("acct_savings"))
	assert.False(t, svc.Exists("acct_savings"))
	assert.True(t, svc.Exists("liab_car"), "index rebuilt after removal")
	assert.ErrorIs(t, svc.Remove("acct_savings"), model.ErrNotFound)
}

func TestSetBase(t *testing.T) {
	svc := NewService(testAccounts())
	require.NoError(t, svc.SetBase("acct_savings", decimal.NewFromInt(50)))
	a, _ := svc.Get("acct_savings")
	assert.True(t, a.Base.Equal(decimal.NewFromInt(50)))
	assert.ErrorIs(t, svc.SetBase("nope", decimal.Zero), model.ErrNotFound)
}

func TestDefaultAccounts(t *testing.T) {
	defaults := DefaultAccounts()
	svc := NewService(defaults)
	assert.Len(t, svc.All(), 3)
	for _, a := range defaults {
		require.NoError(t, a.Validate())
	}
	_, ok := svc.Lookup("Checking")
	assert.True(t, ok)
}

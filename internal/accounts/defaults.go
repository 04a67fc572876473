package accounts

import (
	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/id"
	"github.com/tallyfi/tally/internal/model"
)

// DefaultAccounts returns the starter accounts a new data directory gets.
// IDs are freshly generated.
func DefaultAccounts() []model.Account {
	return []model.Account{
		{ID: id.New(id.PrefixAccount), Name: "Checking", Class: model.ClassAsset, Base: decimal.Zero},
		{ID: id.New(id.PrefixAccount), Name: "Savings", Class: model.ClassAsset, Base: decimal.Zero},
		{ID: id.New(id.PrefixAccount), Name: "Cash", Class: model.ClassAsset, Base: decimal.Zero},
	}
}

package model

// Snapshot is the full persisted state of one user.
type Snapshot struct {
	Transactions []Transaction
	Rules        []Rule
	Accounts     []Account
	Liabilities  []Liability
}

// Empty reports whether the snapshot holds no data at all.
func (s Snapshot) Empty() bool {
	return len(s.Transactions) == 0 && len(s.Rules) == 0 && len(s.Accounts) == 0 && len(s.Liabilities) == 0
}

package accounts

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tallyfi/tally/internal/model"
)

// Service is the in-memory registry of asset and liability accounts. It owns
// names and base values only; current values belong to the balance
// synchronizer.
type Service struct {
	accounts []model.Account
	byID     map[string]int
}

// NewService creates a Service from a slice of accounts.
func NewService(accounts []model.Account) *Service {
	s := &Service{}
	s.Replace(accounts)
	return s
}

// Replace swaps the whole registry, as after a reload.
func (s *Service) Replace(accounts []model.Account) {
	s.accounts = make([]model.Account, len(accounts))
	copy(s.accounts, accounts)
	s.reindex()
}

// All returns all accounts in insertion order.
func (s *Service) All() []model.Account {
	out := make([]model.Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Get returns an account by ID.
func (s *Service) Get(id string) (model.Account, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Account{}, false
	}
	return s.accounts[i], true
}

// Exists reports whether an account ID exists.
func (s *Service) Exists(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// ByClass returns all accounts of the given class.
func (s *Service) ByClass(class model.AccountClass) []model.Account {
	var result []model.Account
	for _, a := range s.accounts {
		if a.Class == class {
			result = append(result, a)
		}
	}
	return result
}

// Lookup resolves an ID or, failing that, a display name (case-insensitive).
// Names are for people; code should hold on to the returned ID.
func (s *Service) Lookup(ref string) (model.Account, bool) {
	if a, ok := s.Get(ref); ok {
		return a, true
	}
	for _, a := range s.accounts {
		if strings.EqualFold(a.Name, ref) {
			return a, true
		}
	}
	return model.Account{}, false
}

// Add registers a new account.
func (s *Service) Add(a model.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if s.Exists(a.ID) {
		return model.ValidationErrors{{Field: "id", Description: fmt.Sprintf("account %s already exists", a.ID)}}
	}
	if err := s.checkName(a.ID, a.Name); err != nil {
		return err
	}
	s.accounts = append(s.accounts, a)
	s.byID[a.ID] = len(s.accounts) - 1
	return nil
}

// Upsert adds a or replaces the account with the same ID, keeping its
// original creation time.
func (s *Service) Upsert(a model.Account) error {
	i, ok := s.byID[a.ID]
	if !ok {
		return s.Add(a)
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if err := s.checkName(a.ID, a.Name); err != nil {
		return err
	}
	a.CreatedAt = s.accounts[i].CreatedAt
	s.accounts[i] = a
	return nil
}

// Rename changes an account's display name. Ledger attribution is by ID and
// is unaffected.
func (s *Service) Rename(id, name string) error {
	i, ok := s.byID[id]
	if !ok {
		return model.NotFound("account", id)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.ValidationErrors{{Field: "name", Description: "name is required"}}
	}
	if err := s.checkName(id, name); err != nil {
		return err
	}
	s.accounts[i].Name = name
	return nil
}

// SetBase changes an account's stored base value.
func (s *Service) SetBase(id string, base decimal.Decimal) error {
	i, ok := s.byID[id]
	if !ok {
		return model.NotFound("account", id)
	}
	s.accounts[i].Base = base
	return nil
}

// Remove deletes an account from the registry.
func (s *Service) Remove(id string) error {
	i, ok := s.byID[id]
	if !ok {
		return model.NotFound("account", id)
	}
	s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
	s.reindex()
	return nil
}

func (s *Service) checkName(id, name string) error {
	for _, other := range s.accounts {
		if other.ID != id && strings.EqualFold(other.Name, name) {
			return model.ValidationErrors{{Field: "name", Description: fmt.Sprintf("name %q is already used by %s", name, other.ID)}}
		}
	}
	return nil
}

func (s *Service) reindex() {
	s.byID = make(map[string]int, len(s.accounts))
	for i, a := range s.accounts {
		s.byID[a.ID] = i
	}
}

package ledger

import (
	"fmt"
	"sort"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/events"
	"github.com/tallyfi/tally/internal/id"
	"github.com/tallyfi/tally/internal/model"
)

// Service is the authoritative collection of transaction records. Every
// mutation publishes a ledger-changed event carrying the previous and new
// record state.
type Service struct {
	records  map[string]model.Transaction
	accounts AccountChecker
	bus      events.Publisher
	clock    calendar.Clock
	log      zerolog.Logger
}

// NewService creates an empty ledger.
func NewService(accounts AccountChecker, bus events.Publisher, clock calendar.Clock, log zerolog.Logger) *Service {
	return &Service{
		records:  make(map[string]model.Transaction),
		accounts: accounts,
		bus:      bus,
		clock:    clock,
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

// Add validates and stores a new record. An empty ID is filled in.
func (s *Service) Add(tx model.Transaction) (model.Transaction, error) {
	if tx.ID == "" {
		tx.ID = id.New(id.PrefixTransaction)
	}
	if _, exists := s.records[tx.ID]; exists {
		return model.Transaction{}, model.ValidationErrors{{Field: "id", Description: fmt.Sprintf("transaction %s already exists", tx.ID)}}
	}
	if err := ValidateTransaction(tx, s.accounts); err != nil {
		return model.Transaction{}, err
	}

	now := s.clock.Now()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	s.records[tx.ID] = tx

	s.log.Debug().Str("tx_id", tx.ID).Str("kind", string(tx.Kind)).Stringer("amount", tx.Amount).Msg("transaction added")
	cur := tx
	s.bus.Publish(events.LedgerChange(nil, &cur))
	return tx, nil
}

// Update applies patch to the record with the given ID. An unknown ID
// returns model.ErrNotFound and changes nothing.
func (s *Service) Update(txID string, patch model.TransactionPatch) (model.Transaction, error) {
	prev, ok := s.records[txID]
	if !ok {
		return model.Transaction{}, model.NotFound("transaction", txID)
	}
	next := patch.Apply(prev)
	if err := ValidateTransaction(next, s.accounts); err != nil {
		return model.Transaction{}, err
	}
	if patch.Empty() {
		return prev, nil
	}

	next.UpdatedAt = s.clock.Now()
	s.records[txID] = next

	s.log.Debug().Str("tx_id", txID).Msg("transaction updated")
	s.bus.Publish(events.LedgerChange(&prev, &next))
	return next, nil
}

// Remove deletes a record and returns what was removed. An unknown ID
// returns model.ErrNotFound and changes nothing.
func (s *Service) Remove(txID string) (model.Transaction, error) {
	prev, ok := s.records[txID]
	if !ok {
		return model.Transaction{}, model.NotFound("transaction", txID)
	}
	delete(s.records, txID)

	s.log.Debug().Str("tx_id", txID).Msg("transaction removed")
	s.bus.Publish(events.LedgerChange(&prev, nil))
	return prev, nil
}

// Get returns a record by ID.
func (s *Service) Get(txID string) (model.Transaction, bool) {
	tx, ok := s.records[txID]
	return tx, ok
}

// Has reports whether a record ID exists.
func (s *Service) Has(txID string) bool {
	_, ok := s.records[txID]
	return ok
}

// Len returns the number of records.
func (s *Service) Len() int {
	return len(s.records)
}

// List returns every record ordered by date.
func (s *Service) List() []model.Transaction {
	return s.filter(func(model.Transaction) bool { return true })
}

// ListByDateRange returns records dated start through end inclusive.
func (s *Service) ListByDateRange(start, end civil.Date) []model.Transaction {
	return s.filter(func(tx model.Transaction) bool {
		return calendar.Within(tx.Date, start, end)
	})
}

// ByRule returns every materialized occurrence of a rule, ordered by date.
func (s *Service) ByRule(ruleID string) []model.Transaction {
	return s.filter(func(tx model.Transaction) bool { return tx.RuleID == ruleID })
}

// ByAccount returns every record touching accountID.
func (s *Service) ByAccount(accountID string) []model.Transaction {
	return s.filter(func(tx model.Transaction) bool { return tx.References(accountID) })
}

// Replace swaps the whole record set without publishing per-record events.
// Callers follow it with a full balance recomputation.
func (s *Service) Replace(records []model.Transaction) {
	s.records = make(map[string]model.Transaction, len(records))
	for _, tx := range records {
		s.records[tx.ID] = tx
	}
	s.log.Debug().Int("count", len(records)).Msg("ledger reloaded")
}

func (s *Service) filter(keep func(model.Transaction) bool) []model.Transaction {
	out := make([]model.Transaction, 0, len(s.records))
	for _, tx := range s.records {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	SortByDate(out)
	return out
}

// SortByDate orders records by date, then creation time, then ID.
func SortByDate(txs []model.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

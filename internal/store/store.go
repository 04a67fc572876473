// Package store persists the four entity collections as CSV blobs in a
// key-value store. It is a best-effort durable cache of in-memory state.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tallyfi/tally/internal/model"
)

// Blob keys.
const (
	KeyLedger      = "ledger"
	KeyRules       = "rules"
	KeyAccounts    = "accounts"
	KeyLiabilities = "liabilities"
)

// Keys lists every blob key in load order.
var Keys = []string{KeyAccounts, KeyLiabilities, KeyRules, KeyLedger}

// Store reads and writes snapshots through a Blobs backend.
type Store struct {
	blobs Blobs
}

// New creates a Store on blobs.
func New(blobs Blobs) *Store {
	return &Store{blobs: blobs}
}

// Load reads every key. Missing blobs load as empty collections.
func (s *Store) Load(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	for _, key := range Keys {
		data, err := s.blobs.Get(ctx, key)
		if errors.Is(err, ErrNoBlob) {
			continue
		}
		if err != nil {
			return model.Snapshot{}, err
		}
		if err := decode(key, data, &snap); err != nil {
			return model.Snapshot{}, fmt.Errorf("loading %s: %w", key, err)
		}
	}
	return snap, nil
}

// Save writes the given keys of snap. Every key is attempted; the returned
// *SaveError lists the ones that failed.
func (s *Store) Save(ctx context.Context, snap model.Snapshot, keys ...string) error {
	failed := &SaveError{}
	for _, key := range keys {
		data, err := encode(key, snap)
		if err == nil {
			err = s.blobs.Put(ctx, key, data)
		}
		if err != nil {
			failed.Keys = append(failed.Keys, key)
			failed.Errs = append(failed.Errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if len(failed.Keys) == 0 {
		return nil
	}
	return failed
}

// SaveError reports the keys a Save could not write.
type SaveError struct {
	Keys []string
	Errs []error
}

func (e *SaveError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "saving " + strings.Join(e.Keys, ", ") + ": " + strings.Join(msgs, "; ")
}

// Unwrap exposes the per-key errors to errors.Is and errors.As.
func (e *SaveError) Unwrap() []error {
	return e.Errs
}

func encode(key string, snap model.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch key {
	case KeyLedger:
		err = WriteTransactions(&buf, snap.Transactions)
	case KeyRules:
		err = WriteRules(&buf, snap.Rules)
	case KeyAccounts:
		err = WriteAccounts(&buf, snap.Accounts)
	case KeyLiabilities:
		err = WriteLiabilities(&buf, snap.Liabilities)
	default:
		return nil, fmt.Errorf("unknown key %q", key)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(key string, data []byte, snap *model.Snapshot) error {
	r := bytes.NewReader(data)
	var err error
	switch key {
	case KeyLedger:
		snap.Transactions, err = ReadTransactions(r)
	case KeyRules:
		snap.Rules, err = ReadRules(r)
	case KeyAccounts:
		snap.Accounts, err = ReadAccounts(r)
	case KeyLiabilities:
		snap.Liabilities, err = ReadLiabilities(r)
	default:
		err = fmt.Errorf("unknown key %q", key)
	}
	return err
}

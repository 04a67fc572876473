package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tallyfi/tally/internal/model"
	"github.com/tallyfi/tally/internal/store"
	"github.com/tallyfi/tally/internal/synclog"
)

// ErrUnpushedChanges is returned by Pull while local changes have not
// reached the remote store.
var ErrUnpushedChanges = errors.New("local changes have not been pushed")

// ErrRemoteEmpty is returned by Pull when the remote store holds nothing
// for the user but local state does.
var ErrRemoteEmpty = errors.New("remote store has no rows for this user")

// PersistError reports a write that failed after the in-memory change was
// applied. The keys stay pending until a later write succeeds.
type PersistError struct {
	Target string
	Keys   []string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s write of %s failed: %v", e.Target, strings.Join(e.Keys, ", "), e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Status describes what still needs writing and whether balances agree with
// the ledger.
type Status struct {
	PendingLocal  []string
	PendingRemote []string
	HasRemote     bool
	Drift         []DriftReport
}

// DriftReport is one account whose incremental balance disagrees with a full
// recomputation.
type DriftReport struct {
	AccountID   string
	AccountName string
	Incremental string
	Recomputed  string
}

// persist writes keys plus anything still pending to the local store, then
// mirrors the whole snapshot to the remote store. Both targets are always
// attempted; their failures are joined.
func (a *App) persist(ctx context.Context, op string, keys ...string) error {
	snap := a.snapshot()
	var entries []synclog.Entry
	var errs []error

	localKeys := union(keys, a.pendingLocal)
	if len(localKeys) > 0 {
		entry, err := a.saveLocal(ctx, op, snap, localKeys)
		entries = append(entries, entry...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if a.remote != nil {
		remoteKeys := union(keys, a.pendingRemote)
		if len(remoteKeys) > 0 {
			entry, err := a.saveRemote(ctx, op, snap, remoteKeys)
			entries = append(entries, entry)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}

	a.appendLog(entries)
	return errors.Join(errs...)
}

func (a *App) saveLocal(ctx context.Context, op string, snap model.Snapshot, keys []string) ([]synclog.Entry, error) {
	now := a.clock.Now()
	err := a.store.Save(ctx, snap, keys...)
	failed := keys
	var se *store.SaveError
	switch {
	case err == nil:
		failed = nil
	case errors.As(err, &se):
		failed = se.Keys
	}

	var ok []string
	for _, k := range keys {
		if !contains(failed, k) {
			ok = append(ok, k)
			delete(a.pendingLocal, k)
		}
	}
	for _, k := range failed {
		a.pendingLocal[k] = true
	}

	var entries []synclog.Entry
	if len(ok) > 0 {
		entries = append(entries, synclog.Entry{Timestamp: now, Target: synclog.TargetLocal, Operation: op, Keys: ok, Outcome: synclog.OutcomeOK})
	}
	if err == nil {
		return entries, nil
	}
	a.log.Error().Err(err).Strs("keys", failed).Str("op", op).Msg("local save failed")
	entries = append(entries, synclog.Entry{Timestamp: now, Target: synclog.TargetLocal, Operation: op, Keys: failed, Outcome: synclog.OutcomeFailed, Detail: err.Error()})
	return entries, &PersistError{Target: synclog.TargetLocal, Keys: failed, Err: err}
}

// saveRemote replaces every row the user owns, so success clears all
// pending remote keys.
func (a *App) saveRemote(ctx context.Context, op string, snap model.Snapshot, keys []string) (synclog.Entry, error) {
	now := a.clock.Now()
	if err := a.remote.ReplaceAll(ctx, a.userID, snap); err != nil {
		for _, k := range keys {
			a.pendingRemote[k] = true
		}
		a.log.Error().Err(err).Strs("keys", keys).Str("op", op).Msg("remote sync failed")
		return synclog.Entry{Timestamp: now, Target: synclog.TargetRemote, Operation: op, Keys: keys, Outcome: synclog.OutcomeFailed, Detail: err.Error()},
			&PersistError{Target: synclog.TargetRemote, Keys: keys, Err: err}
	}
	synced := union(keys, a.pendingRemote)
	a.pendingRemote = make(map[string]bool)
	a.remoteSeen = true
	a.log.Debug().Strs("keys", synced).Str("op", op).Msg("remote synced")
	return synclog.Entry{Timestamp: now, Target: synclog.TargetRemote, Operation: op, Keys: synced, Outcome: synclog.OutcomeOK}, nil
}

func (a *App) appendLog(entries []synclog.Entry) {
	if a.root == "" || len(entries) == 0 {
		return
	}
	if err := synclog.Append(a.root, entries); err != nil {
		a.log.Warn().Err(err).Msg("could not append sync log")
	}
}

// Retry rewrites every pending key.
func (a *App) Retry(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persist(ctx, "retry")
}

// Push writes every key locally and replaces the user's remote rows.
func (a *App) Push(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persist(ctx, "push", store.Keys...)
}

// Pull replaces local state with the user's remote rows. It refuses while
// local changes are still waiting to reach the remote store, when local
// data has never been pushed, and when the remote holds nothing to replace
// non-empty local state with.
func (a *App) Pull(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.remote == nil {
		return errors.New("no remote store configured")
	}
	if len(a.pendingRemote) > 0 {
		return fmt.Errorf("%w: %s", ErrUnpushedChanges, strings.Join(sortedKeys(a.pendingRemote), ", "))
	}
	hasLocal := !a.snapshot().Empty()
	if hasLocal && !a.remoteSeen {
		return fmt.Errorf("%w: local data has never been synced with the remote store", ErrUnpushedChanges)
	}
	snap, err := a.remote.FetchAll(ctx, a.userID)
	if err != nil {
		a.appendLog([]synclog.Entry{{Timestamp: a.clock.Now(), Target: synclog.TargetRemote, Operation: "pull", Keys: store.Keys, Outcome: synclog.OutcomeFailed, Detail: err.Error()}})
		return fmt.Errorf("fetching remote rows: %w", err)
	}
	if hasLocal && snap.Empty() {
		return ErrRemoteEmpty
	}
	a.replace(snap)
	a.remoteSeen = true
	a.log.Info().Int("transactions", len(snap.Transactions)).Int("rules", len(snap.Rules)).Msg("pulled remote state")

	entries := []synclog.Entry{{Timestamp: a.clock.Now(), Target: synclog.TargetRemote, Operation: "pull", Keys: store.Keys, Outcome: synclog.OutcomeOK}}
	local, err := a.saveLocal(ctx, "pull", snap, store.Keys)
	a.appendLog(append(entries, local...))
	return err
}

// Status reports pending writes and balance drift.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Status{
		PendingLocal:  sortedKeys(a.pendingLocal),
		PendingRemote: sortedKeys(a.pendingRemote),
		HasRemote:     a.remote != nil,
	}
	for _, d := range a.balances.Check() {
		name := d.AccountID
		if acct, ok := a.accounts.Get(d.AccountID); ok {
			name = acct.Name
		}
		st.Drift = append(st.Drift, DriftReport{
			AccountID:   d.AccountID,
			AccountName: name,
			Incremental: d.Incremental.StringFixed(2),
			Recomputed:  d.Recomputed.StringFixed(2),
		})
	}
	return st
}

func union(keys []string, pending map[string]bool) []string {
	seen := make(map[string]bool, len(keys)+len(pending))
	for _, k := range keys {
		seen[k] = true
	}
	for k := range pending {
		seen[k] = true
	}
	// Keep load order so saves are deterministic.
	var out []string
	for _, k := range store.Keys {
		if seen[k] {
			out = append(out, k)
		}
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

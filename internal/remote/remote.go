// Package remote mirrors a user's state into row tables addressed by user
// ID. Writes replace every row the user owns; reads fetch them all.
package remote

import (
	"context"

	"github.com/tallyfi/tally/internal/model"
)

// Backend is a remote backing store.
type Backend interface {
	// ReplaceAll replaces every row owned by userID with snap.
	ReplaceAll(ctx context.Context, userID string, snap model.Snapshot) error
	// FetchAll returns every row owned by userID.
	FetchAll(ctx context.Context, userID string) (model.Snapshot, error)
	Close() error
}

// Package app constructs every service once, wires them to one event bus
// and exposes the operations the CLI calls. It persists after each mutation
// and tracks writes that still need to be retried.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/tallyfi/tally/internal/accounts"
	"github.com/tallyfi/tally/internal/balances"
	"github.com/tallyfi/tally/internal/calendar"
	"github.com/tallyfi/tally/internal/config"
	"github.com/tallyfi/tally/internal/events"
	"github.com/tallyfi/tally/internal/ledger"
	"github.com/tallyfi/tally/internal/liabilities"
	"github.com/tallyfi/tally/internal/model"
	"github.com/tallyfi/tally/internal/recurring"
	"github.com/tallyfi/tally/internal/remote"
	"github.com/tallyfi/tally/internal/store"
	"github.com/tallyfi/tally/internal/synclog"
)

// Options configures New.
type Options struct {
	UserID        string
	Root          string // sync log location; empty disables the log
	Blobs         store.Blobs
	Remote        remote.Backend // nil when there is no remote store
	Clock         calendar.Clock
	Log           zerolog.Logger
	PreviewMonths int
}

// App is the composition root. All exported methods are safe for concurrent
// use; they are serialized so the services see a single writer.
type App struct {
	mu sync.Mutex

	userID        string
	root          string
	clock         calendar.Clock
	log           zerolog.Logger
	previewMonths int

	bus         *events.Bus
	accounts    *accounts.Service
	ledger      *ledger.Service
	balances    *balances.Synchronizer
	rules       *recurring.Engine
	liabilities *liabilities.Linker

	store  *store.Store
	remote remote.Backend

	pendingLocal  map[string]bool
	pendingRemote map[string]bool
	remoteSeen    bool // a remote write or pull has succeeded for this data
	closers       []func() error
}

// New wires the services. The balance synchronizer is the first bus
// subscriber, so every later subscriber sees balances that already include
// the change being delivered.
func New(opts Options) *App {
	if opts.Clock == nil {
		opts.Clock = calendar.Real{}
	}
	if opts.PreviewMonths <= 0 {
		opts.PreviewMonths = recurring.DefaultPreviewMonths
	}
	log := opts.Log.With().Str("user_id", opts.UserID).Logger()

	bus := events.NewBus()
	accts := accounts.NewService(nil)
	led := ledger.NewService(accts, bus, opts.Clock, log)
	bal := balances.New(accts, led, log)
	bal.Attach(bus)
	rules := recurring.NewEngine(led, accts, bus, opts.Clock, log)
	linker := liabilities.NewLinker(accts, rules, led, bus, opts.Clock, log)

	return &App{
		userID:        opts.UserID,
		root:          opts.Root,
		clock:         opts.Clock,
		log:           log,
		previewMonths: opts.PreviewMonths,
		bus:           bus,
		accounts:      accts,
		ledger:        led,
		balances:      bal,
		rules:         rules,
		liabilities:   linker,
		store:         store.New(opts.Blobs),
		remote:        opts.Remote,
		pendingLocal:  make(map[string]bool),
		pendingRemote: make(map[string]bool),
	}
}

// Open builds the storage backends named by cfg, constructs the App and
// loads the local state. root is the data directory holding tally.yaml.
func Open(ctx context.Context, root string, cfg *config.Config, log zerolog.Logger) (*App, error) {
	var closers []func() error
	closeAll := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var blobs store.Blobs
	switch cfg.Storage.Backend {
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		closers = append(closers, client.Close)
		blobs = store.NewGCSBlobs(client, cfg.Storage.Bucket, cfg.Storage.Prefix)
	default:
		blobs = store.FileBlobs{Dir: filepath.Join(root, cfg.Storage.Dir)}
	}

	var backend remote.Backend
	switch cfg.Remote.Backend {
	case config.RemoteSQLite:
		dsn := cfg.Remote.DSN
		if dsn != ":memory:" && !filepath.IsAbs(dsn) {
			dsn = filepath.Join(root, dsn)
		}
		s, err := remote.OpenSQL(dsn)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open sqlite remote: %w", err)
		}
		backend = s
	case config.RemoteBigQuery:
		bq, err := remote.OpenBigQuery(ctx, cfg.Remote.Project, cfg.Remote.Dataset)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open bigquery remote: %w", err)
		}
		if err := bq.EnsureTables(ctx); err != nil {
			_ = bq.Close()
			closeAll()
			return nil, err
		}
		backend = bq
	}
	if backend != nil {
		closers = append(closers, backend.Close)
	}

	a := New(Options{
		UserID:        cfg.User.ID,
		Root:          root,
		Blobs:         blobs,
		Remote:        backend,
		Clock:         calendar.Real{},
		Log:           log,
		PreviewMonths: cfg.Recurring.PreviewMonths,
	})
	a.closers = closers
	if err := a.Load(ctx); err != nil {
		closeAll()
		return nil, err
	}
	return a, nil
}

// Close releases the storage clients.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load replaces in-memory state with the local store's contents and
// restores the pending-write set from the sync log.
func (a *App) Load(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap, err := a.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading local store: %w", err)
	}
	a.replace(snap)

	if a.root != "" {
		entries, err := synclog.Read(a.root)
		if err != nil {
			return err
		}
		for _, k := range synclog.Pending(entries, synclog.TargetLocal) {
			a.pendingLocal[k] = true
		}
		for _, k := range synclog.Pending(entries, synclog.TargetRemote) {
			a.pendingRemote[k] = true
		}
		a.remoteSeen = synclog.Synced(entries, synclog.TargetRemote)
	}
	a.log.Debug().
		Int("transactions", len(snap.Transactions)).
		Int("rules", len(snap.Rules)).
		Int("accounts", len(snap.Accounts)).
		Msg("state loaded")
	return nil
}

// replace swaps all in-memory state without publishing per-record events,
// then rebuilds derived balances.
func (a *App) replace(snap model.Snapshot) {
	a.accounts.Replace(snap.Accounts)
	a.liabilities.Replace(snap.Liabilities)
	a.rules.Replace(snap.Rules)
	a.ledger.Replace(snap.Transactions)
	a.balances.Rebuild()
}

func (a *App) snapshot() model.Snapshot {
	return model.Snapshot{
		Transactions: a.ledger.List(),
		Rules:        a.rules.Rules(),
		Accounts:     a.accounts.All(),
		Liabilities:  a.liabilities.List(),
	}
}

// Subscribe registers an observer on the event bus. Observers must not call
// back into the App from the handler.
func (a *App) Subscribe(fn events.Handler, types ...events.Type) func() {
	return a.bus.Subscribe(fn, types...)
}

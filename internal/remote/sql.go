package remote

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/tallyfi/tally/internal/model"
	"github.com/tallyfi/tally/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQL stores rows in a SQLite database. Column layout follows the store
// package's CSV codecs, so both stores round-trip the same representation.
type SQL struct {
	db *sql.DB
}

// OpenSQL opens (or creates) a SQLite database and applies pending
// migrations.
func OpenSQL(dsn string) (*SQL, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)
	s, err := NewSQL(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open database and applies pending migrations.
func NewSQL(db *sql.DB) (*SQL, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}
	return &SQL{db: db}, nil
}

// Close closes the database.
func (s *SQL) Close() error {
	return s.db.Close()
}

type table[T any] struct {
	name      string
	columns   []string
	marshal   func(T) []string
	unmarshal func([]string) (T, error)
}

var (
	txTable = table[model.Transaction]{
		name: "transactions", columns: store.TransactionHeader,
		marshal: store.MarshalTransaction, unmarshal: store.UnmarshalTransaction,
	}
	ruleTable = table[model.Rule]{
		name: "rules", columns: store.RuleHeader,
		marshal: store.MarshalRule, unmarshal: store.UnmarshalRule,
	}
	accountTable = table[model.Account]{
		name: "accounts", columns: store.AccountHeader,
		marshal: store.MarshalAccount, unmarshal: store.UnmarshalAccount,
	}
	liabilityTable = table[model.Liability]{
		name: "liabilities", columns: store.LiabilityHeader,
		marshal: store.MarshalLiability, unmarshal: store.UnmarshalLiability,
	}
)

// ReplaceAll deletes the user's rows and inserts snap in one transaction.
func (s *SQL) ReplaceAll(ctx context.Context, userID string, snap model.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := replaceRows(ctx, tx, txTable, userID, snap.Transactions); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := replaceRows(ctx, tx, ruleTable, userID, snap.Rules); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := replaceRows(ctx, tx, accountTable, userID, snap.Accounts); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := replaceRows(ctx, tx, liabilityTable, userID, snap.Liabilities); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FetchAll reads every row owned by userID.
func (s *SQL) FetchAll(ctx context.Context, userID string) (model.Snapshot, error) {
	var snap model.Snapshot
	var err error
	if snap.Transactions, err = selectRows(ctx, s.db, txTable, userID); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Rules, err = selectRows(ctx, s.db, ruleTable, userID); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Accounts, err = selectRows(ctx, s.db, accountTable, userID); err != nil {
		return model.Snapshot{}, err
	}
	if snap.Liabilities, err = selectRows(ctx, s.db, liabilityTable, userID); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}

func replaceRows[T any](ctx context.Context, tx *sql.Tx, t table[T], userID string, rows []T) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+t.name+" WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	if len(rows) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)+2), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (user_id, ord, %s) VALUES (%s)",
		t.name, strings.Join(t.columns, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", t.name, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		args := []any{userID, i}
		for _, v := range t.marshal(row) {
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s row %d: %w", t.name, i, err)
		}
	}
	return nil
}

func selectRows[T any](ctx context.Context, db *sql.DB, t table[T], userID string) ([]T, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE user_id = ? ORDER BY ord ASC",
		strings.Join(t.columns, ", "), t.name), userID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []T
	vals := make([]string, len(t.columns))
	dest := make([]any, len(t.columns))
	for i := range vals {
		dest[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		v, err := t.unmarshal(vals)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", t.name, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (
		name       TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`); err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM _migrations WHERE name = ?", name).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", name, err)
		}
		if _, err := tx.Exec(string(data)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/tallyfi/tally/internal/model"
)

// BigQuery table names.
const (
	transactionsTable = "transactions"
	rulesTable        = "rules"
	accountsTable     = "accounts"
	liabilitiesTable  = "liabilities"
)

// BigQuery stores rows in four tables of one dataset.
type BigQuery struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// OpenBigQuery creates a client for projectID.
func OpenBigQuery(ctx context.Context, projectID, datasetID string) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return NewBigQueryWithClient(client, projectID, datasetID), nil
}

// NewBigQueryWithClient wraps an existing client.
func NewBigQueryWithClient(client *bigquery.Client, projectID, datasetID string) *BigQuery {
	return &BigQuery{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

// EnsureTables creates any missing table with a schema inferred from its
// row type.
func (b *BigQuery) EnsureTables(ctx context.Context) error {
	tables := []struct {
		name string
		row  any
	}{
		{transactionsTable, TransactionRow{}},
		{rulesTable, RuleRow{}},
		{accountsTable, AccountRow{}},
		{liabilitiesTable, LiabilityRow{}},
	}
	for _, t := range tables {
		table := b.client.DatasetInProject(b.projectID, b.datasetID).Table(t.name)
		_, err := table.Metadata(ctx)
		if err == nil {
			continue
		}
		var gerr *googleapi.Error
		if !errors.As(err, &gerr) || gerr.Code != http.StatusNotFound {
			return fmt.Errorf("table %s metadata: %w", t.name, err)
		}
		schema, err := bigquery.InferSchema(t.row)
		if err != nil {
			return fmt.Errorf("infer %s schema: %w", t.name, err)
		}
		if err := table.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
	}
	return nil
}

func (b *BigQuery) qualified(table string) string {
	return "`" + b.projectID + "." + b.datasetID + "." + table + "`"
}

// ReplaceAll deletes the user's rows from every table and streams snap in.
// BigQuery has no multi-table transaction here; a failure part way leaves
// the remote short, and the next successful ReplaceAll converges it.
func (b *BigQuery) ReplaceAll(ctx context.Context, userID string, snap model.Snapshot) error {
	for _, table := range []string{transactionsTable, rulesTable, accountsTable, liabilitiesTable} {
		if err := b.deleteUserRows(ctx, table, userID); err != nil {
			return err
		}
	}

	txRows := make([]*TransactionRow, len(snap.Transactions))
	for i, tx := range snap.Transactions {
		txRows[i] = transactionRow(userID, i, tx)
	}
	if err := b.put(ctx, transactionsTable, txRows, len(txRows)); err != nil {
		return err
	}

	ruleRows := make([]*RuleRow, len(snap.Rules))
	for i, r := range snap.Rules {
		ruleRows[i] = ruleRow(userID, i, r)
	}
	if err := b.put(ctx, rulesTable, ruleRows, len(ruleRows)); err != nil {
		return err
	}

	acctRows := make([]*AccountRow, len(snap.Accounts))
	for i, a := range snap.Accounts {
		acctRows[i] = accountRow(userID, i, a)
	}
	if err := b.put(ctx, accountsTable, acctRows, len(acctRows)); err != nil {
		return err
	}

	liabRows := make([]*LiabilityRow, len(snap.Liabilities))
	for i, l := range snap.Liabilities {
		liabRows[i] = liabilityRow(userID, i, l)
	}
	return b.put(ctx, liabilitiesTable, liabRows, len(liabRows))
}

func (b *BigQuery) deleteUserRows(ctx context.Context, table, userID string) error {
	q := b.client.Query(`DELETE FROM ` + b.qualified(table) + ` WHERE user_id = @user_id`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("delete %s: run query: %w", table, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("delete %s: wait for job: %w", table, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("delete %s: job failed: %w", table, err)
	}
	return nil
}

func (b *BigQuery) put(ctx context.Context, table string, rows any, n int) error {
	if n == 0 {
		return nil
	}
	inserter := b.client.DatasetInProject(b.projectID, b.datasetID).Table(table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// FetchAll reads every row owned by userID.
func (b *BigQuery) FetchAll(ctx context.Context, userID string) (model.Snapshot, error) {
	var snap model.Snapshot

	txRows, err := queryRows[TransactionRow](ctx, b, transactionsTable, userID)
	if err != nil {
		return model.Snapshot{}, err
	}
	for _, r := range txRows {
		tx, err := r.transaction()
		if err != nil {
			return model.Snapshot{}, err
		}
		snap.Transactions = append(snap.Transactions, tx)
	}

	ruleRows, err := queryRows[RuleRow](ctx, b, rulesTable, userID)
	if err != nil {
		return model.Snapshot{}, err
	}
	for _, r := range ruleRows {
		rule, err := r.rule()
		if err != nil {
			return model.Snapshot{}, err
		}
		snap.Rules = append(snap.Rules, rule)
	}

	acctRows, err := queryRows[AccountRow](ctx, b, accountsTable, userID)
	if err != nil {
		return model.Snapshot{}, err
	}
	for _, r := range acctRows {
		a, err := r.account()
		if err != nil {
			return model.Snapshot{}, err
		}
		snap.Accounts = append(snap.Accounts, a)
	}

	liabRows, err := queryRows[LiabilityRow](ctx, b, liabilitiesTable, userID)
	if err != nil {
		return model.Snapshot{}, err
	}
	for _, r := range liabRows {
		l, err := r.liability()
		if err != nil {
			return model.Snapshot{}, err
		}
		snap.Liabilities = append(snap.Liabilities, l)
	}
	return snap, nil
}

func queryRows[T any](ctx context.Context, b *BigQuery, table, userID string) ([]*T, error) {
	q := b.client.Query(`SELECT * FROM ` + b.qualified(table) + ` WHERE user_id = @user_id ORDER BY ord`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}

	var rows []*T
	for {
		var r T
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row: %w", table, err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

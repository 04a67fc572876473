package synclog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

func testEntry() Entry {
	return Entry{
		Timestamp: testTime,
		Target:    TargetLocal,
		Operation: "save",
		Keys:      []string{"ledger", "accounts"},
		Outcome:   OutcomeOK,
	}
}

func TestAppend_NewFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Append(dir, []Entry{testEntry()}))

	entries, err := Read(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"ledger", "accounts"}, entries[0].Keys)
}

func TestAppend_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Append(dir, []Entry{testEntry()}))

	e2 := testEntry()
	e2.Target = TargetRemote
	e2.Operation = "push"
	e2.Outcome = OutcomeFailed
	e2.Detail = "dial tcp: connection refused, retry later"
	require.NoError(t, Append(dir, []Entry{e2}))

	entries, err := Read(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, TargetLocal, entries[0].Target)
	assert.Equal(t, e2.Detail, entries[1].Detail)
}

func TestRead_NotFound(t *testing.T) {
	entries, err := Read(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestRead_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logs", "sync-log.csv"), []byte(Header+"\n"), 0o644))

	entries, err := Read(dir)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestMarshalUnmarshal(t *testing.T) {
	e := testEntry()
	row := MarshalEntry(e)
	assert.Len(t, row, 6)
	assert.Equal(t, "2025-01-15T10:30:00Z", row[colTimestamp])
	assert.Equal(t, "ledger;accounts", row[colKeys])

	got, err := UnmarshalEntry(row)
	require.NoError(t, err)
	assert.True(t, e.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, e.Keys, got.Keys)
	assert.Equal(t, e.Outcome, got.Outcome)

	_, err = UnmarshalEntry([]string{"one", "two"})
	assert.ErrorContains(t, err, "expected 6 fields")
}

func TestPending(t *testing.T) {
	entries := []Entry{
		{Target: TargetRemote, Keys: []string{"ledger", "rules"}, Outcome: OutcomeFailed},
		{Target: TargetLocal, Keys: []string{"accounts"}, Outcome: OutcomeFailed},
		{Target: TargetRemote, Keys: []string{"rules"}, Outcome: OutcomeOK},
		{Target: TargetRemote, Keys: []string{"liabilities"}, Outcome: OutcomeFailed},
	}
	assert.Equal(t, []string{"ledger", "liabilities"}, Pending(entries, TargetRemote))
	assert.Equal(t, []string{"accounts"}, Pending(entries, TargetLocal))
	assert.Empty(t, Pending(nil, TargetLocal))
}

func TestSynced(t *testing.T) {
	entries := []Entry{
		{Target: TargetLocal, Keys: []string{"ledger"}, Outcome: OutcomeOK},
		{Target: TargetRemote, Keys: []string{"ledger"}, Outcome: OutcomeFailed},
	}
	assert.False(t, Synced(entries, TargetRemote))
	assert.True(t, Synced(entries, TargetLocal))

	entries = append(entries, Entry{Target: TargetRemote, Keys: []string{"ledger"}, Outcome: OutcomeOK})
	assert.True(t, Synced(entries, TargetRemote))
	assert.False(t, Synced(nil, TargetRemote))
}

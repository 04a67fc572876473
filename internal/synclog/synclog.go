// Package synclog keeps an append-only CSV record of every local save and
// remote sync attempt. The log survives restarts, so it is also where the
// set of keys still awaiting a successful write is recovered from.
package synclog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Targets.
const (
	TargetLocal  = "local"
	TargetRemote = "remote"
)

// Outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Entry is one row in the sync log.
type Entry struct {
	Timestamp time.Time
	Target    string
	Operation string
	Keys      []string
	Outcome   string
	Detail    string
}

// Header is the CSV header for sync-log.csv.
const Header = "timestamp,target,operation,keys,outcome,detail"

const (
	numFields    = 6
	logDir       = "logs"
	logFile      = "logs/sync-log.csv"
	keySep       = ";"
	colTimestamp = 0
	colTarget    = 1
	colOperation = 2
	colKeys      = 3
	colOutcome   = 4
	colDetail    = 5
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.UTC().Format(time.RFC3339)
	row[colTarget] = e.Target
	row[colOperation] = e.Operation
	row[colKeys] = strings.Join(e.Keys, keySep)
	row[colOutcome] = e.Outcome
	row[colDetail] = e.Detail
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	var keys []string
	if record[colKeys] != "" {
		keys = strings.Split(record[colKeys], keySep)
	}
	return Entry{
		Timestamp: ts,
		Target:    record[colTarget],
		Operation: record[colOperation],
		Keys:      keys,
		Outcome:   record[colOutcome],
		Detail:    record[colDetail],
	}, nil
}

// Append writes entries to <root>/logs/sync-log.csv, creating the file and
// header if needed.
func Append(root string, entries []Entry) error {
	dir := filepath.Join(root, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(root, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening sync log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}
	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <root>/logs/sync-log.csv, or nil if the
// file does not exist.
func Read(root string) ([]Entry, error) {
	f, err := os.Open(filepath.Join(root, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening sync log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading sync log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Pending replays entries and returns, for the target, the keys whose most
// recent attempt failed.
func Pending(entries []Entry, target string) []string {
	failed := make(map[string]bool)
	for _, e := range entries {
		if e.Target != target {
			continue
		}
		for _, k := range e.Keys {
			failed[k] = e.Outcome == OutcomeFailed
		}
	}
	var out []string
	for k, f := range failed {
		if f {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Synced reports whether any attempt against target has succeeded.
func Synced(entries []Entry, target string) bool {
	for _, e := range entries {
		if e.Target == target && e.Outcome == OutcomeOK {
			return true
		}
	}
	return false
}

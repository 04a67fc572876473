package id

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Prefixes identify what kind of entity an ID names.
const (
	PrefixTransaction = "txn"
	PrefixRule        = "rule"
	PrefixAccount     = "acct"
	PrefixLiability   = "liab"
	PrefixUser        = "user"
)

const occurrenceSep = "#"

// New returns a fresh opaque ID like "acct_9b2f...".
func New(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// Prefix returns the entity prefix of an ID, or "" if it has none.
func Prefix(id string) string {
	i := strings.IndexByte(id, '_')
	if i <= 0 {
		return ""
	}
	return id[:i]
}

// FormatOccurrenceID returns the ID of the n-th (0-based) occurrence of a
// rule, e.g. "rule_9b2f...#003" for n=2. The ID is a pure function of the
// rule and slot, so materializing the same slot twice collides.
func FormatOccurrenceID(ruleID string, n int) string {
	return fmt.Sprintf("%s%s%03d", ruleID, occurrenceSep, n+1)
}

// ParseOccurrenceID splits an occurrence ID into its rule ID and 0-based slot.
func ParseOccurrenceID(id string) (ruleID string, n int, err error) {
	i := strings.LastIndex(id, occurrenceSep)
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("invalid occurrence ID format: %q", id)
	}
	seq, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid sequence in occurrence ID %q: %w", id, err)
	}
	if seq < 1 {
		return "", 0, fmt.Errorf("invalid sequence in occurrence ID %q", id)
	}
	return id[:i], seq - 1, nil
}

// IsOccurrence reports whether id names a rule occurrence.
func IsOccurrence(id string) bool {
	_, _, err := ParseOccurrenceID(id)
	return err == nil
}

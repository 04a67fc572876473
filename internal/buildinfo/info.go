// Package buildinfo carries the version stamped into the tally binary.
package buildinfo

import "fmt"

// Set with -ldflags "-X github.com/tallyfi/tally/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build metadata for --version.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}

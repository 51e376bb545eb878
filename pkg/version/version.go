// Package version carries build information for vaultsearch.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	-X github.com/vaultsearch/vaultsearch/pkg/version.Version=v1.2.3
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String returns the full version line.
func String() string {
	return fmt.Sprintf("vaultsearch %s (commit: %s, built: %s, go: %s)",
		Version, Commit, Date, runtime.Version())
}

// Short returns just the version.
func Short() string {
	return Version
}

// Package version holds build metadata injected with -ldflags. Version is
// also stamped into every provenance record.
package version

import "fmt"

var (
	// Version is the current library and CLI version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for `lidarfeat version`.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitSHA, BuildTime)
}

// Package version keeps the build version string reported by the CLI and
// the attestation user data.
package version

import (
	"fmt"
	"runtime"
)

// These are set at build time with -ldflags.
var (
	gitCommit = "unknown"
	buildDate = "unknown"
	semver    = "0.1.0"
)

// Version returns the full version string for the running binary.
func Version() string {
	return fmt.Sprintf("lottery/%s (%s %s) commit %s built %s",
		semver, runtime.GOOS, runtime.GOARCH, gitCommit, buildDate)
}

// SemanticVersion returns the bare semver string.
func SemanticVersion() string {
	return semver
}

// Package version holds build metadata injected with -ldflags.
package version

// Build metadata. Overridden at link time, for example
// -X github.com/bissquit/incident-sla/internal/version.Version=1.2.0.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

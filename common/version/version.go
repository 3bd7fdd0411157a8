// Package version exposes build metadata stamped in at link time.
package version

// Set through -ldflags "-X github.com/bdobrica/spaces/common/version.Version=..."
// and friends; the zero values identify a local development build.
var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info formats the build metadata as a single human-readable line.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}

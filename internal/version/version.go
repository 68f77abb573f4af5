// Package version provides build-time version information.
//
// Variables are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/campuslink/realtime/internal/version.Version=1.0.0 \
//	                   -X github.com/campuslink/realtime/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/campuslink/realtime/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

// Build-time variables (set via ldflags)
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"

	// Commit is the git commit hash
	Commit = "unknown"

	// BuildTime is the UTC build timestamp (ISO 8601)
	BuildTime = "unknown"
)

// ShortCommit returns the first seven characters of Commit.
func ShortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}

// String returns a formatted version string.
func String() string {
	return Version + " (" + ShortCommit() + ") built " + BuildTime
}

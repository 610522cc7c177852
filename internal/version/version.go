// Package version carries build metadata.
//
// Release builds stamp the variables with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/tradeline/internal/version.Version=0.4.0 \
//	                   -X github.com/rickgao/tradeline/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/tradeline/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/tradeline
//
// Without ldflags the commit and build time come from the VCS stamp the Go
// toolchain embeds, when there is one.
package version

import "runtime/debug"

var (
	// Version is the semantic version (e.g., "0.4.0")
	Version = "dev"

	// Commit is the git commit hash (short form)
	Commit = "unknown"

	// BuildTime is the UTC build timestamp (ISO 8601)
	BuildTime = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if Commit == "unknown" && len(s.Value) >= 7 {
				Commit = s.Value[:7]
			}
		case "vcs.time":
			if BuildTime == "unknown" {
				BuildTime = s.Value
			}
		}
	}
}

// String returns a formatted version string.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}

// UserAgent identifies the client to the trading server on REST calls and
// the WebSocket handshake.
func UserAgent() string {
	return "tradeline/" + Version
}

// Package version reports build information for loopcast.
//
// Version, Commit and Date are set at link time:
//
//	go build -ldflags "-X github.com/jmylchreest/loopcast/internal/version.Version=1.2.0 \
//	                   -X github.com/jmylchreest/loopcast/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/jmylchreest/loopcast/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/loopcast
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Set via ldflags.
var (
	// Version is a SemVer release ("1.2.0") or snapshot ("1.2.1-SNAPSHOT.abc1234").
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// ApplicationName is the binary and API title.
const ApplicationName = "loopcast"

// Info is the structured form served by the API and the version command.
type Info struct {
	Application string `json:"application" yaml:"application"`
	Version     string `json:"version" yaml:"version"`
	Commit      string `json:"commit" yaml:"commit"`
	Date        string `json:"date" yaml:"date"`
	GoVersion   string `json:"go_version" yaml:"go_version"`
	Platform    string `json:"platform" yaml:"platform"`
}

// GetInfo returns the build information.
func GetInfo() Info {
	return Info{
		Application: ApplicationName,
		Version:     Version,
		Commit:      Commit,
		Date:        Date,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func shortCommit() (string, bool) {
	if Commit == "unknown" || len(Commit) < 8 {
		return "", false
	}
	return Commit[:8], true
}

// String is the long form printed by "loopcast version".
func String() string {
	info := GetInfo()
	if c, ok := shortCommit(); ok {
		return fmt.Sprintf("%s version %s (commit: %s, built: %s, %s, %s)",
			ApplicationName, info.Version, c, info.Date, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s version %s (%s, %s)", ApplicationName, info.Version, info.GoVersion, info.Platform)
}

// Short is the application name and version, plus the short commit when known.
func Short() string {
	if c, ok := shortCommit(); ok {
		return fmt.Sprintf("%s %s (%s)", ApplicationName, Version, c)
	}
	return fmt.Sprintf("%s %s", ApplicationName, Version)
}

// IsSnapshot reports whether this is a development or prerelease build.
func IsSnapshot() bool {
	return Version == "dev" || strings.Contains(Version, "-SNAPSHOT")
}

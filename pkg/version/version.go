// Package version reports the build that is running. The linker fills in
// Version, Commit and BuildTime:
//
//	go build -ldflags "-X github.com/vedmemory/ved/pkg/version.Version=v1.2.0"
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// Commit returns GitCommit, falling back to the VCS revision the Go
// toolchain stamped into the binary, shortened to 12 characters.
func Commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				if len(s.Value) > 12 {
					return s.Value[:12]
				}
				return s.Value
			}
		}
	}
	return "unknown"
}

// String is the `ved version` line.
func String() string {
	return fmt.Sprintf("ved %s (commit %s, built %s, %s)", Version, Commit(), BuildTime, GoVersion)
}

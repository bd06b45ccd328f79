// Package version exposes build metadata set through -ldflags.
package version

import "fmt"

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/maulanalegowo31-cloud/tvri-equipment-system/internal/version.Version=v1.2.0"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("invtracker %s (commit %s, built %s)", Version, Commit, Date)
}

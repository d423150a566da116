// Package version holds build information, set with -ldflags -X.
package version

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

package version

import (
	"fmt"
	"runtime"
)

// These variables are intended to be set at build time via -ldflags.
// Defaults are useful for local development builds.
var (
	// Version is the semantic version of the build, e.g. v0.1.0. Defaults to "dev".
	Version = "dev"
	// Commit is the short git commit hash. Defaults to ""
	Commit = ""
	// Date is the build timestamp in RFC3339. Defaults to ""
	Date = ""
	// Go is the Go toolchain version used for the build.
	Go = runtime.Version()
)

// Info returns a map of version/build metadata suitable for logging.
func Info() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
		"go":      Go,
	}
}

// UserAgent renders the User-Agent the client sends, e.g.
// "apiclient/v0.1.0 (abc1234; go1.26)".
func UserAgent(product string) string {
	if Commit == "" {
		return fmt.Sprintf("%s/%s (%s)", product, Version, Go)
	}
	return fmt.Sprintf("%s/%s (%s; %s)", product, Version, Commit, Go)
}

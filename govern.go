package govern

import "runtime"

// Build info, overridden by -ldflags at release time.
var (
	CurrentVersion = "0.1.0"
	CurrentBranch  = "dev"
	CurrentCommit  = "unknown"
	BuildDate      = "unknown"
	Platform       = runtime.GOOS + "/" + runtime.GOARCH
	GoVersion      = runtime.Version()
)

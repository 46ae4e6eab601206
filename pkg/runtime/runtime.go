package runtime

var (
	// These variables are set at build time via ldflags
	Version   = "0.0.0-dev"
	GitCommit = "none"
	Timestamp = "unknown"
)

package version

// Set at build time with -ldflags "-X".
var (
	Version   = "UNKNOWN"
	GitCommit = "UNKNOWN"
)

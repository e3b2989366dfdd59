package version

var (
	// Version is the current application version, set via ldflags.
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the version for startup banners.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}

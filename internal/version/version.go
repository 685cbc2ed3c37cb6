package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Version is set at build time with:
// -ldflags "-X github.com/izzyreal/wishjournal/internal/version.Version=vX.Y.Z"
var Version = "dev"

func Current() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		return "dev"
	}
	return v
}

// IsRelease reports whether the running binary was stamped with a semantic
// version rather than a development build.
func IsRelease() bool {
	v := Current()
	return semver.IsValid(v) && semver.Prerelease(v) == ""
}

// Short returns the major.minor form used in page footers, or "dev".
func Short() string {
	v := Current()
	if !semver.IsValid(v) {
		return "dev"
	}
	return semver.MajorMinor(v)
}

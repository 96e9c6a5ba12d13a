package version

import (
	"sync"

	"github.com/Masterminds/semver/v3"
)

var (
	parseOnce     sync.Once
	parsedVersion *semver.Version
)

// resetParsedVersion clears the cached parsed version for testing.
func resetParsedVersion() {
	parseOnce = sync.Once{}
	parsedVersion = nil
}

// Parsed returns the parsed semantic version, or nil if unparseable.
// Queues and backups read it from several goroutines, so it is parsed
// once and cached.
func Parsed() *semver.Version {
	parseOnce.Do(func() {
		if v, err := semver.NewVersion(Version); err == nil {
			parsedVersion = v
		}
	})
	return parsedVersion
}

// IsDevBuild returns true if this is a development build (no valid semver).
func IsDevBuild() bool {
	return Parsed() == nil
}

// Compare returns -1, 0 or 1 as the running version is older than, equal
// to or newer than other. Unparseable versions compare equal.
func Compare(other string) int {
	current := Parsed()
	if current == nil {
		return 0
	}

	otherV, err := semver.NewVersion(other)
	if err != nil {
		return 0
	}

	return current.Compare(otherV)
}

// WrittenByNewer reports whether data stamped with appVersion was written
// by a newer release than the running one. Dev builds and unparseable
// stamps never count as newer.
func WrittenByNewer(appVersion string) bool {
	return Compare(appVersion) < 0
}

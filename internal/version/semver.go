package version

import (
	"strconv"
	"strings"
)

// parseSemver extracts the numeric core of a version string. Prerelease and
// build metadata are stripped; missing components default to zero.
func parseSemver(v string) [3]int {
	v = strings.TrimPrefix(v, "v")

	// Strip build metadata, then prerelease
	if i := strings.IndexByte(v, '+'); i >= 0 {
		v = v[:i]
	}
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}

	var out [3]int
	parts := strings.Split(v, ".")
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return [3]int{}
		}
		out[i] = n
	}
	return out
}

// isNewer reports whether latest is strictly newer than current, comparing
// only the numeric core.
func isNewer(latest, current string) bool {
	l, c := parseSemver(latest), parseSemver(current)
	for i := 0; i < 3; i++ {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

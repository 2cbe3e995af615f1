package update

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// VersionPolicy decides whether a published version counts as an update.
type VersionPolicy int

const (
	// PolicyDiffers reports an update whenever the published version string
	// differs from the running one, including downgrades.
	PolicyDiffers VersionPolicy = iota
	// PolicyNewer reports an update only for a semantically greater version.
	// Versions that do not parse fall back to PolicyDiffers.
	PolicyNewer
)

// ParseVersionPolicy maps a config value onto a policy. Unknown values
// select PolicyDiffers.
func ParseVersionPolicy(s string) VersionPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "newer") {
		return PolicyNewer
	}
	return PolicyDiffers
}

// String returns the config spelling of the policy.
func (p VersionPolicy) String() string {
	if p == PolicyNewer {
		return "newer"
	}
	return "differs"
}

// Available applies the policy to a published and a running version.
func (p VersionPolicy) Available(published, current string) bool {
	if p == PolicyNewer {
		pub, errPub := ParseVersion(published)
		cur, errCur := ParseVersion(current)
		if errPub == nil && errCur == nil {
			return cur.LessThan(pub)
		}
	}
	return published != current
}

// Version is a parsed semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Raw        string
}

var semverPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([0-9A-Za-z.-]+))?(?:\+[0-9A-Za-z.-]+)?$`)

// ParseVersion parses "1.2.3", "v1.2.3", "1.2.3-beta.1" and "1.2.3+build".
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("empty version string")
	}
	m := semverPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version format: %s", s)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return Version{Major: major, Minor: minor, Patch: patch, Prerelease: m[4], Raw: s}, nil
}

// String returns the canonical form without a leading "v".
func (v Version) String() string {
	base := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		return base + "-" + v.Prerelease
	}
	return base
}

// Compare returns -1, 0 or 1. A prerelease sorts before its release.
func (v Version) Compare(other Version) int {
	for _, pair := range [][2]int{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}} {
		if c := compareInt(pair[0], pair[1]); c != 0 {
			return c
		}
	}
	return comparePrerelease(v.Prerelease, other.Prerelease)
}

// LessThan reports v < other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// comparePrerelease orders dot-separated identifiers: numeric ones
// numerically, others lexically, numeric before alphanumeric.
func comparePrerelease(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aErr := strconv.Atoi(as[i])
		bn, bErr := strconv.Atoi(bs[i])
		switch {
		case aErr == nil && bErr == nil:
			if c := compareInt(an, bn); c != 0 {
				return c
			}
		case aErr == nil:
			return -1
		case bErr == nil:
			return 1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return compareInt(len(as), len(bs))
}

package hoststate

import (
	"fmt"
)

// VersionNumber is a dotted server version of the form major.minor[.patch].
// Versions are ordered lexicographically over the (major, minor, patch)
// triple. The zero value represents an unknown version.
type VersionNumber struct {
	Major int
	Minor int
	Patch int
}

// V is a shorthand constructor for a VersionNumber.
func V(major, minor, patch int) VersionNumber {
	return VersionNumber{
		Major: major,
		Minor: minor,
		Patch: patch,
	}
}

// ParseVersion parses a version string of the form major.minor[.patch]. At
// least the major and minor components must be present for the parse to
// succeed; a missing patch component defaults to zero. Trailing text after a
// valid prefix is ignored, so pre-release suffixes such as "3.0.0-beta1"
// parse cleanly.
func ParseVersion(s string) (VersionNumber, error) {
	var nums [3]int

	read := 0
	rest := s
	for read < 3 {
		n, tail, ok := scanDecimal(rest)
		if !ok {
			break
		}

		nums[read] = n
		read++

		if len(tail) == 0 || tail[0] != '.' {
			break
		}
		rest = tail[1:]
	}

	if read < 2 {
		return VersionNumber{}, fmt.Errorf("malformed version "+
			"string %q", s)
	}

	return VersionNumber{
		Major: nums[0],
		Minor: nums[1],
		Patch: nums[2],
	}, nil
}

// scanDecimal reads a leading run of decimal digits from s, returning the
// parsed value and the remaining tail.
func scanDecimal(s string) (int, string, bool) {
	i := 0
	n := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	if i == 0 {
		return 0, s, false
	}

	return n, s[i:], true
}

// Compare returns -1, 0 or 1 depending on whether v is ordered before, equal
// to, or after other.
func (v VersionNumber) Compare(other VersionNumber) int {
	switch {
	case v.Major != other.Major:
		return cmpInt(v.Major, other.Major)
	case v.Minor != other.Minor:
		return cmpInt(v.Minor, other.Minor)
	default:
		return cmpInt(v.Patch, other.Patch)
	}
}

// Less returns true if v is ordered strictly before other.
func (v VersionNumber) Less(other VersionNumber) bool {
	return v.Compare(other) < 0
}

// AtLeast returns true if v is ordered at or after other.
func (v VersionNumber) AtLeast(other VersionNumber) bool {
	return v.Compare(other) >= 0
}

// String returns the dotted form of the version.
func (v VersionNumber) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

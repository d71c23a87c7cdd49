package debext

import (
	"errors"
	"strconv"
	"strings"
)

// ErrEmptyVersion and ErrUpstreamNotDigitPrefixed are the malformed-version
// conditions ValidateVersion reports.
var (
	ErrEmptyVersion             = errors.New("version string is empty")
	ErrUpstreamNotDigitPrefixed = errors.New("upstream version does not begin with a digit")
)

// VersionComponents represents the parsed components of a Debian package version
type VersionComponents struct {
	Epoch    string // Optional epoch (empty if not present)
	Upstream string // The upstream version
	Revision string // Optional Debian revision (empty if not present)
}

// ParseVersion parses a Debian package version string into its components.
// Debian version format: [epoch:]upstream-version[-debian-revision]
// The debian-revision is the portion after the last hyphen.
func ParseVersion(version string) VersionComponents {
	result := VersionComponents{}

	// Extract debian revision (everything after last "-")
	if idx := strings.LastIndex(version, "-"); idx != -1 {
		result.Revision = version[idx+1:]
		version = version[:idx]
	}

	// Extract epoch if present (everything before and including first ":")
	if idx := strings.Index(version, ":"); idx != -1 {
		result.Epoch = version[:idx]
		version = version[idx+1:]
	}

	// What remains is the upstream version
	result.Upstream = version

	return result
}

// String reconstructs the original version string from its components.
func (v VersionComponents) String() string {
	var b strings.Builder
	if v.Epoch != "" {
		b.WriteString(v.Epoch)
		b.WriteByte(':')
	}
	b.WriteString(v.Upstream)
	if v.Revision != "" {
		b.WriteByte('-')
		b.WriteString(v.Revision)
	}
	return b.String()
}

// ValidateVersion reports whether version is syntactically well-formed per
// Debian policy: non-empty, with an upstream portion beginning with a digit.
// CompareVersions itself never errors (it orders any string, permissively);
// this is the boundary-facing check callers use before trusting a version
// pulled from an external index.
func ValidateVersion(version string) error {
	if version == "" {
		return ErrEmptyVersion
	}
	upstream := ParseVersion(version).Upstream
	if upstream == "" || upstream[0] < '0' || upstream[0] > '9' {
		return ErrUpstreamNotDigitPrefixed
	}
	return nil
}

// DebianRevision returns the debian-revision component of a version string,
// or the empty string if the version carries no revision (native package).
func DebianRevision(version string) string {
	return ParseVersion(version).Revision
}

// CompareVersions compares two Debian package version strings following
// dpkg's ordering: epoch, upstream version, debian revision, each compared
// as an alternating sequence of non-digit and digit runs. Returns a negative
// number if a < b, zero if equal, positive if a > b.
func CompareVersions(a, b string) int {
	va, vb := ParseVersion(a), ParseVersion(b)

	if cmp := compareEpoch(va.Epoch, vb.Epoch); cmp != 0 {
		return cmp
	}
	if cmp := compareVersionSegments(va.Upstream, vb.Upstream); cmp != 0 {
		return cmp
	}
	return compareVersionSegments(va.Revision, vb.Revision)
}

// compareEpoch compares epoch strings numerically; missing epoch is 0.
func compareEpoch(a, b string) int {
	ea, eb := parseVersionInt(a), parseVersionInt(b)
	switch {
	case ea < eb:
		return -1
	case ea > eb:
		return 1
	default:
		return 0
	}
}

// compareVersionSegments compares upstream or revision strings using dpkg's
// alternating non-digit/digit comparison rules.
func compareVersionSegments(a, b string) int {
	i, j := 0, 0

	for i < len(a) || j < len(b) {
		nonDigitA, lenA := extractVersionPart(a, i, false)
		nonDigitB, lenB := extractVersionPart(b, j, false)

		if cmp := debianLexicalCompareVersion(nonDigitA, nonDigitB); cmp != 0 {
			return cmp
		}
		i += lenA
		j += lenB

		digitA, lenA := extractVersionPart(a, i, true)
		digitB, lenB := extractVersionPart(b, j, true)

		numA := parseVersionInt(digitA)
		numB := parseVersionInt(digitB)

		if numA != numB {
			if numA < numB {
				return -1
			}
			return 1
		}
		i += lenA
		j += lenB
	}

	return 0
}

// extractVersionPart extracts a run of digit (or non-digit) characters starting at start.
func extractVersionPart(s string, start int, isDigit bool) (string, int) {
	end := start
	for end < len(s) {
		r := rune(s[end])
		digit := r >= '0' && r <= '9'
		if digit != isDigit {
			break
		}
		end++
	}
	return s[start:end], end - start
}

// debianLexicalCompareVersion implements dpkg's lexical ordering: '~' sorts
// before everything including end-of-string, letters sort before non-letters,
// otherwise plain ASCII order.
func debianLexicalCompareVersion(a, b string) int {
	i, j := 0, 0

	for i < len(a) || j < len(b) {
		var ca, cb rune
		if i < len(a) {
			ca = rune(a[i])
		}
		if j < len(b) {
			cb = rune(b[j])
		}

		if ca == '~' && cb != '~' {
			return -1
		}
		if ca != '~' && cb == '~' {
			return 1
		}

		if ca == 0 {
			if cb == 0 {
				return 0
			}
			return -1
		}
		if cb == 0 {
			return 1
		}

		aLetter := (ca >= 'A' && ca <= 'Z') || (ca >= 'a' && ca <= 'z')
		bLetter := (cb >= 'A' && cb <= 'Z') || (cb >= 'a' && cb <= 'z')

		if aLetter != bLetter {
			if aLetter {
				return -1
			}
			return 1
		}

		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}

		i++
		j++
	}

	return 0
}

// parseVersionInt converts a digit-run string to int; empty string is 0.
func parseVersionInt(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

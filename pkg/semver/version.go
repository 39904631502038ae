// Package semver validates marketplace entry versions and dependency ranges.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:version"

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// ErrEmpty is returned for a blank version or range.
var ErrEmpty = errors.New("empty version")

// ParseVersion parses an exact entry version such as "1.4.0" or "v2.0.0-rc.1".
func ParseVersion(raw string) (*masterminds.Version, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if s == "" {
		return nil, ErrEmpty
	}
	v, err := masterminds.StrictNewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version %q: %w", logPrefix, raw, err)
	}
	return v, nil
}

// IsMajorOnly reports whether a range is a bare major such as "3".
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// ValidateRange checks a dependency range. A bare major, an exact version and any
// constraint accepted by Masterminds are valid.
func ValidateRange(rangeStr string) error {
	r := strings.TrimSpace(rangeStr)
	if r == "" {
		return ErrEmpty
	}
	if IsMajorOnly(r) {
		return nil
	}
	if _, err := masterminds.NewConstraint(r); err != nil {
		return fmt.Errorf("%s - invalid range %q: %w", logPrefix, rangeStr, err)
	}
	return nil
}

// SatisfiesRange reports whether version falls within rangeStr. Unparseable input never
// satisfies.
func SatisfiesRange(version, rangeStr string) bool {
	sv, err := ParseVersion(version)
	if err != nil {
		return false
	}
	r := strings.TrimSpace(rangeStr)
	if IsMajorOnly(r) {
		return fmt.Sprintf("%d", sv.Major()) == r
	}
	constraint, err := masterminds.NewConstraint(r)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}

// IsUpgrade reports whether next is strictly greater than prev.
func IsUpgrade(prev, next string) (bool, error) {
	pv, err := ParseVersion(prev)
	if err != nil {
		return false, err
	}
	nv, err := ParseVersion(next)
	if err != nil {
		return false, err
	}
	return nv.GreaterThan(pv), nil
}

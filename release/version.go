// Package release manages the project's semantic version: version.txt, the
// README version badge and CHANGELOG entries.
package release

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"golang.org/x/mod/semver"
)

var (
	ErrInvalidVersion = errors.New("invalid version format")
	ErrInvalidBump    = errors.New("invalid bump type")
)

// Bump kinds.
const (
	Major = "major"
	Minor = "minor"
	Patch = "patch"
)

var versionPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)$`)

// Version is a MAJOR.MINOR.PATCH release number.
type Version struct {
	Major, Minor, Patch int
}

// Parse accepts X.Y.Z with an optional leading v.
func Parse(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	var v Version
	var err error
	if v.Major, err = strconv.Atoi(m[1]); err != nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	if v.Minor, err = strconv.Atoi(m[2]); err != nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	if v.Patch, err = strconv.Atoi(m[3]); err != nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	return v, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Tag is the version with a leading v, as used in tags and the changelog.
func (v Version) Tag() string { return "v" + v.String() }

// Bump returns the next version for kind. Major and minor bumps reset the
// lower components.
func (v Version) Bump(kind string) (Version, error) {
	switch kind {
	case Major:
		return Version{Major: v.Major + 1}, nil
	case Minor:
		return Version{Major: v.Major, Minor: v.Minor + 1}, nil
	case Patch:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}, nil
	default:
		return Version{}, fmt.Errorf("%w: %q (use major, minor or patch)", ErrInvalidBump, kind)
	}
}

// Compare returns -1, 0 or +1 following semantic version precedence.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.Tag(), o.Tag())
}

// Package pkgid defines package identities and version ranges.
//
// An identity is an (id, version) pair naming one immutable package release.
// Identities without a version are requests: they must be resolved to a
// concrete version before they can be installed or compared for equality
// against installed state.
//
// The wire syntax is "<id>" or "<id>::<version>" with a double-colon
// delimiter, e.g. "Demo.Lib::1.2.0". Ids compare case-insensitively;
// versions compare exactly.
package pkgid

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/quantlab/pkgref/pkg/errors"
)

// Delimiter separates the id from the version in the textual form.
const Delimiter = "::"

// Identity names one package release. Version is nil for an unpinned
// request. Identities are immutable once constructed.
type Identity struct {
	ID      string
	Version *semver.Version
}

// New creates an identity from an id and an optional version.
func New(id string, version *semver.Version) Identity {
	return Identity{ID: strings.TrimSpace(id), Version: version}
}

// Parse parses "<id>" or "<id>::<version>".
func Parse(spec string) (Identity, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Identity{}, errors.New(errors.ErrCodeInvalidPackage, "empty package name")
	}

	id, rest, found := strings.Cut(spec, Delimiter)
	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, errors.New(errors.ErrCodeInvalidPackage, "invalid package name: %q", spec)
	}
	if !found {
		return Identity{ID: id}, nil
	}

	v, err := semver.NewVersion(strings.TrimSpace(rest))
	if err != nil {
		return Identity{}, errors.Wrap(errors.ErrCodeInvalidPackage, err, "invalid version in %q", spec)
	}
	return Identity{ID: id, Version: v}, nil
}

// String renders the identity as "<id>::<version>", or just the id when
// no version is set.
func (i Identity) String() string {
	if i.Version == nil {
		return i.ID
	}
	return i.ID + Delimiter + i.Version.String()
}

// Key returns a normalized map key: lowercase id plus exact version.
// Two identities are equal iff their keys are equal.
func (i Identity) Key() string {
	if i.Version == nil {
		return strings.ToLower(i.ID)
	}
	return strings.ToLower(i.ID) + Delimiter + i.Version.String()
}

// Equal reports whether both identities name the same release.
// Ids compare case-insensitively, versions exactly.
func (i Identity) Equal(other Identity) bool {
	if !strings.EqualFold(i.ID, other.ID) {
		return false
	}
	if i.Version == nil || other.Version == nil {
		return i.Version == other.Version
	}
	return i.Version.Equal(other.Version)
}

// SameID reports whether both identities share a package id,
// ignoring versions.
func (i Identity) SameID(other Identity) bool {
	return strings.EqualFold(i.ID, other.ID)
}

// Pinned reports whether the identity carries a concrete version.
func (i Identity) Pinned() bool { return i.Version != nil }

// Range is a version constraint a dependent places on a dependency.
type Range struct {
	raw string
	c   *semver.Constraints
}

// ParseRange parses a constraint expression such as ">=1.0.0" or
// "1.2.x". An empty expression means "any version".
func ParseRange(expr string) (Range, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Range{raw: "", c: nil}, nil
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return Range{}, errors.Wrap(errors.ErrCodeInvalidPackage, err, "invalid version range %q", expr)
	}
	return Range{raw: expr, c: c}, nil
}

// ExactRange returns a range satisfied only by v. Used to express fixed
// constraints such as "this version is already installed".
func ExactRange(v *semver.Version) Range {
	c, _ := semver.NewConstraint("=" + v.String())
	return Range{raw: "=" + v.String(), c: c}
}

// MustRange is like [ParseRange] but panics on a malformed expression.
// Intended for tests and compile-time constants.
func MustRange(expr string) Range {
	r, err := ParseRange(expr)
	if err != nil {
		panic(err)
	}
	return r
}

// Satisfies reports whether v is inside the range. A zero Range admits
// every version.
func (r Range) Satisfies(v *semver.Version) bool {
	if v == nil {
		return false
	}
	if r.c == nil {
		return true
	}
	return r.c.Check(v)
}

// String returns the original constraint expression.
func (r Range) String() string {
	if r.raw == "" {
		return "*"
	}
	return r.raw
}

// MinVersion extracts the lower bound of the range, if one is stated.
// For expressions like ">=1.2.0" or "1.2.0" it returns 1.2.0; ranges with
// no floor (e.g. "<2.0.0" or "*") return nil. Discovery uses this to query
// a dependency at its minimum satisfying version, conservatively.
func (r Range) MinVersion() *semver.Version {
	var floor *semver.Version
	for _, part := range strings.FieldsFunc(r.raw, func(c rune) bool {
		return c == ',' || c == ' ' || c == '|'
	}) {
		if strings.HasPrefix(part, "<") || strings.HasPrefix(part, "!=") {
			continue
		}
		part = strings.TrimLeft(part, ">=^~")
		v, err := semver.NewVersion(part)
		if err != nil {
			continue
		}
		if floor == nil || v.LessThan(floor) {
			floor = v
		}
	}
	if floor != nil && !r.Satisfies(floor) {
		// Strict bounds like ">1.0.0" exclude the floor itself.
		return nil
	}
	return floor
}

// MinSatisfying returns the lowest version among candidates that satisfies
// the range, or nil if none does. Candidates need not be sorted.
func (r Range) MinSatisfying(candidates []*semver.Version) *semver.Version {
	var best *semver.Version
	for _, v := range candidates {
		if !r.Satisfies(v) {
			continue
		}
		if best == nil || v.LessThan(best) {
			best = v
		}
	}
	return best
}

// Dependency is one declared edge in a package's dependency list.
type Dependency struct {
	ID    string
	Range Range
}

// String renders the dependency as "id (range)".
func (d Dependency) String() string {
	return fmt.Sprintf("%s (%s)", d.ID, d.Range)
}

// Package universe holds the set of packages discovered during dependency
// resolution.
//
// The universe is the candidate pool the version resolver works over: every
// DependencyInfo record ever fetched from a repository, keyed by identity.
// It grows monotonically for the process lifetime; records are never
// removed or re-fetched. Several versions of the same package id may
// coexist (a diamond with two required versions of one id is valid input).
package universe

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/quantlab/pkgref/pkg/pkgid"
)

// Origin is the repository a DependencyInfo record came from. The
// installer calls back into it to download the package payload.
type Origin interface {
	Name() string
	Download(ctx context.Context, id pkgid.Identity, w io.Writer) error
}

// DependencyInfo is the result of querying one repository for one
// identity. Immutable once constructed.
type DependencyInfo struct {
	Identity     pkgid.Identity
	Dependencies []pkgid.Dependency
	Source       Origin
	Listed       bool
}

// Universe is the monotonically growing set of discovered packages.
// Safe for concurrent use; mutation takes a single coarse lock since
// contention is low and correctness matters more than parallelism here.
type Universe struct {
	mu    sync.RWMutex
	infos map[string]*DependencyInfo // keyed by Identity.Key()
	order []string                   // insertion order, for diagnostics
}

// New creates an empty universe.
func New() *Universe {
	return &Universe{infos: make(map[string]*DependencyInfo)}
}

// Add records info unless its identity is already present.
// Returns true if the record was inserted.
func (u *Universe) Add(info *DependencyInfo) bool {
	key := info.Identity.Key()
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.infos[key]; ok {
		return false
	}
	u.infos[key] = info
	u.order = append(u.order, key)
	return true
}

// Get returns the record for an exact identity.
func (u *Universe) Get(id pkgid.Identity) (*DependencyInfo, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	info, ok := u.infos[id.Key()]
	return info, ok
}

// Contains reports whether the exact identity has been discovered.
func (u *Universe) Contains(id pkgid.Identity) bool {
	_, ok := u.Get(id)
	return ok
}

// Versions returns all discovered versions of a package id, ascending.
func (u *Universe) Versions(id string) []*semver.Version {
	var out []*semver.Version
	for _, info := range u.ByID(id) {
		out = append(out, info.Identity.Version)
	}
	return out
}

// ByID returns every record sharing the package id, sorted by ascending
// version. The sort makes resolution deterministic regardless of
// discovery order.
func (u *Universe) ByID(id string) []*DependencyInfo {
	probe := pkgid.New(id, nil)
	u.mu.RLock()
	var out []*DependencyInfo
	for _, info := range u.infos {
		if info.Identity.SameID(probe) {
			out = append(out, info)
		}
	}
	u.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.Version.LessThan(out[j].Identity.Version)
	})
	return out
}

// Highest returns the highest-version record for a package id.
func (u *Universe) Highest(id string) (*DependencyInfo, bool) {
	all := u.ByID(id)
	if len(all) == 0 {
		return nil, false
	}
	return all[len(all)-1], true
}

// IDs returns the distinct package ids present, sorted case-insensitively.
func (u *Universe) IDs() []string {
	u.mu.RLock()
	seen := make(map[string]string)
	for _, info := range u.infos {
		key := pkgid.New(info.Identity.ID, nil).Key()
		if _, ok := seen[key]; !ok {
			seen[key] = info.Identity.ID
		}
	}
	u.mu.RUnlock()

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}

// Len returns the number of discovered records.
func (u *Universe) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.infos)
}

package repo

import (
	"context"
	"io"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/install"
	"github.com/quantlab/pkgref/pkg/pkgid"
	"github.com/quantlab/pkgref/pkg/universe"
)

// CacheSource answers dependency queries from the local on-disk package
// cache. It is always the first source in enumerator order, which gives
// resolution its cache-affinity property: a package that was ever
// downloaded is found again without a network round trip.
type CacheSource struct {
	cache *install.Cache
}

// NewCacheSource wraps the package cache as a repository source.
func NewCacheSource(cache *install.Cache) *CacheSource {
	return &CacheSource{cache: cache}
}

// Name identifies the cache in logs and diagnostics.
func (s *CacheSource) Name() string { return "cache:" + s.cache.Root() }

// DependencyInfo answers from installed package manifests. Unpinned
// requests resolve to the highest cached version.
func (s *CacheSource) DependencyInfo(ctx context.Context, id pkgid.Identity) (*universe.DependencyInfo, error) {
	resolved := id
	if !id.Pinned() {
		versions := s.cache.Versions(id.ID)
		if len(versions) == 0 {
			return nil, s.notFound(id)
		}
		resolved = pkgid.New(id.ID, versions[len(versions)-1])
	}

	if !s.cache.Contains(resolved) {
		return nil, s.notFound(resolved)
	}
	m, err := s.cache.Manifest(resolved)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProtocol, err, "cache entry for %s is unreadable", resolved)
	}
	deps, err := m.DependencyList()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProtocol, err, "cache entry for %s has malformed dependencies", resolved)
	}

	return &universe.DependencyInfo{
		Identity:     m.Identity(),
		Dependencies: deps,
		Source:       s,
		Listed:       m.Listed,
	}, nil
}

// Download is never reached for cached packages: the installer skips any
// identity the cache already contains before asking its source for a
// payload. It exists to satisfy the Source interface.
func (s *CacheSource) Download(ctx context.Context, id pkgid.Identity, w io.Writer) error {
	return errors.New(errors.ErrCodeInternal, "cache holds extracted packages, nothing to download for %s", id.String())
}

func (s *CacheSource) notFound(id pkgid.Identity) error {
	return errors.New(errors.ErrCodePackageNotFound, "%s not in local cache", id.String())
}

var _ Source = (*CacheSource)(nil)

package resolve

import (
	"strings"

	"github.com/charmbracelet/log"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/pkgid"
	"github.com/quantlab/pkgref/pkg/universe"
)

// cachedNewest is the degraded-mode strategy. When no consistent
// assignment exists it gives up on range satisfaction and takes, for
// every package in the dependency closure, the newest version already
// present in the local package cache. Anything never cached falls back
// to the newest discovered version.
//
// The trade-off is deliberate: a loadable-if-slightly-mismatched set of
// assemblies beats a hard failure for interactive sessions, and the
// cache only ever contains packages that installed cleanly before.
type cachedNewest struct {
	logger *log.Logger
}

func (s *cachedNewest) Name() string { return "cached-newest" }

func (s *cachedNewest) Resolve(req Request) ([]*universe.DependencyInfo, error) {
	target, ok := req.Universe.Get(req.Target)
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsatisfiable,
			"target %s absent from discovered metadata", req.Target.String())
	}

	out := []*universe.DependencyInfo{target}
	targetKey := strings.ToLower(req.Target.ID)

	for _, id := range req.Universe.IDs() {
		if strings.ToLower(id) == targetKey {
			continue
		}
		newest, ok := req.Universe.Highest(id)
		if !ok {
			continue
		}
		pick := newest
		if req.Cache != nil {
			if cached := req.Cache.Versions(id); len(cached) > 0 {
				want := pkgid.New(newest.Identity.ID, cached[len(cached)-1])
				if info, ok := req.Universe.Get(want); ok {
					pick = info
				} else {
					// Cached version was never seen during discovery.
					// Keep its version but reuse the newest entry's
					// dependency list and origin.
					clone := *newest
					clone.Identity = want
					pick = &clone
				}
				s.logger.Debug("substituting cached version", "package", pick.Identity.String())
			}
		}
		out = append(out, pick)
	}
	return out, nil
}

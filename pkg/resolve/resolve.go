// Package resolve computes a consistent install set for a package request.
//
// Resolution is a pipeline of strategies tried in order. Each strategy
// either produces a definitive install set or reports that it could not
// resolve, handing over to the next one:
//
//  1. lowest-compatible: a backtracking constraint solver that picks at
//     most one version per distinct package id across the whole closure,
//     preferring the lowest version satisfying every range.
//  2. cached-newest: a degraded fallback used when the metadata graph is
//     itself inconsistent; it keeps the tool usable by falling back to
//     the newest locally cached version of each id.
//
// Both strategies are deterministic given identical universe and cache
// contents. Only an empty universe is unrecoverable.
package resolve

import (
	"github.com/Masterminds/semver/v3"

	"github.com/charmbracelet/log"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/pkgid"
	"github.com/quantlab/pkgref/pkg/universe"
)

// CacheIndex lists locally cached versions of a package id, ascending.
// Implemented by the install cache.
type CacheIndex interface {
	Versions(id string) []*semver.Version
}

// Request carries the three resolution inputs: the just-requested target,
// the identities already installed in the process (version floors, since
// downgrading something already loaded is unsafe), and the discovered
// universe. Cache backs the fallback strategy.
type Request struct {
	Target    pkgid.Identity
	Installed []pkgid.Identity
	Universe  *universe.Universe
	Cache     CacheIndex
}

// Strategy is one resolution attempt. A strategy that cannot produce an
// assignment returns an UNSATISFIABLE_CONSTRAINTS error, which the
// pipeline treats as "try the next strategy" rather than a failure.
type Strategy interface {
	Name() string
	Resolve(req Request) ([]*universe.DependencyInfo, error)
}

// Resolver runs the strategy pipeline.
type Resolver struct {
	strategies []Strategy
	logger     *log.Logger
}

// NewResolver creates the standard two-tier pipeline.
// A nil logger falls back to log.Default().
func NewResolver(logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		strategies: []Strategy{&lowestCompatible{}, &cachedNewest{logger: logger}},
		logger:     logger,
	}
}

// Resolve flattens the request into an ordered, conflict-free install
// set. The fallback strategy only runs after the primary solver reports
// unsatisfiable constraints; its use is logged.
func (r *Resolver) Resolve(req Request) ([]*universe.DependencyInfo, error) {
	var lastErr error
	for i, s := range r.strategies {
		set, err := s.Resolve(req)
		if err == nil {
			return set, nil
		}
		if !errors.Is(err, errors.ErrCodeUnsatisfiable) {
			return nil, err
		}
		lastErr = err
		if i < len(r.strategies)-1 {
			r.logger.Warn("resolution strategy could not satisfy constraints, falling back",
				"strategy", s.Name(), "target", req.Target.String(), "err", errors.UserMessage(err))
		}
	}
	return nil, lastErr
}

package resolve

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/pkgid"
	"github.com/quantlab/pkgref/pkg/universe"
)

// lowestCompatible is the primary backtracking solver. It walks the
// dependency closure of the target, assigning at most one version per
// distinct package id and preferring the lowest version that satisfies
// every accumulated range.
//
// Installed identities act as version floors: an id already loaded into
// the process may be resolved again at the same or a higher version, but
// never lower, since downgrading something already loaded is unsafe. The
// floor (rather than an exact pin) is what makes resolution order
// independent: requesting A (needs B>=1.0) and then C (needs B>=2.0)
// lands on the same B as the reverse order.
type lowestCompatible struct{}

func (s *lowestCompatible) Name() string { return "lowest-compatible" }

// demand is one pending constraint: some dependent needs id within rng.
type demand struct {
	id  string
	rng pkgid.Range
}

// solver carries the search state. assigned maps lowercase id to the
// chosen record; order remembers first-assignment order so the result is
// deterministic and roughly dependency-first.
type solver struct {
	u        *universe.Universe
	floors   map[string]*semver.Version
	assigned map[string]*universe.DependencyInfo
	order    []string
}

func (s *lowestCompatible) Resolve(req Request) ([]*universe.DependencyInfo, error) {
	if !req.Target.Pinned() {
		return nil, errors.New(errors.ErrCodeInternal, "resolve requires a pinned target, got %s", req.Target.String())
	}

	floors := make(map[string]*semver.Version, len(req.Installed))
	for _, inst := range req.Installed {
		if !inst.Pinned() {
			continue
		}
		key := strings.ToLower(inst.ID)
		if cur, ok := floors[key]; !ok || cur.LessThan(inst.Version) {
			floors[key] = inst.Version
		}
	}

	sv := &solver{
		u:        req.Universe,
		floors:   floors,
		assigned: make(map[string]*universe.DependencyInfo),
	}

	root := demand{id: req.Target.ID, rng: pkgid.ExactRange(req.Target.Version)}
	if !sv.search([]demand{root}) {
		return nil, errors.New(errors.ErrCodeUnsatisfiable,
			"no consistent version assignment for %s against installed packages", req.Target.String())
	}

	out := make([]*universe.DependencyInfo, 0, len(sv.order))
	for _, key := range sv.order {
		out = append(out, sv.assigned[key])
	}
	return out, nil
}

// search satisfies pending demands depth-first with backtracking.
func (sv *solver) search(pending []demand) bool {
	if len(pending) == 0 {
		return true
	}
	d := pending[0]
	rest := pending[1:]
	key := strings.ToLower(d.id)

	if info, ok := sv.assigned[key]; ok {
		// Already chosen; the existing choice must satisfy this range
		// too, otherwise the caller backtracks.
		return d.rng.Satisfies(info.Identity.Version) && sv.search(rest)
	}

	// Candidates come back sorted ascending, which makes "first match
	// wins" the lowest-compatible preference.
	for _, candidate := range sv.u.ByID(d.id) {
		if !d.rng.Satisfies(candidate.Identity.Version) {
			continue
		}
		if floor, ok := sv.floors[key]; ok && candidate.Identity.Version.LessThan(floor) {
			continue
		}

		sv.assigned[key] = candidate
		sv.order = append(sv.order, key)

		next := append(append([]demand{}, demandsOf(candidate)...), rest...)
		if sv.search(next) {
			return true
		}

		delete(sv.assigned, key)
		sv.order = sv.order[:len(sv.order)-1]
	}
	return false
}

func demandsOf(info *universe.DependencyInfo) []demand {
	out := make([]demand, 0, len(info.Dependencies))
	for _, dep := range info.Dependencies {
		out = append(out, demand{id: dep.ID, rng: dep.Range})
	}
	return out
}

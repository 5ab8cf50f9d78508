package universe

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/pkgid"
)

// Querier answers dependency-info queries for one repository.
// A query for an unpinned identity answers with the repository's own
// highest version; picking the latest across repositories is the
// discoverer's job. Not-found and protocol failures are distinguishable
// through error codes.
type Querier interface {
	Name() string
	DependencyInfo(ctx context.Context, id pkgid.Identity) (*DependencyInfo, error)
}

// Discoverer populates a universe by walking dependency metadata.
//
// Discovery is memoized on full identity, not bare package id: a diamond
// requiring two versions of one id must explore both. Already-explored
// identities are skipped for the process lifetime, which keeps repeated
// discovery of diamond-heavy graphs linear.
type Discoverer struct {
	universe *Universe
	logger   *log.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// NewDiscoverer creates a discoverer feeding the given universe.
// A nil logger falls back to log.Default().
func NewDiscoverer(u *Universe, logger *log.Logger) *Discoverer {
	if logger == nil {
		logger = log.Default()
	}
	return &Discoverer{
		universe: u,
		logger:   logger,
		seen:     make(map[string]bool),
	}
}

// Discover fetches dependency metadata for root and, transitively, for
// every declared dependency at its minimum satisfying version. Sources
// are tried in enumerator order. For a pinned identity the first
// successful answer wins; an unpinned request polls every source and
// keeps the highest version any of them offers. Either way a single
// source owns the winning record, so dependency lists are never merged
// across sources.
//
// Failures degrade per identity: a source raising a protocol error is
// logged and skipped; an identity no source can answer contributes no
// dependencies. Only the root is different — if no source knows it at
// all, Discover returns a not-found error, since the caller asked for it
// by name. The root's resolved record is returned on success.
func (d *Discoverer) Discover(ctx context.Context, root pkgid.Identity, sources []Querier) (*DependencyInfo, error) {
	rootInfo, err := d.explore(ctx, root, sources, true)
	if err != nil {
		return nil, err
	}

	work := dependencyRequests(rootInfo)
	for len(work) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := work[0]
		work = work[1:]

		info, err := d.explore(ctx, next, sources, false)
		if err != nil {
			return nil, err // context cancellation only
		}
		if info != nil {
			work = append(work, dependencyRequests(info)...)
		}
	}
	return rootInfo, nil
}

// explore queries one identity across all sources. Returns nil info (no
// error) when the identity was already explored or no source can answer
// a non-root request.
func (d *Discoverer) explore(ctx context.Context, id pkgid.Identity, sources []Querier, isRoot bool) (*DependencyInfo, error) {
	if !d.markSeen(id) {
		if !isRoot {
			return nil, nil
		}
		// Already explored in a previous call; answer from the universe.
		if info := d.lookup(id); info != nil {
			return info, nil
		}
		return nil, errors.New(errors.ErrCodePackageNotFound, "package not found in any repository: %s", id.String())
	}
	if id.Pinned() && d.universe.Contains(id) {
		if isRoot {
			info, _ := d.universe.Get(id)
			return info, nil
		}
		return nil, nil
	}

	// A pinned identity names one immutable release, so the first source
	// that knows it wins and later sources are not consulted. An unpinned
	// request asks for the latest release, which no single source can
	// answer: every source is polled and the highest offered version is
	// kept. Ties go to the earlier source in enumerator order.
	var best *DependencyInfo
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := src.DependencyInfo(ctx, id)
		if err != nil {
			if errors.Is(err, errors.ErrCodePackageNotFound) {
				continue
			}
			d.logger.Warn("repository query failed",
				"source", src.Name(), "package", id.String(), "err", err)
			continue
		}
		if id.Pinned() {
			best = info
			break
		}
		if best == nil || best.Identity.Version.LessThan(info.Identity.Version) {
			best = info
		}
	}
	if best != nil {
		d.universe.Add(best)
		d.markSeen(best.Identity) // pinned form of an unpinned request
		return best, nil
	}

	if isRoot {
		// Leave the root retryable: a later call may succeed once the
		// feed is reachable again.
		d.unmarkSeen(id)
		return nil, errors.New(errors.ErrCodePackageNotFound, "package not found in any repository: %s", id.String())
	}
	d.logger.Warn("no repository could answer; package contributes no dependencies", "package", id.String())
	return nil, nil
}

// lookup finds the best already-discovered record for a request.
func (d *Discoverer) lookup(id pkgid.Identity) *DependencyInfo {
	if id.Pinned() {
		info, _ := d.universe.Get(id)
		return info
	}
	info, _ := d.universe.Highest(id.ID)
	return info
}

// markSeen records that an identity has been explored. Returns false if
// it already was.
func (d *Discoverer) markSeen(id pkgid.Identity) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := id.Key()
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *Discoverer) unmarkSeen(id pkgid.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id.Key())
}

// dependencyRequests converts a record's declared dependencies into
// identity requests at their conservative minimum versions.
func dependencyRequests(info *DependencyInfo) []pkgid.Identity {
	if info == nil {
		return nil
	}
	out := make([]pkgid.Identity, 0, len(info.Dependencies))
	for _, dep := range info.Dependencies {
		out = append(out, pkgid.New(dep.ID, dep.Range.MinVersion()))
	}
	return out
}

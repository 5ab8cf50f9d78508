// Package refset maintains the live collection of binary artifacts
// available to the compiler.
//
// The Service owns the end-to-end add-package pipeline: discover the
// dependency closure, resolve it to an install set, materialize missing
// packages on disk, extract their artifacts, and merge them in. Mutations
// are serialized; reads work on immutable snapshots and never block.
package refset

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/quantlab/pkgref/pkg/artifact"
	"github.com/quantlab/pkgref/pkg/config"
	"github.com/quantlab/pkgref/pkg/install"
	"github.com/quantlab/pkgref/pkg/observability"
	"github.com/quantlab/pkgref/pkg/pkgid"
	"github.com/quantlab/pkgref/pkg/repo"
	"github.com/quantlab/pkgref/pkg/resolve"
	"github.com/quantlab/pkgref/pkg/universe"
)

// SourceProvider supplies the package sources to query, in priority
// order. Implemented by repo.Enumerator.
type SourceProvider interface {
	Sources(ctx context.Context) []repo.Source
}

// Options configures a Service.
type Options struct {
	// Baseline artifacts are present from construction and can never be
	// removed.
	Baseline []*artifact.Info

	Provider  SourceProvider
	Resolver  *resolve.Resolver
	Installer *install.Installer
	Extractor *artifact.Extractor
	Cache     *install.Cache
	Config    *config.Config
	Logger    *log.Logger
}

// snapshot is one immutable view of the reference set. Mutators build a
// new snapshot and swap the pointer; readers load whatever is current.
type snapshot struct {
	generation uint64
	assemblies []*artifact.Info
	packages   []pkgid.Identity
}

// Service is the process-wide reference set.
type Service struct {
	mu   sync.Mutex // serializes AddPackage and AddAssemblies
	snap atomic.Pointer[snapshot]

	metaMu sync.Mutex // at most one metadata recomputation at a time
	meta   atomic.Pointer[Metadata]

	universe  *universe.Universe
	disco     *universe.Discoverer
	provider  SourceProvider
	resolver  *resolve.Resolver
	installer *install.Installer
	extractor *artifact.Extractor
	cache     *install.Cache
	cfg       *config.Config
	logger    *log.Logger
}

// New creates a Service seeded with the baseline artifacts.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	u := universe.New()
	s := &Service{
		universe:  u,
		disco:     universe.NewDiscoverer(u, logger),
		provider:  opts.Provider,
		resolver:  opts.Resolver,
		installer: opts.Installer,
		extractor: opts.Extractor,
		cache:     opts.Cache,
		cfg:       cfg,
		logger:    logger,
	}
	s.snap.Store(&snapshot{
		generation: 1,
		assemblies: append([]*artifact.Info{}, opts.Baseline...),
	})
	return s
}

// Assemblies returns the current artifact list, baseline first, in merge
// order. The returned slice is shared and must not be modified.
func (s *Service) Assemblies() []*artifact.Info {
	return s.snap.Load().assemblies
}

// Packages lists the merged packages as id::version strings, in merge
// order.
func (s *Service) Packages() []string {
	snap := s.snap.Load()
	out := make([]string, 0, len(snap.packages))
	for _, id := range snap.packages {
		out = append(out, id.String())
	}
	return out
}

// AddAssemblies injects artifacts directly, bypassing the package
// pipeline. Used by bootstrap callers that load binaries themselves.
func (s *Service) AddAssemblies(infos ...*artifact.Info) {
	if len(infos) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merge(nil, infos)
}

// AddPackage runs the full pipeline for one named package, optionally
// pinned as "id::version", and merges the resulting artifacts. The
// returned identity is the version actually selected. On error the
// reference set is left exactly as it was.
func (s *Service) AddPackage(ctx context.Context, name string, progress install.ProgressFunc) (pkgid.Identity, error) {
	target, err := pkgid.Parse(name)
	if err != nil {
		return pkgid.Identity{}, err
	}
	target = s.applyPin(target)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	hooks := observability.Resolve()

	hooks.OnDiscoverStart(ctx, name)
	sources := s.provider.Sources(ctx)
	root, err := s.disco.Discover(ctx, target, repo.Queriers(sources))
	hooks.OnDiscoverComplete(ctx, name, s.universe.Len(), time.Since(start), err)
	if err != nil {
		return pkgid.Identity{}, err
	}

	resolveStart := time.Now()
	hooks.OnResolveStart(ctx, root.Identity.String(), s.universe.Len())
	set, err := s.resolver.Resolve(resolve.Request{
		Target:    root.Identity,
		Installed: s.snap.Load().packages,
		Universe:  s.universe,
		Cache:     s.cache,
	})
	hooks.OnResolveComplete(ctx, root.Identity.String(), len(set), time.Since(resolveStart), err)
	if err != nil {
		return pkgid.Identity{}, err
	}

	names := make([]string, 0, len(set))
	for _, info := range set {
		names = append(names, info.Identity.String())
	}
	installStart := time.Now()
	hooks.OnInstallStart(ctx, names)
	err = s.installer.Install(ctx, set, progress)
	hooks.OnInstallComplete(ctx, names, time.Since(installStart), err)
	if err != nil {
		return pkgid.Identity{}, err
	}

	merged := make(map[string]bool, len(s.snap.Load().packages))
	for _, id := range s.snap.Load().packages {
		merged[id.Key()] = true
	}

	var arts []*artifact.Info
	var added []pkgid.Identity
	for _, info := range set {
		if merged[info.Identity.Key()] {
			continue
		}
		list, err := s.extractor.Extract(info.Identity)
		if err != nil {
			return pkgid.Identity{}, err
		}
		arts = append(arts, list...)
		added = append(added, info.Identity)
	}
	s.merge(added, arts)

	duration := time.Since(start)
	s.logger.Info("package added",
		"package", root.Identity.String(), "assemblies", len(arts), "duration", duration)
	hooks.OnPackageAdded(ctx, uuid.NewString(), root.Identity.String(), duration)
	return root.Identity, nil
}

// ResolveArtifactByName answers the host loader's callback: find a loaded
// artifact by simple name, or by name and exact version when the request
// carries one. Non-blocking and side-effect-free; nil means not found.
func (s *Service) ResolveArtifactByName(name string) *artifact.Info {
	req, err := pkgid.Parse(name)
	if err != nil {
		return nil
	}
	for _, a := range s.snap.Load().assemblies {
		if !strings.EqualFold(a.Name, req.ID) {
			continue
		}
		if !req.Pinned() {
			return a
		}
		if a.Identity.Version != nil && a.Identity.Version.Equal(req.Version) {
			return a
		}
	}
	return nil
}

// applyPin resolves an unversioned request against the configured default
// pins.
func (s *Service) applyPin(target pkgid.Identity) pkgid.Identity {
	if target.Pinned() {
		return target
	}
	pin, ok := s.cfg.Pin(target.ID)
	if !ok {
		return target
	}
	v, err := semver.NewVersion(pin)
	if err != nil {
		s.logger.Warn("ignoring malformed version pin", "package", target.ID, "pin", pin)
		return target
	}
	return pkgid.New(target.ID, v)
}

// merge publishes a new snapshot with the additions appended and
// invalidates the derived metadata. Callers hold s.mu.
func (s *Service) merge(packages []pkgid.Identity, arts []*artifact.Info) {
	cur := s.snap.Load()
	next := &snapshot{
		generation: cur.generation + 1,
		assemblies: append(append([]*artifact.Info{}, cur.assemblies...), arts...),
		packages:   append(append([]pkgid.Identity{}, cur.packages...), packages...),
	}
	s.snap.Store(next)
	s.meta.Store(nil)
}

// Metadata is the derived compilation view of the reference set.
type Metadata struct {
	// Generation matches the snapshot the view was computed from.
	Generation uint64

	// Artifacts is the full artifact list at that generation.
	Artifacts []*artifact.Info

	// Names holds the distinct artifact simple names, sorted.
	Names []string

	// ImageBytes is the total size of all loaded images.
	ImageBytes int64
}

// Metadata returns the compilation view, recomputing it if the set
// changed since the last call. Recomputations never run concurrently; a
// caller racing a mutation may observe the previous generation, which is
// stale but internally consistent.
func (s *Service) Metadata() *Metadata {
	snap := s.snap.Load()
	if m := s.meta.Load(); m != nil && m.Generation == snap.generation {
		return m
	}

	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	snap = s.snap.Load()
	if m := s.meta.Load(); m != nil && m.Generation == snap.generation {
		return m
	}

	m := &Metadata{Generation: snap.generation, Artifacts: snap.assemblies}
	seen := make(map[string]bool, len(snap.assemblies))
	for _, a := range snap.assemblies {
		m.ImageBytes += int64(len(a.Image))
		key := strings.ToLower(a.Name)
		if !seen[key] {
			seen[key] = true
			m.Names = append(m.Names, a.Name)
		}
	}
	sort.Strings(m.Names)

	s.meta.Store(m)
	return m
}

package refset

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/quantlab/pkgref/pkg/artifact"
	"github.com/quantlab/pkgref/pkg/config"
	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/install"
	"github.com/quantlab/pkgref/pkg/manifest"
	"github.com/quantlab/pkgref/pkg/observability"
	"github.com/quantlab/pkgref/pkg/pkgid"
	"github.com/quantlab/pkgref/pkg/repo"
	"github.com/quantlab/pkgref/pkg/resolve"
	"github.com/quantlab/pkgref/pkg/universe"
)

// fakeSource is an in-memory package repository serving crafted archives.
type fakeSource struct {
	name      string
	infos     map[string]*universe.DependencyInfo // by Identity.Key()
	highest   map[string]pkgid.Identity           // by lowercase id
	archives  map[string][]byte                   // by Identity.Key()
	queries   int
	downloads int
}

func newFakeSource(name string) *fakeSource {
	return &fakeSource{
		name:     name,
		infos:    make(map[string]*universe.DependencyInfo),
		highest:  make(map[string]pkgid.Identity),
		archives: make(map[string][]byte),
	}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) DependencyInfo(ctx context.Context, id pkgid.Identity) (*universe.DependencyInfo, error) {
	f.queries++
	if !id.Pinned() {
		hi, ok := f.highest[strings.ToLower(id.ID)]
		if !ok {
			return nil, errors.New(errors.ErrCodePackageNotFound, "unknown package %s", id.ID)
		}
		id = hi
	}
	info, ok := f.infos[id.Key()]
	if !ok {
		return nil, errors.New(errors.ErrCodePackageNotFound, "unknown package %s", id)
	}
	return info, nil
}

func (f *fakeSource) Download(ctx context.Context, id pkgid.Identity, w io.Writer) error {
	f.downloads++
	data, ok := f.archives[id.Key()]
	if !ok {
		return errors.New(errors.ErrCodePackageNotFound, "no archive for %s", id)
	}
	_, err := w.Write(data)
	return err
}

// serve registers one package release with the given dependencies and one
// loadable binary named after the package.
func (f *fakeSource) serve(t *testing.T, spec string, deps ...pkgid.Dependency) pkgid.Identity {
	t.Helper()
	id, err := pkgid.Parse(spec)
	if err != nil {
		t.Fatalf("Parse(%q): %v", spec, err)
	}

	f.infos[id.Key()] = &universe.DependencyInfo{
		Identity:     id,
		Dependencies: deps,
		Source:       f,
		Listed:       true,
	}
	f.archives[id.Key()] = buildArchive(t, id, map[string][]byte{
		"lib/netstandard2.0/" + id.ID + ".dll": validImage(),
	})

	key := strings.ToLower(id.ID)
	if cur, ok := f.highest[key]; !ok || cur.Version.LessThan(id.Version) {
		f.highest[key] = id
	}
	return id
}

type fakeProvider struct{ sources []repo.Source }

func (p fakeProvider) Sources(ctx context.Context) []repo.Source { return p.sources }

func buildArchive(t *testing.T, id pkgid.Identity, extra map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	files := map[string][]byte{
		manifest.Filename: []byte("id = \"" + id.ID + "\"\nversion = \"" + id.Version.String() + "\"\n"),
	}
	for k, v := range extra {
		files[k] = v
	}
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func validImage() []byte {
	img := make([]byte, 0x80)
	img[0], img[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(img[0x3C:], 0x40)
	copy(img[0x40:], "PE\x00\x00")
	return img
}

func dep(id, rng string) pkgid.Dependency {
	return pkgid.Dependency{ID: id, Range: pkgid.MustRange(rng)}
}

func newService(t *testing.T, cfg *config.Config, baseline []*artifact.Info, sources ...repo.Source) *Service {
	t.Helper()
	cache, err := install.NewCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	logger := log.New(io.Discard)
	return New(Options{
		Baseline:  baseline,
		Provider:  fakeProvider{sources: sources},
		Resolver:  resolve.NewResolver(logger),
		Installer: install.NewInstaller(cache, logger),
		Extractor: artifact.NewExtractor(cache, "net6.0", cfg.SystemPrefixes, logger),
		Cache:     cache,
		Config:    cfg,
		Logger:    logger,
	})
}

func baselineArtifact(name string) *artifact.Info {
	return &artifact.Info{Name: name, Image: validImage()}
}

func TestAddPackageEndToEnd(t *testing.T) {
	src := newFakeSource("test-feed")
	src.serve(t, "Demo.Lib::1.2.0", dep("Dep.Util", ">=1.0.0"))
	src.serve(t, "Dep.Util::1.0.0")

	svc := newService(t, nil, []*artifact.Info{baselineArtifact("Runtime.Core")}, src)

	var statuses []string
	id, err := svc.AddPackage(context.Background(), "Demo.Lib", func(status string) {
		statuses = append(statuses, status)
	})
	if err != nil {
		t.Fatalf("AddPackage: %v", err)
	}
	if id.String() != "Demo.Lib::1.2.0" {
		t.Errorf("selected %s, want Demo.Lib::1.2.0", id)
	}

	pkgs := svc.Packages()
	if len(pkgs) != 2 {
		t.Fatalf("Packages() = %v, want Demo.Lib and Dep.Util", pkgs)
	}
	if got := len(svc.Assemblies()); got != 3 {
		t.Errorf("Assemblies() has %d entries, want baseline + 2", got)
	}
	if len(statuses) == 0 {
		t.Error("progress callback never invoked")
	}
}

func TestAddPackageSelectsLatestAcrossRepositories(t *testing.T) {
	// The repository searched first only has an older release; the
	// newer one lives in a second repository.
	older := newFakeSource("older-feed")
	older.serve(t, "Demo.Lib::1.0.0")
	newer := newFakeSource("newer-feed")
	newer.serve(t, "Demo.Lib::1.2.0")

	svc := newService(t, nil, nil, older, newer)

	id, err := svc.AddPackage(context.Background(), "Demo.Lib", nil)
	if err != nil {
		t.Fatalf("AddPackage: %v", err)
	}
	if id.String() != "Demo.Lib::1.2.0" {
		t.Errorf("selected %s, want Demo.Lib::1.2.0", id)
	}
	if pkgs := svc.Packages(); len(pkgs) != 1 || pkgs[0] != "Demo.Lib::1.2.0" {
		t.Errorf("Packages() = %v, want [Demo.Lib::1.2.0]", pkgs)
	}
	if older.downloads != 0 {
		t.Errorf("payload downloaded from the older repository %d times, want 0", older.downloads)
	}
}

func TestAddPackageIdempotent(t *testing.T) {
	src := newFakeSource("test-feed")
	src.serve(t, "Demo.Lib::1.2.0")

	svc := newService(t, nil, nil, src)

	first, err := svc.AddPackage(context.Background(), "Demo.Lib", nil)
	if err != nil {
		t.Fatalf("first AddPackage: %v", err)
	}
	queries, downloads := src.queries, src.downloads
	assemblies := len(svc.Assemblies())

	second, err := svc.AddPackage(context.Background(), "Demo.Lib", nil)
	if err != nil {
		t.Fatalf("second AddPackage: %v", err)
	}
	if !first.Equal(second) {
		t.Errorf("second call selected %s, first selected %s", second, first)
	}
	if src.queries != queries || src.downloads != downloads {
		t.Errorf("second call touched the source: queries %d->%d downloads %d->%d",
			queries, src.queries, downloads, src.downloads)
	}
	if got := len(svc.Assemblies()); got != assemblies {
		t.Errorf("second call grew assemblies from %d to %d", assemblies, got)
	}
}

func TestAddPackageNotFoundLeavesStateUnchanged(t *testing.T) {
	src := newFakeSource("test-feed")
	src.serve(t, "Demo.Lib::1.0.0")

	svc := newService(t, nil, []*artifact.Info{baselineArtifact("Runtime.Core")}, src)

	_, err := svc.AddPackage(context.Background(), "No.Such.Package", nil)
	if err == nil {
		t.Fatal("expected error for unknown package")
	}
	if !errors.Is(err, errors.ErrCodePackageNotFound) {
		t.Errorf("error code = %s, want PACKAGE_NOT_FOUND", errors.GetCode(err))
	}
	if !strings.Contains(err.Error(), "No.Such.Package") {
		t.Errorf("error %q does not name the requested package", err)
	}
	if got := svc.Packages(); len(got) != 0 {
		t.Errorf("Packages() = %v, want empty after failed add", got)
	}
	if got := len(svc.Assemblies()); got != 1 {
		t.Errorf("Assemblies() has %d entries, want the untouched baseline", got)
	}
}

func TestAddPackageMonotonic(t *testing.T) {
	src := newFakeSource("test-feed")
	src.serve(t, "First.Lib::1.0.0")
	src.serve(t, "Second.Lib::1.0.0")

	base := baselineArtifact("Runtime.Core")
	svc := newService(t, nil, []*artifact.Info{base}, src)

	if _, err := svc.AddPackage(context.Background(), "First.Lib", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddPackage(context.Background(), "Second.Lib", nil); err != nil {
		t.Fatal(err)
	}

	assemblies := svc.Assemblies()
	if assemblies[0] != base {
		t.Error("baseline artifact no longer first")
	}
	names := make(map[string]bool)
	for _, a := range assemblies {
		names[a.Name] = true
	}
	for _, want := range []string{"Runtime.Core", "First.Lib", "Second.Lib"} {
		if !names[want] {
			t.Errorf("assembly %s missing after second add", want)
		}
	}
}

func TestAddPackageAppliesPin(t *testing.T) {
	src := newFakeSource("test-feed")
	src.serve(t, "Pinned.Lib::1.0.0")
	src.serve(t, "Pinned.Lib::2.0.0")

	cfg := config.Default()
	cfg.Pins = map[string]string{"Pinned.Lib": "1.0.0"}

	svc := newService(t, cfg, nil, src)
	id, err := svc.AddPackage(context.Background(), "Pinned.Lib", nil)
	if err != nil {
		t.Fatalf("AddPackage: %v", err)
	}
	if id.Version.String() != "1.0.0" {
		t.Errorf("selected %s, want the pinned 1.0.0", id)
	}

	// An explicit version overrides the pin.
	id, err = svc.AddPackage(context.Background(), "Pinned.Lib::2.0.0", nil)
	if err != nil {
		t.Fatalf("AddPackage: %v", err)
	}
	if id.Version.String() != "2.0.0" {
		t.Errorf("selected %s, want the explicit 2.0.0", id)
	}
}

func TestResolveArtifactByName(t *testing.T) {
	src := newFakeSource("test-feed")
	src.serve(t, "Demo.Lib::1.2.0")

	svc := newService(t, nil, []*artifact.Info{baselineArtifact("Runtime.Core")}, src)
	if _, err := svc.AddPackage(context.Background(), "Demo.Lib", nil); err != nil {
		t.Fatal(err)
	}

	if a := svc.ResolveArtifactByName("demo.lib"); a == nil || a.Name != "Demo.Lib" {
		t.Errorf("simple-name lookup failed, got %v", a)
	}
	if a := svc.ResolveArtifactByName("Demo.Lib::1.2.0"); a == nil {
		t.Error("versioned lookup failed for the installed version")
	}
	if a := svc.ResolveArtifactByName("Demo.Lib::9.9.9"); a != nil {
		t.Errorf("versioned lookup matched %v for a version never installed", a)
	}
	if a := svc.ResolveArtifactByName("Runtime.Core"); a == nil {
		t.Error("baseline artifact not resolvable by name")
	}
	if a := svc.ResolveArtifactByName("Runtime.Core::1.0.0"); a != nil {
		t.Error("baseline artifact has no version and must not match a versioned request")
	}
	if a := svc.ResolveArtifactByName("Absent.Lib"); a != nil {
		t.Errorf("lookup of an absent name returned %v", a)
	}
}

func TestAddAssemblies(t *testing.T) {
	svc := newService(t, nil, nil)

	svc.AddAssemblies(baselineArtifact("Injected.One"), baselineArtifact("Injected.Two"))
	if got := len(svc.Assemblies()); got != 2 {
		t.Fatalf("Assemblies() has %d entries, want 2", got)
	}
	if a := svc.ResolveArtifactByName("Injected.Two"); a == nil {
		t.Error("injected assembly not resolvable")
	}
}

func TestMetadataRecomputedAfterMutation(t *testing.T) {
	svc := newService(t, nil, []*artifact.Info{baselineArtifact("Runtime.Core")})

	before := svc.Metadata()
	if svc.Metadata() != before {
		t.Error("unchanged set should return the cached view")
	}

	svc.AddAssemblies(baselineArtifact("Added.Lib"))
	after := svc.Metadata()
	if after == before {
		t.Fatal("metadata not recomputed after mutation")
	}
	if after.Generation <= before.Generation {
		t.Errorf("generation %d not past %d", after.Generation, before.Generation)
	}
	if len(after.Names) != 2 || after.Names[0] != "Added.Lib" {
		t.Errorf("Names = %v, want sorted [Added.Lib Runtime.Core]", after.Names)
	}
	if after.ImageBytes == 0 {
		t.Error("ImageBytes not accumulated")
	}
}

func TestAddPackageEmitsEvent(t *testing.T) {
	events := &capturingHooks{}
	observability.SetResolveHooks(events)
	defer observability.Reset()

	src := newFakeSource("test-feed")
	src.serve(t, "Demo.Lib::1.2.0")

	svc := newService(t, nil, nil, src)
	if _, err := svc.AddPackage(context.Background(), "Demo.Lib", nil); err != nil {
		t.Fatal(err)
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.added) != 1 {
		t.Fatalf("got %d package-added events, want 1", len(events.added))
	}
	ev := events.added[0]
	if ev.pkg != "Demo.Lib::1.2.0" {
		t.Errorf("event package = %s, want Demo.Lib::1.2.0", ev.pkg)
	}
	if ev.id == "" {
		t.Error("event id empty")
	}
	if ev.duration <= 0 {
		t.Error("event duration not positive")
	}
}

type addedEvent struct {
	id       string
	pkg      string
	duration time.Duration
}

type capturingHooks struct {
	observability.NoopResolveHooks
	mu    sync.Mutex
	added []addedEvent
}

func (h *capturingHooks) OnPackageAdded(_ context.Context, eventID, pkg string, d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.added = append(h.added, addedEvent{id: eventID, pkg: pkg, duration: d})
}

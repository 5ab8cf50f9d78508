package universe

import (
	"context"
	"testing"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/pkgid"
)

func notFound(id pkgid.Identity) error {
	return errors.New(errors.ErrCodePackageNotFound, "package not found: %s", id.String())
}

func dep(id, rangeExpr string) pkgid.Dependency {
	return pkgid.Dependency{ID: id, Range: pkgid.MustRange(rangeExpr)}
}

func TestDiscoverWalksTransitiveDependencies(t *testing.T) {
	src := newFakeSource("feed",
		info("App", "1.0.0", dep("Lib.A", ">=1.0.0"), dep("Lib.B", ">=2.0.0")),
		info("Lib.A", "1.0.0", dep("Lib.C", ">=1.0.0")),
		info("Lib.B", "2.0.0", dep("Lib.C", ">=1.0.0")),
		info("Lib.C", "1.0.0"),
	)

	u := New()
	d := NewDiscoverer(u, nil)

	root, err := d.Discover(context.Background(), pkgid.New("App", nil), []Querier{src})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if root.Identity.String() != "App::1.0.0" {
		t.Errorf("root = %s", root.Identity)
	}
	if u.Len() != 4 {
		t.Errorf("universe has %d records, want 4", u.Len())
	}
	// The diamond (Lib.C reached from both A and B) must be fetched once.
	// 4 packages were queried, each exactly once.
	if src.calls != 4 {
		t.Errorf("source queried %d times, want 4 (diamond must be memoized)", src.calls)
	}
}

func TestDiscoverIsMemoizedAcrossCalls(t *testing.T) {
	src := newFakeSource("feed", info("App", "1.0.0"))
	u := New()
	d := NewDiscoverer(u, nil)

	if _, err := d.Discover(context.Background(), pkgid.New("App", nil), []Querier{src}); err != nil {
		t.Fatalf("first Discover: %v", err)
	}
	calls := src.calls

	root, err := d.Discover(context.Background(), pkgid.New("App", nil), []Querier{src})
	if err != nil {
		t.Fatalf("second Discover: %v", err)
	}
	if root == nil || root.Identity.String() != "App::1.0.0" {
		t.Errorf("second Discover root = %v", root)
	}
	if src.calls != calls {
		t.Errorf("second Discover performed %d extra queries, want 0", src.calls-calls)
	}
}

func TestDiscoverFirstSourceWins(t *testing.T) {
	first := newFakeSource("first", info("App", "1.0.0", dep("From.First", ">=1.0.0")))
	second := newFakeSource("second", info("App", "1.0.0", dep("From.Second", ">=1.0.0")), info("From.First", "1.0.0"))

	u := New()
	d := NewDiscoverer(u, nil)
	root, err := d.Discover(context.Background(), pkgid.New("App", nil), []Querier{first, second})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if len(root.Dependencies) != 1 || root.Dependencies[0].ID != "From.First" {
		t.Errorf("dependency lists must not merge across sources: %v", root.Dependencies)
	}
	if root.Source.Name() != "first" {
		t.Errorf("record owned by %s, want first", root.Source.Name())
	}
}

func TestDiscoverUnpinnedPicksLatestAcrossSources(t *testing.T) {
	// The first repository carries only an older release. Latest-wins
	// must look past it.
	older := newFakeSource("older", info("Demo.Lib", "1.0.0"))
	newer := newFakeSource("newer", info("Demo.Lib", "1.2.0"))

	u := New()
	d := NewDiscoverer(u, nil)
	root, err := d.Discover(context.Background(), pkgid.New("Demo.Lib", nil), []Querier{older, newer})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if root.Identity.String() != "Demo.Lib::1.2.0" {
		t.Errorf("selected %s, want Demo.Lib::1.2.0", root.Identity)
	}
	if root.Source.Name() != "newer" {
		t.Errorf("record owned by %s, want newer", root.Source.Name())
	}
}

func TestDiscoverPinnedStopsAtFirstAnswer(t *testing.T) {
	first := newFakeSource("first", info("Demo.Lib", "1.0.0"))
	second := newFakeSource("second", info("Demo.Lib", "1.0.0"))

	id, err := pkgid.Parse("Demo.Lib::1.0.0")
	if err != nil {
		t.Fatal(err)
	}
	u := New()
	d := NewDiscoverer(u, nil)
	if _, err := d.Discover(context.Background(), id, []Querier{first, second}); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if second.calls != 0 {
		t.Errorf("pinned query reached %d extra sources, want 0", second.calls)
	}
}

func TestDiscoverSkipsFailingSource(t *testing.T) {
	broken := newFakeSource("broken")
	broken.err = errors.New(errors.ErrCodeProtocol, "connection reset")
	working := newFakeSource("working", info("App", "1.0.0"))

	u := New()
	d := NewDiscoverer(u, nil)
	root, err := d.Discover(context.Background(), pkgid.New("App", nil), []Querier{broken, working})
	if err != nil {
		t.Fatalf("Discover should skip the broken source: %v", err)
	}
	if root.Source.Name() != "working" {
		t.Errorf("record owned by %s, want working", root.Source.Name())
	}
}

func TestDiscoverUnreachableDependencyDegrades(t *testing.T) {
	// Optional.Dep exists in no source; App still resolves.
	src := newFakeSource("feed", info("App", "1.0.0", dep("Optional.Dep", ">=1.0.0")))

	u := New()
	d := NewDiscoverer(u, nil)
	root, err := d.Discover(context.Background(), pkgid.New("App", nil), []Querier{src})
	if err != nil {
		t.Fatalf("unreachable dependency must not fail discovery: %v", err)
	}
	if root == nil {
		t.Fatal("root should still resolve")
	}
	if u.Contains(pkgid.New("Optional.Dep", nil)) {
		t.Error("unanswerable dependency should contribute nothing")
	}
}

func TestDiscoverRootNotFound(t *testing.T) {
	src := newFakeSource("feed")
	u := New()
	d := NewDiscoverer(u, nil)

	_, err := d.Discover(context.Background(), pkgid.New("No.Such.Package", nil), []Querier{src})
	if !errors.Is(err, errors.ErrCodePackageNotFound) {
		t.Fatalf("error = %v, want PACKAGE_NOT_FOUND", err)
	}
	if u.Len() != 0 {
		t.Error("failed discovery must not grow the universe")
	}

	// A failed root stays retryable.
	src.infos = newFakeSource("feed", info("No.Such.Package", "1.0.0")).infos
	src.highest = newFakeSource("feed", info("No.Such.Package", "1.0.0")).highest
	if _, err := d.Discover(context.Background(), pkgid.New("No.Such.Package", nil), []Querier{src}); err != nil {
		t.Errorf("retry after feed recovery should succeed: %v", err)
	}
}

func TestDiscoverDiamondWithTwoVersions(t *testing.T) {
	// A needs Shared at exactly 1.0.0, B needs Shared at exactly 2.0.0.
	// Both identities must coexist in the universe.
	src := newFakeSource("feed",
		info("A", "1.0.0", dep("Shared", "=1.0.0")),
		info("B", "1.0.0", dep("Shared", "=2.0.0")),
		info("Shared", "1.0.0"),
		info("Shared", "2.0.0"),
	)

	u := New()
	d := NewDiscoverer(u, nil)
	if _, err := d.Discover(context.Background(), pkgid.New("A", nil), []Querier{src}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Discover(context.Background(), pkgid.New("B", nil), []Querier{src}); err != nil {
		t.Fatal(err)
	}

	if len(u.ByID("Shared")) != 2 {
		t.Errorf("universe should hold both Shared versions, got %v", u.ByID("Shared"))
	}
}

package cli

import (
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/quantlab/pkgref/pkg/pkgid"
	"github.com/quantlab/pkgref/pkg/universe"
)

func TestUniverseDOT(t *testing.T) {
	u := universe.New()
	root := pkgid.New("Demo.Lib", semver.MustParse("1.2.0"))
	u.Add(&universe.DependencyInfo{
		Identity:     root,
		Dependencies: []pkgid.Dependency{{ID: "Dep.Util", Range: pkgid.MustRange(">=1.0.0")}},
		Listed:       true,
	})
	u.Add(&universe.DependencyInfo{
		Identity: pkgid.New("Dep.Util", semver.MustParse("1.0.0")),
		Listed:   true,
	})
	u.Add(&universe.DependencyInfo{
		Identity: pkgid.New("Dep.Util", semver.MustParse("0.9.0")),
		Listed:   true,
	})

	dot := universeDOT(u, root)

	if !strings.HasPrefix(dot, "digraph G {") || !strings.HasSuffix(dot, "}\n") {
		t.Fatalf("malformed DOT output:\n%s", dot)
	}
	for _, node := range []string{`"Demo.Lib::1.2.0"`, `"Dep.Util::1.0.0"`, `"Dep.Util::0.9.0"`} {
		if !strings.Contains(dot, node) {
			t.Errorf("DOT missing node %s", node)
		}
	}
	if !strings.Contains(dot, `"Demo.Lib::1.2.0" -> "Dep.Util::1.0.0"`) {
		t.Error("DOT missing edge to the satisfying dependency version")
	}
	if strings.Contains(dot, `"Demo.Lib::1.2.0" -> "Dep.Util::0.9.0"`) {
		t.Error("DOT has an edge to a version outside the declared range")
	}
	if !strings.Contains(dot, "penwidth=2") {
		t.Error("root node not highlighted")
	}
}

func TestUniverseDOTUnlistedStyle(t *testing.T) {
	u := universe.New()
	root := pkgid.New("Solo", semver.MustParse("1.0.0"))
	u.Add(&universe.DependencyInfo{Identity: root, Listed: false})

	dot := universeDOT(u, root)
	if !strings.Contains(dot, "dashed") {
		t.Error("unlisted package not drawn dashed")
	}
}

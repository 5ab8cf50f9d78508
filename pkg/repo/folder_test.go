package repo

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/manifest"
	"github.com/quantlab/pkgref/pkg/pkgid"
)

func writeTestArchive(t *testing.T, dir, file, id, version string) string {
	t.Helper()
	path := filepath.Join(dir, file)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create(manifest.Filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("id = \"" + id + "\"\nversion = \"" + version + "\"\n"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFolderSourceAnswersFromArchives(t *testing.T) {
	dir := t.TempDir()
	writeTestArchive(t, dir, "a.pkg", "Demo.Lib", "1.0.0")
	writeTestArchive(t, dir, "b.pkg", "Demo.Lib", "1.2.0")
	writeTestArchive(t, dir, "c.pkg", "Other.Lib", "3.0.0")

	s := NewFolderSource(dir, nil)

	// Unpinned picks highest.
	info, err := s.DependencyInfo(context.Background(), pkgid.New("demo.lib", nil))
	if err != nil {
		t.Fatalf("DependencyInfo: %v", err)
	}
	if got := info.Identity.String(); got != "Demo.Lib::1.2.0" {
		t.Errorf("Identity = %s", got)
	}

	// Pinned picks the exact version.
	id, _ := pkgid.Parse("Demo.Lib::1.0.0")
	info, err = s.DependencyInfo(context.Background(), id)
	if err != nil {
		t.Fatalf("DependencyInfo pinned: %v", err)
	}
	if got := info.Identity.Version.String(); got != "1.0.0" {
		t.Errorf("Version = %s", got)
	}
}

func TestFolderSourceSkipsUnreadableArchives(t *testing.T) {
	dir := t.TempDir()
	writeTestArchive(t, dir, "ok.pkg", "Demo.Lib", "1.0.0")
	if err := os.WriteFile(filepath.Join(dir, "junk.pkg"), []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFolderSource(dir, nil)
	if _, err := s.DependencyInfo(context.Background(), pkgid.New("Demo.Lib", nil)); err != nil {
		t.Errorf("readable archive should still answer: %v", err)
	}
}

func TestFolderSourceNotFound(t *testing.T) {
	s := NewFolderSource(t.TempDir(), nil)
	_, err := s.DependencyInfo(context.Background(), pkgid.New("No.Such", nil))
	if !errors.Is(err, errors.ErrCodePackageNotFound) {
		t.Errorf("error = %v, want PACKAGE_NOT_FOUND", err)
	}

	// A missing folder is also a clean not-found, not a hard failure.
	s = NewFolderSource(filepath.Join(t.TempDir(), "missing"), nil)
	_, err = s.DependencyInfo(context.Background(), pkgid.New("No.Such", nil))
	if !errors.Is(err, errors.ErrCodePackageNotFound) {
		t.Errorf("error = %v, want PACKAGE_NOT_FOUND", err)
	}
}

func TestFolderSourceDownload(t *testing.T) {
	dir := t.TempDir()
	writeTestArchive(t, dir, "a.pkg", "Demo.Lib", "1.0.0")

	s := NewFolderSource(dir, nil)
	var buf bytes.Buffer
	id, _ := pkgid.Parse("Demo.Lib::1.0.0")
	if err := s.Download(context.Background(), id, &buf); err != nil {
		t.Fatalf("Download: %v", err)
	}

	// The payload is the archive itself; reading its manifest proves it.
	tmp := filepath.Join(t.TempDir(), "roundtrip.pkg")
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := manifest.FromArchive(tmp)
	if err != nil || m.ID != "Demo.Lib" {
		t.Errorf("round-tripped archive manifest = %v, %v", m, err)
	}
}

package install

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/universe"
)

// ProgressFunc receives human-readable status lines ("downloading X",
// "installing X"). It is an observational side effect only and must never
// affect control flow.
type ProgressFunc func(status string)

// Installer downloads and extracts resolved packages into the cache.
type Installer struct {
	cache  *Cache
	logger *log.Logger
}

// NewInstaller creates an installer writing into cache.
// A nil logger falls back to log.Default().
func NewInstaller(cache *Cache, logger *log.Logger) *Installer {
	if logger == nil {
		logger = log.Default()
	}
	return &Installer{cache: cache, logger: logger}
}

// Install materializes every record of the resolved set, in order.
// Releases already present in the cache are skipped (idempotence by
// identity). Unlike artifact loading, a single failed download or
// extraction aborts the whole call: a missing on-disk package would
// silently corrupt the reference set's consistency.
func (i *Installer) Install(ctx context.Context, resolved []*universe.DependencyInfo, progress ProgressFunc) error {
	if progress == nil {
		progress = func(string) {}
	}

	for _, info := range resolved {
		if err := ctx.Err(); err != nil {
			return err
		}

		id := info.Identity
		if i.cache.Contains(id) {
			progress(fmt.Sprintf("using cached %s", id))
			continue
		}
		if info.Source == nil {
			return errors.New(errors.ErrCodeInstallFailed, "no repository owns %s", id)
		}

		progress(fmt.Sprintf("downloading %s", id))
		archive, err := i.download(ctx, info)
		if err != nil {
			return err
		}

		progress(fmt.Sprintf("installing %s", id))
		err = i.extract(archive, info)
		_ = os.Remove(archive)
		if err != nil {
			return err
		}
		i.logger.Debug("installed package", "package", id.String(), "source", info.Source.Name())
	}
	return nil
}

// download fetches the package payload into a temp file and returns its
// path. The caller removes the file.
func (i *Installer) download(ctx context.Context, info *universe.DependencyInfo) (string, error) {
	f, err := os.CreateTemp("", "pkgref-*"+archiveTempExt)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInstallFailed, err, "cannot create temp file for %s", info.Identity)
	}

	if err := info.Source.Download(ctx, info.Identity, f); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", errors.Wrap(errors.ErrCodeInstallFailed, err, "download of %s from %s failed", info.Identity, info.Source.Name())
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", errors.Wrap(errors.ErrCodeInstallFailed, err, "writing %s failed", info.Identity)
	}
	return f.Name(), nil
}

// extract unpacks the archive into a temp sibling of the final entry dir
// and renames it into place. The rename makes installation atomic: no
// future call can mistake a torn extraction for "already installed".
func (i *Installer) extract(archive string, info *universe.DependencyInfo) error {
	id := info.Identity
	final := i.cache.EntryDir(id)

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInstallFailed, err, "cannot create cache dir for %s", id)
	}
	tmp, err := os.MkdirTemp(filepath.Dir(final), "."+id.Version.String()+"-")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInstallFailed, err, "cannot create staging dir for %s", id)
	}
	defer os.RemoveAll(tmp)

	if err := unzip(archive, tmp); err != nil {
		return errors.Wrap(errors.ErrCodeInstallFailed, err, "extraction of %s failed", id)
	}

	if err := os.Rename(tmp, final); err != nil {
		// The cache is shared between processes; a concurrent writer
		// finishing first is success, not failure.
		if i.cache.Contains(id) {
			return nil
		}
		return errors.Wrap(errors.ErrCodeInstallFailed, err, "cannot commit %s to cache", id)
	}
	return nil
}

const archiveTempExt = ".pkg"

// unzip extracts a zip archive into dest, rejecting entries that would
// escape it.
func unzip(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(dest, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, dest+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

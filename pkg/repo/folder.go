package repo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/manifest"
	"github.com/quantlab/pkgref/pkg/pkgid"
	"github.com/quantlab/pkgref/pkg/universe"
)

// FolderSource serves package archives from a local fallback folder.
// The folder holds flat .pkg files; each archive's own manifest names the
// identity, so file naming does not matter. Archives are indexed once per
// process and unreadable files are skipped with a warning.
type FolderSource struct {
	dir    string
	logger *log.Logger

	once    sync.Once
	entries map[string]folderEntry // keyed by Identity.Key()
	byID    map[string][]folderEntry
}

type folderEntry struct {
	path string
	info *universe.DependencyInfo
}

// NewFolderSource creates a source for a fallback folder.
// A nil logger falls back to log.Default().
func NewFolderSource(dir string, logger *log.Logger) *FolderSource {
	if logger == nil {
		logger = log.Default()
	}
	return &FolderSource{dir: dir, logger: logger}
}

// Name identifies the folder in logs and diagnostics.
func (s *FolderSource) Name() string { return "folder:" + s.dir }

// DependencyInfo answers from the folder's archive index. Unpinned
// requests resolve to the highest version present.
func (s *FolderSource) DependencyInfo(ctx context.Context, id pkgid.Identity) (*universe.DependencyInfo, error) {
	s.once.Do(s.index)

	if id.Pinned() {
		if e, ok := s.entries[id.Key()]; ok {
			return e.info, nil
		}
		return nil, s.notFound(id)
	}

	candidates := s.byID[id.Key()]
	if len(candidates) == 0 {
		return nil, s.notFound(id)
	}
	best := candidates[0]
	for _, e := range candidates[1:] {
		if best.info.Identity.Version.LessThan(e.info.Identity.Version) {
			best = e
		}
	}
	return best.info, nil
}

// Download copies the archive file to w.
func (s *FolderSource) Download(ctx context.Context, id pkgid.Identity, w io.Writer) error {
	s.once.Do(s.index)

	e, ok := s.entries[id.Key()]
	if !ok {
		return s.notFound(id)
	}
	f, err := os.Open(e.path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeProtocol, err, "cannot open archive %s", e.path)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// index scans the folder once and builds the identity lookup tables.
func (s *FolderSource) index() {
	s.entries = make(map[string]folderEntry)
	s.byID = make(map[string][]folderEntry)

	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+manifest.ArchiveExt))
	if err != nil {
		return
	}
	for _, path := range paths {
		m, err := manifest.FromArchive(path)
		if err != nil {
			s.logger.Warn("skipping unreadable archive", "path", path, "err", err)
			continue
		}
		deps, err := m.DependencyList()
		if err != nil {
			s.logger.Warn("skipping archive with malformed dependencies", "path", path, "err", err)
			continue
		}

		entry := folderEntry{
			path: path,
			info: &universe.DependencyInfo{
				Identity:     m.Identity(),
				Dependencies: deps,
				Source:       s,
				Listed:       m.Listed,
			},
		}
		key := entry.info.Identity.Key()
		if _, dup := s.entries[key]; dup {
			continue
		}
		s.entries[key] = entry
		idKey := strings.ToLower(entry.info.Identity.ID)
		s.byID[idKey] = append(s.byID[idKey], entry)
	}
}

func (s *FolderSource) notFound(id pkgid.Identity) error {
	return errors.New(errors.ErrCodePackageNotFound, "%s not in %s", id.String(), s.dir)
}

var _ Source = (*FolderSource)(nil)

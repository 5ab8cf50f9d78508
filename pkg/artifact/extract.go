package artifact

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/install"
	"github.com/quantlab/pkgref/pkg/pkgid"
)

const (
	libDir    = "lib"
	binaryExt = ".dll"
)

// Extractor loads the artifacts of installed packages from the package
// cache.
type Extractor struct {
	cache          *install.Cache
	platform       string
	systemPrefixes []string
	logger         *log.Logger
}

// NewExtractor creates an extractor targeting the given host platform
// moniker (DefaultPlatform when empty). Packages whose id starts with one
// of systemPrefixes ship with the host runtime and are skipped.
func NewExtractor(cache *install.Cache, platform string, systemPrefixes []string, logger *log.Logger) *Extractor {
	if platform == "" {
		platform = DefaultPlatform
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{
		cache:          cache,
		platform:       platform,
		systemPrefixes: systemPrefixes,
		logger:         logger,
	}
}

// Extract loads the binaries of one installed package.
//
// System packages and packages with no group compatible with the host
// platform contribute an empty result. A file that fails to load is
// logged and excluded; the remaining files still load. Only a package
// missing from the cache altogether is an error.
func (e *Extractor) Extract(id pkgid.Identity) ([]*Info, error) {
	if e.isSystem(id.ID) {
		e.logger.Debug("skipping system package", "package", id.String())
		return nil, nil
	}
	if !e.cache.Contains(id) {
		return nil, errors.New(errors.ErrCodeArtifactLoad, "package %s is not installed", id.String())
	}

	groups, err := e.platformGroups(id)
	if err != nil {
		return nil, err
	}
	chosen := nearestPlatform(e.platform, groups)
	if chosen == "" {
		e.logger.Info("no compatible artifacts", "package", id.String(), "platform", e.platform, "available", groups)
		return nil, nil
	}

	dir := filepath.Join(e.cache.EntryDir(id), libDir, chosen)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeArtifactLoad, err, "cannot list artifacts of %s", id.String())
	}

	var out []*Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), binaryExt) {
			continue
		}
		info, err := Load(filepath.Join(dir, entry.Name()), id)
		if err != nil {
			e.logger.Warn("artifact failed to load, excluding", "package", id.String(), "file", entry.Name(), "err", errors.UserMessage(err))
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// platformGroups lists the platform monikers the package ships binaries
// for. A package without a lib directory has none.
func (e *Extractor) platformGroups(id pkgid.Identity) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(e.cache.EntryDir(id), libDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeArtifactLoad, err, "cannot list artifact groups of %s", id.String())
	}

	groups := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			groups = append(groups, entry.Name())
		}
	}
	sort.Strings(groups)
	return groups, nil
}

func (e *Extractor) isSystem(id string) bool {
	for _, prefix := range e.systemPrefixes {
		if len(id) >= len(prefix) && strings.EqualFold(id[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}

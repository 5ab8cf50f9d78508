package repo

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/quantlab/pkgref/pkg/cache"
	"github.com/quantlab/pkgref/pkg/config"
	"github.com/quantlab/pkgref/pkg/install"
)

// Enumerator produces the ordered list of repository sources later stages
// query. Order is significant: it determines both cache affinity (the
// local cache always answers first) and the fallback search order for
// dependency discovery.
type Enumerator struct {
	cache     *install.Cache
	cfg       *config.Config
	metaCache cache.Cache
	logger    *log.Logger

	mu      sync.Mutex
	feeds   map[string]*FeedSource
	folders map[string]*FolderSource
}

// NewEnumerator builds an enumerator over the package cache and the
// configured sources. metaCache backs feed metadata caching; pass a
// NullCache to disable it.
func NewEnumerator(pkgCache *install.Cache, cfg *config.Config, metaCache cache.Cache, logger *log.Logger) *Enumerator {
	if logger == nil {
		logger = log.Default()
	}
	if metaCache == nil {
		metaCache = cache.NewNullCache()
	}
	return &Enumerator{
		cache:     pkgCache,
		cfg:       cfg,
		metaCache: metaCache,
		logger:    logger,
		feeds:     make(map[string]*FeedSource),
		folders:   make(map[string]*FolderSource),
	}
}

// Sources yields the repository handles in priority order:
// local cache, environment-override feed, fallback folders, remote feeds.
//
// Enumeration never fails; a source that is unreachable or misconfigured
// reports errors only when queried. The environment override is read per
// call, so a feed exported mid-session takes effect on the next request.
func (e *Enumerator) Sources(ctx context.Context) []Source {
	sources := []Source{NewCacheSource(e.cache)}

	if extra := e.cfg.ExtraFeed(); extra != "" {
		sources = append(sources, e.feed(extra))
	}
	for _, dir := range e.cfg.FallbackFolders {
		sources = append(sources, e.folder(dir))
	}
	for _, feed := range e.cfg.Feeds {
		sources = append(sources, e.feed(feed))
	}
	return sources
}

// feed returns the shared source for a feed URL, so metadata caching and
// HTTP connection reuse survive across calls.
func (e *Enumerator) feed(base string) *FeedSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.feeds[base]; ok {
		return s
	}
	s := NewFeedSource(base, e.metaCache, e.cfg.TTL())
	e.feeds[base] = s
	return s
}

// folder returns the shared source for a fallback folder, preserving its
// once-per-process archive index.
func (e *Enumerator) folder(dir string) *FolderSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.folders[dir]; ok {
		return s
	}
	s := NewFolderSource(dir, e.logger)
	e.folders[dir] = s
	return s
}

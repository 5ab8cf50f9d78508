package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/quantlab/pkgref/pkg/cache"
	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/httputil"
	"github.com/quantlab/pkgref/pkg/observability"
	"github.com/quantlab/pkgref/pkg/pkgid"
	"github.com/quantlab/pkgref/pkg/universe"
)

// FeedSource queries a remote package feed over HTTP.
//
// The feed layout is flat and content-addressed by lowercase id:
//
//	GET <base>/<id>/index.json             -> {"versions": ["1.0.0", ...]}
//	GET <base>/<id>/<version>/manifest.json -> dependency metadata
//	GET <base>/<id>/<version>/package.pkg   -> archive payload
//
// Metadata responses are cached through the configured cache backend;
// payload downloads are not (they land in the package cache instead).
type FeedSource struct {
	base  string
	http  *http.Client
	cache cache.Cache
	ttl   time.Duration
}

// NewFeedSource creates a feed source for the given base URL.
// Pass a NullCache to disable metadata caching.
func NewFeedSource(base string, metaCache cache.Cache, ttl time.Duration) *FeedSource {
	return &FeedSource{
		base:  strings.TrimRight(base, "/"),
		http:  newHTTPClient(),
		cache: metaCache,
		ttl:   ttl,
	}
}

// Name identifies the feed in logs and diagnostics.
func (s *FeedSource) Name() string {
	if u, err := url.Parse(s.base); err == nil && u.Host != "" {
		return u.Host
	}
	return s.base
}

// feedManifest is the wire shape of a feed's manifest document.
type feedManifest struct {
	ID           string `json:"id"`
	Version      string `json:"version"`
	Listed       *bool  `json:"listed"`
	Dependencies []struct {
		ID    string `json:"id"`
		Range string `json:"range"`
	} `json:"dependencies"`
}

// feedIndex is the wire shape of a feed's version listing.
type feedIndex struct {
	Versions []string `json:"versions"`
}

// DependencyInfo answers a dependency query. Unpinned requests resolve to
// the feed's highest listed version.
func (s *FeedSource) DependencyInfo(ctx context.Context, id pkgid.Identity) (*universe.DependencyInfo, error) {
	version := id.Version
	if version == nil {
		var err error
		if version, err = s.highestVersion(ctx, id.ID); err != nil {
			return nil, err
		}
	}

	var m feedManifest
	url := fmt.Sprintf("%s/%s/%s/manifest.json", s.base, strings.ToLower(id.ID), version)
	if err := s.getJSON(ctx, url, &m); err != nil {
		return nil, err
	}
	return s.toInfo(id, version, &m)
}

func (s *FeedSource) toInfo(requested pkgid.Identity, version *semver.Version, m *feedManifest) (*universe.DependencyInfo, error) {
	deps := make([]pkgid.Dependency, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		r, err := pkgid.ParseRange(d.Range)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeProtocol, err, "feed %s returned malformed range for %s", s.Name(), requested.ID)
		}
		deps = append(deps, pkgid.Dependency{ID: d.ID, Range: r})
	}

	id := m.ID
	if id == "" {
		id = requested.ID
	}
	listed := m.Listed == nil || *m.Listed
	return &universe.DependencyInfo{
		Identity:     pkgid.New(id, version),
		Dependencies: deps,
		Source:       s,
		Listed:       listed,
	}, nil
}

// highestVersion fetches the version index and picks the highest entry.
func (s *FeedSource) highestVersion(ctx context.Context, id string) (*semver.Version, error) {
	var idx feedIndex
	url := fmt.Sprintf("%s/%s/index.json", s.base, strings.ToLower(id))
	if err := s.getJSON(ctx, url, &idx); err != nil {
		return nil, err
	}

	versions := make([]*semver.Version, 0, len(idx.Versions))
	for _, raw := range idx.Versions {
		if v, err := semver.NewVersion(raw); err == nil {
			versions = append(versions, v)
		}
	}
	if len(versions) == 0 {
		return nil, errors.New(errors.ErrCodePackageNotFound, "feed %s has no versions of %s", s.Name(), id)
	}
	sort.Sort(semver.Collection(versions))
	return versions[len(versions)-1], nil
}

// Download streams the package payload to w.
func (s *FeedSource) Download(ctx context.Context, id pkgid.Identity, w io.Writer) error {
	url := fmt.Sprintf("%s/%s/%s/package%s", s.base, strings.ToLower(id.ID), id.Version, archiveExt)
	return httputil.RetryWithBackoff(ctx, func() error {
		body, err := s.get(ctx, url)
		if err != nil {
			return err
		}
		defer body.Close()
		_, err = io.Copy(w, body)
		return err
	})
}

const archiveExt = ".pkg"

// getJSON fetches a metadata document through the cache, with retries.
func (s *FeedSource) getJSON(ctx context.Context, url string, v any) error {
	key := "feed:" + url
	if data, hit, _ := s.cache.Get(ctx, key); hit {
		if json.Unmarshal(data, v) == nil {
			observability.Cache().OnCacheHit(ctx, "feed")
			return nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, "feed")

	var data []byte
	err := httputil.RetryWithBackoff(ctx, func() error {
		body, err := s.get(ctx, url)
		if err != nil {
			return err
		}
		defer body.Close()
		data, err = io.ReadAll(body)
		return err
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(errors.ErrCodeProtocol, err, "feed %s returned malformed metadata", s.Name())
	}
	if s.cache.Set(ctx, key, data, s.ttl) == nil {
		observability.Cache().OnCacheSet(ctx, "feed", len(data))
	}
	return nil
}

func (s *FeedSource) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeProtocol, err, "bad feed URL %s", rawURL)
	}

	observability.Feed().OnRequest(ctx, req.URL.Host, req.URL.Path)
	start := time.Now()
	resp, err := s.http.Do(req)
	if err != nil {
		observability.Feed().OnError(ctx, req.URL.Host, req.URL.Path, err)
		return nil, &httputil.RetryableError{Err: errors.Wrap(errors.ErrCodeNetwork, err, "feed %s unreachable", s.Name())}
	}
	observability.Feed().OnResponse(ctx, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := s.checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (s *FeedSource) checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return errors.New(errors.ErrCodePackageNotFound, "not found on feed %s", s.Name())
	case code >= 500:
		return &httputil.RetryableError{Err: errors.New(errors.ErrCodeProtocol, "feed %s returned status %d", s.Name(), code)}
	default:
		return errors.New(errors.ErrCodeProtocol, "feed %s returned status %d", s.Name(), code)
	}
}

var _ Source = (*FeedSource)(nil)

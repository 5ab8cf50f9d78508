// Package install materializes resolved packages into the local global
// package cache.
//
// The cache is a directory tree shared by every kernel on the machine:
//
//	<root>/<id-lowercase>/<version>/manifest.toml
//	<root>/<id-lowercase>/<version>/lib/<platform>/...
//
// Presence is keyed by id+version, never by content hash. Writers extract
// into a temp directory and rename it into place, so a cache entry either
// exists completely or not at all; a concurrent writer completing first is
// treated as success, not an error.
package install

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/quantlab/pkgref/pkg/manifest"
	"github.com/quantlab/pkgref/pkg/pkgid"
)

// Cache is the local on-disk package cache.
type Cache struct {
	root string
}

// NewCache opens (creating if needed) a package cache rooted at dir.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{root: dir}, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// EntryDir returns the directory a package release is extracted into.
func (c *Cache) EntryDir(id pkgid.Identity) string {
	return filepath.Join(c.root, strings.ToLower(id.ID), id.Version.String())
}

// Contains reports whether a package release is present. Only entries
// with a manifest count: the atomic rename in the installer means a torn
// directory can only be left by external interference, and such entries
// are ignored rather than trusted.
func (c *Cache) Contains(id pkgid.Identity) bool {
	if !id.Pinned() {
		return false
	}
	_, err := os.Stat(filepath.Join(c.EntryDir(id), manifest.Filename))
	return err == nil
}

// Manifest reads the manifest of an installed package.
func (c *Cache) Manifest(id pkgid.Identity) (*manifest.Manifest, error) {
	return manifest.FromDir(c.EntryDir(id))
}

// Versions lists the versions of a package id present in the cache,
// ascending. Unparseable or torn entries are skipped.
func (c *Cache) Versions(id string) []*semver.Version {
	entries, err := os.ReadDir(filepath.Join(c.root, strings.ToLower(id)))
	if err != nil {
		return nil
	}

	var out []*semver.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, err := semver.NewVersion(e.Name())
		if err != nil {
			continue
		}
		if c.Contains(pkgid.New(id, v)) {
			out = append(out, v)
		}
	}
	sort.Sort(semver.Collection(out))
	return out
}

// Identities lists every installed package release, sorted by id then
// version. Used by the local-cache repository source.
func (c *Cache) Identities() []pkgid.Identity {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil
	}

	var out []pkgid.Identity
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		for _, v := range c.Versions(e.Name()) {
			out = append(out, pkgid.New(e.Name(), v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Package manifest reads package manifests.
//
// Every package archive carries a manifest.toml at its root describing the
// package identity and its declared dependency ranges:
//
//	id = "Demo.Lib"
//	version = "1.2.0"
//
//	[[dependency]]
//	id = "Demo.Core"
//	range = ">=1.0.0"
//
// Binary artifacts live next to it under lib/<platform>/, one directory
// per target-platform moniker.
package manifest

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/pkgid"
)

// Filename is the manifest file name inside a package.
const Filename = "manifest.toml"

// ArchiveExt is the package archive extension (a zip container).
const ArchiveExt = ".pkg"

// Manifest describes one package release.
type Manifest struct {
	ID           string       `toml:"id"`
	Version      string       `toml:"version"`
	Listed       bool         `toml:"listed"`
	Dependencies []Dependency `toml:"dependency"`
}

// Dependency is one declared dependency edge.
type Dependency struct {
	ID    string `toml:"id"`
	Range string `toml:"range"`
}

// Parse decodes a TOML manifest and validates its identity fields.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	m.Listed = true // absent means listed
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "malformed manifest")
	}
	if m.ID == "" {
		return nil, errors.New(errors.ErrCodeInvalidPackage, "manifest missing package id")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "manifest for %s has invalid version %q", m.ID, m.Version)
	}
	return &m, nil
}

// Identity returns the package identity the manifest describes.
func (m *Manifest) Identity() pkgid.Identity {
	// Version validity is checked in Parse.
	return pkgid.New(m.ID, semver.MustParse(m.Version))
}

// DependencyList converts the declared dependencies to typed ranges.
func (m *Manifest) DependencyList() ([]pkgid.Dependency, error) {
	out := make([]pkgid.Dependency, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		r, err := pkgid.ParseRange(d.Range)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "manifest for %s: dependency %s", m.ID, d.ID)
		}
		out = append(out, pkgid.Dependency{ID: d.ID, Range: r})
	}
	return out, nil
}

// FromDir reads the manifest of an extracted package directory.
func FromDir(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, Filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeInvalidPackage, "no manifest in %s", dir)
		}
		return nil, err
	}
	return Parse(data)
}

// FromArchive reads the manifest out of a package archive without
// extracting it. Used by fallback-folder sources to answer dependency
// queries cheaply.
func FromArchive(path string) (*Manifest, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "unreadable package archive %s", path)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != Filename {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPackage, err, "unreadable manifest in %s", path)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return Parse(data)
	}
	return nil, errors.New(errors.ErrCodeInvalidPackage, "archive %s has no manifest", path)
}

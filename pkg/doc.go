// Package pkg provides the core libraries for pkgref package management.
//
// # Overview
//
// Pkgref resolves, installs, and loads binary package dependencies. The
// pkg directory is organized along the add-package pipeline:
//
//	pkgref add Demo.Lib
//	         ↓
//	    [repo] package (enumerate sources: cache, folders, feeds)
//	         ↓
//	    [universe] package (discover the dependency closure)
//	         ↓
//	    [resolve] package (compute a consistent install set)
//	         ↓
//	    [install] package (download + atomically extract)
//	         ↓
//	    [artifact] package (load platform-matched binaries)
//	         ↓
//	    [refset] package (merge into the live reference set)
//
// # Main Packages
//
// [pkgid] - Package identities ("id::version"), version ranges, and
// dependency edges. Ids compare case-insensitively.
//
// [manifest] - The TOML package manifest and the .pkg archive container.
//
// [universe] - The discovered dependency metadata graph and the
// worklist-based Discoverer that populates it from sources.
//
// [resolve] - The two-tier resolution pipeline: a backtracking
// lowest-compatible solver with a cached-newest fallback.
//
// [repo] - Package sources: remote feeds, local archive folders, and the
// package cache itself, plus the Enumerator that orders them.
//
// [install] - The local package cache and the atomic download/extract
// installer.
//
// [artifact] - Platform-moniker matching and binary artifact loading.
//
// [refset] - The process-wide reference set and the end-to-end
// AddPackage entry point.
//
// # Infrastructure
//
// [cache] - Feed metadata caching (file, Redis, null backends).
//
// [config] - TOML configuration: feeds, fallback folders, pins, cache
// locations.
//
// [errors] - Structured errors with stable machine-readable codes.
//
// [httputil] - Retry helpers for transient feed failures.
//
// [observability] - Optional instrumentation hooks.
//
// [buildinfo] - Build-time version information.
//
// # Testing
//
// Run tests:
//
//	go test ./pkg/...          # All tests
//	go test ./pkg/resolve/...  # Specific package
//
// [pkgid]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/pkgid
// [manifest]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/manifest
// [universe]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/universe
// [resolve]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/resolve
// [repo]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/repo
// [install]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/install
// [artifact]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/artifact
// [refset]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/refset
// [cache]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/cache
// [config]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/config
// [errors]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/errors
// [httputil]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/httputil
// [observability]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/quantlab/pkgref/pkg/buildinfo
package pkg

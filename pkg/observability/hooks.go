// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about package resolution, cache operations, and feed calls.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the core library dependency-free from observability frameworks
//   - Allows different backends (OpenTelemetry, Prometheus, DataDog, etc.)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetResolveHooks(&myResolveHooks{})
//	    observability.SetCacheHooks(&myCacheHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Resolve().OnDiscoverStart(ctx, pkg)
//	// ... walk the dependency graph ...
//	observability.Resolve().OnDiscoverComplete(ctx, pkg, count, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Resolve Hooks
// =============================================================================

// ResolveHooks receives events from the add-package pipeline.
type ResolveHooks interface {
	// Discovery events
	OnDiscoverStart(ctx context.Context, pkg string)
	OnDiscoverComplete(ctx context.Context, pkg string, packageCount int, duration time.Duration, err error)

	// Resolution events
	OnResolveStart(ctx context.Context, pkg string, universeSize int)
	OnResolveComplete(ctx context.Context, pkg string, installCount int, duration time.Duration, err error)

	// Install events
	OnInstallStart(ctx context.Context, packages []string)
	OnInstallComplete(ctx context.Context, packages []string, duration time.Duration, err error)

	// OnPackageAdded records a fully completed add: discovered, resolved,
	// installed, and merged into the reference set. The event id is unique
	// per add.
	OnPackageAdded(ctx context.Context, eventID, pkg string, duration time.Duration)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// Feed Hooks
// =============================================================================

// FeedHooks receives events from remote feed operations.
type FeedHooks interface {
	// OnRequest records an outgoing feed request.
	OnRequest(ctx context.Context, host, path string)

	// OnResponse records a feed response.
	OnResponse(ctx context.Context, host, path string, statusCode int, duration time.Duration)

	// OnError records a feed error (network failure, timeout).
	OnError(ctx context.Context, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopResolveHooks is a no-op implementation of ResolveHooks.
type NoopResolveHooks struct{}

func (NoopResolveHooks) OnDiscoverStart(context.Context, string) {}
func (NoopResolveHooks) OnDiscoverComplete(context.Context, string, int, time.Duration, error) {
}
func (NoopResolveHooks) OnResolveStart(context.Context, string, int)                          {}
func (NoopResolveHooks) OnResolveComplete(context.Context, string, int, time.Duration, error) {}
func (NoopResolveHooks) OnInstallStart(context.Context, []string)                             {}
func (NoopResolveHooks) OnInstallComplete(context.Context, []string, time.Duration, error)    {}
func (NoopResolveHooks) OnPackageAdded(context.Context, string, string, time.Duration)        {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopFeedHooks is a no-op implementation of FeedHooks.
type NoopFeedHooks struct{}

func (NoopFeedHooks) OnRequest(context.Context, string, string)                      {}
func (NoopFeedHooks) OnResponse(context.Context, string, string, int, time.Duration) {}
func (NoopFeedHooks) OnError(context.Context, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	resolveHooks ResolveHooks = NoopResolveHooks{}
	cacheHooks   CacheHooks   = NoopCacheHooks{}
	feedHooks    FeedHooks    = NoopFeedHooks{}
	hooksMu      sync.RWMutex
)

// SetResolveHooks registers custom resolve hooks.
// This should be called once at application startup before any package operations.
func SetResolveHooks(h ResolveHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		resolveHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetFeedHooks registers custom feed hooks.
// This should be called once at application startup before any feed operations.
func SetFeedHooks(h FeedHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		feedHooks = h
	}
}

// Resolve returns the registered resolve hooks.
func Resolve() ResolveHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return resolveHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Feed returns the registered feed hooks.
func Feed() FeedHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return feedHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	resolveHooks = NoopResolveHooks{}
	cacheHooks = NoopCacheHooks{}
	feedHooks = NoopFeedHooks{}
}

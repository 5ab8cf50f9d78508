// Package repo provides package repository sources and their enumeration.
//
// A source answers dependency-info queries and downloads package payloads.
// The enumerator yields sources in priority order: the local on-disk cache
// first (so an already-downloaded package never costs a network round
// trip), then an optional environment-specified extra feed, then local
// fallback folders, then the configured remote feeds.
//
// Enumeration itself never fails. An unreachable or misconfigured source
// surfaces errors only when queried, and discovery recovers from those by
// moving on to the next source.
package repo

import (
	"net/http"
	"time"

	"github.com/quantlab/pkgref/pkg/universe"
)

// Source is one package repository: it answers dependency queries and
// serves package payloads.
type Source interface {
	universe.Querier
	universe.Origin
}

const httpTimeout = 30 * time.Second

// newHTTPClient creates an HTTP client with a standard timeout for feed
// requests.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// Queriers converts sources to the discovery-facing interface.
func Queriers(sources []Source) []universe.Querier {
	out := make([]universe.Querier, len(sources))
	for i, s := range sources {
		out[i] = s
	}
	return out
}

package artifact

import "strings"

// lineage orders target-platform monikers from most specific to most
// general. An artifact group built for a moniker later in the chain is
// loadable by any host earlier in it.
var lineage = []string{
	"net9.0",
	"net8.0",
	"net7.0",
	"net6.0",
	"net5.0",
	"netcoreapp3.1",
	"netcoreapp3.0",
	"netcoreapp2.1",
	"netstandard2.1",
	"netstandard2.0",
	"netstandard1.6",
	"netstandard1.5",
	"netstandard1.4",
	"netstandard1.3",
	"netstandard1.2",
	"netstandard1.1",
	"netstandard1.0",
}

// DefaultPlatform is the moniker assumed for the host when none is
// configured.
const DefaultPlatform = "net6.0"

func rank(moniker string) (int, bool) {
	m := strings.ToLower(moniker)
	for i, known := range lineage {
		if known == m {
			return i, true
		}
	}
	return 0, false
}

// nearestPlatform reduces the available monikers to the best one for
// host: an exact match if present, otherwise the compatible moniker
// closest to host in the lineage, otherwise "". Unknown monikers never
// match. The reduction is a fold, so the choice is independent of the
// order candidates arrive in.
func nearestPlatform(host string, available []string) string {
	hostRank, ok := rank(host)
	if !ok {
		return ""
	}

	best := ""
	bestRank := len(lineage)
	for _, cand := range available {
		r, ok := rank(cand)
		if !ok || r < hostRank {
			continue
		}
		if r == hostRank {
			return cand
		}
		if r < bestRank {
			best, bestRank = cand, r
		}
	}
	return best
}

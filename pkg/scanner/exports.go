package scanner

import (
	"github.com/apex/log"

	"github.com/blacktop/tlshunt/pkg/backend"
)

// ExportEnumerator is the slice of the backend the prober needs.
type ExportEnumerator interface {
	EnumerateExports(module string) ([]string, error)
}

// ProbeExports checks a module's export table for known TLS symbol names.
// This is the supplementary identification path for binaries whose .rodata
// has been stripped of every signature string. A module without an export
// table (or any enumeration failure) yields an empty set, never an error.
func ProbeExports(b ExportEnumerator, mod backend.Module, symbols map[string]string) []string {
	exports, err := b.EnumerateExports(mod.Name)
	if err != nil {
		log.WithError(err).WithField("module", mod.Name).Debug("export enumeration failed")
		return nil
	}

	var hits []string
	for _, name := range exports {
		if _, known := symbols[name]; known {
			hits = append(hits, name)
		}
	}
	return hits
}

// voteExports tallies which identity the probed symbols point at. Returns
// the winner and its vote count; empty when there are no hits.
func voteExports(hits []string, symbols map[string]string) (string, int) {
	votes := make(map[string]int)
	for _, h := range hits {
		if identity, ok := symbols[h]; ok {
			votes[identity]++
		}
	}
	var winner string
	var best int
	for identity, n := range votes {
		if n > best || (n == best && identity < winner) {
			winner, best = identity, n
		}
	}
	return winner, best
}

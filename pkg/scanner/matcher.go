package scanner

import (
	"fmt"

	"github.com/apex/log"

	"github.com/blacktop/tlshunt/pkg/backend"
)

// MatchMode selects the matcher's scanning strategy.
type MatchMode int

const (
	// FirstHit stops scanning a range after the first matching signature.
	// Used when only presence per range matters.
	FirstHit MatchMode = iota
	// Exhaustive records every unique matching signature id across all
	// ranges; a signature that already matched is not rescanned.
	Exhaustive
)

// PatternScanner is the slice of the backend the matcher needs.
type PatternScanner interface {
	ScanPattern(address, size uint64, pattern string) ([]backend.PatternMatch, error)
}

// Matcher runs masked byte signatures over resolved memory ranges.
type Matcher struct {
	b PatternScanner
}

// NewMatcher returns a matcher bound to a pattern-scan capable backend.
func NewMatcher(b PatternScanner) *Matcher {
	return &Matcher{b: b}
}

// Scan searches every range for every signature. Failures on a single
// range/signature pair are swallowed (logged at debug) so one unreadable
// page never aborts the scan. Offsets are computed from moduleBase. The
// result set is deterministic for a static memory image.
func (m *Matcher) Scan(ranges []backend.MemoryRange, sigs []Signature, moduleBase uint64, mode MatchMode) []MatchResult {
	var results []MatchResult
	matched := make(map[string]struct{})

	for _, r := range ranges {
		for _, sig := range sigs {
			if _, done := matched[sig.ID]; done {
				continue
			}
			hits, err := m.b.ScanPattern(r.Base, r.Size, sig.Pattern)
			if err != nil {
				log.WithError(err).WithFields(log.Fields{
					"range":     r.Base,
					"signature": sig.ID,
				}).Debug("pattern scan failed; skipping pair")
				continue
			}
			if len(hits) == 0 {
				continue
			}
			matched[sig.ID] = struct{}{}
			results = append(results, MatchResult{
				SignatureID: sig.ID,
				Address:     hits[0].Address,
				Offset:      hits[0].Address - moduleBase,
				Count:       len(hits),
			})
			if mode == FirstHit {
				break // next range
			}
		}
	}

	return results
}

// ScanIndicators searches the ranges for generic TLS indicator strings in
// both ASCII and UTF-16LE encodings, first hit per range. Returns the raw
// strings found.
func (m *Matcher) ScanIndicators(ranges []backend.MemoryRange, indicators []string, moduleBase uint64) []string {
	sigs := make([]Signature, 0, len(indicators)*2)
	for i, s := range indicators {
		for j, pat := range ScanPatterns(s) {
			sigs = append(sigs, Signature{
				ID:      sigID(i, j),
				String:  s,
				Pattern: pat,
			})
		}
	}

	var found []string
	seen := make(map[string]struct{})
	for _, res := range m.Scan(ranges, sigs, moduleBase, FirstHit) {
		for _, sig := range sigs {
			if sig.ID == res.SignatureID {
				if _, dup := seen[sig.String]; !dup {
					seen[sig.String] = struct{}{}
					found = append(found, sig.String)
				}
				break
			}
		}
	}
	return found
}

func sigID(i, j int) string {
	enc := "ascii"
	if j == 1 {
		enc = "utf16le"
	}
	return fmt.Sprintf("indicator-%s-%d", enc, i)
}

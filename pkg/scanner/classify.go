package scanner

import (
	"sort"
	"strings"

	"github.com/blacktop/tlshunt/internal/platform"
	"github.com/blacktop/tlshunt/pkg/backend"
)

// IdentityUnknown is the verdict identity when no evidence points anywhere.
const IdentityUnknown = "unknown"

// Classifier turns match sets and symbol evidence into verdicts for one
// platform. Safe for concurrent use; it only reads the shared catalog.
type Classifier struct {
	Catalog  *Catalog
	Platform string
	Handler  platform.Handler
}

// NewClassifier builds a classifier for the given platform. packageName is
// only used on android.
func NewClassifier(cat *Catalog, platformName, packageName string) (*Classifier, error) {
	h, err := platform.Get(platformName, packageName)
	if err != nil {
		return nil, err
	}
	return &Classifier{Catalog: cat, Platform: strings.ToLower(platformName), Handler: h}, nil
}

type identityScore struct {
	identity   string
	weight     int
	longest    string // longest matched signature string, for specificity
	variant    string
	hasSymbols bool
}

// Classify maps a module's matches, symbol hits and indicator hits to a
// verdict. Absence of evidence is a valid outcome: the verdict comes back
// with IdentityUnknown and no error. Every identified verdict references at
// least one match, a symbol hit, an indicator, or (lowest confidence) a
// filename hint.
func (c *Classifier) Classify(mod backend.Module, matches []MatchResult, symbolHits, indicators []string) Verdict {
	v := Verdict{
		Module:     mod,
		Identity:   IdentityUnknown,
		Class:      c.Handler.Classify(mod.Name, mod.Path),
		Matches:    matches,
		SymbolHits: symbolHits,
		Indicators: indicators,
	}

	symbolWinner, _ := voteExports(symbolHits, c.Catalog.ExportSymbols)

	switch {
	case len(matches) > 0:
		v.Identity, v.Variant = c.scoreMatches(matches, symbolWinner)
		v.Evidence = append(v.Evidence, EvidencePattern)
		if len(symbolHits) > 0 {
			v.Evidence = append(v.Evidence, EvidenceExports)
		}
	case symbolWinner != "":
		v.Identity = symbolWinner
		v.Evidence = append(v.Evidence, EvidenceExports)
	default:
		if hint := c.filenameHint(mod.Name); hint != "" {
			v.Identity = hint
			v.Evidence = append(v.Evidence, EvidenceFilename)
		}
	}

	if len(indicators) > 0 {
		v.Evidence = append(v.Evidence, EvidenceIndicators)
	}

	v.Identity = c.platformOverride(v.Identity, mod.Name, mod.Path, len(v.Evidence) > 0)

	return v
}

// scoreMatches picks the identity with the highest aggregate signature
// weight, applying the catalog's tie-break policy for equal scores.
func (c *Classifier) scoreMatches(matches []MatchResult, symbolWinner string) (identity, variant string) {
	scores := make(map[string]*identityScore)
	for _, m := range matches {
		sig, ok := c.Catalog.Lookup(m.SignatureID)
		if !ok {
			continue
		}
		s := scores[sig.Identity]
		if s == nil {
			s = &identityScore{identity: sig.Identity}
			scores[sig.Identity] = s
		}
		s.weight += sig.Weight
		if len(sig.String) > len(s.longest) {
			s.longest = sig.String
			if sig.Variant != "" {
				s.variant = sig.Variant
			}
		} else if s.variant == "" && sig.Variant != "" {
			s.variant = sig.Variant
		}
		if sig.Identity == symbolWinner {
			s.hasSymbols = true
		}
	}
	if len(scores) == 0 {
		return IdentityUnknown, ""
	}

	ranked := make([]*identityScore, 0, len(scores))
	for _, s := range scores {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.weight != b.weight {
			return a.weight > b.weight
		}
		for _, tb := range c.Catalog.TieBreak {
			switch tb {
			case TieBreakSymbols:
				if a.hasSymbols != b.hasSymbols {
					return a.hasSymbols
				}
			case TieBreakSpecificity:
				if len(a.longest) != len(b.longest) {
					return len(a.longest) > len(b.longest)
				}
			}
		}
		return a.identity < b.identity // stable output
	})

	return ranked[0].identity, ranked[0].variant
}

func (c *Classifier) filenameHint(name string) string {
	lower := strings.ToLower(name)
	// longest hint wins so "libboringssl" beats "libssl"
	var hit, identity string
	for hint, id := range c.Catalog.FilenameHints {
		if strings.Contains(lower, hint) && len(hint) > len(hit) {
			hit, identity = hint, id
		}
	}
	return identity
}

// platformOverride refines generic identities that are known forks on some
// platforms. Only ever narrows "openssl" or an evidenced unknown; an
// identified gnutls stays gnutls.
func (c *Classifier) platformOverride(identity, name, path string, hasEvidence bool) string {
	nameLower := strings.ToLower(name)
	pathLower := strings.ToLower(path)

	if identity == "openssl" {
		// android system libssl/libcrypto are BoringSSL builds
		if c.Platform == "android" {
			for _, p := range []string{"/system/", "/vendor/", "/apex/"} {
				if strings.Contains(pathLower, p) {
					return "boringssl"
				}
			}
		}
		// macOS ships LibreSSL under /usr/lib
		if c.Platform == "macos" && strings.HasPrefix(pathLower, "/usr/lib/") {
			return "libressl"
		}
	}

	// chromium ships its own (stripped) BoringSSL everywhere; its TLS
	// evidence reads as generic openssl or nothing identifiable
	if identity == "openssl" || (identity == IdentityUnknown && hasEvidence) {
		for _, cm := range []string{"libmonochrome", "libchrome", "libwebview"} {
			if strings.Contains(nameLower, cm) {
				return "boringssl"
			}
		}
	}

	return identity
}

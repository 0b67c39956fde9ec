package scanner

import (
	"time"

	"github.com/blacktop/tlshunt/pkg/backend"
)

// MatchResult is one signature hit inside a module. Transient scan evidence,
// not persisted.
type MatchResult struct {
	SignatureID string `json:"signature_id"`
	Address     uint64 `json:"address"`
	Offset      uint64 `json:"offset"`
	Count       int    `json:"count"`
}

// Confidence basis values recorded on a verdict.
const (
	EvidencePattern    = "pattern"
	EvidenceExports    = "exports"
	EvidenceFilename   = "filename"
	EvidenceIndicators = "indicators"
)

// Verdict is the classification decision for one module.
type Verdict struct {
	Module     backend.Module `json:"module"`
	Identity   string         `json:"identity"`
	Variant    string         `json:"variant,omitempty"`
	Version    string         `json:"version,omitempty"`
	Class      string         `json:"class"`
	Evidence   []string       `json:"evidence"`
	Matches    []MatchResult  `json:"matches,omitempty"`
	SymbolHits []string       `json:"symbol_hits,omitempty"`
	Indicators []string       `json:"indicators,omitempty"`
}

// Identified reports whether the module resolved to a known TLS library.
func (v *Verdict) Identified() bool {
	return v.Identity != "" && v.Identity != "unknown"
}

// ScanResult is the full outcome of one process scan. Partial success is the
// common case: failures land in Errors without aborting the scan.
type ScanResult struct {
	Target         string        `json:"target"`
	Platform       string        `json:"platform"`
	Libraries      []Verdict     `json:"libraries"`
	ModulesScanned int           `json:"modules_scanned"`
	Duration       time.Duration `json:"duration"`
	Errors         []string      `json:"errors,omitempty"`
}

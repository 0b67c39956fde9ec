// Package scanner implements TLS library detection for a live process:
// readable-range resolution, masked pattern matching, export probing and
// fingerprint classification.
package scanner

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/blacktop/tlshunt/pkg/backend"
)

// Options configures a process scan.
type Options struct {
	// Catalog is the signature database; Default() when nil.
	Catalog *Catalog
	// Platform names the target OS (android, ios, linux, macos, windows).
	Platform string
	// PackageName sharpens app classification on android.
	PackageName string
	// Parallel bounds concurrent module scans. Defaults to 4.
	Parallel int
	// Verbose probes exports even for modules with no indicator hits.
	Verbose bool
}

// ModuleScanner drives the per-module scan pipeline against one backend.
// The catalog it holds is read-only, so one scanner may process modules
// concurrently.
type ModuleScanner struct {
	b          backend.Backend
	catalog    *Catalog
	classifier *Classifier
	opts       Options
}

// New builds a scanner for the given backend and platform.
func New(b backend.Backend, opts Options) (*ModuleScanner, error) {
	if opts.Catalog == nil {
		opts.Catalog = Default()
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 4
	}
	classifier, err := NewClassifier(opts.Catalog, opts.Platform, opts.PackageName)
	if err != nil {
		return nil, err
	}
	return &ModuleScanner{
		b:          b,
		catalog:    opts.Catalog,
		classifier: classifier,
		opts:       opts,
	}, nil
}

// Scan enumerates the process's modules and fingerprints each scan-worthy
// one. A single module's failure never aborts the rest; it is recorded in
// the result's Errors. The returned verdicts are sorted by module name.
func (s *ModuleScanner) Scan(target string) (*ScanResult, error) {
	start := time.Now()
	result := &ScanResult{Target: target, Platform: s.opts.Platform}

	mods, err := s.b.EnumerateModules()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate modules: %v", err)
	}
	log.WithField("count", len(mods)).Info("Enumerated loaded modules")

	var mu sync.Mutex
	var eg errgroup.Group
	eg.SetLimit(s.opts.Parallel)

	scanned := 0
	for _, mod := range mods {
		if !s.classifier.Handler.ScanWorthy(mod.Name, mod.Path) {
			log.WithField("module", mod.Name).Debug("skipping (not scan-worthy)")
			continue
		}
		scanned++
		mod := mod
		eg.Go(func() error {
			verdict, err := s.ScanModule(mod)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", mod.Name, err))
				return nil // partial failure is the normal case
			}
			if verdict != nil {
				result.Libraries = append(result.Libraries, *verdict)
			}
			return nil
		})
	}
	eg.Wait()

	sort.Slice(result.Libraries, func(i, j int) bool {
		return result.Libraries[i].Module.Name < result.Libraries[j].Module.Name
	})

	result.ModulesScanned = scanned
	result.Duration = time.Since(start)

	log.WithFields(log.Fields{
		"found":   len(result.Libraries),
		"scanned": scanned,
		"elapsed": result.Duration.Round(time.Millisecond).String(),
	}).Info("Scan complete")

	return result, nil
}

// ScanModule runs the full pipeline for one module: resolve readable ranges,
// look for TLS indicator strings, probe exports, then fingerprint and
// classify. Returns nil when the module shows no TLS evidence at all.
func (s *ModuleScanner) ScanModule(mod backend.Module) (*Verdict, error) {
	ranges, err := ResolveRanges(s.b, mod)
	if err != nil {
		return nil, fmt.Errorf("range resolution failed: %v", err)
	}
	if len(ranges) == 0 {
		// nominal span entirely unmapped or unreadable: clean no-match
		log.WithField("module", mod.Name).Debug("no readable ranges")
		return nil, nil
	}

	matcher := NewMatcher(s.b)

	indicators := matcher.ScanIndicators(ranges, s.catalog.Indicators, mod.Base)
	if len(indicators) > 0 {
		log.WithFields(log.Fields{
			"module": mod.Name,
			"hits":   len(indicators),
		}).Info("TLS indicators present")
	}

	var symbolHits []string
	if len(indicators) > 0 || s.opts.Verbose {
		symbolHits = ProbeExports(s.b, mod, s.catalog.ExportSymbols)
	}

	if len(indicators) == 0 && len(symbolHits) == 0 {
		return nil, nil
	}

	matches := matcher.Scan(ranges, s.catalog.Signatures, mod.Base, Exhaustive)

	verdict := s.classifier.Classify(mod, matches, symbolHits, indicators)
	if verdict.Identified() {
		verdict.Version = s.catalog.ExtractVersion(s.b, verdict.Identity, matches)
		log.WithFields(log.Fields{
			"module":   mod.Name,
			"identity": verdict.Identity,
			"class":    verdict.Class,
		}).Info("Detected TLS library")
	}

	return &verdict, nil
}

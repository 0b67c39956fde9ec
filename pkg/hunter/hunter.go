// Package hunter ties the scanning and extraction pipelines to one attached
// instrumentation session: fingerprint every loaded module, then pull the
// identified libraries off the target.
package hunter

import (
	"fmt"

	"github.com/apex/log"

	"github.com/blacktop/tlshunt/internal/platform"
	"github.com/blacktop/tlshunt/pkg/backend"
	"github.com/blacktop/tlshunt/pkg/extract"
	"github.com/blacktop/tlshunt/pkg/scanner"
)

// Options configures one hunt.
type Options struct {
	// Catalog overrides the built-in signature catalog.
	Catalog *scanner.Catalog
	// PackageName sharpens app classification on android.
	PackageName string
	// OutputDir receives extracted libraries.
	OutputDir string
	// ChunkSize for chunked transfers; the engine default when zero.
	ChunkSize int
	// Serial selects the adb device for device-transport extraction.
	Serial string
	// Parallel bounds concurrent module scans.
	Parallel int
	// Verbose probes exports even without indicator hits.
	Verbose bool
	// Progress observes (received, total) during chunked transfers.
	Progress func(received, total int64)
}

// Hunter drives scan and extract against one session. Create with New, close
// with Close.
type Hunter struct {
	session backend.Session
	handler platform.Handler
	scanner *scanner.ModuleScanner
	coord   *extract.Coordinator
}

// New builds a hunter around an already-attached session. The session's
// detected platform drives classification and extraction policy.
func New(session backend.Session, opts Options) (*Hunter, error) {
	plat := session.Platform()

	handler, err := platform.Get(plat, opts.PackageName)
	if err != nil {
		return nil, err
	}

	sc, err := scanner.New(session, scanner.Options{
		Catalog:     opts.Catalog,
		Platform:    plat,
		PackageName: opts.PackageName,
		Parallel:    opts.Parallel,
		Verbose:     opts.Verbose,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build scanner: %v", err)
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "extracted"
	}

	return &Hunter{
		session: session,
		handler: handler,
		scanner: sc,
		coord: &extract.Coordinator{
			Backend:     session,
			Platform:    plat,
			OutputDir:   outputDir,
			ChunkSize:   opts.ChunkSize,
			Serial:      opts.Serial,
			PackageName: opts.PackageName,
			Progress:    opts.Progress,
		},
	}, nil
}

// Scan fingerprints every scan-worthy module of the target.
func (h *Hunter) Scan(target string) (*scanner.ScanResult, error) {
	return h.scanner.Scan(target)
}

// ExtractLibrary pulls one module off the target, trying the platform's
// extraction methods in preference order until one succeeds. Each attempt
// runs exactly one method; the retry across methods happens here, not inside
// the coordinator.
func (h *Hunter) ExtractLibrary(mod backend.Module) extract.Result {
	var last extract.Result
	attempted := false
	for _, method := range h.handler.ExtractionOrder() {
		if !h.coord.Applicable(method, mod) {
			log.WithFields(log.Fields{
				"module": mod.Name,
				"method": method,
			}).Debug("method not applicable")
			continue
		}
		attempted = true
		last = h.coord.Extract(mod, method)
		if last.Success {
			return last
		}
	}
	if !attempted {
		return extract.Result{
			Module: mod,
			Error:  fmt.Sprintf("no applicable extraction method for %s", mod.Name),
		}
	}
	return last
}

// ExtractAll pulls every identified library from a scan result. Partial
// failure is normal; each module's outcome stands alone.
func (h *Hunter) ExtractAll(result *scanner.ScanResult) []extract.Result {
	var out []extract.Result
	for _, lib := range result.Libraries {
		if !lib.Identified() {
			continue
		}
		out = append(out, h.ExtractLibrary(lib.Module))
	}
	return out
}

// Close detaches the underlying session.
func (h *Hunter) Close() error {
	return h.session.Detach()
}

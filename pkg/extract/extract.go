// Package extract produces byte-exact local copies of modules identified in
// a target process. The coordinator runs exactly one extraction method per
// attempt; retrying with a different method is the caller's policy (the
// per-chunk read fallback lives below this layer, in pkg/transfer).
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"

	"github.com/blacktop/tlshunt/internal/platform"
	"github.com/blacktop/tlshunt/pkg/backend"
	"github.com/blacktop/tlshunt/pkg/transfer"
)

// Result is the immutable outcome of one extraction attempt.
type Result struct {
	Module     backend.Module `json:"module"`
	OutputPath string         `json:"output_path,omitempty"`
	Bytes      int64          `json:"bytes"`
	Method     string         `json:"method"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
}

// Coordinator extracts modules through one backend session.
type Coordinator struct {
	Backend   backend.Backend
	Platform  string
	OutputDir string
	// ChunkSize for memory/remote transfers; transfer.DefaultChunkSize
	// when zero.
	ChunkSize int
	// Serial selects the adb device for device-transport methods.
	Serial string
	// PackageName, when known, lets package extraction re-resolve APK paths
	// that went stale after an app update.
	PackageName string
	// Progress, when set, observes (received, total) byte counts during
	// chunked transfers. total is -1 when unknown.
	Progress func(received, total int64)
}

// Applicable reports whether a method can even be attempted for a module on
// the coordinator's platform. It does not predict success.
func (c *Coordinator) Applicable(method string, mod backend.Module) bool {
	switch method {
	case platform.MethodDiskCopy:
		if c.Platform == "android" || c.Platform == "ios" {
			return false
		}
		if mod.Path == "" {
			return false
		}
		info, err := os.Stat(mod.Path)
		return err == nil && info.Mode().IsRegular()
	case platform.MethodPackageInner:
		return c.Platform == "android" && strings.Contains(mod.Path, "!")
	case platform.MethodDevicePull:
		return c.Platform == "android" && mod.Path != "" && !strings.Contains(mod.Path, "!")
	case platform.MethodRemoteRead:
		return c.Platform == "ios" && mod.Path != ""
	case platform.MethodMemoryDump:
		return true // universal fallback
	}
	return false
}

// Extract runs a single extraction method for a module and reports the
// outcome. It never falls back to another method on failure.
func (c *Coordinator) Extract(mod backend.Module, method string) Result {
	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		return c.fail(mod, method, fmt.Errorf("failed to create output dir: %v", err))
	}
	outputPath := filepath.Join(c.OutputDir, mod.Name)

	log.WithFields(log.Fields{
		"module": mod.Name,
		"method": method,
	}).Info("Extracting")

	switch method {
	case platform.MethodDiskCopy:
		return c.diskCopy(mod, outputPath)
	case platform.MethodMemoryDump:
		return c.memoryDump(mod, outputPath)
	case platform.MethodDevicePull:
		return c.devicePull(mod, outputPath)
	case platform.MethodPackageInner:
		return c.packageInner(mod, outputPath)
	case platform.MethodRemoteRead:
		return c.remoteRead(mod, outputPath)
	}
	return c.fail(mod, method, fmt.Errorf("unknown extraction method %q", method))
}

func (c *Coordinator) fail(mod backend.Module, method string, err error) Result {
	log.WithFields(log.Fields{
		"module": mod.Name,
		"method": method,
	}).Warnf("extraction failed: %v", err)
	return Result{Module: mod, Method: method, Error: err.Error()}
}

func (c *Coordinator) engine() *transfer.Engine {
	return &transfer.Engine{ChunkSize: c.ChunkSize}
}

// removeIfEmpty cleans up zero-byte leftovers of failed attempts so the
// output dir only holds real artifacts.
func removeIfEmpty(path string) {
	if info, err := os.Stat(path); err == nil && info.Size() == 0 {
		os.Remove(path)
	}
}

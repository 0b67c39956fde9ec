// Package platform carries the per-OS knowledge the scanner and extractor
// need: which paths hold system libraries, which modules are never worth
// scanning, and which extraction methods to try in what order.
package platform

import (
	"fmt"
	"strings"
)

// Deployment classes for a detected module.
const (
	ClassSystem  = "system"
	ClassApp     = "app"
	ClassUnknown = "unknown"
)

// Extraction method names, in the vocabulary the extract package consumes.
const (
	MethodDiskCopy     = "disk_copy"
	MethodMemoryDump   = "memory_dump"
	MethodDevicePull   = "device_pull"
	MethodPackageInner = "package_inner"
	MethodRemoteRead   = "remote_read"
)

// Handler answers platform-specific classification questions.
type Handler interface {
	// IsSystemLibrary reports whether path belongs to the OS itself.
	IsSystemLibrary(name, path string) bool
	// Classify buckets a module into system/app.
	Classify(name, path string) string
	// ScanWorthy reports whether the module could plausibly be a TLS
	// library (filters libc, ART artifacts, core win32 DLLs, ...).
	ScanWorthy(name, path string) bool
	// ExtractionOrder is the caller-level method retry order.
	ExtractionOrder() []string
}

// modules that are never TLS libraries on any platform
var skipNames = map[string]struct{}{
	"libc.so":        {},
	"libm.so":        {},
	"libdl.so":       {},
	"libart.so":      {},
	"liblog.so":      {},
	"libz.so":        {},
	"libstdc++.so":   {},
	"ntdll.dll":      {},
	"kernel32.dll":   {},
	"kernelbase.dll": {},
	"user32.dll":     {},
	"gdi32.dll":      {},
	"advapi32.dll":   {},
}

func skipByName(name string) bool {
	_, ok := skipNames[strings.ToLower(name)]
	return ok
}

// Get returns the handler for a platform name. packageName is only meaningful
// on android, where it sharpens app-library detection.
func Get(platform, packageName string) (Handler, error) {
	switch strings.ToLower(platform) {
	case "android":
		return &Android{PackageName: packageName}, nil
	case "ios":
		return &IOS{}, nil
	case "linux":
		return &Linux{}, nil
	case "macos", "darwin":
		return &MacOS{}, nil
	case "windows":
		return &Windows{}, nil
	}
	return nil, fmt.Errorf("unknown platform %q (want android, ios, linux, macos or windows)", platform)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

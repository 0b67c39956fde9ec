// Package backend defines the instrumentation capability surface that the
// scanning and extraction engines consume. Implementations (frida, fakes for
// tests) live in sub-packages so the engines stay backend-agnostic.
package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the requested module, process or file does not exist
	// in the target. Fatal for that single target only.
	ErrNotFound = errors.New("not found")
	// ErrUnreadable means a memory range or chunk read was denied.
	ErrUnreadable = errors.New("memory unreadable")
	// ErrNoExports means the module carries no export table.
	ErrNoExports = errors.New("no export table")
)

// Module is one loaded binary image in the target process. Identity within a
// scan session is (Name, Base). The target may unload it at any time; a stale
// Module produces read failures, never a crash.
type Module struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Base uint64 `json:"base"`
	Size uint64 `json:"size"`
}

func (m Module) String() string {
	return fmt.Sprintf("%s %#x-%#x %s", m.Name, m.Base, m.Base+m.Size, m.Path)
}

// MemoryRange is a contiguous access-checked region of the target's address
// space. Protection is in frida's "rwx" form (e.g. "r-x").
type MemoryRange struct {
	Base       uint64 `json:"base"`
	Size       uint64 `json:"size"`
	Protection string `json:"protection"`
}

// Readable reports whether the range protection includes read access.
func (r MemoryRange) Readable() bool {
	return len(r.Protection) > 0 && r.Protection[0] == 'r'
}

// End returns the first address past the range.
func (r MemoryRange) End() uint64 { return r.Base + r.Size }

// PatternMatch is one hit of a masked hex pattern scan.
type PatternMatch struct {
	Address uint64 `json:"address"`
	Size    int    `json:"size"`
}

// Process is one running process on the target device.
type Process struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// ReadMethod is one strategy for reading target memory. The transfer engine
// tries methods in slice order per chunk; the first success wins. Read returns
// exactly size bytes or an error.
type ReadMethod struct {
	Name string
	Read func(address uint64, size int) ([]byte, error)
}

// FileHandle is an open file on the target, read in bounded chunks. A short
// (or empty) result past EOF is signalled by a smaller/zero-length slice.
type FileHandle interface {
	ReadChunk(size int) ([]byte, error)
	Close() error
}

// Backend is the full capability set of one instrumentation platform.
type Backend interface {
	// EnumerateModules lists every loaded module of the attached process.
	EnumerateModules() ([]Module, error)

	// FindModule resolves one module by name. Returns ErrNotFound when the
	// module is not loaded.
	FindModule(name string) (*Module, error)

	// EnumerateReadableRanges lists all readable memory ranges of the
	// attached process, whether or not they back a module.
	EnumerateReadableRanges() ([]MemoryRange, error)

	// ReadBytes reads size bytes at address using the backend's default
	// (fastest) primitive. Returns ErrUnreadable on access failure.
	ReadBytes(address uint64, size int) ([]byte, error)

	// ReadMethods returns the ordered fallback chain of read primitives,
	// fastest first, most compatible last.
	ReadMethods() []ReadMethod

	// ScanPattern runs a masked hex pattern (e.g. "53 53 4c ?? 33") over
	// [address, address+size) and returns every hit.
	ScanPattern(address, size uint64, pattern string) ([]PatternMatch, error)

	// EnumerateExports lists exported symbol names of a module. A module
	// without an export table yields ErrNoExports.
	EnumerateExports(module string) ([]string, error)

	// OpenFile opens a file on the target for chunked reading.
	OpenFile(path string) (FileHandle, error)
}

// Session is the attach/spawn lifecycle around a Backend. Kept separate so
// engines that only ever read take the narrow Backend interface.
type Session interface {
	Backend

	// Platform reports the target OS: android, ios, linux, macos, windows.
	Platform() string

	// EnumerateProcesses lists processes on the device.
	EnumerateProcesses() ([]Process, error)

	// Detach releases the session. Safe to call twice.
	Detach() error
}

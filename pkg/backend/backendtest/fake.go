// Package backendtest provides an in-memory backend.Session for tests: a
// fake address space assembled from byte slices, with configurable modules,
// ranges, exports, files and injectable read failures.
package backendtest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blacktop/tlshunt/pkg/backend"
)

// Region is one mapped span of the fake address space.
type Region struct {
	Base       uint64
	Protection string
	Data       []byte
}

// Fake implements backend.Session against in-memory state. The zero value is
// an empty process; populate the exported fields before use.
type Fake struct {
	PlatformName string
	Modules      []backend.Module
	Regions      []Region
	Exports      map[string][]string // module name -> symbols
	Files        map[string][]byte   // target path -> content
	Processes    []backend.Process

	// FailReads makes every read primitive fail for addresses inside
	// [base, base+size) of any listed span.
	FailReads []Region

	// ReadMethodNames overrides the fallback chain names; all of them share
	// the fake's single read primitive unless FailFirstN is set.
	ReadMethodNames []string
	// FailFirstN makes the first N methods of the chain always fail, to
	// exercise per-chunk fallback.
	FailFirstN int

	DetachCalls int
}

var _ backend.Session = (*Fake)(nil)

func (f *Fake) Platform() string {
	if f.PlatformName == "" {
		return "linux"
	}
	return f.PlatformName
}

func (f *Fake) EnumerateProcesses() ([]backend.Process, error) { return f.Processes, nil }

func (f *Fake) Detach() error {
	f.DetachCalls++
	return nil
}

func (f *Fake) EnumerateModules() ([]backend.Module, error) { return f.Modules, nil }

func (f *Fake) FindModule(name string) (*backend.Module, error) {
	for _, m := range f.Modules {
		if m.Name == name {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("module %s: %w", name, backend.ErrNotFound)
}

func (f *Fake) EnumerateReadableRanges() ([]backend.MemoryRange, error) {
	out := make([]backend.MemoryRange, 0, len(f.Regions))
	for _, r := range f.Regions {
		out = append(out, backend.MemoryRange{Base: r.Base, Size: uint64(len(r.Data)), Protection: r.Protection})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out, nil
}

func (f *Fake) region(address uint64) *Region {
	for i := range f.Regions {
		r := &f.Regions[i]
		if address >= r.Base && address < r.Base+uint64(len(r.Data)) {
			return r
		}
	}
	return nil
}

func (f *Fake) failing(address uint64, size int) bool {
	end := address + uint64(size)
	for _, span := range f.FailReads {
		spanEnd := span.Base + uint64(len(span.Data))
		if span.Data == nil {
			spanEnd = span.Base + 1
		}
		if address < spanEnd && span.Base < end {
			return true
		}
	}
	return false
}

func (f *Fake) ReadBytes(address uint64, size int) ([]byte, error) {
	if f.failing(address, size) {
		return nil, fmt.Errorf("%w at %#x", backend.ErrUnreadable, address)
	}
	r := f.region(address)
	if r == nil {
		return nil, fmt.Errorf("%w at %#x", backend.ErrUnreadable, address)
	}
	off := address - r.Base
	if off+uint64(size) > uint64(len(r.Data)) {
		return nil, fmt.Errorf("%w: read past region end at %#x", backend.ErrUnreadable, address)
	}
	out := make([]byte, size)
	copy(out, r.Data[off:off+uint64(size)])
	return out, nil
}

func (f *Fake) ReadMethods() []backend.ReadMethod {
	names := f.ReadMethodNames
	if len(names) == 0 {
		names = []string{"direct", "checked", "salvage"}
	}
	methods := make([]backend.ReadMethod, 0, len(names))
	for i, name := range names {
		broken := i < f.FailFirstN
		methods = append(methods, backend.ReadMethod{
			Name: name,
			Read: func(address uint64, size int) ([]byte, error) {
				if broken {
					return nil, fmt.Errorf("method unavailable")
				}
				return f.ReadBytes(address, size)
			},
		})
	}
	return methods
}

// ScanPattern matches a masked hex pattern (e.g. "53 53 4c ?? 33") against
// the fake address space, mirroring the agent's semantics.
func (f *Fake) ScanPattern(address, size uint64, pattern string) ([]backend.PatternMatch, error) {
	want, mask, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}
	r := f.region(address)
	if r == nil {
		return nil, fmt.Errorf("%w at %#x", backend.ErrUnreadable, address)
	}
	if f.failing(address, int(size)) {
		return nil, fmt.Errorf("%w at %#x", backend.ErrUnreadable, address)
	}
	off := int(address - r.Base)
	end := off + int(size)
	if end > len(r.Data) {
		end = len(r.Data)
	}
	data := r.Data[off:end]

	var out []backend.PatternMatch
	for i := 0; i+len(want) <= len(data); i++ {
		hit := true
		for j := range want {
			if mask[j] && data[i+j] != want[j] {
				hit = false
				break
			}
		}
		if hit {
			out = append(out, backend.PatternMatch{Address: address + uint64(i), Size: len(want)})
		}
	}
	return out, nil
}

func parsePattern(pattern string) (want []byte, mask []bool, err error) {
	for _, tok := range strings.Fields(pattern) {
		if tok == "??" {
			want = append(want, 0)
			mask = append(mask, false)
			continue
		}
		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, nil, fmt.Errorf("bad pattern byte %q: %v", tok, err)
		}
		want = append(want, byte(b))
		mask = append(mask, true)
	}
	if len(want) == 0 {
		return nil, nil, fmt.Errorf("empty pattern")
	}
	return want, mask, nil
}

func (f *Fake) EnumerateExports(module string) ([]string, error) {
	syms, ok := f.Exports[module]
	if !ok {
		return nil, fmt.Errorf("module %s: %w", module, backend.ErrNoExports)
	}
	return syms, nil
}

func (f *Fake) OpenFile(path string) (backend.FileHandle, error) {
	data, ok := f.Files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, backend.ErrNotFound)
	}
	return &fakeFile{data: data}, nil
}

type fakeFile struct {
	data   []byte
	cursor int
	closed bool
}

func (f *fakeFile) ReadChunk(size int) ([]byte, error) {
	if f.closed {
		return nil, fmt.Errorf("read on closed file")
	}
	if f.cursor >= len(f.data) {
		return nil, nil
	}
	end := f.cursor + size
	if end > len(f.data) {
		end = len(f.data)
	}
	out := f.data[f.cursor:end]
	f.cursor = end
	return out, nil
}

func (f *fakeFile) Close() error {
	f.closed = true
	return nil
}

// ModuleRegion is a convenience that registers both a module and a readable
// region backing its whole span.
func (f *Fake) ModuleRegion(name, path string, base uint64, data []byte) backend.Module {
	mod := backend.Module{Name: name, Path: path, Base: base, Size: uint64(len(data))}
	f.Modules = append(f.Modules, mod)
	f.Regions = append(f.Regions, Region{Base: base, Protection: "r-x", Data: data})
	return mod
}

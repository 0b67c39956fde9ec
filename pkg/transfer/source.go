package transfer

import (
	"fmt"
	"io"

	"github.com/blacktop/tlshunt/pkg/backend"
)

// FileOffset is the chunk offset sentinel for byte-oriented sources, which
// have no meaningful base address.
const FileOffset int64 = -1

// Source is one transferable byte stream. A Source is consumed once; each
// Transfer invocation needs a fresh one.
type Source interface {
	// ID names the source in chunk and error records.
	ID() string
	// Size returns the total byte count, or -1 when unknown (file streams).
	Size() int64
	// next produces the payload starting at the cursor, at most max bytes.
	// offset is the chunk's offset value (FileOffset for byte streams).
	// done means the stream is exhausted after this payload.
	next(max int) (payload []byte, offset int64, done bool, err error)
}

// MemorySource reads a memory region through an ordered fallback chain of
// read methods. The chain is re-evaluated per chunk: a page can become
// unmapped between chunks, and a method that failed once may still serve
// the next chunk.
type MemorySource struct {
	Name    string
	Base    uint64
	Length  int64
	Methods []backend.ReadMethod

	cursor int64
}

func (m *MemorySource) ID() string  { return m.Name }
func (m *MemorySource) Size() int64 { return m.Length }

func (m *MemorySource) next(max int) ([]byte, int64, bool, error) {
	remaining := m.Length - m.cursor
	if remaining <= 0 {
		return nil, m.cursor, true, nil
	}
	n := int64(max)
	if remaining < n {
		n = remaining
	}

	offset := m.cursor
	address := m.Base + uint64(offset)

	var lastErr error
	for _, method := range m.Methods {
		data, err := method.Read(address, int(n))
		if err != nil {
			lastErr = fmt.Errorf("%s: %v", method.Name, err)
			continue
		}
		m.cursor += int64(len(data))
		return data, offset, m.cursor >= m.Length, nil
	}
	if lastErr == nil {
		lastErr = backend.ErrUnreadable
	}
	return nil, offset, false, fmt.Errorf("all %d read methods failed at offset %#x: %v", len(m.Methods), offset, lastErr)
}

// FileSource streams a target-side file handle. Size is unknown up front, so
// it reads one chunk ahead to place the final flag on the right chunk even
// when the file length is an exact multiple of the chunk size.
type FileSource struct {
	Name   string
	Handle backend.FileHandle

	buf    []byte
	primed bool
}

func (f *FileSource) ID() string  { return f.Name }
func (f *FileSource) Size() int64 { return -1 }

func (f *FileSource) next(max int) ([]byte, int64, bool, error) {
	if !f.primed {
		data, err := f.Handle.ReadChunk(max)
		if err != nil {
			return nil, FileOffset, false, err
		}
		f.buf, f.primed = data, true
	}
	cur := f.buf
	if len(cur) < max { // EOF already reached
		f.buf = nil
		return cur, FileOffset, true, nil
	}
	ahead, err := f.Handle.ReadChunk(max)
	if err != nil {
		return nil, FileOffset, false, err
	}
	f.buf = ahead
	return cur, FileOffset, len(ahead) == 0, nil
}

// ReaderSource adapts any io.Reader (e.g. a controller-side file) into a
// Source. Used by tests and local extraction paths.
type ReaderSource struct {
	Name   string
	Reader io.Reader
	Length int64 // -1 when unknown

	cursor int64
}

func (r *ReaderSource) ID() string  { return r.Name }
func (r *ReaderSource) Size() int64 { return r.Length }

func (r *ReaderSource) next(max int) ([]byte, int64, bool, error) {
	buf := make([]byte, max)
	n, err := io.ReadFull(r.Reader, buf)
	if err == io.EOF {
		return nil, FileOffset, true, nil
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, FileOffset, false, err
	}
	r.cursor += int64(n)
	done := err == io.ErrUnexpectedEOF || (r.Length >= 0 && r.cursor >= r.Length)
	return buf[:n], FileOffset, done, nil
}

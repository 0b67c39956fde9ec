package transfer

import (
	"errors"
	"fmt"
	"io"
)

// ErrProtocolViolation marks out-of-order or duplicate sequence numbers
// during reassembly. Fatal for the affected transfer.
var ErrProtocolViolation = errors.New("chunk protocol violation")

// ErrTransferFailed is returned when a stream terminates with a failure
// chunk. The assembler still knows how many bytes landed before the failure.
var ErrTransferFailed = errors.New("transfer failed")

// Assembler rebuilds a contiguous byte stream from in-order chunks, indexed
// by sequence number. Chunks arriving out of order or twice are rejected as
// protocol corruption, never silently dropped.
type Assembler struct {
	w        io.Writer
	next     int
	received int64
	finished bool
	failed   bool
}

// NewAssembler writes reassembled payloads to w. When w also implements
// io.Seeker, memory chunks are placed at their stated offsets; otherwise
// payloads are appended in sequence order (equivalent, since sequence gaps
// are rejected).
func NewAssembler(w io.Writer) *Assembler {
	return &Assembler{w: w}
}

// Add consumes one chunk. Returns ErrProtocolViolation (wrapped with
// detail) for duplicate or out-of-order sequence numbers and for chunks
// after the final one.
func (a *Assembler) Add(c Chunk) error {
	if a.finished {
		return fmt.Errorf("%w: chunk %d for %s after final chunk", ErrProtocolViolation, c.Seq, c.SourceID)
	}
	if c.Seq != a.next {
		kind := "out-of-order"
		if c.Seq < a.next {
			kind = "duplicate"
		}
		return fmt.Errorf("%w: %s sequence number %d (want %d) for %s", ErrProtocolViolation, kind, c.Seq, a.next, c.SourceID)
	}
	a.next++

	if c.Failed {
		a.finished = true
		a.failed = true
		return nil
	}

	if len(c.Payload) > 0 {
		if seeker, ok := a.w.(io.Seeker); ok && c.Offset >= 0 {
			if _, err := seeker.Seek(c.Offset, io.SeekStart); err != nil {
				return fmt.Errorf("failed to seek to chunk offset %#x: %v", c.Offset, err)
			}
		}
		if _, err := a.w.Write(c.Payload); err != nil {
			return fmt.Errorf("failed to write chunk %d: %v", c.Seq, err)
		}
		a.received += int64(len(c.Payload))
	}

	if c.Final {
		a.finished = true
	}
	return nil
}

// Finished reports whether a final chunk has been consumed.
func (a *Assembler) Finished() bool { return a.finished }

// Failed reports whether the consumed final chunk signalled failure.
func (a *Assembler) Failed() bool { return a.failed }

// BytesReceived is the payload byte count consumed so far. On success it
// equals the source size; on failure it is what landed before the abort.
func (a *Assembler) BytesReceived() int64 { return a.received }

// Copy drives a full transfer: stream src chunk by chunk into dst, verifying
// sequence numbers along the way. progress (optional) observes the running
// byte count. Returns the bytes received; on failure they are the partial
// count, and the error wraps ErrTransferFailed with the first error record's
// cause.
func Copy(dst io.Writer, e *Engine, src Source, progress func(int64)) (int64, error) {
	stream := e.Transfer(src)
	asm := NewAssembler(dst)

	for {
		chunk, ok := stream.Next()
		if !ok {
			break
		}
		if err := asm.Add(chunk); err != nil {
			return asm.BytesReceived(), err
		}
		if progress != nil {
			progress(asm.BytesReceived())
		}
	}

	if stream.Failed() {
		cause := "unknown cause"
		if errs := stream.Errors(); len(errs) > 0 {
			cause = errs[0].Message
		}
		return asm.BytesReceived(), fmt.Errorf("%w: %s", ErrTransferFailed, cause)
	}
	if !asm.Finished() {
		return asm.BytesReceived(), fmt.Errorf("%w: stream ended without a final chunk", ErrProtocolViolation)
	}
	return asm.BytesReceived(), nil
}

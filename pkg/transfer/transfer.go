// Package transfer implements the chunked byte-transfer protocol used to
// stream large memory regions and files out of a target process: bounded
// chunks, strictly increasing sequence numbers, a per-chunk fallback chain of
// read methods, and explicit success/failure signalling for reassembly.
package transfer

import (
	"github.com/apex/log"
)

// DefaultChunkSize is the transfer unit used when the caller does not pick
// one. Large enough to amortize per-chunk overhead, small enough that a
// single unreadable page costs little.
const DefaultChunkSize = 64 * 1024

// Message kinds on the wire.
const (
	KindChunk = "chunk"
	KindError = "error"
)

// Chunk is one unit of the transfer protocol. Sequence numbers start at 0
// and increment by exactly 1 per emitted chunk, including a terminal failure
// chunk. Exactly one chunk per source carries Final.
type Chunk struct {
	Kind     string `json:"kind"`
	SourceID string `json:"source_id"`
	Seq      int    `json:"sequence_number"`
	Offset   int64  `json:"offset"`
	Final    bool   `json:"is_final"`
	Failed   bool   `json:"failed,omitempty"`
	Payload  []byte `json:"-"`
}

// ErrorRecord is emitted before a failing terminal chunk and carries the
// offset the transfer died at plus a human-readable cause.
type ErrorRecord struct {
	Kind     string `json:"kind"`
	SourceID string `json:"source_id"`
	Offset   int64  `json:"offset"`
	Message  string `json:"message"`
}

// Engine produces chunk streams. The zero value is usable.
type Engine struct {
	// ChunkSize overrides DefaultChunkSize when > 0.
	ChunkSize int
	// OnError observes error records as they are emitted (in addition to
	// the stream recording them).
	OnError func(ErrorRecord)
}

// Transfer starts a finite, non-restartable chunk stream over src. The
// caller may abandon the stream between chunks at any point; the engine
// holds no resources of its own (the source's handle lifetime belongs to
// the caller).
func (e *Engine) Transfer(src Source) *Stream {
	size := e.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &Stream{src: src, chunkSize: size, onError: e.OnError}
}

// Stream is a lazy, pull-based sequence of chunks for one source.
type Stream struct {
	src       Source
	chunkSize int
	onError   func(ErrorRecord)

	seq    int
	done   bool
	failed bool
	errs   []ErrorRecord
}

// Next produces the next chunk. ok is false once the stream is exhausted
// (the chunk carrying Final is the last one returned with ok = true).
func (s *Stream) Next() (Chunk, bool) {
	if s.done {
		return Chunk{}, false
	}

	payload, offset, srcDone, err := s.src.next(s.chunkSize)
	if err != nil {
		rec := ErrorRecord{
			Kind:     KindError,
			SourceID: s.src.ID(),
			Offset:   offset,
			Message:  err.Error(),
		}
		s.errs = append(s.errs, rec)
		if s.onError != nil {
			s.onError(rec)
		}
		log.WithFields(log.Fields{
			"source": s.src.ID(),
			"offset": offset,
		}).Warnf("transfer failed: %v", err)

		s.done = true
		s.failed = true
		chunk := Chunk{
			Kind:     KindChunk,
			SourceID: s.src.ID(),
			Seq:      s.seq,
			Offset:   offset,
			Final:    true,
			Failed:   true,
		}
		s.seq++
		return chunk, true
	}

	chunk := Chunk{
		Kind:     KindChunk,
		SourceID: s.src.ID(),
		Seq:      s.seq,
		Offset:   offset,
		Final:    srcDone,
		Payload:  payload,
	}
	s.seq++
	if srcDone {
		s.done = true
	}
	return chunk, true
}

// Failed reports whether the stream terminated with a failure chunk.
func (s *Stream) Failed() bool { return s.failed }

// Errors returns the error records emitted so far.
func (s *Stream) Errors() []ErrorRecord { return s.errs }

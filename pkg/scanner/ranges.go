package scanner

import (
	"github.com/apex/log"

	"github.com/blacktop/tlshunt/pkg/backend"
)

// RangeEnumerator is the slice of the backend the range resolver needs.
type RangeEnumerator interface {
	EnumerateReadableRanges() ([]backend.MemoryRange, error)
}

// ResolveRanges returns the readable sub-ranges of a module's nominal span,
// clamped to the span. A module's declared size frequently covers unmapped
// guard pages or ranges without read permission; scanning those directly
// faults and kills the whole pass, so only what intersects an actually
// readable range is returned. An empty result means "module unreadable",
// which callers treat as a clean no-match, not an error.
func ResolveRanges(b RangeEnumerator, mod backend.Module) ([]backend.MemoryRange, error) {
	ranges, err := b.EnumerateReadableRanges()
	if err != nil {
		return nil, err
	}

	start, end := mod.Base, mod.Base+mod.Size
	var out []backend.MemoryRange
	for _, r := range ranges {
		if !r.Readable() {
			continue
		}
		if r.End() <= start || r.Base >= end {
			continue
		}
		clamped := r
		if clamped.Base < start {
			clamped.Size -= start - clamped.Base
			clamped.Base = start
		}
		if clamped.End() > end {
			clamped.Size = end - clamped.Base
		}
		if clamped.Size > 0 {
			out = append(out, clamped)
		}
	}

	log.WithFields(log.Fields{
		"module": mod.Name,
		"ranges": len(out),
	}).Debug("resolved readable ranges")

	return out, nil
}

package scanner

import (
	"reflect"
	"testing"

	"github.com/blacktop/tlshunt/pkg/backend"
	"github.com/blacktop/tlshunt/pkg/backend/backendtest"
)

func TestResolveRangesClamping(t *testing.T) {
	fake := &backendtest.Fake{
		Regions: []backendtest.Region{
			// straddles the module start
			{Base: 0x0800, Protection: "r--", Data: make([]byte, 0x1000)},
			// fully inside
			{Base: 0x2000, Protection: "r-x", Data: make([]byte, 0x800)},
			// straddles the module end
			{Base: 0x3800, Protection: "rw-", Data: make([]byte, 0x1000)},
			// outside entirely
			{Base: 0x8000, Protection: "r--", Data: make([]byte, 0x100)},
			// inside but not readable
			{Base: 0x2900, Protection: "--x", Data: make([]byte, 0x100)},
		},
	}
	mod := backend.Module{Name: "libssl.so", Base: 0x1000, Size: 0x3000} // [0x1000, 0x4000)

	got, err := ResolveRanges(fake, mod)
	if err != nil {
		t.Fatal(err)
	}

	want := []backend.MemoryRange{
		{Base: 0x1000, Size: 0x800, Protection: "r--"},
		{Base: 0x2000, Size: 0x800, Protection: "r-x"},
		{Base: 0x3800, Size: 0x800, Protection: "rw-"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveRanges = %+v; want %+v", got, want)
	}
}

func TestResolveRangesUnreadableModule(t *testing.T) {
	fake := &backendtest.Fake{
		Regions: []backendtest.Region{
			{Base: 0x8000, Protection: "r--", Data: make([]byte, 0x100)},
		},
	}
	mod := backend.Module{Name: "libghost.so", Base: 0x1000, Size: 0x1000}

	got, err := ResolveRanges(fake, mod)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("unmapped module resolved %d ranges; want 0", len(got))
	}
}

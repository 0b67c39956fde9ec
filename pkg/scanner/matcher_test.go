package scanner

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/blacktop/tlshunt/pkg/backend"
	"github.com/blacktop/tlshunt/pkg/backend/backendtest"
)

// memoryWith builds a region of zeroes with the given strings planted at
// their offsets.
func memoryWith(size int, planted map[int]string) []byte {
	data := make([]byte, size)
	for off, s := range planted {
		copy(data[off:], s)
	}
	return data
}

func TestMatcherExhaustive(t *testing.T) {
	fake := &backendtest.Fake{}
	data := memoryWith(0x1000, map[int]string{
		0x100: "BoringSSL",
		0x300: "OpenSSL 1.1.",
	})
	mod := fake.ModuleRegion("libssl.so", "/x/libssl.so", 0x10000, data)
	ranges, err := ResolveRanges(fake, mod)
	if err != nil {
		t.Fatal(err)
	}

	m := NewMatcher(fake)
	results := m.Scan(ranges, Default().Signatures, mod.Base, Exhaustive)

	got := map[string]MatchResult{}
	for _, r := range results {
		got[r.SignatureID] = r
	}
	if len(got) != 2 {
		t.Fatalf("matched %d signatures; want 2 (%v)", len(got), got)
	}
	boring, ok := got["boringssl-0"]
	if !ok {
		t.Fatal("boringssl-0 not matched")
	}
	if boring.Address != 0x10100 || boring.Offset != 0x100 || boring.Count != 1 {
		t.Errorf("boringssl-0 match = %+v", boring)
	}
	if _, ok := got["openssl-1"]; !ok {
		t.Error("openssl-1 not matched")
	}
}

func TestMatcherFirstHit(t *testing.T) {
	fake := &backendtest.Fake{}
	data := memoryWith(0x1000, map[int]string{
		0x100: "BoringSSL",
		0x300: "GnuTLS",
	})
	mod := fake.ModuleRegion("libssl.so", "/x/libssl.so", 0x10000, data)
	ranges, _ := ResolveRanges(fake, mod)

	m := NewMatcher(fake)
	results := m.Scan(ranges, Default().Signatures, mod.Base, FirstHit)

	if len(results) != 1 {
		t.Errorf("FirstHit returned %d results from one range; want 1", len(results))
	}
}

func TestMatcherSwallowsRangeErrors(t *testing.T) {
	fake := &backendtest.Fake{}
	good := memoryWith(0x1000, map[int]string{0x10: "wolfSSL"})
	fake.Regions = append(fake.Regions,
		backendtest.Region{Base: 0x10000, Protection: "r--", Data: make([]byte, 0x1000)},
		backendtest.Region{Base: 0x11000, Protection: "r--", Data: good},
	)
	fake.FailReads = []backendtest.Region{{Base: 0x10000, Data: make([]byte, 0x1000)}}
	mod := backend.Module{Name: "libwolfssl.so", Base: 0x10000, Size: 0x2000}
	ranges, _ := ResolveRanges(fake, mod)

	m := NewMatcher(fake)
	results := m.Scan(ranges, Default().Signatures, mod.Base, Exhaustive)

	if len(results) != 1 || results[0].SignatureID != "wolfssl-0" {
		t.Errorf("results = %+v; want single wolfssl-0 hit despite failing range", results)
	}
}

func TestMatcherMaskedPattern(t *testing.T) {
	fake := &backendtest.Fake{}
	data := memoryWith(0x100, nil)
	copy(data[0x20:], []byte{0x53, 0x53, 0x4c, 0xAB, 0x33})
	mod := fake.ModuleRegion("libx.so", "/x/libx.so", 0x1000, data)
	ranges, _ := ResolveRanges(fake, mod)

	sigs := []Signature{{ID: "masked", Pattern: "53 53 4c ?? 33", String: "SSL?3"}}
	results := NewMatcher(fake).Scan(ranges, sigs, mod.Base, Exhaustive)

	want := []MatchResult{{SignatureID: "masked", Address: 0x1020, Offset: 0x20, Count: 1}}
	if !reflect.DeepEqual(results, want) {
		t.Errorf("masked scan = %+v; want %+v", results, want)
	}
}

func TestScanIndicators(t *testing.T) {
	// indicator scanning is first-hit-per-range, so plant the ASCII keylog
	// label and the UTF-16LE one (as a windows DLL stores it) in separate
	// ranges of the same module
	var wide bytes.Buffer
	for _, b := range []byte("SSLKEYLOGFILE") {
		wide.WriteByte(b)
		wide.WriteByte(0)
	}
	fake := &backendtest.Fake{
		Regions: []backendtest.Region{
			{Base: 0x40000, Protection: "r--", Data: memoryWith(0x1000, map[int]string{0x40: "CLIENT_RANDOM"})},
			{Base: 0x41000, Protection: "r--", Data: append(wide.Bytes(), make([]byte, 0x100)...)},
		},
	}
	mod := backend.Module{Name: "libtls.dll", Path: `C:\app\libtls.dll`, Base: 0x40000, Size: 0x2000}
	ranges, _ := ResolveRanges(fake, mod)

	found := NewMatcher(fake).ScanIndicators(ranges, Default().Indicators, mod.Base)

	has := func(s string) bool {
		for _, f := range found {
			if f == s {
				return true
			}
		}
		return false
	}
	if !has("CLIENT_RANDOM") {
		t.Errorf("ASCII indicator missed: %v", found)
	}
	if !has("SSLKEYLOGFILE") {
		t.Errorf("UTF-16LE indicator missed: %v", found)
	}
}

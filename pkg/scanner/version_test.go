package scanner

import (
	"testing"

	"github.com/blacktop/tlshunt/pkg/backend/backendtest"
)

func TestExtractVersion(t *testing.T) {
	fake := &backendtest.Fake{}
	data := memoryWith(0x1000, map[int]string{
		0x100: "OpenSSL 3.0.13 30 Jan 2024",
	})
	fake.ModuleRegion("libssl.so", "/x/libssl.so", 0x10000, data)

	matches := []MatchResult{{SignatureID: "openssl-0", Address: 0x10100, Offset: 0x100, Count: 1}}

	if got := Default().ExtractVersion(fake, "openssl", matches); got != "3.0.13" {
		t.Errorf("ExtractVersion = %q; want 3.0.13", got)
	}
}

func TestExtractVersionLetterSuffix(t *testing.T) {
	fake := &backendtest.Fake{}
	data := memoryWith(0x1000, map[int]string{
		0x100: "OpenSSL 1.1.1k  25 Mar 2021",
	})
	fake.ModuleRegion("libssl.so", "/x/libssl.so", 0x10000, data)

	matches := []MatchResult{{SignatureID: "openssl-1", Address: 0x10100, Offset: 0x100, Count: 1}}

	if got := Default().ExtractVersion(fake, "openssl", matches); got != "1.1.1k" {
		t.Errorf("ExtractVersion = %q; want 1.1.1k", got)
	}
}

func TestExtractVersionMisses(t *testing.T) {
	fake := &backendtest.Fake{}
	data := memoryWith(0x1000, map[int]string{
		0x100: "OpenSSL 3.", // marker with no trailing version text
	})
	fake.ModuleRegion("libssl.so", "/x/libssl.so", 0x10000, data)

	matches := []MatchResult{{SignatureID: "openssl-0", Address: 0x10100, Offset: 0x100, Count: 1}}

	// no identity patterns at all
	if got := Default().ExtractVersion(fake, "gotls", matches); got != "" {
		t.Errorf("gotls version = %q; want empty", got)
	}

	// read failure is a miss, not an error
	fake.FailReads = []backendtest.Region{{Base: 0x10100, Data: make([]byte, 1)}}
	if got := Default().ExtractVersion(fake, "openssl", matches); got != "" {
		t.Errorf("version after read failure = %q; want empty", got)
	}
}

func TestPlausibleVersion(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"3.0.13", true},
		{"1.1.1k", true},
		{"7.4.0", true},
		{"...", false},
		{"abc", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := plausibleVersion(tt.in); got != tt.want {
			t.Errorf("plausibleVersion(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}

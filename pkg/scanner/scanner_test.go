package scanner

import (
	"testing"

	"github.com/blacktop/tlshunt/pkg/backend/backendtest"
)

func tlsModuleData() []byte {
	return memoryWith(0x2000, map[int]string{
		0x100: "CLIENT_RANDOM",
		0x400: "OpenSSL 3.0.13 30 Jan 2024",
	})
}

func TestScanPipeline(t *testing.T) {
	fake := &backendtest.Fake{PlatformName: "linux"}
	fake.ModuleRegion("libssl.so.3", "/usr/lib/libssl.so.3", 0x7f0000000000, tlsModuleData())
	fake.ModuleRegion("libplain.so", "/usr/lib/libplain.so", 0x7f0000100000, memoryWith(0x1000, nil))
	fake.ModuleRegion("libc.so", "/usr/lib/libc.so", 0x7f0000200000, memoryWith(0x1000, nil))
	fake.Exports = map[string][]string{
		"libssl.so.3": {"SSL_new", "SSL_read", "SSL_CTX_new"},
	}

	s, err := New(fake, Options{Platform: "linux"})
	if err != nil {
		t.Fatal(err)
	}

	result, err := s.Scan("testproc")
	if err != nil {
		t.Fatal(err)
	}

	// libc is filtered before scanning, libplain produces no verdict
	if result.ModulesScanned != 2 {
		t.Errorf("ModulesScanned = %d; want 2", result.ModulesScanned)
	}
	if len(result.Libraries) != 1 {
		t.Fatalf("Libraries = %+v; want exactly one", result.Libraries)
	}

	lib := result.Libraries[0]
	if lib.Module.Name != "libssl.so.3" {
		t.Errorf("library module = %s", lib.Module.Name)
	}
	if lib.Identity != "openssl" {
		t.Errorf("identity = %q; want openssl", lib.Identity)
	}
	if lib.Variant != "3.x" {
		t.Errorf("variant = %q; want 3.x", lib.Variant)
	}
	if lib.Version != "3.0.13" {
		t.Errorf("version = %q; want 3.0.13", lib.Version)
	}
	if lib.Class != "system" {
		t.Errorf("class = %q; want system", lib.Class)
	}
	if len(lib.SymbolHits) != 3 {
		t.Errorf("symbol hits = %v; want 3", lib.SymbolHits)
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected scan errors: %v", result.Errors)
	}
}

func TestScanModuleNoEvidence(t *testing.T) {
	fake := &backendtest.Fake{PlatformName: "linux"}
	mod := fake.ModuleRegion("libplain.so", "/usr/lib/libplain.so", 0x1000, memoryWith(0x1000, nil))

	s, err := New(fake, Options{Platform: "linux"})
	if err != nil {
		t.Fatal(err)
	}

	verdict, err := s.ScanModule(mod)
	if err != nil {
		t.Fatal(err)
	}
	if verdict != nil {
		t.Errorf("no-evidence module produced verdict %+v", verdict)
	}
}

func TestScanModuleUnreadable(t *testing.T) {
	fake := &backendtest.Fake{PlatformName: "linux"}
	mod := fake.ModuleRegion("libssl.so", "/usr/lib/libssl.so", 0x1000, tlsModuleData())
	// nominal span maps nothing readable
	fake.Regions[0].Protection = "--x"

	s, err := New(fake, Options{Platform: "linux"})
	if err != nil {
		t.Fatal(err)
	}

	verdict, err := s.ScanModule(mod)
	if err != nil {
		t.Fatalf("unreadable module must be a clean no-match, got %v", err)
	}
	if verdict != nil {
		t.Errorf("unreadable module produced verdict %+v", verdict)
	}
}

func TestScanVerboseProbesWithoutIndicators(t *testing.T) {
	fake := &backendtest.Fake{PlatformName: "linux"}
	// stripped module: exports only, no strings anywhere
	mod := fake.ModuleRegion("libwolfssl.so", "/usr/lib/libwolfssl.so", 0x1000, memoryWith(0x1000, nil))
	fake.Exports = map[string][]string{
		"libwolfssl.so": {"wolfSSL_new", "wolfSSL_connect"},
	}

	s, err := New(fake, Options{Platform: "linux", Verbose: true})
	if err != nil {
		t.Fatal(err)
	}

	verdict, err := s.ScanModule(mod)
	if err != nil {
		t.Fatal(err)
	}
	if verdict == nil || verdict.Identity != "wolfssl" {
		t.Fatalf("verbose scan verdict = %+v; want wolfssl", verdict)
	}

	// without verbose the export probe is gated on indicators
	s2, _ := New(fake, Options{Platform: "linux"})
	verdict, err = s2.ScanModule(mod)
	if err != nil {
		t.Fatal(err)
	}
	if verdict != nil {
		t.Errorf("non-verbose scan produced verdict %+v", verdict)
	}
}

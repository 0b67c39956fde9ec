package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	cat := Default()

	if len(cat.Signatures) == 0 {
		t.Fatal("default catalog has no signatures")
	}
	if len(cat.Indicators) == 0 {
		t.Fatal("default catalog has no indicator strings")
	}

	for _, sig := range cat.Signatures {
		if sig.ID == "" {
			t.Errorf("signature %q has no id", sig.String)
		}
		if sig.Pattern == "" {
			t.Errorf("signature %s has no derived pattern", sig.ID)
		}
		if sig.Weight <= 0 {
			t.Errorf("signature %s has weight %d", sig.ID, sig.Weight)
		}
		got, ok := cat.Lookup(sig.ID)
		if !ok || got.String != sig.String {
			t.Errorf("Lookup(%s) failed to round-trip", sig.ID)
		}
	}

	// derived pattern must be the plain ASCII encoding
	sig, ok := cat.Lookup("boringssl-0")
	if !ok {
		t.Fatal("boringssl-0 missing from default catalog")
	}
	if sig.Pattern != AsciiHex(sig.String) {
		t.Errorf("pattern %q not derived from string %q", sig.Pattern, sig.String)
	}
}

func TestCatalogForkWeights(t *testing.T) {
	// fork markers must outweigh generic openssl version prefixes, otherwise
	// a BoringSSL build (which carries both) classifies as openssl
	cat := Default()
	forkMax, opensslMax := 0, 0
	for _, sig := range cat.Signatures {
		switch sig.Identity {
		case "boringssl", "libressl":
			if sig.Weight > forkMax {
				forkMax = sig.Weight
			}
		case "openssl":
			if sig.Weight > opensslMax {
				opensslMax = sig.Weight
			}
		}
	}
	if forkMax <= opensslMax {
		t.Errorf("fork marker weight %d does not beat openssl weight %d", forkMax, opensslMax)
	}
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sigs.yml")
	overlay := `signatures:
  - identity: customtls
    variant: v2
    weight: 90
    strings:
      - "CustomTLS/2"
      - "CUSTOM_HANDSHAKE"
  - identity: wolfssl
    strings:
      - "wolfSSL Embedded"
`
	if err := os.WriteFile(path, []byte(overlay), 0644); err != nil {
		t.Fatal(err)
	}

	merged, err := Default().LoadOverlay(path)
	if err != nil {
		t.Fatalf("LoadOverlay: %v", err)
	}

	if len(merged.Signatures) != len(Default().Signatures)+3 {
		t.Errorf("merged catalog has %d signatures; want %d",
			len(merged.Signatures), len(Default().Signatures)+3)
	}

	sig, ok := merged.Lookup("customtls-0")
	if !ok {
		t.Fatal("customtls-0 missing after overlay")
	}
	if sig.Weight != 90 || sig.Variant != "v2" {
		t.Errorf("customtls-0 = weight %d variant %q; want 90/v2", sig.Weight, sig.Variant)
	}
	if sig.Pattern != AsciiHex("CustomTLS/2") {
		t.Errorf("overlay pattern not derived: %q", sig.Pattern)
	}

	// default weight applies when the overlay omits it
	wolf, ok := merged.Lookup("wolfssl-2")
	if !ok {
		t.Fatal("overlay wolfssl signature missing")
	}
	if wolf.Weight != 50 {
		t.Errorf("overlay default weight = %d; want 50", wolf.Weight)
	}

	// the receiver must stay untouched
	if _, ok := Default().Lookup("customtls-0"); ok {
		t.Error("LoadOverlay mutated the default catalog")
	}
}

func TestLoadOverlayRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(path, []byte("signatures:\n  - identity: x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Default().LoadOverlay(path); err == nil {
		t.Error("overlay entry without strings should be rejected")
	}
	if _, err := Default().LoadOverlay(filepath.Join(dir, "missing.yml")); err == nil {
		t.Error("missing overlay file should be an error")
	}
}

func TestDisplayName(t *testing.T) {
	if got := DisplayName("boringssl"); got != "BoringSSL" {
		t.Errorf("DisplayName(boringssl) = %q", got)
	}
	if got := DisplayName("somethingelse"); got != "somethingelse" {
		t.Errorf("DisplayName passthrough = %q", got)
	}
}

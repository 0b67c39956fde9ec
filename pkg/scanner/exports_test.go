package scanner

import (
	"reflect"
	"testing"

	"github.com/blacktop/tlshunt/pkg/backend"
	"github.com/blacktop/tlshunt/pkg/backend/backendtest"
)

func TestProbeExports(t *testing.T) {
	fake := &backendtest.Fake{
		Exports: map[string][]string{
			"libssl.so":   {"SSL_new", "SSL_read", "BIO_free", "ERR_get_error"},
			"libplain.so": {"plain_init", "plain_free"},
		},
	}

	hits := ProbeExports(fake, backend.Module{Name: "libssl.so"}, Default().ExportSymbols)
	want := []string{"SSL_new", "SSL_read"}
	if !reflect.DeepEqual(hits, want) {
		t.Errorf("ProbeExports = %v; want %v", hits, want)
	}

	if hits := ProbeExports(fake, backend.Module{Name: "libplain.so"}, Default().ExportSymbols); hits != nil {
		t.Errorf("module without TLS exports yielded %v", hits)
	}

	// enumeration failure is a clean empty set
	if hits := ProbeExports(fake, backend.Module{Name: "libgone.so"}, Default().ExportSymbols); hits != nil {
		t.Errorf("failed enumeration yielded %v; want nil", hits)
	}
}

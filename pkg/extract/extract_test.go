package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/blacktop/tlshunt/internal/platform"
	"github.com/blacktop/tlshunt/pkg/backend"
	"github.com/blacktop/tlshunt/pkg/backend/backendtest"
)

func patternedBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestApplicable(t *testing.T) {
	onDisk := filepath.Join(t.TempDir(), "libssl.so")
	if err := os.WriteFile(onDisk, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		platform string
		method   string
		mod      backend.Module
		want     bool
	}{
		{"disk copy with backing file", "linux", platform.MethodDiskCopy, backend.Module{Path: onDisk}, true},
		{"disk copy missing file", "linux", platform.MethodDiskCopy, backend.Module{Path: "/no/such/lib.so"}, false},
		{"disk copy without path", "linux", platform.MethodDiskCopy, backend.Module{}, false},
		{"disk copy on android", "android", platform.MethodDiskCopy, backend.Module{Path: onDisk}, false},
		{"disk copy on ios", "ios", platform.MethodDiskCopy, backend.Module{Path: onDisk}, false},
		{"package inner on apk path", "android", platform.MethodPackageInner, backend.Module{Path: "/data/app/base.apk!/lib/arm64-v8a/libssl.so"}, true},
		{"package inner on plain path", "android", platform.MethodPackageInner, backend.Module{Path: "/system/lib64/libssl.so"}, false},
		{"package inner off android", "linux", platform.MethodPackageInner, backend.Module{Path: "base.apk!/lib/libssl.so"}, false},
		{"device pull on plain path", "android", platform.MethodDevicePull, backend.Module{Path: "/system/lib64/libssl.so"}, true},
		{"device pull on apk path", "android", platform.MethodDevicePull, backend.Module{Path: "/data/app/base.apk!/lib/libssl.so"}, false},
		{"remote read on ios", "ios", platform.MethodRemoteRead, backend.Module{Path: "/usr/lib/libssl.dylib"}, true},
		{"remote read off ios", "linux", platform.MethodRemoteRead, backend.Module{Path: "/usr/lib/libssl.so"}, false},
		{"memory dump anywhere", "windows", platform.MethodMemoryDump, backend.Module{}, true},
		{"unknown method", "linux", "teleport", backend.Module{Path: onDisk}, false},
	}
	for _, tt := range tests {
		c := &Coordinator{Platform: tt.platform}
		if got := c.Applicable(tt.method, tt.mod); got != tt.want {
			t.Errorf("%s: Applicable = %v; want %v", tt.name, got, tt.want)
		}
	}
}

func TestDiskCopy(t *testing.T) {
	content := patternedBytes(5000)
	srcPath := filepath.Join(t.TempDir(), "libssl.so.3")
	if err := os.WriteFile(srcPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	c := &Coordinator{Platform: "linux", OutputDir: outDir}
	res := c.Extract(backend.Module{Name: "libssl.so.3", Path: srcPath}, platform.MethodDiskCopy)

	if !res.Success {
		t.Fatalf("disk copy failed: %s", res.Error)
	}
	if res.Bytes != int64(len(content)) || res.Method != platform.MethodDiskCopy {
		t.Errorf("result = %+v", res)
	}
	got, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Error("copied bytes differ from source file")
	}
}

func TestMemoryDump(t *testing.T) {
	image := patternedBytes(3000)
	fake := &backendtest.Fake{}
	mod := fake.ModuleRegion("libssl.so", "/usr/lib/libssl.so", 0x10000, image)

	var lastTotal int64
	c := &Coordinator{
		Backend:   fake,
		Platform:  "linux",
		OutputDir: t.TempDir(),
		ChunkSize: 1024,
		Progress:  func(received, total int64) { lastTotal = total },
	}
	res := c.Extract(mod, platform.MethodMemoryDump)

	if !res.Success {
		t.Fatalf("memory dump failed: %s", res.Error)
	}
	if filepath.Base(res.OutputPath) != "libssl.so.memdump" {
		t.Errorf("output path = %s; want .memdump suffix", res.OutputPath)
	}
	if res.Bytes != int64(len(image)) {
		t.Errorf("bytes = %d; want %d", res.Bytes, len(image))
	}
	if lastTotal != int64(len(image)) {
		t.Errorf("progress total = %d; want %d", lastTotal, len(image))
	}
	got, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, image) {
		t.Error("dumped bytes differ from the in-memory image")
	}
}

func TestMemoryDumpPartialFailure(t *testing.T) {
	image := patternedBytes(4096)
	fake := &backendtest.Fake{}
	mod := fake.ModuleRegion("libssl.so", "/usr/lib/libssl.so", 0x10000, image)
	// second chunk is unreadable through every method
	fake.FailReads = []backendtest.Region{{Base: 0x10400, Data: make([]byte, 0x400)}}

	c := &Coordinator{Backend: fake, Platform: "linux", OutputDir: t.TempDir(), ChunkSize: 1024}
	res := c.Extract(mod, platform.MethodMemoryDump)

	if res.Success {
		t.Fatal("dump of a poisoned image reported success")
	}
	if res.Bytes != 1024 {
		t.Errorf("partial bytes = %d; want 1024", res.Bytes)
	}
	// the partial artifact is kept for inspection
	got, err := os.ReadFile(filepath.Join(c.OutputDir, "libssl.so.memdump"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, image[:1024]) {
		t.Error("partial dump differs from the readable prefix")
	}
}

func TestExtractNeverFallsBack(t *testing.T) {
	fake := &backendtest.Fake{}
	mod := fake.ModuleRegion("libssl.so", "/no/such/file.so", 0x10000, patternedBytes(1024))

	outDir := t.TempDir()
	c := &Coordinator{Backend: fake, Platform: "linux", OutputDir: outDir}
	res := c.Extract(mod, platform.MethodDiskCopy)

	if res.Success || res.Error == "" {
		t.Fatalf("result = %+v; want failure", res)
	}
	// a failed disk copy must not silently turn into a memory dump
	if _, err := os.Stat(filepath.Join(outDir, "libssl.so.memdump")); !os.IsNotExist(err) {
		t.Error("coordinator fell back to a memory dump")
	}
}

func TestRemoteRead(t *testing.T) {
	content := patternedBytes(2500)
	fake := &backendtest.Fake{Files: map[string][]byte{"/usr/lib/libssl.dylib": content}}

	c := &Coordinator{Backend: fake, Platform: "ios", OutputDir: t.TempDir(), ChunkSize: 1024}
	res := c.Extract(backend.Module{Name: "libssl.dylib", Path: "/usr/lib/libssl.dylib"}, platform.MethodRemoteRead)

	if !res.Success {
		t.Fatalf("remote read failed: %s", res.Error)
	}
	if res.Bytes != int64(len(content)) {
		t.Errorf("bytes = %d; want %d", res.Bytes, len(content))
	}
	got, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Error("pulled bytes differ from the target file")
	}
}

func TestUnknownMethod(t *testing.T) {
	c := &Coordinator{Platform: "linux", OutputDir: t.TempDir()}
	res := c.Extract(backend.Module{Name: "libssl.so"}, "teleport")
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v; want unknown-method failure", res)
	}
}

func writeTestZip(t *testing.T, members map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "base.apk")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, data := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractZipMember(t *testing.T) {
	lib := patternedBytes(800)
	apk := writeTestZip(t, map[string][]byte{
		"lib/arm64-v8a/libfoo.so": lib,
		"classes.dex":             []byte("dex"),
	})

	t.Run("exact path", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "libfoo.so")
		n, err := extractZipMember(apk, "lib/arm64-v8a/libfoo.so", out)
		if err != nil {
			t.Fatal(err)
		}
		if n != int64(len(lib)) {
			t.Errorf("n = %d; want %d", n, len(lib))
		}
		got, _ := os.ReadFile(out)
		if !bytes.Equal(got, lib) {
			t.Error("extracted member differs")
		}
	})

	t.Run("basename fallback", func(t *testing.T) {
		// split APKs relocate libs; a stale mapping path still resolves
		out := filepath.Join(t.TempDir(), "libfoo.so")
		n, err := extractZipMember(apk, "lib/x86_64/libfoo.so", out)
		if err != nil {
			t.Fatal(err)
		}
		if n != int64(len(lib)) {
			t.Errorf("n = %d; want %d", n, len(lib))
		}
	})

	t.Run("missing member", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "libbar.so")
		if _, err := extractZipMember(apk, "lib/arm64-v8a/libbar.so", out); !errors.Is(err, backend.ErrNotFound) {
			t.Errorf("err = %v; want ErrNotFound", err)
		}
	})
}

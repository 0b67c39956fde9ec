package platform

import (
	"reflect"
	"testing"
)

func TestGetUnknownPlatform(t *testing.T) {
	if _, err := Get("plan9", ""); err == nil {
		t.Error("unknown platform accepted")
	}
	if h, err := Get("DARWIN", ""); err != nil || h == nil {
		t.Errorf("darwin alias: %v", err)
	}
}

func TestAndroidClassify(t *testing.T) {
	a := &Android{PackageName: "com.example.app"}

	tests := []struct {
		path string
		want string
	}{
		{"/system/lib64/libssl.so", ClassSystem},
		{"/apex/com.android.conscrypt/lib64/libssl.so", ClassSystem},
		{"/vendor/lib64/libwolfssl.so", ClassSystem},
		{"/data/app/~~abc==/com.example.app-xyz/lib/arm64/libfoo.so", ClassApp},
		{"/data/app/base.apk!/lib/arm64-v8a/libcrypto.so", ClassApp},
		{"/data/data/com.example.app/files/libcustom.so", ClassApp},
		{"", ClassSystem},
	}
	for _, tt := range tests {
		if got := a.Classify("lib.so", tt.path); got != tt.want {
			t.Errorf("Classify(%q) = %s; want %s", tt.path, got, tt.want)
		}
	}
}

func TestAndroidScanWorthy(t *testing.T) {
	a := &Android{}

	tests := []struct {
		name string
		want bool
	}{
		{"libssl.so", true},
		{"libconscrypt_jni.so", true},
		{"libc.so", false},
		{"libart.so", false},
		{"boot.oat", false},
		{"base.odex", false},
		{"boot-framework.vdex", false},
	}
	for _, tt := range tests {
		if got := a.ScanWorthy(tt.name, "/system/lib64/"+tt.name); got != tt.want {
			t.Errorf("ScanWorthy(%q) = %v; want %v", tt.name, got, tt.want)
		}
	}
}

func TestWindowsClassify(t *testing.T) {
	w := &Windows{}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"ntdll.dll", `C:\Windows\System32\ntdll.dll`, ClassSystem},
		{"schannel.dll", `C:\Windows\System32\schannel.dll`, ClassSystem},
		{"vcruntime140.dll", `C:\app\vcruntime140.dll`, ClassSystem},
		{"api-ms-win-core-file-l1-1-0.dll", `C:\app\api-ms-win-core-file-l1-1-0.dll`, ClassSystem},
		{"libssl-3-x64.dll", `C:\Program Files\App\libssl-3-x64.dll`, ClassApp},
		{"nss3.dll", `C:\Program Files\Firefox\nss3.dll`, ClassApp},
	}
	for _, tt := range tests {
		if got := w.Classify(tt.name, tt.path); got != tt.want {
			t.Errorf("Classify(%s) = %s; want %s", tt.name, got, tt.want)
		}
	}

	// core DLLs are skipped but schannel's hosts must stay scan-worthy
	if w.ScanWorthy("ntdll.dll", "") {
		t.Error("ntdll.dll is scan-worthy")
	}
	if !w.ScanWorthy("schannel.dll", "") {
		t.Error("schannel.dll filtered out")
	}
}

func TestExtractionOrders(t *testing.T) {
	tests := []struct {
		platform string
		want     []string
	}{
		{"android", []string{MethodPackageInner, MethodDevicePull, MethodMemoryDump}},
		{"ios", []string{MethodRemoteRead, MethodMemoryDump}},
		{"linux", []string{MethodDiskCopy, MethodMemoryDump}},
		{"macos", []string{MethodDiskCopy, MethodMemoryDump}},
		{"windows", []string{MethodDiskCopy, MethodMemoryDump}},
	}
	for _, tt := range tests {
		h, err := Get(tt.platform, "")
		if err != nil {
			t.Fatal(err)
		}
		if got := h.ExtractionOrder(); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s order = %v; want %v", tt.platform, got, tt.want)
		}
	}
}

package platform

import "strings"

var androidSystemLibPrefixes = []string{
	"/system/lib64/",
	"/system/lib/",
	"/vendor/lib64/",
	"/vendor/lib/",
	"/apex/com.android.",
	"/apex/",
	"/product/lib64/",
	"/product/lib/",
	"/system_ext/lib64/",
	"/system_ext/lib/",
}

var androidSystemDataPrefixes = []string{
	"/data/misc/apexdata/",
	"/data/dalvik-cache/",
	"/data/misc/profiles/",
	"/data/system/",
	"/data/local/",
}

// Android classifies modules on Android targets. PackageName, when known,
// lets libraries under the app's private data dir be classified as app-owned.
type Android struct {
	PackageName string
}

func (a *Android) IsSystemLibrary(name, path string) bool {
	if path == "" {
		return true
	}
	return hasAnyPrefix(path, androidSystemLibPrefixes) || hasAnyPrefix(path, androidSystemDataPrefixes)
}

func (a *Android) isAppLibrary(path string) bool {
	if path == "" {
		return false
	}
	// path!inner means the library is mapped straight out of an APK
	if strings.Contains(path, "!") {
		return true
	}
	if strings.Contains(path, "/data/app/") {
		return true
	}
	if a.PackageName != "" && strings.Contains(path, "/data/data/"+a.PackageName+"/") {
		return true
	}
	return a.PackageName != "" && strings.Contains(a.PackageName, ".") && strings.Contains(path, a.PackageName)
}

func (a *Android) Classify(name, path string) string {
	if a.isAppLibrary(path) {
		return ClassApp
	}
	if a.IsSystemLibrary(name, path) {
		return ClassSystem
	}
	return ClassApp
}

func (a *Android) ScanWorthy(name, path string) bool {
	if skipByName(name) {
		return false
	}
	lower := strings.ToLower(name)
	// ART runtime artifacts
	for _, ext := range []string{".odex", ".oat", ".vdex", ".art"} {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

func (a *Android) ExtractionOrder() []string {
	return []string{MethodPackageInner, MethodDevicePull, MethodMemoryDump}
}

package platform

import "strings"

// IOS classifies modules on iOS targets. The controller has no direct view of
// the device filesystem, so extraction goes through the remote file reader.
type IOS struct{}

var iosSystemPrefixes = []string{
	"/system/library/",
	"/usr/lib/",
	"/developer/",
}

func (i *IOS) IsSystemLibrary(name, path string) bool {
	if path == "" {
		return true
	}
	return hasAnyPrefix(strings.ToLower(path), iosSystemPrefixes)
}

func (i *IOS) Classify(name, path string) string {
	if i.IsSystemLibrary(name, path) {
		return ClassSystem
	}
	return ClassApp
}

func (i *IOS) ScanWorthy(name, path string) bool { return !skipByName(name) }

func (i *IOS) ExtractionOrder() []string {
	return []string{MethodRemoteRead, MethodMemoryDump}
}

// Linux classifies modules on Linux targets.
type Linux struct{}

var linuxSystemPrefixes = []string{
	"/lib/",
	"/lib64/",
	"/usr/lib/",
	"/usr/lib64/",
	"/usr/local/lib/",
	"/snap/",
}

func (l *Linux) IsSystemLibrary(name, path string) bool {
	if path == "" {
		return true
	}
	return hasAnyPrefix(strings.ToLower(path), linuxSystemPrefixes)
}

func (l *Linux) Classify(name, path string) string {
	if l.IsSystemLibrary(name, path) {
		return ClassSystem
	}
	return ClassApp
}

func (l *Linux) ScanWorthy(name, path string) bool { return !skipByName(name) }

func (l *Linux) ExtractionOrder() []string {
	return []string{MethodDiskCopy, MethodMemoryDump}
}

// MacOS classifies modules on macOS targets.
type MacOS struct{}

var macosSystemPrefixes = []string{
	"/System/Library/",
	"/usr/lib/",
	"/Library/Apple/",
}

func (m *MacOS) IsSystemLibrary(name, path string) bool {
	if path == "" {
		return true
	}
	return hasAnyPrefix(path, macosSystemPrefixes)
}

func (m *MacOS) Classify(name, path string) string {
	if m.IsSystemLibrary(name, path) {
		return ClassSystem
	}
	return ClassApp
}

func (m *MacOS) ScanWorthy(name, path string) bool { return !skipByName(name) }

func (m *MacOS) ExtractionOrder() []string {
	return []string{MethodDiskCopy, MethodMemoryDump}
}

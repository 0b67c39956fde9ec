package platform

import "strings"

var windowsSystemDirs = []string{
	`\windows\system32\`,
	`\windows\syswow64\`,
	`\windows\winsxs\`,
	`\windows\microsoft.net\`,
	`\windows\assembly\`,
	`\windows\systemapps\`,
	`\windows\servicing\`,
	`\windows\immersivecontrolpanel\`,
	`\windows\systemresources\`,
}

var windowsSystemDLLs = map[string]struct{}{
	"ntdll.dll": {}, "kernel32.dll": {}, "kernelbase.dll": {}, "user32.dll": {},
	"gdi32.dll": {}, "advapi32.dll": {}, "shell32.dll": {}, "ole32.dll": {},
	"oleaut32.dll": {}, "msvcrt.dll": {}, "combase.dll": {}, "rpcrt4.dll": {},
	"sechost.dll": {}, "bcrypt.dll": {}, "bcryptprimitives.dll": {}, "ucrtbase.dll": {},
	"msvcp_win.dll": {}, "win32u.dll": {}, "gdi32full.dll": {}, "msctf.dll": {},
	"imm32.dll": {}, "ws2_32.dll": {}, "nsi.dll": {}, "powrprof.dll": {},
	"umpdc.dll": {}, "cryptbase.dll": {}, "cfgmgr32.dll": {}, "shlwapi.dll": {},
	"shcore.dll": {}, "profapi.dll": {}, "setupapi.dll": {}, "clbcatq.dll": {},
	"wintrust.dll": {}, "crypt32.dll": {}, "msasn1.dll": {}, "imagehlp.dll": {},
	"devobj.dll": {}, "uxtheme.dll": {}, "dwmapi.dll": {}, "dxgi.dll": {},
	"d3d11.dll": {}, "dwrite.dll": {}, "dinput8.dll": {}, "version.dll": {},
	"winhttp.dll": {}, "wininet.dll": {}, "urlmon.dll": {}, "iertutil.dll": {},
	"dnsapi.dll": {}, "iphlpapi.dll": {}, "mswsock.dll": {}, "secur32.dll": {},
	"sspicli.dll": {}, "dbghelp.dll": {}, "dbgcore.dll": {},
}

// Windows classifies modules on Windows targets.
type Windows struct{}

func (w *Windows) IsSystemLibrary(name, path string) bool {
	nameLower := strings.ToLower(name)
	pathLower := strings.ReplaceAll(strings.ToLower(path), "/", `\`)

	if _, ok := windowsSystemDLLs[nameLower]; ok {
		return true
	}
	for _, dir := range windowsSystemDirs {
		if strings.Contains(pathLower, dir) {
			return true
		}
	}
	if strings.HasPrefix(nameLower, "vcruntime") || strings.HasPrefix(nameLower, "msvcp") {
		return true
	}
	return strings.HasPrefix(nameLower, "api-ms-win-") || strings.HasPrefix(nameLower, "ext-ms-")
}

func (w *Windows) Classify(name, path string) string {
	if w.IsSystemLibrary(name, path) {
		return ClassSystem
	}
	return ClassApp
}

func (w *Windows) ScanWorthy(name, path string) bool {
	if skipByName(name) {
		return false
	}
	// the skip set above only covers the hot ones; the full system DLL set
	// still gets scanned because schannel lives in system DLLs
	return true
}

func (w *Windows) ExtractionOrder() []string {
	return []string{MethodDiskCopy, MethodMemoryDump}
}

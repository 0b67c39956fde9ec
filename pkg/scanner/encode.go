package scanner

import (
	"fmt"
	"strings"
)

// AsciiHex converts a string into the space-separated hex form the backend's
// pattern scanner expects: "SSL" -> "53 53 4c".
func AsciiHex(s string) string {
	parts := make([]string, 0, len(s))
	for _, b := range []byte(s) {
		parts = append(parts, fmt.Sprintf("%02x", b))
	}
	return strings.Join(parts, " ")
}

// Utf16LEHex converts a string into a UTF-16LE hex pattern ("53 00 53 00 4c 00").
// Windows DLLs commonly store indicator strings as wide chars.
func Utf16LEHex(s string) string {
	parts := make([]string, 0, len(s)*2)
	for _, b := range []byte(s) {
		parts = append(parts, fmt.Sprintf("%02x", b), "00")
	}
	return strings.Join(parts, " ")
}

// ScanPatterns returns the hex pattern variants to scan for one indicator
// string: ASCII first (most common), then UTF-16LE.
func ScanPatterns(s string) []string {
	return []string{AsciiHex(s), Utf16LEHex(s)}
}

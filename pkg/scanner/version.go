package scanner

import (
	"strings"

	"github.com/apex/log"
	semver "github.com/hashicorp/go-version"
)

// versionReadAhead is how many bytes past a signature hit are inspected for a
// trailing version string ("OpenSSL 3.0.13 30 Jan 2024").
const versionReadAhead = 64

// ByteReader is the single read primitive version extraction needs.
type ByteReader interface {
	ReadBytes(address uint64, size int) ([]byte, error)
}

// ExtractVersion reads the bytes around the winning identity's match sites
// and applies the catalog's version regexes. Returns "" when nothing
// parseable is found; a read failure is just a miss, never an error.
func (c *Catalog) ExtractVersion(b ByteReader, identity string, matches []MatchResult) string {
	patterns := c.versionPatterns[identity]
	if len(patterns) == 0 {
		return ""
	}

	for _, m := range matches {
		sig, ok := c.Lookup(m.SignatureID)
		if !ok || sig.Identity != identity {
			continue
		}
		data, err := b.ReadBytes(m.Address, len(sig.String)+versionReadAhead)
		if err != nil {
			log.WithError(err).WithField("address", m.Address).Debug("version read-ahead failed")
			continue
		}
		text := string(data)
		for _, re := range patterns {
			if sub := re.FindStringSubmatch(text); sub != nil {
				if v := sub[1]; plausibleVersion(v) {
					return v
				}
			}
		}
	}
	return ""
}

// plausibleVersion gates regex captures through a real version parse so that
// garbage bytes that happen to look digit-ish don't end up in reports.
// OpenSSL-style letter suffixes ("1.1.1k") are allowed.
func plausibleVersion(v string) bool {
	trimmed := strings.TrimRight(v, "abcdefghijklmnopqrstuvwxyz")
	if trimmed == "" {
		return false
	}
	_, err := semver.NewVersion(trimmed)
	return err == nil
}

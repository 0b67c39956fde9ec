package scanner

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

// Signature is one catalog entry: a byte pattern tied to a library identity.
// Pattern is the masked hex form fed to the backend scanner; String is the
// human-readable source it was derived from. Higher Weight means stronger
// evidence.
type Signature struct {
	ID       string `yaml:"id,omitempty"`
	String   string `yaml:"string"`
	Pattern  string `yaml:"pattern,omitempty"`
	Identity string `yaml:"identity"`
	Variant  string `yaml:"variant,omitempty"`
	Weight   int    `yaml:"weight"`
}

// Catalog is the read-only signature database. Built once at startup and
// shared by all concurrent module scans.
type Catalog struct {
	Signatures []Signature

	// Indicators are generic TLS keylog strings whose presence marks a
	// module as TLS-related without identifying the implementation.
	Indicators []string

	// ExportSymbols maps exported symbol names to the identity they vote for.
	ExportSymbols map[string]string

	// FilenameHints maps filename substrings to identities (libssl -> openssl).
	FilenameHints map[string]string

	// TieBreak is the ordered tie-break policy applied when identities have
	// equal aggregate weight.
	TieBreak []TieBreaker

	versionPatterns map[string][]*regexp.Regexp
	byID            map[string]*Signature
}

// TieBreaker names one tie-break rule. See Classify.
type TieBreaker string

const (
	// TieBreakSymbols prefers the identity with export-symbol evidence.
	TieBreakSymbols TieBreaker = "symbols"
	// TieBreakSpecificity prefers the identity whose longest matched
	// pattern is the most specific (longest).
	TieBreakSpecificity TieBreaker = "specificity"
)

// tlsIndicatorStrings are the keylog/export strings that betray a TLS stack
// in readable memory regardless of implementation.
var tlsIndicatorStrings = []string{
	"CLIENT_RANDOM",
	"SERVER_HANDSHAKE_TRAFFIC_SECRET",
	"CLIENT_HANDSHAKE_TRAFFIC_SECRET",
	"SERVER_TRAFFIC_SECRET_0",
	"CLIENT_TRAFFIC_SECRET_0",
	"EXPORTER_SECRET",
	"EARLY_EXPORTER_SECRET",
	"CLIENT_EARLY_TRAFFIC_SECRET",
	"SSLKEYLOGFILE",
	"c hs traffic",
	"master secret",
}

// builtinSignatures is ordered forks-before-openssl so that a BoringSSL or
// LibreSSL build (which also carries OpenSSL strings) resolves to the fork:
// the fork markers carry the higher weight.
var builtinSignatures = []Signature{
	{Identity: "boringssl", String: "BoringSSL", Weight: 100},
	{Identity: "boringssl", String: "OpenSSL 1.1.0 (compatible; BoringSSL)", Weight: 100},
	{Identity: "libressl", String: "LibreSSL", Weight: 100},
	{Identity: "openssl", String: "OpenSSL 3.", Variant: "3.x", Weight: 60},
	{Identity: "openssl", String: "OpenSSL 1.1.", Variant: "1.1.x", Weight: 60},
	{Identity: "openssl", String: "OpenSSL 1.0.", Variant: "1.0.x", Weight: 60},
	{Identity: "gnutls", String: "GnuTLS", Weight: 100},
	{Identity: "gnutls", String: "NORMAL:-VERS-ALL:+VERS-TLS", Weight: 60},
	{Identity: "wolfssl", String: "wolfSSL", Weight: 100},
	{Identity: "wolfssl", String: "LIBWOLFSSL_VERSION_STRING", Weight: 60},
	{Identity: "mbedtls", String: "Mbed TLS", Weight: 100},
	{Identity: "nss", String: "NSS_GetVersion", Weight: 100},
	{Identity: "nss", String: "NSS_NoDB_Init", Weight: 100},
	{Identity: "s2n", String: "s2n_negotiate", Weight: 100},
	{Identity: "s2n", String: "default_tls13", Weight: 30},
	{Identity: "s2n", String: "20170210", Weight: 20},
	{Identity: "matrixssl", String: "matrixssl", Weight: 100},
	{Identity: "matrixssl", String: "YNYYYNNNNYYNY", Weight: 60},
	{Identity: "botan", String: "Botan::TLS::", Weight: 100},
	{Identity: "botan", String: "Botan", Weight: 40},
	{Identity: "gotls", String: "crypto/tls", Weight: 100},
	{Identity: "rustls", String: "rustls", Weight: 100},
}

// version extraction regexes, run over bytes trailing a matched signature
var builtinVersionPatterns = map[string][]string{
	"openssl":  {`OpenSSL\s+(\d+\.\d+\.\d+[a-z]?)`},
	"libressl": {`LibreSSL\s+(\d+\.\d+\.\d+)`},
	"gnutls":   {`GnuTLS\s+(\d+\.\d+\.\d+)`},
	"wolfssl":  {`wolfSSL\s+(\d+\.\d+\.\d+)`},
	"mbedtls":  {`Mbed TLS\s+(\d+\.\d+\.\d+)`},
	"nss":      {`NSS\s+(\d+\.\d+)`},
	"botan":    {`Botan\s+(\d+\.\d+\.\d+)`},
}

var builtinExportSymbols = map[string]string{
	// OpenSSL / BoringSSL / LibreSSL
	"SSL_CTX_set_keylog_callback": "openssl",
	"SSL_connect":                 "openssl",
	"SSL_read":                    "openssl",
	"SSL_write":                   "openssl",
	"SSL_new":                     "openssl",
	"SSL_CTX_new":                 "openssl",
	"SSL_set_fd":                  "openssl",
	"SSL_get_error":               "openssl",
	"OPENSSL_init_ssl":            "openssl",
	// GnuTLS
	"gnutls_init":                             "gnutls",
	"gnutls_handshake":                        "gnutls",
	"gnutls_record_send":                      "gnutls",
	"gnutls_record_recv":                      "gnutls",
	"gnutls_certificate_allocate_credentials": "gnutls",
	// wolfSSL
	"wolfSSL_new":     "wolfssl",
	"wolfSSL_connect": "wolfssl",
	"wolfSSL_read":    "wolfssl",
	"wolfSSL_write":   "wolfssl",
	"wolfSSL_CTX_new": "wolfssl",
	// mbedTLS
	"mbedtls_ssl_init":      "mbedtls",
	"mbedtls_ssl_handshake": "mbedtls",
	"mbedtls_ssl_read":      "mbedtls",
	"mbedtls_ssl_write":     "mbedtls",
	// NSS
	"NSS_Init":     "nss",
	"SSL_ImportFD": "nss",
	"PR_Read":      "nss",
	"PR_Write":     "nss",
	// Apple SecureTransport
	"SSLHandshake":     "securetransport",
	"SSLRead":          "securetransport",
	"SSLWrite":         "securetransport",
	"SSLCreateContext": "securetransport",
	// SChannel
	"InitializeSecurityContextW": "schannel",
	"AcquireCredentialsHandleW":  "schannel",
	// s2n-tls
	"s2n_negotiate":      "s2n",
	"s2n_connection_new": "s2n",
	// BearSSL
	"br_ssl_client_init_full": "bearssl",
	// Botan
	"botan_tls_client_init": "botan",
	// Rustls
	"rustls_client_config_builder_new": "rustls",
}

var builtinFilenameHints = map[string]string{
	"libssl":           "openssl",
	"libcrypto":        "openssl",
	"ssleay32":         "openssl",
	"libeay32":         "openssl",
	"libboringssl":     "boringssl",
	"boringssl":        "boringssl",
	"libconscrypt_jni": "boringssl",
	"cronet":           "boringssl",
	"libgnutls":        "gnutls",
	"libwolfssl":       "wolfssl",
	"libmbedtls":       "mbedtls",
	"libmbedcrypto":    "mbedtls",
	"libmbedx509":      "mbedtls",
	"libnss3":          "nss",
	"nss3":             "nss",
	"schannel":         "schannel",
	"ncrypt":           "schannel",
	"security":         "securetransport",
	"libressl":         "libressl",
	"libbearssl":       "bearssl",
	"libs2n":           "s2n",
	"libmatrixssl":     "matrixssl",
	"libbotan":         "botan",
	"librustls":        "rustls",
	"libpicotls":       "picotls",
	"libaws_lc":        "aws-lc",
	"aws-lc":           "aws-lc",
}

// DisplayName returns the conventional project name for an identity.
func DisplayName(identity string) string {
	names := map[string]string{
		"boringssl":       "BoringSSL",
		"libressl":        "LibreSSL",
		"openssl":         "OpenSSL",
		"gnutls":          "GnuTLS",
		"wolfssl":         "wolfSSL",
		"mbedtls":         "Mbed TLS",
		"nss":             "NSS",
		"s2n":             "s2n-tls",
		"matrixssl":       "MatrixSSL",
		"botan":           "Botan",
		"gotls":           "Go crypto/tls",
		"rustls":          "Rustls",
		"securetransport": "SecureTransport",
		"schannel":        "SChannel",
		"bearssl":         "BearSSL",
		"picotls":         "picotls",
		"aws-lc":          "AWS-LC",
	}
	if n, ok := names[identity]; ok {
		return n
	}
	return identity
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// Default returns the built-in catalog. It is constructed once and must be
// treated as read-only.
func Default() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog = newCatalog(builtinSignatures)
	})
	return defaultCatalog
}

func newCatalog(sigs []Signature) *Catalog {
	c := &Catalog{
		Indicators:    tlsIndicatorStrings,
		ExportSymbols: builtinExportSymbols,
		FilenameHints: builtinFilenameHints,
		TieBreak:      []TieBreaker{TieBreakSymbols, TieBreakSpecificity},
		byID:          make(map[string]*Signature),
	}
	counts := make(map[string]int)
	for _, sig := range sigs {
		if sig.ID == "" {
			sig.ID = fmt.Sprintf("%s-%d", sig.Identity, counts[sig.Identity])
		}
		counts[sig.Identity]++
		if sig.Pattern == "" {
			sig.Pattern = AsciiHex(sig.String)
		}
		c.Signatures = append(c.Signatures, sig)
	}
	for i := range c.Signatures {
		c.byID[c.Signatures[i].ID] = &c.Signatures[i]
	}
	c.versionPatterns = make(map[string][]*regexp.Regexp)
	for identity, pats := range builtinVersionPatterns {
		for _, p := range pats {
			c.versionPatterns[identity] = append(c.versionPatterns[identity], regexp.MustCompile(p))
		}
	}
	return c
}

// Lookup resolves a signature by id.
func (c *Catalog) Lookup(id string) (*Signature, bool) {
	sig, ok := c.byID[id]
	return sig, ok
}

type overlayFile struct {
	Signatures []struct {
		Identity string   `yaml:"identity"`
		Variant  string   `yaml:"variant"`
		Weight   int      `yaml:"weight"`
		Strings  []string `yaml:"strings"`
	} `yaml:"signatures"`
}

// LoadOverlay merges user signatures from a YAML file over the built-ins and
// returns a new catalog. The receiver is not modified.
func (c *Catalog) LoadOverlay(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature overlay: %v", err)
	}
	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse signature overlay %s: %v", path, err)
	}
	sigs := make([]Signature, 0, len(c.Signatures))
	sigs = append(sigs, builtinSignatures...)
	for _, entry := range overlay.Signatures {
		if entry.Identity == "" || len(entry.Strings) == 0 {
			return nil, fmt.Errorf("signature overlay %s: every entry needs an identity and at least one string", path)
		}
		weight := entry.Weight
		if weight == 0 {
			weight = 50
		}
		for _, s := range entry.Strings {
			sigs = append(sigs, Signature{
				Identity: entry.Identity,
				Variant:  entry.Variant,
				String:   s,
				Weight:   weight,
			})
		}
	}
	return newCatalog(sigs), nil
}

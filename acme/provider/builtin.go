package provider

import (
	"fmt"
	"net/url"
)

// Generic accepts any plain http or https URI and returns it unchanged as
// the directory URL.
type Generic struct{}

func (Generic) Accepts(uri *url.URL) bool {
	return uri.Scheme == "http" || uri.Scheme == "https"
}

func (Generic) Resolve(uri *url.URL) (string, error) {
	return uri.String(), nil
}

// LetsEncrypt resolves "acme://letsencrypt.org" URIs. Recognized variants:
// the empty path (production) and "staging".
type LetsEncrypt struct{}

const (
	letsEncryptProduction = "https://acme-v02.api.letsencrypt.org/directory"
	letsEncryptStaging    = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

func (LetsEncrypt) Accepts(uri *url.URL) bool {
	return uri.Scheme == "acme" && uri.Host == "letsencrypt.org"
}

func (LetsEncrypt) Resolve(uri *url.URL) (string, error) {
	switch variant(uri) {
	case "":
		return letsEncryptProduction, nil
	case "staging":
		return letsEncryptStaging, nil
	}
	return "", fmt.Errorf("unknown Let's Encrypt variant %q", variant(uri))
}

// ZeroSSL resolves "acme://zerossl.com" URIs. ZeroSSL requires external
// account binding with an HS256 MAC, and its directory metadata does not
// advertise the requirement, so the provider forces the flag.
type ZeroSSL struct{}

const zeroSSLDirectory = "https://acme.zerossl.com/v2/DV90"

func (ZeroSSL) Accepts(uri *url.URL) bool {
	return uri.Scheme == "acme" && uri.Host == "zerossl.com"
}

func (ZeroSSL) Resolve(uri *url.URL) (string, error) {
	if v := variant(uri); v != "" {
		return "", fmt.Errorf("unknown ZeroSSL variant %q", v)
	}
	return zeroSSLDirectory, nil
}

func (ZeroSSL) ProposedEABMACAlgorithm() string {
	return "HS256"
}

func (ZeroSSL) RewriteDirectory(dir map[string]any) {
	meta, ok := dir["meta"].(map[string]any)
	if !ok {
		meta = map[string]any{}
		dir["meta"] = meta
	}
	meta["externalAccountRequired"] = true
}

// Pebble resolves "acme://pebble[:port][/strict]" URIs for the Pebble test
// server. The "strict" variant targets a Pebble instance run with -strict,
// conventionally on port 14001 instead of the default 14000; an explicit
// port in the URI overrides either default. Pebble serves a certificate
// signed by its own root, so callers supply the root PEM; the zero value
// pins nothing.
type Pebble struct {
	// RootsPEM holds PEM encoded roots to pin for the HTTPS connection to
	// the Pebble server. Optional.
	RootsPEM []byte
}

const (
	pebbleDefaultPort = "14000"
	pebbleStrictPort  = "14001"
)

func (Pebble) Accepts(uri *url.URL) bool {
	return uri.Scheme == "acme" && uri.Hostname() == "pebble"
}

func (Pebble) Resolve(uri *url.URL) (string, error) {
	port := pebbleDefaultPort
	switch v := variant(uri); v {
	case "":
	case "strict":
		port = pebbleStrictPort
	default:
		return "", fmt.Errorf("unknown Pebble variant %q", v)
	}
	if p := uri.Port(); p != "" {
		port = p
	}
	return fmt.Sprintf("https://localhost:%s/dir", port), nil
}

func (p Pebble) TrustedRoots() []byte {
	return p.RootsPEM
}

// variant returns the URI path with surrounding slashes stripped.
func variant(uri *url.URL) string {
	path := uri.Path
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	for len(path) > 0 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

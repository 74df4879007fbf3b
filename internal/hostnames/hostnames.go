// Package hostnames canonicalizes the public hostname the bridge requests
// certificates for.
package hostnames

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

// Normalize converts a hostname to its canonical ASCII lower-case form,
// dropping surrounding space and a trailing dot. A name IDNA rejects is
// returned lower-cased but otherwise untouched.
func Normalize(host string) string {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" {
		return ""
	}
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		host = ascii
	}
	return strings.ToLower(host)
}

// CertificateName normalizes host and checks it can be served by an ACME
// HTTP-01 certificate: a fully qualified name without wildcards.
func CertificateName(host string) (string, error) {
	raw := strings.TrimSpace(host)
	if strings.Contains(raw, "*") {
		return "", fmt.Errorf("hostname %q: wildcards cannot be issued over HTTP-01", raw)
	}
	name := Normalize(raw)
	if !strings.Contains(name, ".") {
		return "", fmt.Errorf("hostname %q is not fully qualified", raw)
	}
	if strings.HasPrefix(name, ".") || strings.Contains(name, "..") {
		return "", fmt.Errorf("hostname %q has an empty label", raw)
	}
	if _, err := idna.Registration.ToASCII(name); err != nil {
		return "", fmt.Errorf("hostname %q: %w", raw, err)
	}
	return name, nil
}

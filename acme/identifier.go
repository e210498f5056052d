package acme

import (
	"fmt"
	"net/mail"
	"net/netip"
	"strings"

	"golang.org/x/net/idna"
)

// The Identifier resource represents a subject identifier that can be
// included in a certificate.
//
// See:
// https://tools.ietf.org/html/rfc8555#section-7.1.3
// https://tools.ietf.org/html/rfc8555#section-9.7.7
//
// A DNS type identifier used in a newOrder request is allowed to contain
// a wildcard prefix (e.g. "*."). A DNS type identifier in an Authorization
// is *not* allowed to contain a wildcard prefix and instead has the
// Authorization's Wildcard field set to true.
//
// Equality between identifiers is case-sensitive structural equality of
// both fields. The constructors below normalize values at construction time
// so that equivalent inputs compare equal.
type Identifier struct {
	// The Type of the Identifier value ("dns", "ip" or "email").
	Type string `json:"type"`
	// The Identifier value.
	Value string `json:"value"`
}

// Identifier type values understood by this package.
const (
	IdentifierDNS   = "dns"
	IdentifierIP    = "ip"
	IdentifierEmail = "email"
)

// String returns the identifier in "type=value" form.
func (id Identifier) String() string {
	return fmt.Sprintf("%s=%s", id.Type, id.Value)
}

// DNSIdentifier returns a "dns" identifier for the given domain name. The
// domain is converted to its ASCII form (IDN labels are Punycode A-labels)
// per https://tools.ietf.org/html/rfc8555#section-7.1.4. A leading "*."
// wildcard prefix is preserved verbatim.
func DNSIdentifier(domain string) (Identifier, error) {
	wildcard := false
	if strings.HasPrefix(domain, "*.") {
		wildcard = true
		domain = strings.TrimPrefix(domain, "*.")
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return Identifier{}, fmt.Errorf("invalid DNS identifier %q: %w", domain, err)
	}
	if wildcard {
		ascii = "*." + ascii
	}
	return Identifier{Type: IdentifierDNS, Value: ascii}, nil
}

// IPIdentifier returns an "ip" identifier (RFC 8738) for the given textual
// address. Equivalent forms normalize to the same value: IPv6 addresses use
// the canonical compressed lowercase form.
func IPIdentifier(address string) (Identifier, error) {
	addr, err := netip.ParseAddr(address)
	if err != nil {
		return Identifier{}, fmt.Errorf("invalid IP identifier %q: %w", address, err)
	}
	// Strip any IPv6 zone; certificates never carry one.
	addr = addr.WithZone("")
	return Identifier{Type: IdentifierIP, Value: addr.String()}, nil
}

// EmailIdentifier returns an "email" identifier (RFC 8823) for the given
// mailbox. Display names are stripped; only the addr-spec is kept.
func EmailIdentifier(mailbox string) (Identifier, error) {
	addr, err := mail.ParseAddress(mailbox)
	if err != nil {
		return Identifier{}, fmt.Errorf("invalid email identifier %q: %w", mailbox, err)
	}
	return Identifier{Type: IdentifierEmail, Value: addr.Address}, nil
}

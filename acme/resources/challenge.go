package resources

import (
	"crypto"
	"encoding/json"

	"github.com/acmekit/acmekit/acme"
	"github.com/acmekit/acmekit/acme/keys"
)

// The Challenge resource represents an action the client must take to
// authorize an account for a specific identifier.
//
// See https://tools.ietf.org/html/rfc8555#section-8
//
// A Challenge's Type never changes once set; variant-specific behavior is
// obtained by passing the Challenge through the challenge type registry
// (see Typed).
type Challenge struct {
	// The type of the challenge ("http-01", "dns-01", "tls-alpn-01",
	// "dns-account-01", "email-reply-00", or a third-party type).
	Type string `json:"type,omitempty"`
	// The URL of the challenge resource, provided by the server in the
	// associated Authorization.
	URL string `json:"url,omitempty"`
	// The Status of the challenge: "pending", "processing", "valid" or
	// "invalid".
	Status string `json:"status,omitempty"`
	// The token used to construct the challenge response. Present on
	// token-bearing challenge types.
	Token string `json:"token,omitempty"`
	// RFC 3339 timestamp of the server's validation of the challenge.
	Validated string `json:"validated,omitempty"`
	// The error associated with an invalid challenge.
	Error *acme.Problem `json:"error,omitempty"`

	// The raw JSON body of the challenge object, preserved so unknown
	// challenge types keep their type-specific members.
	Raw json.RawMessage `json:"-"`
}

// String returns the URL of the Challenge.
func (c Challenge) String() string {
	return c.URL
}

// UnmarshalJSON preserves the raw challenge JSON alongside the decoded
// fields so unknown challenge types keep their type-specific members.
func (c *Challenge) UnmarshalJSON(data []byte) error {
	type challengeFields Challenge
	var decoded challengeFields
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*c = Challenge(decoded)
	c.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// GetStatus returns the challenge's status field.
func (c *Challenge) GetStatus() string { return c.Status }

func (c *Challenge) IsPending() bool    { return c.Status == acme.StatusPending }
func (c *Challenge) IsProcessing() bool { return c.Status == acme.StatusProcessing }
func (c *Challenge) IsValid() bool      { return c.Status == acme.StatusValid }
func (c *Challenge) IsInvalid() bool    { return c.Status == acme.StatusInvalid }

// KeyAuthorization computes the key authorization string for token-bearing
// challenges: token || "." || base64url(sha256(canonical-jwk)).
func (c *Challenge) KeyAuthorization(accountKey crypto.Signer) (string, error) {
	return keys.KeyAuth(accountKey, c.Token)
}

// HTTP01Challenge exposes the http-01 response derivation: the key
// authorization is served verbatim as the body at the well-known path.
type HTTP01Challenge struct {
	*Challenge
}

// WellKnownPath returns the absolute URL path the key authorization must be
// served under.
func (c HTTP01Challenge) WellKnownPath() string {
	return "/.well-known/acme-challenge/" + c.Token
}

// DNS01Challenge exposes the dns-01 response derivation: a TXT record at
// _acme-challenge.<domain> holding base64url(sha256(keyAuth)).
type DNS01Challenge struct {
	*Challenge
}

// TXTHost returns the record host for the given domain.
func (c DNS01Challenge) TXTHost(domain string) string {
	return keys.DNS01TXTHost(domain)
}

// TXTValue returns the record value for the given account key.
func (c DNS01Challenge) TXTValue(accountKey crypto.Signer) (string, error) {
	keyAuth, err := c.KeyAuthorization(accountKey)
	if err != nil {
		return "", err
	}
	return keys.DNS01TXTValue(keyAuth), nil
}

// TLSALPN01Challenge exposes the tls-alpn-01 response derivation: a
// self-signed certificate with the identifier as SAN and a critical
// acmeIdentifier extension carrying sha256(keyAuth). Certificate assembly
// is left to the caller; this type provides the extension payload.
type TLSALPN01Challenge struct {
	*Challenge
}

// ExtensionDigest returns the sha256(keyAuth) value placed in the
// acmeIdentifier (1.3.6.1.5.5.7.1.31) extension.
func (c TLSALPN01Challenge) ExtensionDigest(accountKey crypto.Signer) ([]byte, error) {
	keyAuth, err := c.KeyAuthorization(accountKey)
	if err != nil {
		return nil, err
	}
	return keys.TLSALPN01Digest(keyAuth), nil
}

// DNSAccount01Challenge exposes the dns-account-01 response derivation:
// a TXT record under an account-scoped label.
type DNSAccount01Challenge struct {
	*Challenge
}

// TXTHost returns the record host, which mixes in a label derived from the
// account URL.
func (c DNSAccount01Challenge) TXTHost(accountURL, domain string) string {
	return keys.DNSAccount01TXTHost(accountURL, domain)
}

// TXTValue returns the record value for the given account key.
func (c DNSAccount01Challenge) TXTValue(accountKey crypto.Signer) (string, error) {
	keyAuth, err := c.KeyAuthorization(accountKey)
	if err != nil {
		return "", err
	}
	return keys.DNS01TXTValue(keyAuth), nil
}

// EmailReply00Challenge exposes the email-reply-00 (RFC 8823) token
// handling. The challenge object carries only the second half of the token;
// the first half arrives in the subject of the CA's challenge email.
type EmailReply00Challenge struct {
	*Challenge
}

// FullToken reassembles the complete challenge token from the part found in
// the challenge email's subject.
func (c EmailReply00Challenge) FullToken(subjectPart string) string {
	return keys.EmailReply00Token(subjectPart, c.Token)
}

// KeyAuthorizationWithSubject computes the key authorization over the
// reassembled token.
func (c EmailReply00Challenge) KeyAuthorizationWithSubject(accountKey crypto.Signer, subjectPart string) (string, error) {
	return keys.KeyAuth(accountKey, c.FullToken(subjectPart))
}

// OpaqueChallenge wraps a challenge of a type the registry doesn't know.
// It has no type-specific accessors; the raw JSON is preserved on the
// embedded Challenge.
type OpaqueChallenge struct {
	*Challenge
}

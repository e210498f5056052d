// Package acme provides ACME protocol constants and shared protocol types.
package acme

const (
	// See https://tools.ietf.org/html/rfc8555#section-7.1.1
	// The ACME directory key for the newNonce endpoint.
	NEW_NONCE_ENDPOINT = "newNonce"
	// The ACME directory key for the newAccount endpoint.
	NEW_ACCOUNT_ENDPOINT = "newAccount"
	// The ACME directory key for the newOrder endpoint.
	NEW_ORDER_ENDPOINT = "newOrder"
	// The ACME directory key for the pre-authorization endpoint. Optional.
	NEW_AUTHZ_ENDPOINT = "newAuthz"
	// The ACME directory key for the certificate revocation endpoint.
	REVOKE_CERT_ENDPOINT = "revokeCert"
	// The ACME directory key for the account key rollover endpoint.
	KEY_CHANGE_ENDPOINT = "keyChange"
	// The directory key for the ACME Renewal Information endpoint
	// (draft-ietf-acme-ari). Optional.
	RENEWAL_INFO_ENDPOINT = "renewalInfo"

	// The HTTP response header used by ACME to communicate a fresh nonce. See
	// https://tools.ietf.org/html/rfc8555#section-6.5.1
	REPLAY_NONCE_HEADER = "Replay-Nonce"
	// The HTTP response header carrying the URL of a newly created resource.
	LOCATION_HEADER = "Location"
	// The HTTP response header carrying poll/retry timing hints.
	RETRY_AFTER_HEADER = "Retry-After"

	// The media type for JWS request bodies. See
	// https://tools.ietf.org/html/rfc8555#section-6.2
	JOSE_CONTENT_TYPE = "application/jose+json"
	// The media type for JSON resource responses.
	JSON_CONTENT_TYPE = "application/json"
	// The media type for RFC 7807 problem documents.
	PROBLEM_CONTENT_TYPE = "application/problem+json"
	// The media type for issued certificate chains. See
	// https://tools.ietf.org/html/rfc8555#section-7.4.2
	PEM_CHAIN_CONTENT_TYPE = "application/pem-certificate-chain"

	// The namespace that all ACME problem document types live under. See
	// https://tools.ietf.org/html/rfc8555#section-6.7
	ERROR_URN_PREFIX = "urn:ietf:params:acme:error:"
)

// Resource status values. Accounts, orders, authorizations and challenges
// each use a subset of these. See
// https://tools.ietf.org/html/rfc8555#section-7.1.6
const (
	StatusPending     = "pending"
	StatusReady       = "ready"
	StatusProcessing  = "processing"
	StatusValid       = "valid"
	StatusInvalid     = "invalid"
	StatusDeactivated = "deactivated"
	StatusExpired     = "expired"
	StatusRevoked     = "revoked"
)

// TerminalStatus returns true for statuses a resource can never leave.
func TerminalStatus(status string) bool {
	switch status {
	case StatusInvalid, StatusDeactivated, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// Challenge type identifiers registered with the built-in challenge registry.
const (
	ChallengeHTTP01       = "http-01"
	ChallengeDNS01        = "dns-01"
	ChallengeTLSALPN01    = "tls-alpn-01"
	ChallengeDNSAccount01 = "dns-account-01"
	ChallengeEmailReply00 = "email-reply-00"
)

// Link relation names consumed from ACME responses.
const (
	LinkTermsOfService = "terms-of-service"
	LinkIndex          = "index"
	LinkRateLimit      = "rate-limit"
	LinkAlternate      = "alternate"
	LinkUp             = "up"
)

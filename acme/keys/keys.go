// Package keys offers utility functions for working with crypto.Signers,
// JWS, JWKs and key authorizations.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base32"
	"encoding/base64"
	"encoding/json"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// SigAlgForKey returns the JWS signature algorithm appropriate for the
// given signer's key type. RSA keys use RS256, ECDSA keys pick the
// algorithm matching their curve, Ed25519 keys use EdDSA.
func SigAlgForKey(signer crypto.Signer) (jose.SignatureAlgorithm, error) {
	switch k := signer.(type) {
	case *rsa.PrivateKey:
		return jose.RS256, nil
	case *ecdsa.PrivateKey:
		switch k.Curve {
		case elliptic.P256():
			return jose.ES256, nil
		case elliptic.P384():
			return jose.ES384, nil
		case elliptic.P521():
			return jose.ES512, nil
		}
		return "", fmt.Errorf("unsupported ECDSA curve %q", k.Curve.Params().Name)
	case ed25519.PrivateKey:
		return jose.EdDSA, nil
	}
	return "", fmt.Errorf("unsupported signer type %T", signer)
}

// JWKForSigner returns the public JWK view of the given signer.
func JWKForSigner(signer crypto.Signer) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key: signer.Public(),
	}
}

// JWKJSON returns the public JWK of the given signer serialized as JSON, or
// an empty string if the key can't be marshaled.
func JWKJSON(signer crypto.Signer) string {
	jwk := JWKForSigner(signer)
	jwkJSON, err := json.Marshal(&jwk)
	if err != nil {
		return ""
	}
	return string(jwkJSON)
}

// SigningKeyForSigner builds the jose.SigningKey used to construct signers
// for ACME JWS. The keyID is the ACME account URL, or empty when the public
// key is embedded instead.
func SigningKeyForSigner(signer crypto.Signer, keyID string) (jose.SigningKey, error) {
	alg, err := SigAlgForKey(signer)
	if err != nil {
		return jose.SigningKey{}, err
	}
	jwk := jose.JSONWebKey{
		Key:       signer,
		Algorithm: string(alg),
		KeyID:     keyID,
	}
	return jose.SigningKey{
		Key:       jwk,
		Algorithm: alg,
	}, nil
}

// JWKThumbprintBytes returns the RFC 7638 SHA-256 thumbprint of the
// signer's public key. The thumbprint input is the canonical JWK: members
// sorted lexicographically with no whitespace.
func JWKThumbprintBytes(signer crypto.Signer) ([]byte, error) {
	jwk := JWKForSigner(signer)
	return jwk.Thumbprint(crypto.SHA256)
}

// JWKThumbprint returns the base64url encoding (unpadded) of the signer's
// public key thumbprint.
func JWKThumbprint(signer crypto.Signer) (string, error) {
	thumbBytes, err := JWKThumbprintBytes(signer)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(thumbBytes), nil
}

// KeyAuth computes the key authorization for the given challenge token:
// token || "." || base64url(sha256(canonical-jwk)).
//
// See https://tools.ietf.org/html/rfc8555#section-8.1
func KeyAuth(signer crypto.Signer, token string) (string, error) {
	thumbprint, err := JWKThumbprint(signer)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", token, thumbprint), nil
}

// DNS01TXTValue returns the value of the TXT record provisioned for
// a dns-01 challenge: base64url(sha256(keyAuth)).
//
// See https://tools.ietf.org/html/rfc8555#section-8.4
func DNS01TXTValue(keyAuth string) string {
	digest := sha256.Sum256([]byte(keyAuth))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// DNS01TXTHost returns the host the dns-01 TXT record is provisioned
// under for the given domain.
func DNS01TXTHost(domain string) string {
	return "_acme-challenge." + domain
}

// DNSAccount01Label computes the account-specific label used by the
// dns-account-01 challenge (draft-ietf-acme-dns-account-challenge): the
// first 10 characters of the lowercase base32 encoding of the SHA-256
// digest of the account URL.
func DNSAccount01Label(accountURL string) string {
	digest := sha256.Sum256([]byte(accountURL))
	encoded := base32.StdEncoding.EncodeToString(digest[:])
	label := encoded[:10]
	// base32.StdEncoding is uppercase; the label is defined lowercase.
	out := make([]byte, len(label))
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// DNSAccount01TXTHost returns the host the dns-account-01 TXT record is
// provisioned under: _<accountLabel>._acme-challenge.<domain>.
func DNSAccount01TXTHost(accountURL, domain string) string {
	return fmt.Sprintf("_%s._acme-challenge.%s", DNSAccount01Label(accountURL), domain)
}

// IDPEACMEIdentifierOID is the id-pe-acmeIdentifier certificate extension
// OID (1.3.6.1.5.5.7.1.31) carried by tls-alpn-01 validation certificates.
//
// See https://tools.ietf.org/html/rfc8737#section-6.1
var IDPEACMEIdentifierOID = []int{1, 3, 6, 1, 5, 5, 7, 1, 31}

// TLSALPN01Digest returns the SHA-256 digest of the key authorization that
// the caller must place in the acmeIdentifier extension of a self-signed
// tls-alpn-01 validation certificate. Certificate assembly itself is left
// to the caller.
func TLSALPN01Digest(keyAuth string) []byte {
	digest := sha256.Sum256([]byte(keyAuth))
	return digest[:]
}

// EmailReply00Token reassembles the full email-reply-00 challenge token
// from the part delivered in the subject of the CA's challenge email and
// the part carried in the challenge object.
//
// See https://tools.ietf.org/html/rfc8823#section-3
func EmailReply00Token(subjectPart, challengePart string) string {
	return subjectPart + challengePart
}

// MarshalSigner serializes the given private key for account persistence.
// The returned keyType discriminator is consumed by UnmarshalSigner.
func MarshalSigner(signer crypto.Signer) ([]byte, string, error) {
	var keyBytes []byte
	var keyType string
	var err error
	switch k := signer.(type) {
	case *ecdsa.PrivateKey:
		keyType = "ecdsa"
		keyBytes, err = x509.MarshalECPrivateKey(k)
	case *rsa.PrivateKey:
		keyType = "rsa"
		keyBytes = x509.MarshalPKCS1PrivateKey(k)
	case ed25519.PrivateKey:
		keyType = "ed25519"
		keyBytes, err = x509.MarshalPKCS8PrivateKey(k)
	default:
		err = fmt.Errorf("signer was unknown type: %T", k)
	}
	if err != nil {
		return nil, "", err
	}
	return keyBytes, keyType, nil
}

// UnmarshalSigner deserializes a private key previously serialized with
// MarshalSigner.
func UnmarshalSigner(keyBytes []byte, keyType string) (crypto.Signer, error) {
	switch keyType {
	case "ecdsa":
		return x509.ParseECPrivateKey(keyBytes)
	case "rsa":
		return x509.ParsePKCS1PrivateKey(keyBytes)
	case "ed25519":
		key, err := x509.ParsePKCS8PrivateKey(keyBytes)
		if err != nil {
			return nil, err
		}
		edKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key was %T, expected ed25519", key)
		}
		return edKey, nil
	}
	return nil, fmt.Errorf("unknown key type %q", keyType)
}

// NewSigner generates a fresh private key of the given type ("ecdsa",
// "rsa" or "ed25519").
func NewSigner(keyType string) (crypto.Signer, error) {
	switch keyType {
	case "ecdsa":
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "rsa":
		return rsa.GenerateKey(rand.Reader, 2048)
	case "ed25519":
		_, key, err := ed25519.GenerateKey(rand.Reader)
		return key, err
	}
	return nil, fmt.Errorf("unknown key type: %q", keyType)
}

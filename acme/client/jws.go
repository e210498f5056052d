package client

import (
	"crypto"
	"encoding/json"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/acmekit/acmekit/acme/keys"
)

// signingOptions describes a single JWS production: the key, the jwk/kid
// header choice, and the protected nonce and url members.
type signingOptions struct {
	// If true, embed the signer's public key as a JWK in the protected
	// header instead of a Key ID. Used for newAccount and the inner
	// key-change JWS. Mutually exclusive with a non-empty keyID.
	embedKey bool
	// The account URL used as the JWS Key ID header.
	keyID string
	// The private key producing the signature.
	signer crypto.Signer
	// The anti-replay nonce for the protected header. Empty for the inner
	// key-change JWS, which carries no nonce.
	nonce string
	// The request URL for the protected header.
	url string
}

func (opts *signingOptions) validate() error {
	if opts.keyID != "" && opts.embedKey {
		return fmt.Errorf("sign: cannot specify both a key ID and an embedded JWK")
	}
	if opts.keyID == "" && !opts.embedKey {
		return fmt.Errorf("sign: must specify a key ID or an embedded JWK")
	}
	if opts.signer == nil {
		return fmt.Errorf("sign: must specify a signer")
	}
	if opts.url == "" {
		return fmt.Errorf("sign: must specify a request URL")
	}
	return nil
}

// staticNonceSource feeds one predetermined nonce to go-jose, so signing is
// deterministic per input and badNonce retries control exactly which nonce
// each attempt uses.
type staticNonceSource string

func (s staticNonceSource) Nonce() (string, error) {
	return string(s), nil
}

// signJWS signs the given payload (empty for POST-as-GET) and returns the
// flattened JSON serialization with the protected, payload and signature
// members.
func signJWS(payload []byte, opts signingOptions) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	signingKey, err := keys.SigningKeyForSigner(opts.signer, opts.keyID)
	if err != nil {
		return nil, err
	}

	joseOpts := &jose.SignerOptions{
		EmbedJWK: opts.embedKey,
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"url": opts.url,
		},
	}
	if opts.nonce != "" {
		joseOpts.NonceSource = staticNonceSource(opts.nonce)
	}

	signer, err := jose.NewSigner(signingKey, joseOpts)
	if err != nil {
		return nil, err
	}

	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, err
	}

	return []byte(signed.FullSerialize()), nil
}

// keyChangeJWS builds the nested key-change JWS: the inner JWS is signed by
// the new key with its public JWK embedded and carries no nonce; its
// payload binds the account URL to the old key. The inner serialization
// becomes the payload of the outer JWS, signed by the old key with the
// account URL as Key ID.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.5
func keyChangeJWS(keyChangeURL, accountURL string, oldKey, newKey crypto.Signer, nonce string) ([]byte, error) {
	innerPayload := struct {
		Account string          `json:"account"`
		OldKey  jose.JSONWebKey `json:"oldKey"`
	}{
		Account: accountURL,
		OldKey:  keys.JWKForSigner(oldKey),
	}
	innerPayloadJSON, err := json.Marshal(&innerPayload)
	if err != nil {
		return nil, fmt.Errorf("key change: %w", err)
	}

	innerJWS, err := signJWS(innerPayloadJSON, signingOptions{
		embedKey: true,
		signer:   newKey,
		url:      keyChangeURL,
	})
	if err != nil {
		return nil, fmt.Errorf("key change: signing inner JWS: %w", err)
	}

	outerJWS, err := signJWS(innerJWS, signingOptions{
		keyID:  accountURL,
		signer: oldKey,
		nonce:  nonce,
		url:    keyChangeURL,
	})
	if err != nil {
		return nil, fmt.Errorf("key change: signing outer JWS: %w", err)
	}
	return outerJWS, nil
}

// eabJWS builds the external account binding JWS carried in a newAccount
// payload: the account's public JWK signed with the CA-issued MAC key, the
// EAB key ID as Key ID and the newAccount URL in the protected header.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.4
func eabJWS(newAccountURL string, accountKey crypto.Signer, eabKeyID string, macKey []byte, macAlg string) ([]byte, error) {
	alg := jose.SignatureAlgorithm(macAlg)
	switch alg {
	case jose.HS256, jose.HS384, jose.HS512:
	default:
		return nil, fmt.Errorf("external account binding: unsupported MAC algorithm %q", macAlg)
	}

	accountJWK := keys.JWKForSigner(accountKey)
	payload, err := accountJWK.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("external account binding: %w", err)
	}

	// go-jose only emits "kid" for asymmetric keys, so the EAB key ID is
	// set as an explicit protected header.
	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: alg,
		Key:       macKey,
	}, &jose.SignerOptions{
		ExtraHeaders: map[jose.HeaderKey]interface{}{
			"kid": eabKeyID,
			"url": newAccountURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("external account binding: %w", err)
	}

	signed, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("external account binding: %w", err)
	}
	return []byte(signed.FullSerialize()), nil
}

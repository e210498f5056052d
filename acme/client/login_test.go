package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acmekit/acmekit/acme"
	"github.com/acmekit/acmekit/acme/keys"
)

func TestNewAccountCreated(t *testing.T) {
	server := newACMEServer(t)
	session := newTestSession(t, server, newFakeClock())
	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)

	login, err := session.NewAccount(context.Background(), signer, AccountOptions{
		Contact:              []string{"mailto:admin@example.com"},
		TermsOfServiceAgreed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, server.url("/acct/1"), login.Account().URL)
	assert.True(t, login.Account().IsValid())

	// Account creation embeds the public key; it never sends a kid.
	capture := server.lastCapture()
	assert.Equal(t, "/new-acct", capture.path)
	assert.Contains(t, capture.header, "jwk")
	assert.NotContains(t, capture.header, "kid")
	assert.Equal(t, "ES256", capture.header["alg"])
	assert.Equal(t, server.url("/new-acct"), capture.header["url"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal(capture.payload, &payload))
	assert.Equal(t, true, payload["termsOfServiceAgreed"])
	assert.Equal(t, []any{"mailto:admin@example.com"}, payload["contact"])
}

func TestNewAccountAlreadyExists(t *testing.T) {
	server := newACMEServer(t)
	server.handlers["/new-acct"] = func(w http.ResponseWriter, r *http.Request, jws jwsCapture) {
		w.Header().Set(acme.LOCATION_HEADER, server.url("/acct/1"))
		server.writeJSON(w, http.StatusOK, map[string]any{"status": "valid"})
	}
	session := newTestSession(t, server, newFakeClock())
	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)

	login, err := session.NewAccount(context.Background(), signer, AccountOptions{
		OnlyReturnExisting: true,
	})
	require.NoError(t, err)
	assert.Equal(t, server.url("/acct/1"), login.Account().URL)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(server.lastCapture().payload, &payload))
	assert.Equal(t, true, payload["onlyReturnExisting"])
}

func TestNewAccountNotFound(t *testing.T) {
	server := newACMEServer(t)
	server.handlers["/new-acct"] = func(w http.ResponseWriter, r *http.Request, jws jwsCapture) {
		server.writeProblem(w, http.StatusBadRequest, "accountDoesNotExist",
			"no account registered for this key")
	}
	session := newTestSession(t, server, newFakeClock())
	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)

	_, err = session.NewAccount(context.Background(), signer, AccountOptions{
		OnlyReturnExisting: true,
	})
	require.Error(t, err)
	assert.True(t, acme.IsKind(err, acme.KindAccountNotFound))
}

func TestNewAccountWithEAB(t *testing.T) {
	server := newACMEServer(t)
	session := newTestSession(t, server, newFakeClock())
	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)

	macKey := []byte("0123456789abcdef0123456789abcdef")
	_, err = session.NewAccount(context.Background(), signer, AccountOptions{
		TermsOfServiceAgreed: true,
		ExternalAccountBinding: &EAB{
			KeyID:  "eab-kid-1",
			MACKey: macKey,
		},
	})
	require.NoError(t, err)

	var payload struct {
		ExternalAccountBinding json.RawMessage `json:"externalAccountBinding"`
	}
	require.NoError(t, json.Unmarshal(server.lastCapture().payload, &payload))
	require.NotEmpty(t, payload.ExternalAccountBinding)

	eab, err := jose.ParseSigned(string(payload.ExternalAccountBinding),
		[]jose.SignatureAlgorithm{jose.HS256})
	require.NoError(t, err)

	header := eab.Signatures[0].Protected
	assert.Equal(t, "eab-kid-1", header.KeyID)
	assert.Equal(t, server.url("/new-acct"), header.ExtraHeaders["url"])

	// The MAC verifies with the CA-issued key and binds the account's
	// public JWK.
	eabPayload, err := eab.Verify(macKey)
	require.NoError(t, err)
	accountJWK := keys.JWKForSigner(signer)
	expected, err := accountJWK.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(expected), string(eabPayload))
}

func TestLoginUsesKidHeader(t *testing.T) {
	server := newACMEServer(t)
	session := newTestSession(t, server, newFakeClock())
	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	login := NewLogin(session, server.url("/acct/1"), signer)

	_, err = login.FetchAccount(context.Background())
	require.NoError(t, err)

	capture := server.lastCapture()
	assert.Equal(t, server.url("/acct/1"), capture.header["kid"])
	assert.NotContains(t, capture.header, "jwk")
	assert.Equal(t, server.url("/acct/1"), capture.header["url"])
	assert.NotEmpty(t, capture.nonce())
	// POST-as-GET carries an empty payload.
	assert.Empty(t, capture.payload)
}

func TestUpdateAccount(t *testing.T) {
	server := newACMEServer(t)
	server.handlers["/acct/1"] = func(w http.ResponseWriter, r *http.Request, jws jwsCapture) {
		var req struct {
			Contact []string `json:"contact"`
		}
		require.NoError(t, json.Unmarshal(jws.payload, &req))
		server.writeJSON(w, http.StatusOK, map[string]any{
			"status":  "valid",
			"contact": req.Contact,
		})
	}
	session := newTestSession(t, server, newFakeClock())
	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	login := NewLogin(session, server.url("/acct/1"), signer)

	acct, err := login.UpdateAccount(context.Background(), []string{"mailto:new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mailto:new@example.com"}, acct.Contact)
}

func TestDeactivateAccount(t *testing.T) {
	server := newACMEServer(t)
	server.handlers["/acct/1"] = func(w http.ResponseWriter, r *http.Request, jws jwsCapture) {
		var req struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(jws.payload, &req))
		require.Equal(t, "deactivated", req.Status)
		server.writeJSON(w, http.StatusOK, map[string]any{"status": "deactivated"})
	}
	session := newTestSession(t, server, newFakeClock())
	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	login := NewLogin(session, server.url("/acct/1"), signer)

	require.NoError(t, login.DeactivateAccount(context.Background()))
	assert.True(t, login.Account().IsDeactivated())
}

func TestKeyChange(t *testing.T) {
	server := newACMEServer(t)
	accountURL := ""

	server.handlers["/key-change"] = func(w http.ResponseWriter, r *http.Request, jws jwsCapture) {
		// Outer JWS: kid form, signed by the old key.
		require.Equal(t, accountURL, jws.header["kid"])
		require.Equal(t, server.url("/key-change"), jws.header["url"])

		// The payload is the inner JWS: jwk form, no nonce, same url.
		var inner struct {
			Protected string `json:"protected"`
			Payload   string `json:"payload"`
			Signature string `json:"signature"`
		}
		require.NoError(t, json.Unmarshal(jws.payload, &inner))

		innerHeader := decodeB64JSON(t, inner.Protected)
		require.Contains(t, innerHeader, "jwk")
		require.NotContains(t, innerHeader, "kid")
		require.NotContains(t, innerHeader, "nonce")
		require.Equal(t, server.url("/key-change"), innerHeader["url"])

		innerPayload := decodeB64JSON(t, inner.Payload)
		require.Equal(t, accountURL, innerPayload["account"])
		require.Contains(t, innerPayload, "oldKey")

		w.WriteHeader(http.StatusOK)
	}

	session := newTestSession(t, server, newFakeClock())
	oldKey, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	newKey, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)

	accountURL = server.url("/acct/1")
	login := NewLogin(session, accountURL, oldKey)
	require.NoError(t, login.KeyChange(context.Background(), newKey))

	// Subsequent operations sign with the new key.
	_, err = login.FetchAccount(context.Background())
	require.NoError(t, err)

	capture := server.lastCapture()
	parsed, err := jose.ParseSigned(string(capture.rawBody),
		[]jose.SignatureAlgorithm{jose.ES256})
	require.NoError(t, err)
	_, err = parsed.Verify(newKey.Public())
	require.NoError(t, err, "request after rollover must verify with the new key")
	_, err = parsed.Verify(oldKey.Public())
	assert.Error(t, err, "request after rollover must not verify with the old key")
}

func TestOperationWithWrongKeyIsUnauthorized(t *testing.T) {
	server := newACMEServer(t)
	server.handlers["/acct/1"] = func(w http.ResponseWriter, r *http.Request, jws jwsCapture) {
		server.writeProblem(w, http.StatusUnauthorized, "unauthorized",
			"JWS verification failed")
	}
	session := newTestSession(t, server, newFakeClock())
	signer, err := keys.NewSigner("ecdsa")
	require.NoError(t, err)
	login := NewLogin(session, server.url("/acct/1"), signer)

	_, err = login.FetchAccount(context.Background())
	require.Error(t, err)
	assert.True(t, acme.IsKind(err, acme.KindUnauthorized))
}

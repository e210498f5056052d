package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acmekit/acmekit/acme"
	acmenet "github.com/acmekit/acmekit/net"
)

func TestParseLinks(t *testing.T) {
	links := parseLinks([]string{
		`<https://ca.example/terms>;rel="terms-of-service"`,
		`<https://ca.example/cert/alt/1>;rel="alternate", <https://ca.example/cert/alt/2>;rel="alternate"`,
		`<https://ca.example/dir>; rel=index`,
		`garbage-without-params`,
	})

	assert.Equal(t, []string{"https://ca.example/terms"}, links["terms-of-service"])
	assert.Equal(t, []string{
		"https://ca.example/cert/alt/1",
		"https://ca.example/cert/alt/2",
	}, links["alternate"])
	assert.Equal(t, []string{"https://ca.example/dir"}, links["index"])
	assert.Len(t, links, 3)
}

func TestParseRetryAfter(t *testing.T) {
	clock := newFakeClock()

	// Delta seconds.
	at := parseRetryAfter("5", clock)
	assert.Equal(t, clock.Now().Add(5*time.Second), at)

	// HTTP-date.
	when := time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)
	at = parseRetryAfter(when.Format(http.TimeFormat), clock)
	assert.True(t, at.Equal(when))

	// Absent or malformed values yield the zero time.
	assert.True(t, parseRetryAfter("", clock).IsZero())
	assert.True(t, parseRetryAfter("soon", clock).IsZero())
	assert.True(t, parseRetryAfter("-3", clock).IsZero())
}

func TestNoncePoolRoundTrip(t *testing.T) {
	var pool noncePool

	_, ok := pool.takeCached()
	assert.False(t, ok)

	pool.store("nonce-a")
	nonce, ok := pool.takeCached()
	require.True(t, ok)
	assert.Equal(t, "nonce-a", nonce)

	// The slot is cleared after a take.
	_, ok = pool.takeCached()
	assert.False(t, ok)

	// Empty stores don't clobber the slot.
	pool.store("nonce-b")
	pool.store("")
	nonce, ok = pool.takeCached()
	require.True(t, ok)
	assert.Equal(t, "nonce-b", nonce)
}

func TestInterpretRejectsProblemWithSuccessStatus(t *testing.T) {
	server := newACMEServer(t)
	session := newTestSession(t, server, newFakeClock())

	resp := &acmenet.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type": []string{acme.PROBLEM_CONTENT_TYPE},
		},
		Body: []byte(`{"type":"about:blank"}`),
	}
	_, err := session.interpret(resp)
	require.Error(t, err)
	assert.True(t, acme.IsKind(err, acme.KindProtocol))
}

func TestInterpretErrorWithoutProblemBody(t *testing.T) {
	server := newACMEServer(t)
	session := newTestSession(t, server, newFakeClock())

	resp := &acmenet.Response{
		StatusCode: http.StatusBadGateway,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte("<html>bad gateway</html>"),
	}
	_, err := session.interpret(resp)
	require.Error(t, err)
	assert.True(t, acme.IsKind(err, acme.KindProtocol))
}

func TestInterpretEmptySuccess(t *testing.T) {
	server := newACMEServer(t)
	session := newTestSession(t, server, newFakeClock())

	resp := &acmenet.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Replay-Nonce": []string{"nonce-x"},
			"Location":     []string{"https://ca.example/acct/1"},
		},
	}
	result, err := session.interpret(resp)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.status)
	assert.Equal(t, "https://ca.example/acct/1", result.location)
	assert.Empty(t, result.json)
	assert.Empty(t, result.chainPEM)
}

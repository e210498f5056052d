package acme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDNSIdentifier(t *testing.T) {
	testCases := []struct {
		name     string
		domain   string
		expected string
	}{
		{"plain ASCII", "example.com", "example.com"},
		{"wildcard preserved", "*.example.com", "*.example.com"},
		{"IDN to A-label", "bücher.example", "xn--bcher-kva.example"},
		{"wildcard IDN", "*.bücher.example", "*.xn--bcher-kva.example"},
		{"uppercase folded", "EXAMPLE.com", "example.com"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := DNSIdentifier(tc.domain)
			require.NoError(t, err)
			assert.Equal(t, IdentifierDNS, id.Type)
			assert.Equal(t, tc.expected, id.Value)
		})
	}
}

func TestDNSIdentifierRoundTrip(t *testing.T) {
	// Encoding an already-ASCII domain is the identity.
	for _, domain := range []string{"example.com", "a.b.c.example", "xn--bcher-kva.example"} {
		id, err := DNSIdentifier(domain)
		require.NoError(t, err)
		again, err := DNSIdentifier(id.Value)
		require.NoError(t, err)
		assert.Equal(t, id, again)
	}
}

func TestIPIdentifier(t *testing.T) {
	testCases := []struct {
		name     string
		address  string
		expected string
	}{
		{"IPv4", "192.0.2.1", "192.0.2.1"},
		{"IPv6 compressed", "2001:db8::1", "2001:db8::1"},
		{"IPv6 expanded normalizes", "2001:0db8:0000:0000:0000:0000:0000:0001", "2001:db8::1"},
		{"IPv6 uppercase normalizes", "2001:DB8::1", "2001:db8::1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := IPIdentifier(tc.address)
			require.NoError(t, err)
			assert.Equal(t, IdentifierIP, id.Type)
			assert.Equal(t, tc.expected, id.Value)
		})
	}

	_, err := IPIdentifier("not-an-ip")
	assert.Error(t, err)
}

func TestIPIdentifierEquality(t *testing.T) {
	a, err := IPIdentifier("2001:db8:0:0:0:0:0:1")
	require.NoError(t, err)
	b, err := IPIdentifier("2001:db8::1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmailIdentifier(t *testing.T) {
	id, err := EmailIdentifier("Example User <user@example.com>")
	require.NoError(t, err)
	assert.Equal(t, IdentifierEmail, id.Type)
	assert.Equal(t, "user@example.com", id.Value)

	bare, err := EmailIdentifier("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, bare)

	_, err = EmailIdentifier("not an email")
	assert.Error(t, err)
}

func TestIdentifierEqualityIsCaseSensitive(t *testing.T) {
	a := Identifier{Type: "dns", Value: "example.com"}
	b := Identifier{Type: "dns", Value: "example.com"}
	c := Identifier{Type: "dns", Value: "Example.com"}

	assert.Equal(t, a, b)
	assert.Equal(t, b, a)
	assert.NotEqual(t, a, c)
}

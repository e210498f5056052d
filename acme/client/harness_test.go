package client

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acmekit/acmekit/acme"
)

// jwsCapture is one decoded signed request seen by the test server.
type jwsCapture struct {
	path    string
	header  map[string]any
	payload []byte
	rawBody []byte
}

func (c jwsCapture) nonce() string {
	nonce, _ := c.header["nonce"].(string)
	return nonce
}

// acmeServer mimics an ACME server for client tests. Handlers for the
// standard endpoints can be overridden per test via the handler fields.
type acmeServer struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	nonceCounter int
	issued       map[string]bool
	headCount    int
	dirCount     int
	captures     []jwsCapture

	// Number of upcoming signed POSTs to reject with badNonce.
	rejectNonces int

	// Optional per-path overrides. An override runs after the JWS is
	// decoded and the response nonce is set.
	handlers map[string]func(w http.ResponseWriter, r *http.Request, jws jwsCapture)
}

func newACMEServer(t *testing.T) *acmeServer {
	s := &acmeServer{
		t:        t,
		issued:   map[string]bool{},
		handlers: map[string]func(http.ResponseWriter, *http.Request, jwsCapture){},
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *acmeServer) url(path string) string {
	return s.srv.URL + path
}

func (s *acmeServer) issueNonce() string {
	s.nonceCounter++
	nonce := fmt.Sprintf("nonce-%02d", s.nonceCounter)
	s.issued[nonce] = true
	return nonce
}

// lastCapture returns the most recent signed request.
func (s *acmeServer) lastCapture() jwsCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.t, s.captures)
	return s.captures[len(s.captures)-1]
}

func (s *acmeServer) capturesFor(path string) []jwsCapture {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []jwsCapture
	for _, c := range s.captures {
		if c.path == path {
			out = append(out, c)
		}
	}
	return out
}

func (s *acmeServer) writeProblem(w http.ResponseWriter, status int, typeSuffix, detail string) {
	w.Header().Set("Content-Type", acme.PROBLEM_CONTENT_TYPE)
	w.WriteHeader(status)
	prob := acme.Problem{
		Type:   acme.ERROR_URN_PREFIX + typeSuffix,
		Detail: detail,
		Status: status,
	}
	_ = json.NewEncoder(w).Encode(&prob)
}

func (s *acmeServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", acme.JSON_CONTENT_TYPE)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *acmeServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.URL.Path == "/directory" && r.Method == http.MethodGet:
		s.dirCount++
		s.writeJSON(w, http.StatusOK, map[string]any{
			"newNonce":    s.url("/new-nonce"),
			"newAccount":  s.url("/new-acct"),
			"newOrder":    s.url("/new-order"),
			"newAuthz":    s.url("/new-authz"),
			"revokeCert":  s.url("/revoke-cert"),
			"keyChange":   s.url("/key-change"),
			"renewalInfo": s.url("/renewal-info"),
			"meta": map[string]any{
				"termsOfService":          s.url("/terms"),
				"website":                 "https://ca.example",
				"caaIdentities":           []string{"ca.example"},
				"externalAccountRequired": false,
				"profiles": map[string]string{
					"classic":    "long-lived certificates",
					"shortlived": "six-day certificates",
				},
			},
		})
		return

	case r.URL.Path == "/new-nonce" && r.Method == http.MethodHead:
		s.headCount++
		w.Header().Set(acme.REPLAY_NONCE_HEADER, s.issueNonce())
		w.WriteHeader(http.StatusOK)
		return

	case strings.HasPrefix(r.URL.Path, "/renewal-info/") && r.Method == http.MethodGet:
		w.Header().Set(acme.RETRY_AFTER_HEADER, "21600")
		s.writeJSON(w, http.StatusOK, map[string]any{
			"suggestedWindow": map[string]string{
				"start": "2026-08-10T00:00:00Z",
				"end":   "2026-08-12T00:00:00Z",
			},
			"explanationURL": s.url("/why"),
		})
		return
	}

	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	jws := s.decodeJWS(r)
	s.captures = append(s.captures, jws)

	// Every POST response carries a fresh Replay-Nonce, including errors.
	w.Header().Set(acme.REPLAY_NONCE_HEADER, s.issueNonce())

	if s.rejectNonces > 0 {
		s.rejectNonces--
		s.writeProblem(w, http.StatusBadRequest, "badNonce",
			fmt.Sprintf("nonce %q is stale", jws.nonce()))
		return
	}
	if nonce := jws.nonce(); !s.issued[nonce] {
		s.writeProblem(w, http.StatusBadRequest, "badNonce",
			fmt.Sprintf("nonce %q was never issued", nonce))
		return
	}
	delete(s.issued, jws.nonce())

	if handler, ok := s.handlers[r.URL.Path]; ok {
		handler(w, r, jws)
		return
	}

	s.defaultHandler(w, r, jws)
}

func (s *acmeServer) defaultHandler(w http.ResponseWriter, r *http.Request, jws jwsCapture) {
	switch r.URL.Path {
	case "/new-acct":
		w.Header().Set(acme.LOCATION_HEADER, s.url("/acct/1"))
		s.writeJSON(w, http.StatusCreated, map[string]any{
			"status":  "valid",
			"contact": []string{"mailto:admin@example.com"},
			"orders":  s.url("/acct/1/orders"),
		})
	case "/acct/1":
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status": "valid",
		})
	case "/order/1":
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":         "pending",
			"expires":        "2026-09-01T00:00:00Z",
			"identifiers":    []acme.Identifier{{Type: "dns", Value: "example.com"}},
			"authorizations": []string{s.url("/authz/1")},
			"finalize":       s.url("/order/1/finalize"),
		})
	case "/new-order":
		w.Header().Set(acme.LOCATION_HEADER, s.url("/order/1"))
		s.writeJSON(w, http.StatusCreated, map[string]any{
			"status":         "pending",
			"expires":        "2026-09-01T00:00:00Z",
			"identifiers":    []acme.Identifier{{Type: "dns", Value: "example.com"}},
			"authorizations": []string{s.url("/authz/1")},
			"finalize":       s.url("/order/1/finalize"),
		})
	default:
		s.writeProblem(w, http.StatusNotFound, "malformed",
			fmt.Sprintf("unknown resource %q", r.URL.Path))
	}
}

// decodeJWS splits a flattened JWS serialization into its protected header
// and payload.
func (s *acmeServer) decodeJWS(r *http.Request) jwsCapture {
	require.Equal(s.t, acme.JOSE_CONTENT_TYPE, r.Header.Get("Content-Type"))

	body, err := io.ReadAll(r.Body)
	require.NoError(s.t, err)

	var envelope struct {
		Protected string `json:"protected"`
		Payload   string `json:"payload"`
		Signature string `json:"signature"`
	}
	require.NoError(s.t, json.Unmarshal(body, &envelope))
	require.NotEmpty(s.t, envelope.Protected)
	require.NotEmpty(s.t, envelope.Signature)

	headerJSON, err := base64.RawURLEncoding.DecodeString(envelope.Protected)
	require.NoError(s.t, err)
	var header map[string]any
	require.NoError(s.t, json.Unmarshal(headerJSON, &header))

	payload, err := base64.RawURLEncoding.DecodeString(envelope.Payload)
	require.NoError(s.t, err)

	return jwsCapture{
		path:    r.URL.Path,
		header:  header,
		payload: payload,
		rawBody: body,
	}
}

// decodeB64JSON decodes a base64url JWS segment into a JSON object.
func decodeB64JSON(t *testing.T, segment string) map[string]any {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

// newTestSession builds a Session against the mock server using the fake
// clock.
func newTestSession(t *testing.T, server *acmeServer, clock Clock) *Session {
	session, err := NewSession(Config{
		Server: server.url("/directory"),
		Clock:  clock,
	})
	require.NoError(t, err)
	return session
}

// fakeClock advances instantly through sleeps, recording each one.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

func (c *fakeClock) sleptAtLeast(d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, slept := range c.sleeps {
		if slept >= d {
			return true
		}
	}
	return false
}

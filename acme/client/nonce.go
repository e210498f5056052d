package client

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/acmekit/acmekit/acme"
)

// noncePool is a single-slot cache of the next anti-replay nonce. Every
// response's Replay-Nonce header refills the slot; a take empties it.
//
// The pool is owned by its Session; the mutex serializes concurrent signed
// sends that share the Session.
type noncePool struct {
	mu    sync.Mutex
	nonce string
}

// store replaces the pooled nonce. Empty values are ignored so responses
// without a Replay-Nonce header don't clear a usable nonce.
func (p *noncePool) store(nonce string) {
	if nonce == "" {
		return
	}
	p.mu.Lock()
	p.nonce = nonce
	p.mu.Unlock()
}

// takeCached returns the pooled nonce and clears the slot.
func (p *noncePool) takeCached() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	nonce := p.nonce
	p.nonce = ""
	return nonce, nonce != ""
}

// takeNonce returns the next nonce to sign with: the pooled nonce when one
// is present, otherwise a fresh one from a HEAD request to the directory's
// newNonce endpoint.
//
// See https://tools.ietf.org/html/rfc8555#section-7.2
func (s *Session) takeNonce(ctx context.Context) (string, error) {
	if nonce, ok := s.nonces.takeCached(); ok {
		return nonce, nil
	}

	nonceURL, err := s.ResourceURL(ctx, acme.NEW_NONCE_ENDPOINT)
	if err != nil {
		return "", err
	}

	resp, err := s.net.Head(ctx, nonceURL)
	if err != nil {
		return "", wrapTransportErr(ctx, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return "", acme.ProtocolError("%q returned HTTP status %d",
			acme.NEW_NONCE_ENDPOINT, resp.StatusCode)
	}

	nonce := resp.Header.Get(acme.REPLAY_NONCE_HEADER)
	if nonce == "" {
		return "", acme.ProtocolError("%q returned no %q header value",
			acme.NEW_NONCE_ENDPOINT, acme.REPLAY_NONCE_HEADER)
	}

	s.logger.Debug("fetched fresh nonce", zap.String("nonce", nonce))
	return nonce, nil
}

// storeNonce pools the Replay-Nonce from a response for the next signed
// send. Called for every response, including error responses.
func (s *Session) storeNonce(header http.Header) {
	nonce := header.Get(acme.REPLAY_NONCE_HEADER)
	if nonce == "" {
		return
	}
	s.nonces.store(nonce)
	s.logger.Debug("pooled nonce", zap.String("nonce", nonce))
}

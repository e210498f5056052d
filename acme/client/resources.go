package client

import (
	"context"
	"crypto"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/acmekit/acmekit/acme"
	"github.com/acmekit/acmekit/acme/resources"
)

// OrderOptions carries the optional members of a newOrder request.
type OrderOptions struct {
	// Requested certificate validity bounds. Zero values are omitted.
	NotBefore time.Time
	NotAfter  time.Time
	// Certificate profile name from the directory metadata. Optional.
	Profile string
	// URL-safe identifier of the certificate this order replaces
	// (draft-ietf-acme-ari). Optional.
	Replaces string
}

// NewOrder creates an Order for the given identifiers. The response's
// Location header becomes the Order URL.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4
func (l *Login) NewOrder(ctx context.Context, identifiers []acme.Identifier, opts *OrderOptions) (*resources.Order, error) {
	s := l.session
	newOrderURL, err := s.ResourceURL(ctx, acme.NEW_ORDER_ENDPOINT)
	if err != nil {
		return nil, err
	}

	req := struct {
		Identifiers []acme.Identifier `json:"identifiers"`
		NotBefore   string            `json:"notBefore,omitempty"`
		NotAfter    string            `json:"notAfter,omitempty"`
		Profile     string            `json:"profile,omitempty"`
		Replaces    string            `json:"replaces,omitempty"`
	}{
		Identifiers: identifiers,
	}
	if opts != nil {
		if !opts.NotBefore.IsZero() {
			req.NotBefore = opts.NotBefore.Format(time.RFC3339)
		}
		if !opts.NotAfter.IsZero() {
			req.NotAfter = opts.NotAfter.Format(time.RFC3339)
		}
		req.Profile = opts.Profile
		req.Replaces = opts.Replaces
	}

	reqBody, err := json.Marshal(&req)
	if err != nil {
		return nil, acme.ProtocolError("new order: %w", err)
	}

	resp, err := s.postJWS(ctx, newOrderURL, reqBody, l.identity())
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusCreated {
		return nil, acme.ProtocolError("new order: server returned status %d, expected %d",
			resp.status, http.StatusCreated)
	}
	if resp.location == "" {
		return nil, acme.ProtocolError("new order: response had no Location header")
	}

	order := &resources.Order{URL: resp.location}
	if err := decodeResource(resp.json, order, &order.Raw); err != nil {
		return nil, err
	}
	s.logger.Info("created order", zap.String("url", order.URL))
	return order, nil
}

func (l *Login) fetchOrder(ctx context.Context, order *resources.Order) (time.Time, error) {
	resp, err := l.session.postJWS(ctx, order.URL, postAsGET, l.identity())
	if err != nil {
		return time.Time{}, err
	}
	if err := decodeResource(resp.json, order, &order.Raw); err != nil {
		return time.Time{}, err
	}
	return resp.retryAfter, nil
}

// FetchOrder loads the order at the given URL with a POST-as-GET.
func (l *Login) FetchOrder(ctx context.Context, orderURL string) (*resources.Order, error) {
	order := &resources.Order{URL: orderURL}
	if _, err := l.fetchOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrder refreshes the given order in place and returns the server's
// Retry-After hint for the next poll (zero when the server sent none).
func (l *Login) UpdateOrder(ctx context.Context, order *resources.Order) (time.Time, error) {
	return l.fetchOrder(ctx, order)
}

// FinalizeOrder submits the DER encoded CSR to the order's finalize URL.
// The order must have status "ready". The refreshed order body replaces the
// cached one.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4
func (l *Login) FinalizeOrder(ctx context.Context, order *resources.Order, csrDER []byte) error {
	if !order.IsReady() {
		return acme.ProtocolError("finalize: order status is %q, expected %q",
			order.Status, acme.StatusReady)
	}
	if order.Finalize == "" {
		return acme.ProtocolError("finalize: order has no finalize URL")
	}

	reqBody, err := json.Marshal(struct {
		CSR string `json:"csr"`
	}{CSR: base64.RawURLEncoding.EncodeToString(csrDER)})
	if err != nil {
		return acme.ProtocolError("finalize: %w", err)
	}

	resp, err := l.session.postJWS(ctx, order.Finalize, reqBody, l.identity())
	if err != nil {
		return err
	}
	if err := decodeResource(resp.json, order, &order.Raw); err != nil {
		return err
	}
	l.session.logger.Info("finalized order",
		zap.String("url", order.URL), zap.String("status", order.Status))
	return nil
}

// FetchCertificate downloads the order's certificate chain. The order must
// carry a certificate URL; its status is not checked. The chain is returned
// leaf first together with any alternate chain URLs the server offered.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4.2
func (l *Login) FetchCertificate(ctx context.Context, order *resources.Order) (*resources.Certificate, error) {
	if order.Certificate == "" {
		return nil, acme.ProtocolError(
			"fetch certificate: order has no certificate URL (status %q)", order.Status)
	}
	return l.FetchCertificateFrom(ctx, order.Certificate)
}

// FetchCertificateFrom downloads a certificate chain from the given URL,
// e.g. an alternate chain link.
func (l *Login) FetchCertificateFrom(ctx context.Context, certURL string) (*resources.Certificate, error) {
	resp, err := l.session.postJWS(ctx, certURL, postAsGET, l.identity())
	if err != nil {
		return nil, err
	}
	if len(resp.chainPEM) == 0 {
		return nil, acme.ProtocolError("fetch certificate: response was not a PEM chain")
	}

	der, err := l.session.chainParser(resp.chainPEM)
	if err != nil {
		return nil, acme.ProtocolError("fetch certificate: %w", err)
	}

	return &resources.Certificate{
		URL:        certURL,
		ChainPEM:   resp.chainPEM,
		DER:        der,
		Alternates: resp.links[acme.LinkAlternate],
	}, nil
}

// PreAuthorize requests an authorization for the given identifier ahead of
// any order via the optional newAuthz endpoint.
//
// See https://tools.ietf.org/html/rfc8555#section-7.4.1
func (l *Login) PreAuthorize(ctx context.Context, identifier acme.Identifier) (*resources.Authorization, error) {
	s := l.session
	newAuthzURL, err := s.ResourceURL(ctx, acme.NEW_AUTHZ_ENDPOINT)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(struct {
		Identifier acme.Identifier `json:"identifier"`
	}{Identifier: identifier})
	if err != nil {
		return nil, acme.ProtocolError("new authorization: %w", err)
	}

	resp, err := s.postJWS(ctx, newAuthzURL, reqBody, l.identity())
	if err != nil {
		return nil, err
	}
	if resp.status != http.StatusCreated {
		return nil, acme.ProtocolError("new authorization: server returned status %d", resp.status)
	}
	if resp.location == "" {
		return nil, acme.ProtocolError("new authorization: response had no Location header")
	}

	authz := &resources.Authorization{URL: resp.location}
	if err := decodeResource(resp.json, authz, &authz.Raw); err != nil {
		return nil, err
	}
	return authz, nil
}

func (l *Login) fetchAuthorization(ctx context.Context, authz *resources.Authorization) (time.Time, error) {
	resp, err := l.session.postJWS(ctx, authz.URL, postAsGET, l.identity())
	if err != nil {
		return time.Time{}, err
	}
	if err := decodeResource(resp.json, authz, &authz.Raw); err != nil {
		return time.Time{}, err
	}
	return resp.retryAfter, nil
}

// FetchAuthorization loads the authorization at the given URL with
// a POST-as-GET.
func (l *Login) FetchAuthorization(ctx context.Context, authzURL string) (*resources.Authorization, error) {
	authz := &resources.Authorization{URL: authzURL}
	if _, err := l.fetchAuthorization(ctx, authz); err != nil {
		return nil, err
	}
	return authz, nil
}

// DeactivateAuthorization relinquishes the authorization so the server
// will no longer offer its challenges.
//
// See https://tools.ietf.org/html/rfc8555#section-7.5.2
func (l *Login) DeactivateAuthorization(ctx context.Context, authz *resources.Authorization) error {
	reqBody := []byte(`{"status":"deactivated"}`)
	resp, err := l.session.postJWS(ctx, authz.URL, reqBody, l.identity())
	if err != nil {
		return err
	}
	return decodeResource(resp.json, authz, &authz.Raw)
}

func (l *Login) fetchChallenge(ctx context.Context, chall *resources.Challenge) (time.Time, error) {
	resp, err := l.session.postJWS(ctx, chall.URL, postAsGET, l.identity())
	if err != nil {
		return time.Time{}, err
	}
	if len(resp.json) == 0 {
		return resp.retryAfter, nil
	}
	if err := json.Unmarshal(resp.json, chall); err != nil {
		return time.Time{}, acme.ProtocolError("malformed challenge body: %w", err)
	}
	return resp.retryAfter, nil
}

// FetchChallenge loads the challenge at the given URL with a POST-as-GET.
func (l *Login) FetchChallenge(ctx context.Context, challURL string) (*resources.Challenge, error) {
	chall := &resources.Challenge{URL: challURL}
	if _, err := l.fetchChallenge(ctx, chall); err != nil {
		return nil, err
	}
	return chall, nil
}

// TriggerChallenge tells the server the challenge response is provisioned
// by POSTing the empty JSON object to the challenge URL. The server
// advances the challenge asynchronously; callers poll the challenge or its
// authorization.
//
// See https://tools.ietf.org/html/rfc8555#section-7.5.1
func (l *Login) TriggerChallenge(ctx context.Context, chall *resources.Challenge) error {
	resp, err := l.session.postJWS(ctx, chall.URL, []byte(`{}`), l.identity())
	if err != nil {
		return err
	}
	if len(resp.json) > 0 {
		if err := json.Unmarshal(resp.json, chall); err != nil {
			return acme.ProtocolError("malformed challenge body: %w", err)
		}
	}
	l.session.logger.Info("triggered challenge",
		zap.String("url", chall.URL), zap.String("type", chall.Type))
	return nil
}

// RevocationReason codes from RFC 5280 §5.3.1.
const (
	ReasonUnspecified          = 0
	ReasonKeyCompromise        = 1
	ReasonAffiliationChanged   = 3
	ReasonSuperseded           = 4
	ReasonCessationOfOperation = 5
)

type revokeRequest struct {
	Certificate string `json:"certificate"`
	Reason      *int   `json:"reason,omitempty"`
}

// RevokeCert revokes the given DER encoded certificate, authorizing the
// request with the account key. Reason may be nil.
//
// See https://tools.ietf.org/html/rfc8555#section-7.6
func (l *Login) RevokeCert(ctx context.Context, certDER []byte, reason *int) error {
	return l.session.revokeCert(ctx, certDER, reason, l.identity())
}

// RevokeCertByKey revokes the given DER encoded certificate, authorizing
// the request with the certificate's own key pair instead of an account
// key. The JWS embeds the certificate key's public JWK.
func (s *Session) RevokeCertByKey(ctx context.Context, certDER []byte, certKey crypto.Signer, reason *int) error {
	return s.revokeCert(ctx, certDER, reason, signIdentity{signer: certKey})
}

func (s *Session) revokeCert(ctx context.Context, certDER []byte, reason *int, identity signIdentity) error {
	revokeURL, err := s.ResourceURL(ctx, acme.REVOKE_CERT_ENDPOINT)
	if err != nil {
		return err
	}

	reqBody, err := json.Marshal(revokeRequest{
		Certificate: base64.RawURLEncoding.EncodeToString(certDER),
		Reason:      reason,
	})
	if err != nil {
		return acme.ProtocolError("revoke: %w", err)
	}

	resp, err := s.postJWS(ctx, revokeURL, reqBody, identity)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK {
		return acme.ProtocolError("revoke: server returned status %d", resp.status)
	}
	s.logger.Info("revoked certificate")
	return nil
}

// RenewalInfo fetches the suggested renewal window for the certificate
// with the given ARI certificate identifier. The returned instant is the
// server's Retry-After hint for the next refresh, when present.
//
// The renewalInfo resource is unauthenticated; it is fetched with a plain
// GET.
func (s *Session) RenewalInfo(ctx context.Context, certID string) (*resources.RenewalInfo, time.Time, error) {
	baseURL, err := s.ResourceURL(ctx, acme.RENEWAL_INFO_ENDPOINT)
	if err != nil {
		return nil, time.Time{}, err
	}

	resp, err := s.net.Get(ctx, baseURL+"/"+certID)
	if err != nil {
		return nil, time.Time{}, wrapTransportErr(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, time.Time{}, acme.ProtocolError("renewal info: server returned status %d", resp.StatusCode)
	}

	var info resources.RenewalInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return nil, time.Time{}, acme.ProtocolError("renewal info: %w", err)
	}
	retryAt := parseRetryAfter(resp.Header.Get(acme.RETRY_AFTER_HEADER), s.clock)
	return &info, retryAt, nil
}

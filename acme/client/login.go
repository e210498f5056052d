package client

import (
	"context"
	"crypto"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/acmekit/acmekit/acme"
	"github.com/acmekit/acmekit/acme/resources"
)

// Login pairs a Session with an account URL and the account key pair. All
// signed requests originating from a Login use the "kid" JWS form with the
// account URL; only account creation and key change embed a public JWK.
type Login struct {
	session *Session
	account *resources.Account
}

// NewLogin binds an existing account (URL plus key pair, e.g. restored via
// resources.RestoreAccount) to a Session.
func NewLogin(session *Session, accountURL string, signer crypto.Signer) *Login {
	return &Login{
		session: session,
		account: &resources.Account{
			URL:    accountURL,
			Signer: signer,
		},
	}
}

// Session returns the Session the Login operates on.
func (l *Login) Session() *Session {
	return l.session
}

// Account returns the Login's account resource. Its body reflects the last
// server response; call FetchAccount to refresh it.
func (l *Login) Account() *resources.Account {
	return l.account
}

func (l *Login) identity() signIdentity {
	return signIdentity{signer: l.account.Signer, accountURL: l.account.URL}
}

// EAB carries external account binding credentials issued by the CA
// out-of-band.
type EAB struct {
	// The key identifier the CA issued for the binding.
	KeyID string
	// The raw MAC key bytes (callers decode the CA's base64url form).
	MACKey []byte
	// The MAC algorithm. When empty the provider's proposed algorithm is
	// used (HS256 unless the provider says otherwise).
	MACAlgorithm string
}

// AccountOptions controls account creation.
type AccountOptions struct {
	// Contact URIs for the account, typically "mailto:" addresses.
	Contact []string
	// Whether the account holder agrees to the server's terms of service.
	TermsOfServiceAgreed bool
	// If true the server must not create a new account; a missing account
	// surfaces as an account-not-found error.
	OnlyReturnExisting bool
	// External account binding credentials, when the CA requires them.
	ExternalAccountBinding *EAB
}

// NewAccount creates (or, with OnlyReturnExisting, locates) an account for
// the given key pair and returns a Login bound to it. The JWS for this
// request embeds the public key; the response's Location header becomes the
// account URL. A 200 response means the account already existed, a 201 that
// it was created.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3
func (s *Session) NewAccount(ctx context.Context, signer crypto.Signer, opts AccountOptions) (*Login, error) {
	newAcctURL, err := s.ResourceURL(ctx, acme.NEW_ACCOUNT_ENDPOINT)
	if err != nil {
		return nil, err
	}

	newAcctReq := struct {
		Contact                []string        `json:"contact,omitempty"`
		TermsOfServiceAgreed   bool            `json:"termsOfServiceAgreed,omitempty"`
		OnlyReturnExisting     bool            `json:"onlyReturnExisting,omitempty"`
		ExternalAccountBinding json.RawMessage `json:"externalAccountBinding,omitempty"`
	}{
		Contact:              opts.Contact,
		TermsOfServiceAgreed: opts.TermsOfServiceAgreed,
		OnlyReturnExisting:   opts.OnlyReturnExisting,
	}

	if eab := opts.ExternalAccountBinding; eab != nil {
		macAlg := eab.MACAlgorithm
		if macAlg == "" {
			macAlg = s.ProposedEABMACAlgorithm()
		}
		eabBody, err := eabJWS(newAcctURL, signer, eab.KeyID, eab.MACKey, macAlg)
		if err != nil {
			return nil, acme.ProtocolError("new account: %w", err)
		}
		newAcctReq.ExternalAccountBinding = eabBody
	}

	reqBody, err := json.Marshal(&newAcctReq)
	if err != nil {
		return nil, acme.ProtocolError("new account: %w", err)
	}

	resp, err := s.postJWS(ctx, newAcctURL, reqBody, signIdentity{signer: signer})
	if err != nil {
		return nil, err
	}

	if resp.status != http.StatusOK && resp.status != http.StatusCreated {
		return nil, acme.ProtocolError("new account: server returned status %d", resp.status)
	}
	if resp.location == "" {
		return nil, acme.ProtocolError("new account: response had no Location header")
	}

	acct := &resources.Account{
		URL:    resp.location,
		Signer: signer,
	}
	if err := decodeResource(resp.json, acct, &acct.Raw); err != nil {
		return nil, err
	}

	s.logger.Info("account ready",
		zap.String("url", acct.URL),
		zap.Bool("created", resp.status == http.StatusCreated))
	return &Login{session: s, account: acct}, nil
}

// FetchAccount refreshes the account resource with a POST-as-GET to the
// account URL.
func (l *Login) FetchAccount(ctx context.Context) (*resources.Account, error) {
	resp, err := l.session.postJWS(ctx, l.account.URL, postAsGET, l.identity())
	if err != nil {
		return nil, err
	}
	if err := decodeResource(resp.json, l.account, &l.account.Raw); err != nil {
		return nil, err
	}
	return l.account, nil
}

// UpdateAccount posts the given contact list to the account URL and
// refreshes the cached account from the response.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.2
func (l *Login) UpdateAccount(ctx context.Context, contact []string) (*resources.Account, error) {
	reqBody, err := json.Marshal(struct {
		Contact []string `json:"contact"`
	}{Contact: contact})
	if err != nil {
		return nil, acme.ProtocolError("update account: %w", err)
	}

	resp, err := l.session.postJWS(ctx, l.account.URL, reqBody, l.identity())
	if err != nil {
		return nil, err
	}
	if err := decodeResource(resp.json, l.account, &l.account.Raw); err != nil {
		return nil, err
	}
	return l.account, nil
}

// DeactivateAccount posts a deactivation to the account URL. Deactivation
// is terminal; the server refuses further requests authorized by the
// account's key.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.6
func (l *Login) DeactivateAccount(ctx context.Context) error {
	reqBody := []byte(`{"status":"deactivated"}`)
	resp, err := l.session.postJWS(ctx, l.account.URL, reqBody, l.identity())
	if err != nil {
		return err
	}
	if err := decodeResource(resp.json, l.account, &l.account.Raw); err != nil {
		return err
	}
	l.session.logger.Info("account deactivated", zap.String("url", l.account.URL))
	return nil
}

// KeyChange rolls the account over to newKey using the nested key-change
// JWS. On success the Login's signer is replaced, so subsequent operations
// sign with the new key.
//
// See https://tools.ietf.org/html/rfc8555#section-7.3.5
func (l *Login) KeyChange(ctx context.Context, newKey crypto.Signer) error {
	s := l.session
	keyChangeURL, err := s.ResourceURL(ctx, acme.KEY_CHANGE_ENDPOINT)
	if err != nil {
		return err
	}

	// The nested JWS needs the nonce up front, so the exchange is built
	// here rather than through postJWS's signing path.
	var lastErr error
	for attempt := 0; attempt <= badNonceRetries; attempt++ {
		nonce, err := s.takeNonce(ctx)
		if err != nil {
			return err
		}

		signedBody, err := keyChangeJWS(keyChangeURL, l.account.URL, l.account.Signer, newKey, nonce)
		if err != nil {
			s.nonces.store(nonce)
			return acme.ProtocolError("%w", err)
		}

		resp, err := s.net.Post(ctx, keyChangeURL, signedBody)
		if err != nil {
			return wrapTransportErr(ctx, err)
		}
		s.storeNonce(resp.Header)

		result, err := s.interpret(resp)
		if err != nil {
			if acme.IsKind(err, acme.KindBadNonce) {
				lastErr = err
				continue
			}
			return err
		}
		if result.status != http.StatusOK {
			return acme.ProtocolError("key change: server returned status %d", result.status)
		}

		l.account.Signer = newKey
		s.logger.Info("account key rolled over", zap.String("url", l.account.URL))
		return nil
	}
	return lastErr
}

// decodeResource unmarshals a response body into the given resource and
// stores the raw body alongside it. An empty body leaves the resource
// untouched.
func decodeResource(body json.RawMessage, target any, raw *json.RawMessage) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return acme.ProtocolError("malformed resource body: %w", err)
	}
	*raw = body
	return nil
}

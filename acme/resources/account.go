package resources

import (
	"crypto"
	"encoding/json"
	"fmt"
	"os"

	"github.com/acmekit/acmekit/acme"
	"github.com/acmekit/acmekit/acme/keys"
)

// Account holds information related to a single ACME Account resource. If
// the Account has an empty URL it has not yet been created server-side.
//
// The URL field holds the server-assigned account location returned at
// creation time. It is used as the JWS "kid" header when authenticating
// requests with the account's registered key pair, and is immutable for the
// account's lifetime. The key pair may change via key rollover.
//
// For information about the Account resource see
// https://tools.ietf.org/html/rfc8555#section-7.1.2
type Account struct {
	// The server-assigned account URL. Used as the JWS Key ID for
	// authenticated requests.
	URL string `json:"-"`
	// The status of the account: "valid", "deactivated" (client-initiated)
	// or "revoked" (server-initiated).
	Status string `json:"status,omitempty"`
	// Contact URIs, typically "mailto:" addresses.
	Contact []string `json:"contact,omitempty"`
	// True once the account holder has agreed to the server's terms of
	// service.
	TermsOfServiceAgreed bool `json:"termsOfServiceAgreed,omitempty"`
	// The external account binding object echoed by the server, if any.
	ExternalAccountBinding json.RawMessage `json:"externalAccountBinding,omitempty"`
	// URL of the account's orders collection.
	Orders string `json:"orders,omitempty"`

	// The private key backing the account. Owned by the caller; never sent
	// to the server.
	Signer crypto.Signer `json:"-"`

	// The raw JSON body the above fields were decoded from.
	Raw json.RawMessage `json:"-"`
}

// String returns the Account's URL or an empty string if it has not been
// created with the ACME server.
func (a Account) String() string {
	return a.URL
}

// GetStatus returns the account's status field.
func (a *Account) GetStatus() string { return a.Status }

func (a *Account) IsValid() bool       { return a.Status == acme.StatusValid }
func (a *Account) IsDeactivated() bool { return a.Status == acme.StatusDeactivated }
func (a *Account) IsRevoked() bool     { return a.Status == acme.StatusRevoked }

// NewAccount creates an Account in-memory. *Important:* the created Account
// is not registered with the ACME server until a Login creates it
// server-side.
//
// The emails argument is a slice of zero or more addresses used as the
// Account's contact information; each is given a "mailto:" prefix. If the
// signer argument is nil a fresh ECDSA P-256 key is generated.
func NewAccount(emails []string, signer crypto.Signer) (*Account, error) {
	var contacts []string
	for _, e := range emails {
		if e == "" {
			continue
		}
		contacts = append(contacts, fmt.Sprintf("mailto:%s", e))
	}

	if signer == nil {
		randKey, err := keys.NewSigner("ecdsa")
		if err != nil {
			return nil, err
		}
		signer = randKey
	}

	return &Account{
		Contact: contacts,
		Signer:  signer,
	}, nil
}

// rawAccount is the on-disk serialization of an Account: the account URL,
// the contact list and the key pair, the only state a caller needs to
// persist across processes.
type rawAccount struct {
	URL        string
	Contact    []string
	KeyType    string
	PrivateKey []byte
}

// SaveAccount persists the given Account's URL, contact list and key pair
// to the given file path.
func SaveAccount(path string, account *Account) error {
	if account == nil {
		return fmt.Errorf("account must not be nil")
	}
	keyBytes, keyType, err := keys.MarshalSigner(account.Signer)
	if err != nil {
		return err
	}

	frozenAcct, err := json.MarshalIndent(rawAccount{
		URL:        account.URL,
		Contact:    account.Contact,
		KeyType:    keyType,
		PrivateKey: keyBytes,
	}, "", "  ")
	if err != nil {
		return err
	}

	// This file contains a private key; only the current user may read it.
	return os.WriteFile(path, frozenAcct, 0600)
}

// RestoreAccount loads an Account previously saved with SaveAccount.
func RestoreAccount(path string) (*Account, error) {
	frozenBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rawAcct rawAccount
	if err := json.Unmarshal(frozenBytes, &rawAcct); err != nil {
		return nil, err
	}

	signer, err := keys.UnmarshalSigner(rawAcct.PrivateKey, rawAcct.KeyType)
	if err != nil {
		return nil, err
	}

	return &Account{
		URL:     rawAcct.URL,
		Contact: rawAcct.Contact,
		Signer:  signer,
	}, nil
}

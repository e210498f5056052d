// Package resources provides types for representing and interacting with
// ACME protocol resources.
package resources

import (
	"encoding/json"

	"github.com/acmekit/acmekit/acme"
)

// The Order resource represents a collection of identifiers that an account
// wishes to create a Certificate for.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.3
//
// An Order is a value wrapping an immutable location URL and a cached copy
// of the server-side JSON body. The body is replaced whenever the client
// re-fetches the order.
type Order struct {
	// The server-assigned URL identifying the Order. Immutable for the
	// lifetime of the order.
	URL string `json:"-"`
	// The Status of the Order: "pending", "ready", "processing", "valid" or
	// "invalid".
	Status string `json:"status,omitempty"`
	// The identifiers the Order covers.
	Identifiers []acme.Identifier `json:"identifiers,omitempty"`
	// URLs for the Authorization resources the server requires for the
	// Order's identifiers.
	Authorizations []string `json:"authorizations,omitempty"`
	// The URL used to finalize the Order with a CSR once it is "ready".
	Finalize string `json:"finalize,omitempty"`
	// The URL the issued certificate can be fetched from. Present only when
	// the Order status is "valid".
	Certificate string `json:"certificate,omitempty"`
	// RFC 3339 timestamp after which the server considers the order expired.
	Expires string `json:"expires,omitempty"`
	// Requested notBefore/notAfter hints for the certificate validity period.
	NotBefore string `json:"notBefore,omitempty"`
	NotAfter  string `json:"notAfter,omitempty"`
	// The certificate profile the order was created under, if any.
	Profile string `json:"profile,omitempty"`
	// The error that occurred while processing the order, if any.
	Error *acme.Problem `json:"error,omitempty"`

	// The raw JSON body the above fields were decoded from.
	Raw json.RawMessage `json:"-"`
}

// String returns the Order's URL.
func (o Order) String() string {
	return o.URL
}

// GetStatus returns the order's status field. It makes Order satisfy the
// polling helpers' status interface.
func (o *Order) GetStatus() string { return o.Status }

func (o *Order) IsPending() bool    { return o.Status == acme.StatusPending }
func (o *Order) IsReady() bool      { return o.Status == acme.StatusReady }
func (o *Order) IsProcessing() bool { return o.Status == acme.StatusProcessing }
func (o *Order) IsValid() bool      { return o.Status == acme.StatusValid }
func (o *Order) IsInvalid() bool    { return o.Status == acme.StatusInvalid }

package resources

import (
	"encoding/json"

	"github.com/acmekit/acmekit/acme"
)

// The Authorization resource represents an Account's authorization to issue
// for a specified identifier, based on interactions with the associated
// Challenges.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.4
type Authorization struct {
	// The server-assigned URL identifying the Authorization.
	URL string `json:"-"`
	// The status of this authorization: "pending", "valid", "invalid",
	// "deactivated", "expired" or "revoked".
	Status string `json:"status,omitempty"`
	// The identifier the account is authorized to represent.
	Identifier acme.Identifier `json:"identifier,omitempty"`
	// For pending authorizations, the challenges the client can fulfill.
	// For valid authorizations, the challenge that was validated. For
	// invalid authorizations, the challenge that was attempted and failed.
	Challenges []Challenge `json:"challenges,omitempty"`
	// RFC 3339 timestamp at which the server considers the authorization
	// expired.
	Expires string `json:"expires,omitempty"`
	// True for authorizations created from a newOrder request containing
	// a DNS identifier with a wildcard prefix. The identifier value is then
	// represented without the "*." prefix.
	Wildcard bool `json:"wildcard,omitempty"`

	// The raw JSON body the above fields were decoded from.
	Raw json.RawMessage `json:"-"`
}

// String returns the Authorization's URL.
func (a Authorization) String() string {
	return a.URL
}

// GetStatus returns the authorization's status field.
func (a *Authorization) GetStatus() string { return a.Status }

func (a *Authorization) IsPending() bool     { return a.Status == acme.StatusPending }
func (a *Authorization) IsValid() bool       { return a.Status == acme.StatusValid }
func (a *Authorization) IsInvalid() bool     { return a.Status == acme.StatusInvalid }
func (a *Authorization) IsDeactivated() bool { return a.Status == acme.StatusDeactivated }
func (a *Authorization) IsExpired() bool     { return a.Status == acme.StatusExpired }
func (a *Authorization) IsRevoked() bool     { return a.Status == acme.StatusRevoked }

// ChallengeByType returns the authorization's challenge with the given type
// string, or false if the server offered no such challenge.
func (a *Authorization) ChallengeByType(challType string) (*Challenge, bool) {
	for i := range a.Challenges {
		if a.Challenges[i].Type == challType {
			return &a.Challenges[i], true
		}
	}
	return nil, false
}

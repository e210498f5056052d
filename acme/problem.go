package acme

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Problem is an RFC 7807 problem document returned by the server to
// describe an error. ACME problem types live under the
// "urn:ietf:params:acme:error:" namespace.
//
// See https://tools.ietf.org/html/rfc8555#section-6.7
type Problem struct {
	// The problem type URI. Defaults to "about:blank" when absent.
	Type string `json:"type,omitempty"`
	// A short human-readable summary of the problem type.
	Title string `json:"title,omitempty"`
	// A human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// A URI identifying this specific occurrence of the problem.
	Instance string `json:"instance,omitempty"`
	// The HTTP status code the problem was delivered with.
	Status int `json:"status,omitempty"`
	// The identifier the problem relates to, if any. Only ever populated on
	// subproblems per RFC 8555 §6.7.1, but tolerated at the top level too.
	Identifier *Identifier `json:"identifier,omitempty"`
	// Finer-grained per-identifier problems. See
	// https://tools.ietf.org/html/rfc8555#section-6.7.1
	Subproblems []Problem `json:"subproblems,omitempty"`
}

// ParseProblem deserializes a problem document from the given JSON bytes.
// A missing type field defaults to "about:blank" per RFC 7807.
func ParseProblem(body []byte) (*Problem, error) {
	var prob Problem
	if err := json.Unmarshal(body, &prob); err != nil {
		return nil, fmt.Errorf("invalid problem document: %w", err)
	}
	prob.applyDefaults()
	return &prob, nil
}

func (p *Problem) applyDefaults() {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	for i := range p.Subproblems {
		p.Subproblems[i].applyDefaults()
	}
}

// ErrorName returns the bare ACME error name (e.g. "badNonce") if the
// problem type is in the ACME error namespace, or an empty string otherwise.
func (p *Problem) ErrorName() string {
	if !strings.HasPrefix(p.Type, ERROR_URN_PREFIX) {
		return ""
	}
	return strings.TrimPrefix(p.Type, ERROR_URN_PREFIX)
}

// String summarizes the problem for log and error messages.
func (p *Problem) String() string {
	if p.Detail == "" {
		return p.Type
	}
	return fmt.Sprintf("%s :: %s", p.Type, p.Detail)
}

package acme

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an error surfaced by the client into one of the
// recovery categories callers act on.
type ErrorKind int

const (
	// KindNetwork covers I/O and TLS failures talking to the server.
	KindNetwork ErrorKind = iota
	// KindProtocol covers malformed responses and missing required headers.
	KindProtocol
	// KindBadNonce is returned when the internal badNonce retry budget is
	// exhausted. The request may be retried by the caller.
	KindBadNonce
	// KindUnauthorized corresponds to the "unauthorized" problem type.
	KindUnauthorized
	// KindUserActionRequired corresponds to the "userActionRequired" problem
	// type, most often a terms-of-service change. The error carries the ToS
	// URL from the response's terms-of-service Link relation.
	KindUserActionRequired
	// KindRateLimited corresponds to the "rateLimited" problem type. The
	// error carries the instant the server asked the client to wait until.
	KindRateLimited
	// KindServerError covers every other ACME problem type.
	KindServerError
	// KindAccountNotFound corresponds to the "accountDoesNotExist" problem
	// type, e.g. a newAccount request with onlyReturnExisting set.
	KindAccountNotFound
	// KindCancelled is returned when the caller's context ends an operation.
	KindCancelled
	// KindFeatureNotSupported is returned when the server's directory lacks
	// an endpoint required for the requested operation.
	KindFeatureNotSupported
)

var kindNames = map[ErrorKind]string{
	KindNetwork:             "network",
	KindProtocol:            "protocol",
	KindBadNonce:            "retriable-nonce",
	KindUnauthorized:        "unauthorized",
	KindUserActionRequired:  "user-action-required",
	KindRateLimited:         "rate-limited",
	KindServerError:         "server-error",
	KindAccountNotFound:     "account-not-found",
	KindCancelled:           "cancelled",
	KindFeatureNotSupported: "feature-not-supported",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Error is the error type surfaced by every client operation. It carries the
// parsed problem document when the server supplied one, plus kind-specific
// context (retry instant, terms-of-service URL, rate-limit documentation
// links).
type Error struct {
	// Kind classifies the error for recovery decisions.
	Kind ErrorKind
	// Problem is the parsed problem document, if the server sent one.
	Problem *Problem
	// RetryAfter is the instant the server asked the client to wait until
	// before retrying. Zero when the server sent no Retry-After header.
	RetryAfter time.Time
	// TermsOfServiceURL is populated on user-action-required errors from the
	// response's terms-of-service Link relation.
	TermsOfServiceURL string
	// RateLimitURLs holds documentation links from rate-limit Link
	// relations on rate-limited errors.
	RateLimitURLs []string
	// Err is the underlying error for network and protocol failures.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Problem != nil:
		return fmt.Sprintf("acme: %s: %s", e.Kind, e.Problem)
	case e.Err != nil:
		return fmt.Sprintf("acme: %s: %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("acme: %s", e.Kind)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var acmeErr *Error
	return errors.As(err, &acmeErr) && acmeErr.Kind == kind
}

// ProblemKind maps an ACME problem type to the error kind it surfaces as.
// Problem types outside the ACME error namespace and unrecognized ACME
// error names map to KindServerError.
func ProblemKind(prob *Problem) ErrorKind {
	switch prob.ErrorName() {
	case "badNonce":
		return KindBadNonce
	case "userActionRequired":
		return KindUserActionRequired
	case "rateLimited":
		return KindRateLimited
	case "unauthorized":
		return KindUnauthorized
	case "accountDoesNotExist":
		return KindAccountNotFound
	}
	return KindServerError
}

// ProblemError builds an *Error from a parsed problem document.
func ProblemError(prob *Problem) *Error {
	return &Error{Kind: ProblemKind(prob), Problem: prob}
}

// NetworkError wraps an I/O or TLS failure.
func NetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

// ProtocolError reports a malformed response or a violated protocol
// requirement.
func ProtocolError(format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Err: fmt.Errorf(format, args...)}
}

// CancelledError wraps a context cancellation.
func CancelledError(err error) *Error {
	return &Error{Kind: KindCancelled, Err: err}
}

// FeatureNotSupportedError reports a directory missing the named endpoint.
func FeatureNotSupportedError(endpoint string) *Error {
	return &Error{
		Kind: KindFeatureNotSupported,
		Err:  fmt.Errorf("server directory has no %q endpoint", endpoint),
	}
}

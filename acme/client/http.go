package client

import (
	"context"
	"crypto"
	"encoding/json"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acmekit/acmekit/acme"
	acmenet "github.com/acmekit/acmekit/net"
)

// badNonceRetries is the internal retry budget for exchanges rejected with
// a badNonce problem. Each retry re-takes a fresh nonce and re-signs.
const badNonceRetries = 3

// signIdentity selects the JWS header shape for a signed exchange: an
// account URL plus key pair signs with "kid", a bare key pair signs with an
// embedded "jwk" (account creation, key change, revocation by certificate
// key).
type signIdentity struct {
	signer     crypto.Signer
	accountURL string
}

func (id signIdentity) options(nonce, url string) signingOptions {
	return signingOptions{
		embedKey: id.accountURL == "",
		keyID:    id.accountURL,
		signer:   id.signer,
		nonce:    nonce,
		url:      url,
	}
}

// postAsGET marks an exchange with an empty JWS payload.
// See https://tools.ietf.org/html/rfc8555#section-6.3
var postAsGET []byte

// serverResponse is the interpreted result of a signed exchange.
type serverResponse struct {
	// HTTP status code.
	status int
	// Location header, set on creation responses.
	location string
	// Link relations, each possibly multi-valued.
	links map[string][]string
	// The instant the server asked the client to wait until before
	// re-polling, from Retry-After. Zero when absent.
	retryAfter time.Time
	// Parsed JSON body for application/json responses.
	json json.RawMessage
	// Raw body for application/pem-certificate-chain responses.
	chainPEM []byte
}

// postJWS performs one signed exchange: take a nonce, sign the payload,
// POST it, pool the response nonce, and interpret the response by content
// type. A nil payload sends a POST-as-GET. badNonce rejections are retried
// with a fresh nonce up to badNonceRetries times.
func (s *Session) postJWS(ctx context.Context, url string, payload []byte, identity signIdentity) (*serverResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= badNonceRetries; attempt++ {
		nonce, err := s.takeNonce(ctx)
		if err != nil {
			return nil, err
		}

		body := payload
		if body == nil {
			body = []byte{}
		}
		signedBody, err := signJWS(body, identity.options(nonce, url))
		if err != nil {
			// Signing failed after the nonce left the pool; put it back so
			// the next send doesn't burn a newNonce round trip.
			s.nonces.store(nonce)
			return nil, acme.ProtocolError("signing request for %q: %w", url, err)
		}

		resp, err := s.net.Post(ctx, url, signedBody)
		if err != nil {
			return nil, wrapTransportErr(ctx, err)
		}
		s.storeNonce(resp.Header)

		s.logger.Debug("ACME exchange",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.Bool("postAsGet", payload == nil))

		result, err := s.interpret(resp)
		if err == nil {
			return result, nil
		}
		if !acme.IsKind(err, acme.KindBadNonce) {
			return nil, err
		}

		lastErr = err
		s.logger.Debug("retrying after badNonce rejection",
			zap.String("url", url), zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

// interpret maps a raw HTTP response onto a serverResponse or a typed
// error per the response status and content type.
func (s *Session) interpret(resp *acmenet.Response) (*serverResponse, error) {
	contentType := responseContentType(resp.Header)

	result := &serverResponse{
		status:     resp.StatusCode,
		location:   resp.Header.Get(acme.LOCATION_HEADER),
		links:      parseLinks(resp.Header.Values("Link")),
		retryAfter: parseRetryAfter(resp.Header.Get(acme.RETRY_AFTER_HEADER), s.clock),
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		switch {
		case contentType == acme.PROBLEM_CONTENT_TYPE:
			return nil, acme.ProtocolError(
				"server returned a problem document with success status %d", resp.StatusCode)
		case contentType == acme.JSON_CONTENT_TYPE:
			if !json.Valid(resp.Body) {
				return nil, acme.ProtocolError("response body was not valid JSON")
			}
			result.json = json.RawMessage(resp.Body)
		case contentType == acme.PEM_CHAIN_CONTENT_TYPE:
			result.chainPEM = resp.Body
		case len(resp.Body) == 0:
			// Empty success response, e.g. key change.
		default:
			return nil, acme.ProtocolError("unexpected response content type %q", contentType)
		}
		return result, nil
	}

	if contentType != acme.PROBLEM_CONTENT_TYPE {
		return nil, acme.ProtocolError("server returned status %d with no problem document",
			resp.StatusCode)
	}

	prob, err := acme.ParseProblem(resp.Body)
	if err != nil {
		return nil, acme.ProtocolError("status %d: %w", resp.StatusCode, err)
	}
	if prob.Status == 0 {
		prob.Status = resp.StatusCode
	}

	acmeErr := acme.ProblemError(prob)
	switch acmeErr.Kind {
	case acme.KindUserActionRequired:
		if tos := result.links[acme.LinkTermsOfService]; len(tos) > 0 {
			acmeErr.TermsOfServiceURL = tos[0]
		}
	case acme.KindRateLimited:
		acmeErr.RetryAfter = result.retryAfter
		acmeErr.RateLimitURLs = result.links[acme.LinkRateLimit]
	}
	return nil, acmeErr
}

// wrapTransportErr classifies a transport failure as cancellation or
// network error.
func wrapTransportErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return acme.CancelledError(ctx.Err())
	}
	return acme.NetworkError(err)
}

func responseContentType(header http.Header) string {
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mediaType
}

var linkRelPattern = regexp.MustCompile(`rel\s*=\s*"?([^"]+)"?`)

// parseLinks splits Link header values into a rel → URLs map. Relations
// may repeat (e.g. alternate certificate chains).
func parseLinks(headerValues []string) map[string][]string {
	links := map[string][]string{}
	for _, headerValue := range headerValues {
		for _, link := range strings.Split(headerValue, ",") {
			parts := strings.Split(link, ";")
			if len(parts) < 2 {
				continue
			}
			target := strings.Trim(strings.TrimSpace(parts[0]), "<>")
			for _, param := range parts[1:] {
				matches := linkRelPattern.FindStringSubmatch(strings.TrimSpace(param))
				if len(matches) == 2 {
					links[matches[1]] = append(links[matches[1]], target)
				}
			}
		}
	}
	return links
}

// parseRetryAfter interprets a Retry-After header value as either
// delta-seconds or an HTTP-date. The zero time is returned when the header
// is absent or malformed.
func parseRetryAfter(headerValue string, clock Clock) time.Time {
	if headerValue == "" {
		return time.Time{}
	}
	if seconds, err := strconv.Atoi(headerValue); err == nil {
		if seconds < 0 {
			return time.Time{}
		}
		return clock.Now().Add(time.Duration(seconds) * time.Second)
	}
	if when, err := http.ParseTime(headerValue); err == nil {
		return when
	}
	return time.Time{}
}

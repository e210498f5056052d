// Package net provides the HTTPS transport used to talk to ACME servers.
package net

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	stdnet "net"
	"net/http"
	"net/url"
	"runtime"
	"time"
)

const (
	version       = "0.1.0"
	userAgentBase = "acmekit"

	// Responses are read fully into memory; cap them so a misbehaving
	// server can't exhaust it. Certificate chains are the largest
	// legitimate payload and stay well under this.
	maxResponseBytes = 1 << 20

	// ACME exchanges follow at most a handful of redirects (e.g. an
	// alternate certificate URL); anything deeper is a server bug.
	maxRedirects = 10
)

// Config holds the transport settings bundle a Session is constructed with.
type Config struct {
	// PEM encoded CA certificates to use as trust roots instead of the
	// system roots. Used for test servers like Pebble. Optional.
	TrustedRoots []byte
	// Time allowed for connection establishment. Optional.
	ConnectTimeout time.Duration
	// Overall time allowed for a single request/response exchange. Optional.
	RequestTimeout time.Duration
	// Proxy URL for outbound requests. When empty the process environment
	// (HTTP_PROXY et al.) is consulted. Optional.
	ProxyURL string
	// Accept-Language tag sent with every request. Optional.
	Language string
	// User-Agent suffix identifying the calling application. Optional.
	UserAgent string
}

// Transport performs HTTP exchanges with an ACME server. It owns connection
// pooling and TLS trust configuration; interpretation of response bodies
// belongs to the caller. A Transport is safe for use by multiple goroutines
// and may be shared across Sessions speaking to the same provider.
type Transport struct {
	httpClient *http.Client
	userAgent  string
	language   string
}

// New builds a Transport from the given Config.
func New(conf Config) (*Transport, error) {
	tlsConfig := &tls.Config{}
	if len(conf.TrustedRoots) > 0 {
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(conf.TrustedRoots) {
			return nil, fmt.Errorf("no CA certificates found in trusted roots PEM")
		}
		tlsConfig.RootCAs = roots
	}

	proxy := http.ProxyFromEnvironment
	if conf.ProxyURL != "" {
		proxyURL, err := url.Parse(conf.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		proxy = http.ProxyURL(proxyURL)
	}

	dialer := &netDialer{timeout: conf.ConnectTimeout}

	ua := fmt.Sprintf("%s %s (%s; %s)", userAgentBase, version, runtime.GOOS, runtime.GOARCH)
	if conf.UserAgent != "" {
		ua = conf.UserAgent + " " + ua
	}

	return &Transport{
		httpClient: &http.Client{
			Timeout: conf.RequestTimeout,
			Transport: &http.Transport{
				Proxy:           proxy,
				DialContext:     dialer.dialContext,
				TLSClientConfig: tlsConfig,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: ua,
		language:  conf.Language,
	}, nil
}

type netDialer struct {
	timeout time.Duration
}

func (d *netDialer) dialContext(ctx context.Context, network, addr string) (stdnet.Conn, error) {
	dialer := &stdnet.Dialer{Timeout: d.timeout}
	return dialer.DialContext(ctx, network, addr)
}

// Response is the raw result of an exchange. Body is fully read and the
// underlying connection released before Response is returned.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Head issues a HEAD request, used to prime the nonce pool via the
// newNonce endpoint.
func (t *Transport) Head(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, err
	}
	return t.do(req)
}

// Get issues a GET request. Used for the directory and renewal-info
// resources, which are unauthenticated.
func (t *Transport) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return t.do(req)
}

// Post issues a POST request whose body is a serialized JWS with media type
// application/jose+json.
func (t *Transport) Post(ctx context.Context, url string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/jose+json")
	return t.do(req)
}

func (t *Transport) do(req *http.Request) (*Response, error) {
	req.Header.Set("User-Agent", t.userAgent)
	if t.language != "" {
		req.Header.Set("Accept-Language", t.language)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

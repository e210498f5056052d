// Package client provides a low-level ACME v2 (RFC 8555) client.
//
// A Session binds a provider-resolved directory URL to an HTTPS transport
// and a nonce pool. A Login pairs a Session with an account URL and account
// key pair; account-authenticated operations hang off the Login, while
// account creation, revocation by certificate key and renewal information
// hang off the Session.
package client

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/acmekit/acmekit/acme/provider"
	"github.com/acmekit/acmekit/acme/resources"
	acmenet "github.com/acmekit/acmekit/net"
)

// Config contains configuration options provided to NewSession.
type Config struct {
	// The ACME server URI. Either an "acme://<host>[/<variant>]" URI
	// resolved by the provider registry, or a plain http(s) directory URL
	// accepted by the generic provider. Mandatory.
	Server string
	// The provider registry used to resolve Server. When nil the built-in
	// registry (provider.Default) is used.
	Providers *provider.Registry
	// Transport settings bundle: timeouts, proxy, trust roots, user agent.
	// The Language field doubles as the Accept-Language tag sent with every
	// request.
	Net acmenet.Config
	// An already-built transport to use instead of constructing one from
	// Net. Transports may be shared across Sessions talking to the same
	// provider. Optional.
	Transport *acmenet.Transport
	// Structured logger. When nil, logging is disabled.
	Logger *zap.Logger
	// Clock used for retry and poll timing. When nil, the system clock is
	// used.
	Clock Clock
	// ChainParser splits application/pem-certificate-chain bodies into DER
	// blobs. When nil, resources.PEMChainParser is used.
	ChainParser resources.ChainParser
}

// normalize validates a Config.
func (conf *Config) normalize() error {
	conf.Server = strings.TrimSpace(conf.Server)
	if conf.Server == "" {
		return fmt.Errorf("Server must not be empty")
	}
	if _, err := url.Parse(conf.Server); err != nil {
		return fmt.Errorf("Server invalid: %w", err)
	}
	if conf.Providers == nil {
		conf.Providers = provider.Default()
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	if conf.Clock == nil {
		conf.Clock = SystemClock
	}
	if conf.ChainParser == nil {
		conf.ChainParser = resources.PEMChainParser
	}
	return nil
}

// Session represents a single ACME server and the state shared by every
// operation against it: the resolved directory URL, the lazily cached
// directory, and the anti-replay nonce pool.
//
// A Session serializes nonce-pool access internally; resource values
// obtained through a Session are not goroutine-safe.
type Session struct {
	// The server URI the session was constructed with.
	ServerURI *url.URL
	// The directory URL the provider resolved ServerURI to.
	DirectoryURL string

	provider    provider.Provider
	net         *acmenet.Transport
	logger      *zap.Logger
	clock       Clock
	chainParser resources.ChainParser

	dirMu     sync.Mutex
	directory map[string]any
	metadata  *Metadata

	nonces noncePool
}

// NewSession creates a Session from the given Config. Exactly one provider
// in the registry must accept the server URI; zero or several accepting
// providers fail construction, as does a URI variant the provider does not
// recognize.
func NewSession(conf Config) (*Session, error) {
	if err := conf.normalize(); err != nil {
		return nil, err
	}

	prov, uri, err := conf.Providers.Find(conf.Server)
	if err != nil {
		return nil, err
	}

	dirURL, err := prov.Resolve(uri)
	if err != nil {
		return nil, err
	}

	transport := conf.Transport
	if transport == nil {
		netConf := conf.Net
		if len(netConf.TrustedRoots) == 0 {
			if anchors, ok := prov.(provider.TrustAnchorProvider); ok {
				netConf.TrustedRoots = anchors.TrustedRoots()
			}
		}
		transport, err = acmenet.New(netConf)
		if err != nil {
			return nil, fmt.Errorf("unable to create ACME transport: %w", err)
		}
	}

	return &Session{
		ServerURI:    uri,
		DirectoryURL: dirURL,
		provider:     prov,
		net:          transport,
		logger:       conf.Logger,
		clock:        conf.Clock,
		chainParser:  conf.ChainParser,
	}, nil
}

// Provider returns the provider the session's server URI resolved through.
func (s *Session) Provider() provider.Provider {
	return s.provider
}

// ProposedEABMACAlgorithm returns the MAC algorithm the session's provider
// prescribes for external account binding, or "HS256" when the provider has
// no opinion.
func (s *Session) ProposedEABMACAlgorithm() string {
	if proposer, ok := s.provider.(provider.EABMACProposer); ok {
		if alg := proposer.ProposedEABMACAlgorithm(); alg != "" {
			return alg
		}
	}
	return "HS256"
}

package client

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/acmekit/acmekit/acme"
	"github.com/acmekit/acmekit/acme/provider"
)

// Metadata is the materialized "meta" subobject of the server's directory.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.1
type Metadata struct {
	// URL of the server's current terms of service.
	TermsOfService string `json:"termsOfService,omitempty"`
	// Website of the CA operating the server.
	Website string `json:"website,omitempty"`
	// CAA record values the CA recognizes as referring to itself.
	CAAIdentities []string `json:"caaIdentities,omitempty"`
	// True when newAccount requests must carry an external account binding.
	ExternalAccountRequired bool `json:"externalAccountRequired,omitempty"`
	// Certificate profiles the server offers, keyed by profile name.
	Profiles map[string]string `json:"profiles,omitempty"`
	// True when the server supports short-term automatic renewal
	// (RFC 8739).
	AutoRenewalSupported bool `json:"-"`
}

func (s *Session) fetchDirectory(ctx context.Context) (map[string]any, error) {
	resp, err := s.net.Get(ctx, s.DirectoryURL)
	if err != nil {
		return nil, wrapTransportErr(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, acme.ProtocolError("directory fetch returned status %d", resp.StatusCode)
	}

	var directory map[string]any
	if err := json.Unmarshal(resp.Body, &directory); err != nil {
		return nil, acme.ProtocolError("directory response was not JSON: %w", err)
	}

	if rewriter, ok := s.provider.(provider.DirectoryRewriter); ok {
		rewriter.RewriteDirectory(directory)
	}

	return directory, nil
}

// Directory returns the server's directory object, fetching it on first
// use. The directory is fetched at most once per Session unless
// ReloadDirectory is called.
func (s *Session) Directory(ctx context.Context) (map[string]any, error) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	if s.directory == nil {
		newDir, err := s.fetchDirectory(ctx)
		if err != nil {
			return nil, err
		}
		s.directory = newDir
		s.logger.Debug("fetched directory", zap.String("url", s.DirectoryURL))
	}
	return s.directory, nil
}

// ReloadDirectory discards the cached directory and metadata and fetches
// fresh copies.
func (s *Session) ReloadDirectory(ctx context.Context) error {
	newDir, err := s.fetchDirectory(ctx)
	if err != nil {
		return err
	}

	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	s.directory = newDir
	s.metadata = nil
	s.logger.Debug("reloaded directory", zap.String("url", s.DirectoryURL))
	return nil
}

// ResourceURL looks up the URL for the named directory endpoint
// (newNonce, newAccount, newOrder, newAuthz, revokeCert, keyChange,
// renewalInfo). A directory without the endpoint yields
// a feature-not-supported error.
func (s *Session) ResourceURL(ctx context.Context, kind string) (string, error) {
	dir, err := s.Directory(ctx)
	if err != nil {
		return "", err
	}
	if rawURL, ok := dir[kind].(string); ok && rawURL != "" {
		return rawURL, nil
	}
	return "", acme.FeatureNotSupportedError(kind)
}

// Metadata materializes the directory's "meta" subobject. A directory
// without one yields an empty Metadata.
func (s *Session) Metadata(ctx context.Context) (*Metadata, error) {
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}

	s.dirMu.Lock()
	defer s.dirMu.Unlock()
	if s.metadata != nil {
		return s.metadata, nil
	}

	meta := &Metadata{}
	if rawMeta, ok := dir["meta"]; ok {
		metaJSON, err := json.Marshal(rawMeta)
		if err != nil {
			return nil, acme.ProtocolError("directory meta was not JSON: %w", err)
		}
		if err := json.Unmarshal(metaJSON, meta); err != nil {
			return nil, acme.ProtocolError("directory meta was malformed: %w", err)
		}
		if metaMap, ok := rawMeta.(map[string]any); ok {
			if _, ok := metaMap["auto-renewal"]; ok {
				meta.AutoRenewalSupported = true
			}
		}
	}
	s.metadata = meta
	return meta, nil
}

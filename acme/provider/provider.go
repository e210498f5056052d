// Package provider maps server URIs to ACME directory URLs and carries
// per-CA quirks.
//
// A server URI is either a plain http(s) directory URL, accepted verbatim
// by the Generic provider, or an "acme://<host>[/<variant>]" URI accepted
// by exactly one CA-specific provider.
package provider

import (
	"fmt"
	"net/url"
	"sync"
)

// Provider resolves server URIs for one CA.
//
// A Provider may additionally implement DirectoryRewriter, EABMACProposer
// or TrustAnchorProvider to express CA-specific quirks; the session checks
// for these with interface assertions.
type Provider interface {
	// Accepts reports whether this provider recognizes the given server
	// URI. Exactly one registered provider must accept any URI handed to
	// a Registry.
	Accepts(uri *url.URL) bool
	// Resolve maps an accepted URI to the CA's directory URL. Resolve may
	// reject URIs with unknown variant paths even though Accepts matched
	// the scheme and host.
	Resolve(uri *url.URL) (string, error)
}

// DirectoryRewriter is implemented by providers that need to patch
// nonconforming directory metadata before the session caches it.
type DirectoryRewriter interface {
	RewriteDirectory(dir map[string]any)
}

// EABMACProposer is implemented by providers whose CA prescribes a MAC
// algorithm for external account binding.
type EABMACProposer interface {
	ProposedEABMACAlgorithm() string
}

// TrustAnchorProvider is implemented by providers whose server presents
// a certificate outside the system trust store (test servers like Pebble).
type TrustAnchorProvider interface {
	// TrustedRoots returns PEM encoded CA certificates to pin, or nil to
	// use the system roots.
	TrustedRoots() []byte
}

// Registry holds the set of known providers. Registries are explicit:
// construct one (or use Default), register providers, and pass it into
// session construction.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Find parses the given server URI and returns the single provider that
// accepts it along with the parsed URI. Zero or multiple accepting
// providers is an error.
func (r *Registry) Find(serverURI string) (Provider, *url.URL, error) {
	uri, err := url.Parse(serverURI)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid server URI %q: %w", serverURI, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var found Provider
	for _, p := range r.providers {
		if !p.Accepts(uri) {
			continue
		}
		if found != nil {
			return nil, nil, fmt.Errorf("server URI %q is accepted by more than one provider", serverURI)
		}
		found = p
	}
	if found == nil {
		return nil, nil, fmt.Errorf("no provider accepts server URI %q", serverURI)
	}
	return found, uri, nil
}

// Default returns a fresh registry with the built-in providers registered:
// Generic, Let's Encrypt, ZeroSSL and Pebble.
func Default() *Registry {
	r := NewRegistry()
	r.Register(Generic{})
	r.Register(LetsEncrypt{})
	r.Register(ZeroSSL{})
	r.Register(Pebble{})
	return r
}

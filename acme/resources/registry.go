package resources

import (
	"fmt"
	"sync"

	"github.com/acmekit/acmekit/acme"
)

// TypedChallenge is implemented by every challenge variant produced by the
// challenge type registry.
type TypedChallenge interface {
	// Base returns the underlying Challenge value.
	Base() *Challenge
}

func (c HTTP01Challenge) Base() *Challenge       { return c.Challenge }
func (c DNS01Challenge) Base() *Challenge        { return c.Challenge }
func (c TLSALPN01Challenge) Base() *Challenge    { return c.Challenge }
func (c DNSAccount01Challenge) Base() *Challenge { return c.Challenge }
func (c EmailReply00Challenge) Base() *Challenge { return c.Challenge }
func (c OpaqueChallenge) Base() *Challenge       { return c.Challenge }

// ChallengeConstructor builds the typed variant for a challenge type
// string. The constructor must not retain the Challenge beyond the returned
// value.
type ChallengeConstructor func(*Challenge) TypedChallenge

type challengeRegistry struct {
	mu       sync.RWMutex
	ctors    map[string]ChallengeConstructor
	builtins map[string]bool
}

var challTypes = &challengeRegistry{
	ctors:    map[string]ChallengeConstructor{},
	builtins: map[string]bool{},
}

func (r *challengeRegistry) register(name string, ctor ChallengeConstructor, builtin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.builtins[name] {
		return fmt.Errorf("challenge type %q is built in and cannot be re-registered", name)
	}
	if _, dup := r.ctors[name]; dup {
		return fmt.Errorf("challenge type %q is already registered", name)
	}
	r.ctors[name] = ctor
	r.builtins[name] = builtin
	return nil
}

func (r *challengeRegistry) lookup(name string) (ChallengeConstructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[name]
	return ctor, ok
}

// RegisterChallengeType registers a third-party challenge type with the
// registry. Registering a name twice, or shadowing a built-in type, is an
// error.
func RegisterChallengeType(name string, ctor ChallengeConstructor) error {
	if name == "" || ctor == nil {
		return fmt.Errorf("challenge type registration requires a name and a constructor")
	}
	return challTypes.register(name, ctor, false)
}

// Typed dispatches a challenge through the type registry and returns the
// typed variant for its Type string. Unknown types yield an
// OpaqueChallenge wrapping the same value.
func Typed(ch *Challenge) TypedChallenge {
	if ctor, ok := challTypes.lookup(ch.Type); ok {
		return ctor(ch)
	}
	return OpaqueChallenge{ch}
}

func mustRegisterBuiltin(name string, ctor ChallengeConstructor) {
	if err := challTypes.register(name, ctor, true); err != nil {
		panic(err)
	}
}

func init() {
	mustRegisterBuiltin(acme.ChallengeHTTP01, func(ch *Challenge) TypedChallenge {
		return HTTP01Challenge{ch}
	})
	mustRegisterBuiltin(acme.ChallengeDNS01, func(ch *Challenge) TypedChallenge {
		return DNS01Challenge{ch}
	})
	mustRegisterBuiltin(acme.ChallengeTLSALPN01, func(ch *Challenge) TypedChallenge {
		return TLSALPN01Challenge{ch}
	})
	mustRegisterBuiltin(acme.ChallengeDNSAccount01, func(ch *Challenge) TypedChallenge {
		return DNSAccount01Challenge{ch}
	})
	mustRegisterBuiltin(acme.ChallengeEmailReply00, func(ch *Challenge) TypedChallenge {
		return EmailReply00Challenge{ch}
	})
}

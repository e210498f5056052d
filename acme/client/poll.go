package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/acmekit/acmekit/acme"
	"github.com/acmekit/acmekit/acme/resources"
)

// WaitOptions tunes a polling loop. The zero value polls with a 1s initial
// interval growing exponentially (cenkalti/backoff's default multiplier and
// jitter) up to 30s, for at most 5 minutes.
type WaitOptions struct {
	// Overall deadline for the poll, independent of per-request timeouts.
	Timeout time.Duration
	// First poll interval when the server sends no Retry-After.
	InitialInterval time.Duration
	// Cap on the exponential backoff between polls.
	MaxInterval time.Duration
}

func (opts WaitOptions) withDefaults() WaitOptions {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Minute
	}
	if opts.InitialInterval == 0 {
		opts.InitialInterval = time.Second
	}
	if opts.MaxInterval == 0 {
		opts.MaxInterval = 30 * time.Second
	}
	return opts
}

// statusResource is satisfied by every polled resource type.
type statusResource interface {
	GetStatus() string
}

// waitForStatus repeatedly runs fetch until the resource reaches the
// target status, enters a terminal non-target status, the timeout expires
// or ctx is cancelled. The server's Retry-After hint wins over the local
// backoff when present.
func waitForStatus[T statusResource](ctx context.Context, s *Session, res T, fetch func(context.Context) (time.Time, error), target string, opts WaitOptions) error {
	opts = opts.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialInterval
	bo.MaxInterval = opts.MaxInterval
	bo.MaxElapsedTime = 0
	bo.Clock = s.clock
	bo.Reset()

	deadline := s.clock.Now().Add(opts.Timeout)
	for {
		retryAt, err := fetch(ctx)
		if err != nil {
			return err
		}

		status := res.GetStatus()
		if status == target {
			return nil
		}
		if acme.TerminalStatus(status) {
			return &acme.Error{
				Kind: acme.KindServerError,
				Err: fmt.Errorf("resource reached terminal status %q while waiting for %q",
					status, target),
			}
		}

		next := retryAt
		if next.IsZero() {
			next = s.clock.Now().Add(bo.NextBackOff())
		}
		if next.After(deadline) {
			return acme.CancelledError(context.DeadlineExceeded)
		}

		s.logger.Debug("polling",
			zap.String("status", status),
			zap.String("target", target),
			zap.Time("next", next))
		if err := sleepUntil(ctx, s.clock, next); err != nil {
			return acme.CancelledError(err)
		}
	}
}

// WaitForOrder polls the order until it reaches the target status
// ("ready" after authorizations complete, "valid" after finalization).
func (l *Login) WaitForOrder(ctx context.Context, order *resources.Order, target string, opts WaitOptions) error {
	return waitForStatus(ctx, l.session, order, func(ctx context.Context) (time.Time, error) {
		return l.fetchOrder(ctx, order)
	}, target, opts)
}

// WaitForAuthorization polls the authorization until it reaches the target
// status, usually "valid".
func (l *Login) WaitForAuthorization(ctx context.Context, authz *resources.Authorization, target string, opts WaitOptions) error {
	return waitForStatus(ctx, l.session, authz, func(ctx context.Context) (time.Time, error) {
		return l.fetchAuthorization(ctx, authz)
	}, target, opts)
}

// WaitForChallenge polls the challenge until the server validates it.
func (l *Login) WaitForChallenge(ctx context.Context, chall *resources.Challenge, opts WaitOptions) error {
	return waitForStatus(ctx, l.session, chall, func(ctx context.Context) (time.Time, error) {
		return l.fetchChallenge(ctx, chall)
	}, acme.StatusValid, opts)
}

// Package retry holds the explicit retry policies for the three failure
// kinds the client distinguishes: auth, network and channel. Nothing in the
// client retries implicitly; an operation runs under whichever policy its
// owner was configured with, and the zero-retry policy preserves plain
// one-shot behavior.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Kind names a failure class.
type Kind int

const (
	KindAuth Kind = iota
	KindNetwork
	KindChannel
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindChannel:
		return "channel"
	default:
		return "unknown"
	}
}

// Policy decides how an operation of a given failure kind is re-attempted.
// The zero value is unusable; construct with None, Constant or Exponential.
type Policy struct {
	kind Kind
	next func() backoff.BackOff

	// Permanent, when set, marks matching errors as non-retryable even if
	// attempts remain (e.g. a 401 under a network policy).
	Permanent func(error) bool
}

// None runs the operation exactly once. This is the default for every kind.
func None(kind Kind) Policy {
	return Policy{kind: kind, next: func() backoff.BackOff { return &backoff.StopBackOff{} }}
}

// Constant retries up to maxRetries times with a fixed interval between
// attempts.
func Constant(kind Kind, interval time.Duration, maxRetries uint64) Policy {
	return Policy{kind: kind, next: func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), maxRetries)
	}}
}

// Exponential retries up to maxRetries times with exponential backoff capped
// at maxInterval.
func Exponential(kind Kind, maxInterval time.Duration, maxRetries uint64) Policy {
	return Policy{kind: kind, next: func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.MaxInterval = maxInterval
		return backoff.WithMaxRetries(b, maxRetries)
	}}
}

// Kind returns the failure class this policy governs.
func (p Policy) Kind() Kind { return p.kind }

// Do runs op under the policy, honoring ctx cancellation between attempts.
func (p Policy) Do(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err != nil && p.Permanent != nil && p.Permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped, backoff.WithContext(p.next(), ctx))
}

// Policies bundles one policy per failure kind.
type Policies struct {
	Auth    Policy
	Network Policy
	Channel Policy
}

// Defaults returns single-attempt policies for every kind.
func Defaults() Policies {
	return Policies{
		Auth:    None(KindAuth),
		Network: None(KindNetwork),
		Channel: None(KindChannel),
	}
}

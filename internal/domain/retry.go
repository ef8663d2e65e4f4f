package domain

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrNotReady is returned by [Poll] when the condition never became true
// within the configured bounds.
var ErrNotReady = errors.New("condition not met within bounds")

// PollConfig bounds a fixed-delay polling loop. It is the shared primitive
// behind both the starting-liveness wait and health validation.
type PollConfig struct {
	// Interval is the fixed delay between attempts.
	Interval time.Duration
	// Timeout bounds the total wait. Zero means no overall deadline.
	Timeout time.Duration
	// MaxAttempts bounds the number of attempts. Zero means unbounded
	// (the Timeout must then be set).
	MaxAttempts int
}

// Poll invokes fn at fixed intervals until it reports done, an attempt
// returns an error, or the bounds are exhausted. Exhaustion (attempts or
// timeout) yields [ErrNotReady]; an fn error is permanent and returned
// as-is. Cancellation of the caller's context returns the context error.
func Poll(parent context.Context, cfg PollConfig, fn func(ctx context.Context) (done bool, err error)) error {
	ctx := parent
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, cfg.Timeout)
		defer cancel()
	}

	var policy backoff.BackOff = backoff.NewConstantBackOff(cfg.Interval)
	if cfg.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(cfg.MaxAttempts-1))
	}
	policy = backoff.WithContext(policy, ctx)

	err := backoff.Retry(func() error {
		done, err := fn(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return ErrNotReady
		}
		return nil
	}, policy)

	switch {
	case err == nil:
		return nil
	case parent.Err() != nil:
		return parent.Err()
	case ctx.Err() != nil && !errors.Is(err, ErrNotReady):
		// The overall Timeout elapsed mid-wait; backoff reports the
		// deadline, but to the caller this is exhaustion.
		return ErrNotReady
	default:
		return err
	}
}

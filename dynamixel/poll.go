package dynamixel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrZeroReading is returned for an attempt whose transaction succeeded but
// reported position 0, which the poller treats as "not valid yet".
var ErrZeroReading = errors.New("present position reads 0")

// RetryConfig bounds WaitForPosition.
type RetryConfig struct {
	// Timeout is the total time budget. Default is 5 seconds.
	Timeout time.Duration

	// InitialInterval is the first backoff delay. Default is 10ms.
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay. Default is 500ms.
	MaxInterval time.Duration

	// OnRetry, if set, is called after every failed attempt with the
	// attempt's error and the delay before the next one. The last attempt
	// of an exhausted budget is reported with a zero delay. Permanent
	// failures are returned without a call.
	OnRetry func(err error, next time.Duration)
}

// WaitForPosition reads the present position until it is nonzero, retrying
// communication errors, device errors and zero readings with exponential
// backoff. When the budget runs out the returned error matches
// ErrNoValidReading and wraps the last attempt's error.
func WaitForPosition(ctx context.Context, s *Servo, cfg RetryConfig) (int, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 10 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 500 * time.Millisecond
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = cfg.Timeout

	var (
		attempts int
		lastErr  error
		reported bool
	)
	op := func() (int, error) {
		attempts++
		pos, err := s.Position(ctx)
		if err == nil && pos == 0 {
			err = ErrZeroReading
		}
		if err != nil {
			lastErr, reported = err, false
			if isPermanent(ctx, err) {
				return 0, backoff.Permanent(err)
			}
			return 0, err
		}
		return pos, nil
	}
	notify := func(err error, next time.Duration) {
		reported = true
		if cfg.OnRetry != nil {
			cfg.OnRetry(err, next)
		}
	}

	pos, err := backoff.RetryNotifyWithData(op, backoff.WithContext(b, ctx), notify)
	if err == nil {
		return pos, nil
	}
	if isPermanent(ctx, err) {
		return 0, err
	}
	// The backoff loop does not notify for the attempt it gives up on.
	if !reported && lastErr != nil && cfg.OnRetry != nil {
		cfg.OnRetry(lastErr, 0)
	}
	return 0, fmt.Errorf("%w: servo %d after %d attempts: %w", ErrNoValidReading, s.ID(), attempts, err)
}

func isPermanent(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, ErrBusClosed) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

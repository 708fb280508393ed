package escalation

import (
	"context"
	"errors"
	"time"

	"github.com/Songmu/retry"
)

// Deliver calls send up to attempts times, sleeping interval between tries.
// A non-retryable error or a done context stops the loop early. When the
// failure carries a longer server-provided delay, that delay is waited out
// instead of interval.
func Deliver(ctx context.Context, attempts uint, interval time.Duration, send func() error) error {
	if attempts == 0 {
		attempts = 1
	}

	var (
		stop  error
		tries uint
	)
	err := retry.Retry(attempts, interval, func() error {
		if err := ctx.Err(); err != nil {
			stop = err
			return nil
		}
		tries++
		err := send()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			stop = err
			return nil
		}
		if tries < attempts {
			if extra := retryDelay(err) - interval; extra > 0 {
				if werr := sleepContext(ctx, extra); werr != nil {
					stop = werr
					return nil
				}
			}
		}
		return err
	})
	if stop != nil {
		return stop
	}
	return err
}

// retryDelay returns the delay requested by the error, if any.
func retryDelay(err error) time.Duration {
	var d interface{ RetryDelay() time.Duration }
	if errors.As(err, &d) {
		return d.RetryDelay()
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

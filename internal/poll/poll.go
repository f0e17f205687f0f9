// Package poll provides a bounded, interval-spaced retry loop with a hard
// wall-clock timeout.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the condition never became true within the timeout.
var ErrTimeout = errors.New("poll: timed out")

// Func is a single check. It reports done=true once the condition holds.
// A non-nil error aborts the loop immediately.
type Func[T any] func(ctx context.Context) (v T, done bool, err error)

// Until evaluates fn, sleeping interval between checks, until fn reports done
// or the elapsed wall-clock time reaches timeout.
//
// fn is always evaluated at least once. The sleep before each retry is capped
// at the time remaining, so slow checks never extend the effective wait past
// timeout plus the duration of one check.
func Until[T any](ctx context.Context, interval, timeout time.Duration, fn Func[T]) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)

	for {
		v, done, err := fn(ctx)
		if err != nil {
			return zero, err
		}
		if done {
			return v, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, ErrTimeout
		}

		if err := Sleep(ctx, min(interval, remaining)); err != nil {
			return zero, err
		}
	}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

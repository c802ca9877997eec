// Package poll provides deadline-bounded waiting for conditions in the
// trading client's UI: a dialog appearing, an export file materializing, a
// control becoming ready.
//
// Every wait is bounded by a duration rather than an iteration counter, checks
// its condition at a fixed interval, and returns promptly when the context is
// cancelled.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by Until when the condition did not hold before the
// deadline.
var ErrTimeout = errors.New("condition not met before deadline")

// Condition is checked on every poll. Returning true ends the wait; returning
// an error aborts it.
type Condition func(ctx context.Context) (bool, error)

// Until checks cond immediately and then every interval until it returns true,
// returns an error, the timeout elapses, or ctx is done.
//
// The condition is always checked at least once, even with a zero timeout.
// On timeout the returned error wraps ErrTimeout and reports how many checks
// were made.
func Until(ctx context.Context, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = timeout
	}
	deadline := time.Now().Add(timeout)

	checks := 0
	for {
		checks++
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: %d checks over %s", ErrTimeout, checks, timeout)
		}
		if err := Sleep(ctx, min(interval, remaining)); err != nil {
			return err
		}
	}
}

// Sleep pauses for d or until ctx is done, whichever comes first.
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

// Attempts calls fn up to n times with no delay between calls, stopping at
// the first success. onFailure, if non-nil, is called after each failed
// attempt. It returns the last error when every attempt fails, or ctx.Err()
// if the context ends first.
func Attempts(ctx context.Context, n int, fn func(attempt int) error, onFailure func(attempt int, err error)) error {
	var lastErr error
	for attempt := 1; attempt <= n; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(attempt, err)
		}
	}
	return lastErr
}

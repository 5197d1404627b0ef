// Package retryutil retries short operations whose failures carry their own
// wait hint, such as rate-limited API calls.
package retryutil

import (
	"context"
	"time"
)

// Do runs fn up to attempts times. After a failed attempt, delayFor decides
// the wait before the next try; a negative duration stops retrying and the
// last error is returned. Context cancellation aborts the wait.
func Do(ctx context.Context, attempts int, delayFor func(err error) time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		delay := delayFor(err)
		if delay < 0 {
			break
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return err
}

package orchestrator

import (
	"context"
	"fmt"
	"time"
)

// pollWithBackoff polls check with exponential backoff, starting at
// initial and capped at maxInterval, until it returns true, ctx is
// done, or deadline elapses. Grounded on
// test/framework/waiters.go's WaitForConditionWithRetry, reused here
// for WaitHealthy and for the CLI's `start` health-banner wait.
func pollWithBackoff(ctx context.Context, deadline time.Duration, check func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	interval := 250 * time.Millisecond
	const maxInterval = 5 * time.Second

	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("deadline exceeded after %s", deadline)
		case <-time.After(interval):
			interval *= 2
			if interval > maxInterval {
				interval = maxInterval
			}
		}
	}
}

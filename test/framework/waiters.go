package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/llamafarm/pkg/client"
	"github.com/cuemby/llamafarm/pkg/types"
)

// Waiter provides utilities for waiting on conditions with timeouts
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a new Waiter with the given timeout and polling interval
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// DefaultWaiter returns a waiter with sensible defaults (30s timeout, 1s interval)
func DefaultWaiter() *Waiter {
	return NewWaiter(30*time.Second, 1*time.Second)
}

// WaitFor waits for a condition to become true
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Check immediately
	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForTaskTerminal waits for a dispatched task to reach a terminal
// state (SUCCESS or FAILURE) and returns the final result.
func (w *Waiter) WaitForTaskTerminal(ctx context.Context, proj *Project, taskID string) (client.TaskResult, error) {
	var last client.TaskResult
	err := w.WaitFor(ctx, func() bool {
		result, err := proj.Client.PollTask(ctx, taskID)
		if err != nil {
			return false
		}
		last = result
		return result.State == string(types.TaskStateSuccess) || result.State == string(types.TaskStateFailure)
	}, fmt.Sprintf("task %s to reach a terminal state", taskID))
	return last, err
}

// WaitForDataset waits for a dataset with the given name to be registered.
func (w *Waiter) WaitForDataset(ctx context.Context, proj *Project, name string) error {
	return w.WaitFor(ctx, func() bool {
		list, err := proj.Client.ListDatasets(ctx)
		if err != nil {
			return false
		}
		for _, d := range list {
			if d.Name == name {
				return true
			}
		}
		return false
	}, fmt.Sprintf("dataset %s to be registered", name))
}

// WaitForHealthy waits for the aggregate health report to report the
// given component status (e.g. types.ComponentHealthy). The health
// task's Result is a JSON-decoded map, so the status is read back as
// a plain string rather than the types.ComponentStatus enum.
func (w *Waiter) WaitForHealthy(ctx context.Context, proj *Project, status types.ComponentStatus) error {
	return w.WaitFor(ctx, func() bool {
		tr, err := proj.Client.Health(ctx)
		if err != nil {
			return false
		}
		report, ok := tr.Result.(map[string]interface{})
		if !ok {
			return false
		}
		return report["status"] == string(status)
	}, fmt.Sprintf("health report to reach status %s", status))
}

// WaitForConditionWithRetry waits for a condition with exponential backoff retry
func (w *Waiter) WaitForConditionWithRetry(ctx context.Context, condition func() (bool, error), description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	interval := w.interval
	maxInterval := 10 * time.Second

	for {
		ok, err := condition()
		if err != nil {
			return fmt.Errorf("error checking condition '%s': %w", description, err)
		}

		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-time.After(interval):
			// Exponential backoff
			interval = interval * 2
			if interval > maxInterval {
				interval = maxInterval
			}
		}
	}
}

// PollUntil polls a condition until it returns true or context is cancelled
func PollUntil(ctx context.Context, interval time.Duration, condition func() bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Check immediately
	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// PollUntilWithError polls a condition that can return an error
func PollUntilWithError(ctx context.Context, interval time.Duration, condition func() (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Check immediately
	if ok, err := condition(); err != nil {
		return err
	} else if ok {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ok, err := condition(); err != nil {
				return err
			} else if ok {
				return nil
			}
		}
	}
}

// Retry retries an operation with exponential backoff
func Retry(ctx context.Context, attempts int, initialDelay time.Duration, operation func() error) error {
	var err error
	delay := initialDelay

	for i := 0; i < attempts; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
				delay = delay * 2
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}

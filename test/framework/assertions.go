package framework

import (
	"context"
	"strings"
	"time"
)

// Assertions provides test assertion helpers
type Assertions struct {
	t TestingT
}

// NewAssertions creates a new Assertions instance
func NewAssertions(t TestingT) *Assertions {
	return &Assertions{t: t}
}

// DatasetExists asserts that a dataset exists.
func (a *Assertions) DatasetExists(ctx context.Context, name string, proj *Project) {
	a.t.Helper()

	list, err := proj.Client.ListDatasets(ctx)
	if err != nil {
		a.t.Fatalf("listing datasets: %v", err)
	}
	for _, d := range list {
		if d.Name == name {
			return
		}
	}
	a.t.Fatalf("dataset %s does not exist", name)
}

// DatasetDeleted asserts that a dataset no longer exists.
func (a *Assertions) DatasetDeleted(ctx context.Context, name string, proj *Project) {
	a.t.Helper()

	_, err := proj.Client.GetDataset(ctx, name)
	if err == nil {
		a.t.Fatalf("dataset %s still exists, expected it to be deleted", name)
	}
}

// TaskSucceeded asserts a task reached SUCCESS and returns its result payload.
func (a *Assertions) TaskSucceeded(ctx context.Context, proj *Project, taskID string) interface{} {
	a.t.Helper()

	w := DefaultWaiter()
	result, err := w.WaitForTaskTerminal(ctx, proj, taskID)
	if err != nil {
		a.t.Fatalf("waiting for task %s: %v", taskID, err)
	}
	if result.State != "SUCCESS" {
		a.t.Fatalf("task %s finished with state %s, expected SUCCESS: %s", taskID, result.State, result.Traceback)
	}
	return result.Result
}

// TaskFailed asserts a task reached FAILURE.
func (a *Assertions) TaskFailed(ctx context.Context, proj *Project, taskID string) {
	a.t.Helper()

	w := DefaultWaiter()
	result, err := w.WaitForTaskTerminal(ctx, proj, taskID)
	if err != nil {
		a.t.Fatalf("waiting for task %s: %v", taskID, err)
	}
	if result.State != "FAILURE" {
		a.t.Fatalf("task %s finished with state %s, expected FAILURE", taskID, result.State)
	}
}

// Eventually repeatedly runs a condition until it returns true or timeout occurs
func (a *Assertions) Eventually(condition func() bool, timeout, interval time.Duration, msg string) {
	a.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.t.Fatalf("Timeout waiting for condition: %s (timeout: %v)", msg, timeout)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// NoError asserts that the error is nil
func (a *Assertions) NoError(err error, msg string) {
	a.t.Helper()

	if err != nil {
		a.t.Fatalf("%s: %v", msg, err)
	}
}

// Error asserts that the error is not nil
func (a *Assertions) Error(err error, msg string) {
	a.t.Helper()

	if err == nil {
		a.t.Fatalf("%s: expected error but got nil", msg)
	}
}

// Equal asserts that two values are equal
func (a *Assertions) Equal(expected, actual interface{}, msg string) {
	a.t.Helper()

	if expected != actual {
		a.t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// True asserts that a condition is true
func (a *Assertions) True(condition bool, msg string) {
	a.t.Helper()

	if !condition {
		a.t.Fatalf("%s: expected true, got false", msg)
	}
}

// False asserts that a condition is false
func (a *Assertions) False(condition bool, msg string) {
	a.t.Helper()

	if condition {
		a.t.Fatalf("%s: expected false, got true", msg)
	}
}

// Contains asserts that a string contains a substring
func (a *Assertions) Contains(haystack, needle, msg string) {
	a.t.Helper()

	if !strings.Contains(haystack, needle) {
		a.t.Fatalf("%s: expected %q to contain %q", msg, haystack, needle)
	}
}

// Nil asserts that a value is nil
func (a *Assertions) Nil(obj interface{}, msg string) {
	a.t.Helper()

	if obj != nil {
		a.t.Fatalf("%s: expected nil, got %v", msg, obj)
	}
}

// NotNil asserts that a value is not nil
func (a *Assertions) NotNil(obj interface{}, msg string) {
	a.t.Helper()

	if obj == nil {
		a.t.Fatalf("%s: expected non-nil value", msg)
	}
}

// Logf logs a formatted message (non-failing)
func (a *Assertions) Logf(format string, args ...interface{}) {
	a.t.Helper()
	a.t.Logf(format, args...)
}

// Step logs a test step (for visibility in test output)
func (a *Assertions) Step(step string) {
	a.t.Helper()
	a.t.Logf("\n==> %s", step)
}

// Success logs a success message
func (a *Assertions) Success(msg string) {
	a.t.Helper()
	a.t.Logf("✓ %s", msg)
}

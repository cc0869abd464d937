/*
Package events provides an in-memory event bus for progress and
lifecycle notifications: ingestion stage transitions, model download
progress, and service state changes. It is the complement to the
polled Result Store (pkg/resultstore): a client that wants live
updates subscribes here instead of repeatedly polling task records
through the broker.

# Usage

	bus := events.NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("[%s] %s: %s\n", event.Type, event.Timestamp, event.Message)
		}
	}()

	bus.Publish(&events.Event{
		Type:    events.EventDownloadProgress,
		Message: "42% downloaded",
		Metadata: map[string]string{"model_id": "llama-3-8b"},
	})

# Design

Publish never blocks on subscribers: the broadcast loop sends to each
subscriber's buffered channel and skips any subscriber whose buffer is
full rather than waiting. This mirrors the task broker's at-least-once,
best-effort posture — events are a convenience channel for progress
display, not a delivery guarantee. Today pkg/orchestrator publishes
service lifecycle events here; no package outside the tests
subscribes, and the SSE download handler does not use the bus.
*/
package events

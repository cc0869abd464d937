package broker

import "context"

// Message is one enqueued task: the task_id assigned at Dispatch time,
// the registered handler name, and its JSON-encoded arguments.
type Message struct {
	TaskID string
	Name   string
	Args   []byte
}

// Queue is the broker's pluggable dispatch transport. The reference
// implementation is fsqueue, a filesystem-backed directory of files;
// other transports (in-memory, a message broker) can satisfy the same
// interface without Dispatch/Serve callers changing.
type Queue interface {
	// Enqueue writes msg to queueName. Must preserve at-least-once
	// delivery: a crash after Enqueue but before the caller observes
	// success may redeliver, which handlers must tolerate.
	Enqueue(queueName string, msg Message) error

	// Claim blocks until a message is available on queueName or ctx is
	// done, then returns it along with a commit function the caller
	// invokes once the message has been fully handled. Claim must not
	// hand the same message to two concurrent callers.
	Claim(ctx context.Context, queueName string) (*Message, func() error, error)
}

// Package broker implements the Task Broker (C2): it decouples task
// producers (the API server) from task consumers (the worker) behind
// named signatures, dispatched through a pluggable Queue and tracked
// in a resultstore.Store.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/log"
	"github.com/cuemby/llamafarm/pkg/resultstore"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/google/uuid"
)

// Signature is a (name, args) pair that names a task without
// executing it (spec.md §4.2).
type Signature struct {
	Name string
	Args interface{}
}

// BuildSignature constructs an unsent task reference.
func BuildSignature(name string, args interface{}) Signature {
	return Signature{Name: name, Args: args}
}

// TaskHandle is the opaque reference returned by Dispatch.
type TaskHandle struct {
	TaskID string
}

// GroupHandle is the opaque reference returned by DispatchGroup, keyed
// by the group's own task_id.
type GroupHandle struct {
	TaskID   string
	Children []string
}

// HandlerContext is passed to a registered handler on every invocation.
type HandlerContext struct {
	TaskID string
	Args   []byte

	// Revoked reports whether the task has been marked REVOKED since
	// dispatch. Handlers must check it at safe points (between chunks,
	// between extractors) and stop cooperatively — there is no hard
	// kill (spec.md §4.2 Cancellation).
	Revoked func() bool
}

// HandlerFunc executes one task invocation and returns its result, or
// an error which the broker records as a FAILURE with a captured
// traceback. HandlerFunc must never panic past Serve's recover; any
// panic is converted into a FAILURE with a stack-trace traceback.
type HandlerFunc func(ctx context.Context, hctx HandlerContext) (interface{}, error)

// Broker implements BuildSignature/Dispatch/DispatchGroup/Poll/Revoke
// on the producer side and Register/Serve on the consumer side.
type Broker struct {
	store    resultstore.Store
	queue    Queue
	routes   map[string]string // prefix (including trailing ".") -> queue name
	handlers map[string]HandlerFunc
}

// New constructs a Broker over store and queue. routes maps a task
// name prefix (e.g. "rag.") to the queue name tasks with that prefix
// are dispatched to (e.g. "rag.* -> rag", "orchestration.* -> server").
func New(store resultstore.Store, queue Queue, routes map[string]string) *Broker {
	return &Broker{
		store:    store,
		queue:    queue,
		routes:   routes,
		handlers: make(map[string]HandlerFunc),
	}
}

// resolveQueue returns the queue name for a task name, or
// apperr.ConfigError if no configured prefix matches.
func (b *Broker) resolveQueue(name string) (string, error) {
	for prefix, queue := range b.routes {
		if strings.HasPrefix(name, prefix) {
			return queue, nil
		}
	}
	return "", apperr.ConfigError(fmt.Sprintf("no queue configured for task name %q", name), nil)
}

// Dispatch enqueues sig and writes a PENDING Task Record, returning a
// handle containing the new task_id. Two dispatches of the same
// signature produce two distinct, independent task_ids.
func (b *Broker) Dispatch(sig Signature) (TaskHandle, error) {
	queueName, err := b.resolveQueue(sig.Name)
	if err != nil {
		return TaskHandle{}, err
	}

	taskID := uuid.New().String()
	if err := b.store.PutPending(taskID, sig.Name, nil); err != nil {
		return TaskHandle{}, err
	}

	argsJSON, err := json.Marshal(sig.Args)
	if err != nil {
		return TaskHandle{}, apperr.ConfigError("encoding task args", err)
	}

	var enqueueErr error
	for attempt := 0; attempt < enqueueAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(enqueueBackoff << (attempt - 1))
		}
		if enqueueErr = b.queue.Enqueue(queueName, Message{TaskID: taskID, Name: sig.Name, Args: argsJSON}); enqueueErr == nil {
			return TaskHandle{TaskID: taskID}, nil
		}
	}
	return TaskHandle{}, apperr.TransportError(fmt.Sprintf("enqueueing task %s", taskID), enqueueErr)
}

// enqueueAttempts and enqueueBackoff bound Dispatch's retry of a failed
// queue write: the delay doubles after each failed attempt.
const (
	enqueueAttempts = 3
	enqueueBackoff  = 50 * time.Millisecond
)

// DispatchGroup enqueues each child signature, writes one PENDING group
// record whose Children list contains every child task_id, and returns
// a handle keyed by the group's own task_id.
func (b *Broker) DispatchGroup(sigs []Signature) (GroupHandle, error) {
	children := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		handle, err := b.Dispatch(sig)
		if err != nil {
			return GroupHandle{}, err
		}
		children = append(children, handle.TaskID)
	}

	groupID := uuid.New().String()
	if err := b.store.PutPendingGroup(groupID, children, nil); err != nil {
		return GroupHandle{}, err
	}
	return GroupHandle{TaskID: groupID, Children: children}, nil
}

// Poll reads a task's current Record from the Result Store. It is
// side-effect-free; callers implement their own timeout/backoff.
func (b *Broker) Poll(taskID string) (*types.TaskRecord, error) {
	return b.store.Get(taskID)
}

// Revoke marks taskID REVOKED. terminate is accepted for parity with
// spec.md §4.2 but revocation is always cooperative in this
// implementation — there is no forcible kill of an executing handler.
func (b *Broker) Revoke(taskID string, terminate bool) error {
	return b.store.Revoke(taskID)
}

// Register associates a task name with a handler. Called at worker
// startup; there is no runtime introspection or decorator-based
// registration (spec.md §9 re-architecting note).
func (b *Broker) Register(name string, handler HandlerFunc) {
	b.handlers[name] = handler
}

// Serve blocks, consuming tasks from queueName and invoking their
// registered handlers. Each invocation sets STARTED at start, SUCCESS
// on return, and FAILURE (capturing a traceback) on error or panic.
// Serve returns only when ctx is done; a failed Claim is logged and
// retried.
func (b *Broker) Serve(ctx context.Context, queueName string) error {
	logger := log.WithComponent("broker")
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msg, commit, err := b.queue.Claim(ctx, queueName)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn().Err(err).Str("queue", queueName).Msg("claim failed, retrying")
			continue
		}

		b.invoke(ctx, *msg)

		if err := commit(); err != nil {
			logger.Warn().Err(err).Str("task_id", msg.TaskID).Msg("failed to commit claimed message")
		}
	}
}

func (b *Broker) invoke(ctx context.Context, msg Message) {
	logger := log.WithTaskID(msg.TaskID)

	if err := b.store.SetStarted(msg.TaskID); err != nil {
		logger.Error().Err(err).Msg("failed to mark task started")
		return
	}

	handler, ok := b.handlers[msg.Name]
	if !ok {
		b.fail(msg.TaskID, apperr.HandlerError(fmt.Sprintf("no handler registered for %q", msg.Name), nil).Error())
		return
	}

	hctx := HandlerContext{
		TaskID: msg.TaskID,
		Args:   msg.Args,
		Revoked: func() bool {
			rec, err := b.store.Get(msg.TaskID)
			return err == nil && rec.State == types.TaskStateRevoked
		},
	}

	result, err := b.runHandler(ctx, handler, hctx)
	if err != nil {
		b.fail(msg.TaskID, err.Error())
		return
	}

	if setErr := b.store.SetSuccess(msg.TaskID, result); setErr != nil {
		logger.Error().Err(setErr).Msg("failed to mark task success")
	}
}

// runHandler invokes handler, converting a panic into an error with a
// captured stack trace so Serve's loop never observes it.
func (b *Broker) runHandler(ctx context.Context, handler HandlerFunc, hctx HandlerContext) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return handler(ctx, hctx)
}

func (b *Broker) fail(taskID, traceback string) {
	if err := b.store.SetFailure(taskID, traceback); err != nil {
		log.WithTaskID(taskID).Error().Err(err).Msg("failed to mark task failure")
	}
}

// AwaitCompletionParallel blocks the calling goroutine, polling taskID
// until it reaches a terminal state or timeout elapses. Used by the
// API server's goroutine-per-request handlers, which may block freely.
func AwaitCompletionParallel(poller func(string) (*types.TaskRecord, error), taskID string, timeout, interval time.Duration) (*types.TaskRecord, error) {
	deadline := time.Now().Add(timeout)
	for {
		rec, err := poller(taskID)
		if err != nil {
			return nil, err
		}
		if rec.State.Terminal() {
			return rec, nil
		}
		if time.Now().After(deadline) {
			return nil, apperr.ErrTimeout
		}
		time.Sleep(interval)
	}
}

// AwaitCompletionCooperative polls taskID without blocking the calling
// goroutine for longer than interval at a time, yielding via ctx so a
// single-threaded event loop remains responsive to cancellation. (The
// API server's handlers use AwaitCompletionParallel instead.) Never share this wrapper's
// result with AwaitCompletionParallel's call sites (spec.md §9).
func AwaitCompletionCooperative(ctx context.Context, poller func(string) (*types.TaskRecord, error), taskID string, interval time.Duration) (*types.TaskRecord, error) {
	for {
		rec, err := poller(taskID)
		if err != nil {
			return nil, err
		}
		if rec.State.Terminal() {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return nil, apperr.ErrTimeout
		case <-time.After(interval):
		}
	}
}

// Package resultstore implements the Result Store (C1): a durable,
// cross-process key-to-record map for Task Records, with atomic
// terminal-state writes and side-effect-free reads.
package resultstore

import "github.com/cuemby/llamafarm/pkg/types"

// Store is the Result Store's public contract (spec.md §4.1).
// Implementations must guarantee that concurrent writers transitioning
// the same task_id to the same terminal state never corrupt the
// record: the last writer wins and the result is byte-equal to any
// other writer's.
type Store interface {
	// PutPending writes a PENDING record for a single task. Fails with
	// apperr.ErrAlreadyExists if task_id is already present.
	PutPending(taskID, name string, metadata map[string]string) error

	// PutPendingGroup writes a PENDING group record whose Children list
	// is exactly childIDs. The group's own terminal state is never
	// stored; Get derives it by scanning children.
	PutPendingGroup(taskID string, childIDs []string, metadata map[string]string) error

	// SetStarted transitions PENDING->STARTED. Idempotent if already
	// STARTED. Fails with apperr.ErrBadTransition if the current state
	// is terminal.
	SetStarted(taskID string) error

	// SetSuccess transitions a non-terminal record to SUCCESS carrying
	// result. Idempotent: a record already in a terminal state is left
	// unchanged.
	SetSuccess(taskID string, result interface{}) error

	// SetFailure transitions a non-terminal record to FAILURE carrying
	// traceback. Idempotent: a record already in a terminal state is
	// left unchanged.
	SetFailure(taskID string, traceback string) error

	// Revoke transitions a non-terminal record to REVOKED. For a group,
	// every non-terminal child is revoked too. Idempotent.
	Revoke(taskID string) error

	// Get reads a record. For a group record, State is derived by
	// scanning Children rather than read from disk. Returns
	// apperr.ErrNotFound for an unknown or corrupt task_id.
	Get(taskID string) (*types.TaskRecord, error)

	// ListTasks returns every task record currently stored, with group
	// states derived the same way Get derives them. Intended for
	// metrics collection and admin tooling, not for the hot dispatch
	// path.
	ListTasks() ([]*types.TaskRecord, error)
}

package resultstore

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/log"
	"github.com/cuemby/llamafarm/pkg/types"
)

// FileStore is the reference Result Store transport: one JSON file per
// task_id, written via write-to-temp-then-rename for atomicity.
type FileStore struct {
	dir string

	// locks guards read-modify-write cycles per task_id; a global mutex
	// would serialize unrelated tasks unnecessarily.
	locks sync.Map // map[string]*sync.Mutex
}

// NewFileStore opens (creating if necessary) a Result Store rooted at
// dir. dir is created with 0o755 if missing.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.TransportError(fmt.Sprintf("creating result store dir %s", dir), err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) lockFor(taskID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(taskID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *FileStore) readRaw(taskID string) (*types.TaskRecord, error) {
	path := taskFilePath(s.dir, taskID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.TransportError(fmt.Sprintf("reading task record %s", taskID), err)
	}
	var rec types.TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		log.WithComponent("resultstore").Warn().
			Str("task_id", taskID).Err(err).Msg("corrupt task record, reporting as not found")
		return nil, apperr.ErrNotFound
	}
	return &rec, nil
}

// writeAtomic serializes rec to JSON and writes it via a temp file in
// the same directory followed by os.Rename, so a crash mid-write never
// leaves a partially written record visible under the final name.
func (s *FileStore) writeAtomic(rec *types.TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return apperr.TransportError("encoding task record", err)
	}
	final := taskFilePath(s.dir, rec.TaskID)
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+rec.TaskID+"-*")
	if err != nil {
		return apperr.TransportError(fmt.Sprintf("creating temp file for %s", rec.TaskID), err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.TransportError(fmt.Sprintf("writing task record %s", rec.TaskID), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.TransportError(fmt.Sprintf("closing temp file for %s", rec.TaskID), err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return apperr.TransportError(fmt.Sprintf("renaming task record %s", rec.TaskID), err)
	}
	return nil
}

// PutPending implements Store.
func (s *FileStore) PutPending(taskID, name string, metadata map[string]string) error {
	lock := s.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.readRaw(taskID); err == nil {
		return apperr.ErrAlreadyExists
	}

	now := time.Now()
	rec := &types.TaskRecord{
		TaskID:    taskID,
		Kind:      types.TaskKindSingle,
		Name:      name,
		State:     types.TaskStatePending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.writeAtomic(rec)
}

// PutPendingGroup implements Store.
func (s *FileStore) PutPendingGroup(taskID string, childIDs []string, metadata map[string]string) error {
	lock := s.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.readRaw(taskID); err == nil {
		return apperr.ErrAlreadyExists
	}

	now := time.Now()
	rec := &types.TaskRecord{
		TaskID:    taskID,
		Kind:      types.TaskKindGroup,
		State:     types.TaskStatePending,
		Children:  childIDs,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.writeAtomic(rec)
}

// SetStarted implements Store.
func (s *FileStore) SetStarted(taskID string) error {
	lock := s.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.readRaw(taskID)
	if err != nil {
		return err
	}
	if rec.State == types.TaskStateStarted {
		return nil
	}
	if rec.State.Terminal() {
		return apperr.ErrBadTransition
	}
	rec.State = types.TaskStateStarted
	rec.UpdatedAt = time.Now()
	return s.writeAtomic(rec)
}

// SetSuccess implements Store.
func (s *FileStore) SetSuccess(taskID string, result interface{}) error {
	return s.setTerminal(taskID, types.TaskStateSuccess, result, "")
}

// SetFailure implements Store.
func (s *FileStore) SetFailure(taskID string, traceback string) error {
	return s.setTerminal(taskID, types.TaskStateFailure, nil, traceback)
}

// Revoke implements Store.
func (s *FileStore) Revoke(taskID string) error {
	lock := s.lockFor(taskID)
	lock.Lock()
	rec, err := s.readRaw(taskID)
	if err != nil {
		lock.Unlock()
		return err
	}
	if rec.State.Terminal() {
		lock.Unlock()
		return nil
	}
	rec.State = types.TaskStateRevoked
	rec.UpdatedAt = time.Now()
	children := append([]string(nil), rec.Children...)
	writeErr := s.writeAtomic(rec)
	lock.Unlock()
	if writeErr != nil {
		return writeErr
	}

	// A parent revoke implies revoking every non-terminal child.
	for _, childID := range children {
		if err := s.Revoke(childID); err != nil {
			log.WithComponent("resultstore").Warn().
				Str("task_id", childID).Err(err).Msg("failed to cascade revoke to child")
		}
	}
	return nil
}

// setTerminal transitions a non-terminal record to state, idempotently
// leaving an already-terminal record untouched.
func (s *FileStore) setTerminal(taskID string, state types.TaskState, result interface{}, traceback string) error {
	lock := s.lockFor(taskID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.readRaw(taskID)
	if err != nil {
		return err
	}
	if rec.State.Terminal() {
		return nil
	}
	rec.State = state
	rec.Result = result
	rec.Traceback = traceback
	rec.UpdatedAt = time.Now()
	return s.writeAtomic(rec)
}

// Get implements Store.
func (s *FileStore) Get(taskID string) (*types.TaskRecord, error) {
	rec, err := s.readRaw(taskID)
	if err != nil {
		return nil, err
	}
	if rec.Kind == types.TaskKindGroup {
		derived, derivErr := s.deriveGroupState(rec.Children)
		if derivErr != nil {
			return nil, derivErr
		}
		rec.State = derived
	}
	return rec, nil
}

// ListTasks implements Store.
func (s *FileStore) ListTasks() ([]*types.TaskRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperr.TransportError(fmt.Sprintf("listing result store dir %s", s.dir), err)
	}

	var records []*types.TaskRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".tmp-") {
			continue
		}
		taskID := strings.TrimSuffix(name, ".json")
		rec, err := s.Get(taskID)
		if err != nil {
			log.WithComponent("resultstore").Warn().
				Str("task_id", taskID).Err(err).Msg("skipping unreadable task record during list")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// deriveGroupState implements §3's group derivation invariant: SUCCESS
// iff every child is SUCCESS; FAILURE if any child is FAILURE and none
// are still PENDING/STARTED; REVOKED if no failure and at least one
// child is REVOKED with the rest terminal; otherwise STARTED.
func (s *FileStore) deriveGroupState(childIDs []string) (types.TaskState, error) {
	sawRevoked := false
	sawFailure := false
	allSuccess := true

	for _, childID := range childIDs {
		child, err := s.Get(childID)
		if err != nil {
			return "", err
		}
		switch child.State {
		case types.TaskStatePending, types.TaskStateStarted:
			return types.TaskStateStarted, nil
		case types.TaskStateFailure:
			sawFailure = true
			allSuccess = false
		case types.TaskStateRevoked:
			sawRevoked = true
			allSuccess = false
		case types.TaskStateSuccess:
			// no-op
		}
	}

	switch {
	case allSuccess:
		return types.TaskStateSuccess, nil
	case sawFailure:
		return types.TaskStateFailure, nil
	case sawRevoked:
		return types.TaskStateRevoked, nil
	default:
		return types.TaskStateStarted, nil
	}
}

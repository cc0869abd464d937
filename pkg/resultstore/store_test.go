package resultstore

import (
	"testing"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestPutPending_DuplicateFails(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutPending("t1", "rag.ingest_file", nil))
	err := store.PutPending("t1", "rag.ingest_file", nil)

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeAlreadyExists, appErr.Code)
}

func TestRoundTrip_PendingStartedSuccess(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutPending("t1", "rag.ingest_file", nil))
	require.NoError(t, store.SetStarted("t1"))
	require.NoError(t, store.SetSuccess("t1", map[string]int{"stored_chunks": 4}))

	rec, err := store.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateSuccess, rec.State)
	assert.Empty(t, rec.Traceback)
}

func TestSetStarted_FailsOnTerminal(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutPending("t1", "rag.ingest_file", nil))
	require.NoError(t, store.SetSuccess("t1", "done"))

	err := store.SetStarted("t1")
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeBadTransition, appErr.Code)
}

func TestSetSuccess_IdempotentOnTerminal(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutPending("t1", "rag.ingest_file", nil))
	require.NoError(t, store.SetSuccess("t1", "first"))
	require.NoError(t, store.SetFailure("t1", "should not apply"))

	rec, err := store.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateSuccess, rec.State)
	assert.Equal(t, "first", rec.Result)
}

func TestRevoke_ThenTerminalTransitionStaysRevoked(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutPending("t1", "rag.ingest_file", nil))
	require.NoError(t, store.Revoke("t1"))
	require.NoError(t, store.SetSuccess("t1", "late result"))

	rec, err := store.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateRevoked, rec.State)
}

func TestGet_UnknownTaskReturnsNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get("does-not-exist")
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeNotFound, appErr.Code)
}

func TestGroup_DerivedSuccess(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, store.PutPending(id, "rag.ingest_file", nil))
		require.NoError(t, store.SetStarted(id))
		require.NoError(t, store.SetSuccess(id, "ok"))
	}
	require.NoError(t, store.PutPendingGroup("group1", []string{"c1", "c2", "c3"}, nil))

	rec, err := store.Get("group1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateSuccess, rec.State)
}

func TestGroup_DerivedFailureWhenAnyChildFails(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutPending("c1", "rag.ingest_file", nil))
	require.NoError(t, store.SetStarted("c1"))
	require.NoError(t, store.SetSuccess("c1", "ok"))

	require.NoError(t, store.PutPending("c2", "rag.ingest_file", nil))
	require.NoError(t, store.SetStarted("c2"))
	require.NoError(t, store.SetFailure("c2", "boom"))

	require.NoError(t, store.PutPendingGroup("group1", []string{"c1", "c2"}, nil))

	rec, err := store.Get("group1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateFailure, rec.State)
}

func TestGroup_DerivedStartedWhileChildPending(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutPending("c1", "rag.ingest_file", nil))
	require.NoError(t, store.PutPendingGroup("group1", []string{"c1"}, nil))

	rec, err := store.Get("group1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateStarted, rec.State)
}

func TestListTasks_ReturnsAllRecordsWithDerivedGroupState(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.PutPending("c1", "rag.ingest_file", nil))
	require.NoError(t, store.SetStarted("c1"))
	require.NoError(t, store.SetSuccess("c1", "ok"))
	require.NoError(t, store.PutPendingGroup("group1", []string{"c1"}, nil))

	records, err := store.ListTasks()
	require.NoError(t, err)
	require.Len(t, records, 2)

	byID := map[string]*types.TaskRecord{}
	for _, rec := range records {
		byID[rec.TaskID] = rec
	}
	assert.Equal(t, types.TaskStateSuccess, byID["c1"].State)
	assert.Equal(t, types.TaskStateSuccess, byID["group1"].State)
}

func TestNormalizeURL_WindowsDriveLetter(t *testing.T) {
	assert.Equal(t, "file:///C:/data/store", NormalizeURL(`C:\data\store`))
}

func TestNormalizeURL_UnixAbsolutePath(t *testing.T) {
	assert.Equal(t, "file:///var/lib/llamafarm/store", NormalizeURL("/var/lib/llamafarm/store"))
}

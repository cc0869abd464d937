package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/resultstore"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memQueue is an in-memory Queue used only by this package's tests;
// the fsqueue package exercises the same broker.Queue contract against
// a real filesystem.
type memQueue struct {
	mu    sync.Mutex
	queue map[string][]Message
}

func newMemQueue() *memQueue {
	return &memQueue{queue: make(map[string][]Message)}
}

func (q *memQueue) Enqueue(queueName string, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue[queueName] = append(q.queue[queueName], msg)
	return nil
}

func (q *memQueue) Claim(ctx context.Context, queueName string) (*Message, func() error, error) {
	for {
		q.mu.Lock()
		items := q.queue[queueName]
		if len(items) > 0 {
			msg := items[0]
			q.queue[queueName] = items[1:]
			q.mu.Unlock()
			return &msg, func() error { return nil }, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func newTestBroker(t *testing.T) (*Broker, resultstore.Store) {
	t.Helper()
	store, err := resultstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	b := New(store, newMemQueue(), map[string]string{
		"rag.":           "rag",
		"orchestration.": "server",
	})
	return b, store
}

func TestDispatch_UnknownPrefixIsConfigError(t *testing.T) {
	b, _ := newTestBroker(t)

	_, err := b.Dispatch(BuildSignature("unknown.thing", nil))
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeConfig, appErr.Code)
}

func TestDispatch_TwoDispatchesAreIndependent(t *testing.T) {
	b, _ := newTestBroker(t)

	h1, err := b.Dispatch(BuildSignature("rag.ingest_file", map[string]string{"a": "1"}))
	require.NoError(t, err)
	h2, err := b.Dispatch(BuildSignature("rag.ingest_file", map[string]string{"a": "1"}))
	require.NoError(t, err)

	assert.NotEqual(t, h1.TaskID, h2.TaskID)
}

func TestServe_HandlerSuccessUpdatesRecord(t *testing.T) {
	b, store := newTestBroker(t)
	b.Register("rag.ingest_file", func(ctx context.Context, hctx HandlerContext) (interface{}, error) {
		return types.IngestResult{ProcessedFiles: 1, StoredChunks: 4}, nil
	})

	handle, err := b.Dispatch(BuildSignature("rag.ingest_file", map[string]string{"path": "/a.txt"}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go b.Serve(ctx, "rag")

	rec, err := AwaitCompletionParallel(store.Get, handle.TaskID, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateSuccess, rec.State)
}

func TestServe_HandlerErrorRecordsFailure(t *testing.T) {
	b, store := newTestBroker(t)
	b.Register("rag.ingest_file", func(ctx context.Context, hctx HandlerContext) (interface{}, error) {
		return nil, errors.New("disk full")
	})

	handle, err := b.Dispatch(BuildSignature("rag.ingest_file", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go b.Serve(ctx, "rag")

	rec, err := AwaitCompletionParallel(store.Get, handle.TaskID, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateFailure, rec.State)
	assert.Contains(t, rec.Traceback, "disk full")
}

func TestServe_HandlerPanicRecordsFailure(t *testing.T) {
	b, store := newTestBroker(t)
	b.Register("rag.ingest_file", func(ctx context.Context, hctx HandlerContext) (interface{}, error) {
		panic("boom")
	})

	handle, err := b.Dispatch(BuildSignature("rag.ingest_file", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go b.Serve(ctx, "rag")

	rec, err := AwaitCompletionParallel(store.Get, handle.TaskID, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateFailure, rec.State)
	assert.Contains(t, rec.Traceback, "boom")
}

func TestAwaitCompletionParallel_TimesOut(t *testing.T) {
	b, store := newTestBroker(t)
	b.Register("rag.ingest_file", func(ctx context.Context, hctx HandlerContext) (interface{}, error) {
		time.Sleep(50 * time.Millisecond)
		return "done", nil
	})

	handle, err := b.Dispatch(BuildSignature("rag.ingest_file", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx, "rag")

	_, err = AwaitCompletionParallel(store.Get, handle.TaskID, time.Millisecond, time.Millisecond)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeTimeout, appErr.Code)
}

func TestAwaitCompletionCooperative_RespectsContext(t *testing.T) {
	b, store := newTestBroker(t)
	handle, err := b.Dispatch(BuildSignature("rag.ingest_file", nil))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	// No Serve loop runs, so the task stays PENDING until ctx expires.
	_, err = AwaitCompletionCooperative(ctx, store.Get, handle.TaskID, time.Millisecond)
	assert.Error(t, err)
}

func TestRevoke_MarksRecordRevoked(t *testing.T) {
	b, store := newTestBroker(t)
	handle, err := b.Dispatch(BuildSignature("rag.ingest_file", nil))
	require.NoError(t, err)

	require.NoError(t, b.Revoke(handle.TaskID, false))

	rec, err := store.Get(handle.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateRevoked, rec.State)
}

func TestDispatchGroup_DerivesFromChildren(t *testing.T) {
	b, store := newTestBroker(t)
	b.Register("rag.ingest_file", func(ctx context.Context, hctx HandlerContext) (interface{}, error) {
		return "ok", nil
	})

	group, err := b.DispatchGroup([]Signature{
		BuildSignature("rag.ingest_file", nil),
		BuildSignature("rag.ingest_file", nil),
	})
	require.NoError(t, err)
	require.Len(t, group.Children, 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go b.Serve(ctx, "rag")

	var rec *types.TaskRecord
	for i := 0; i < 200; i++ {
		rec, err = store.Get(group.TaskID)
		require.NoError(t, err)
		if rec.State.Terminal() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, types.TaskStateSuccess, rec.State)
}

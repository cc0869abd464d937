package fsqueue

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueClaim_RoundTrip(t *testing.T) {
	q := New(t.TempDir())
	defer q.Close()

	msg := broker.Message{TaskID: "t1", Name: "rag.ingest_file", Args: []byte(`{"path":"/a.txt"}`)}
	require.NoError(t, q.Enqueue("rag", msg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	claimed, commit, err := q.Claim(ctx, "rag")
	require.NoError(t, err)
	assert.Equal(t, msg.TaskID, claimed.TaskID)
	assert.Equal(t, msg.Name, claimed.Name)
	require.NoError(t, commit())
}

func TestClaim_BlocksUntilEnqueue(t *testing.T) {
	q := New(t.TempDir())
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	claimed := make(chan *broker.Message, 1)
	go func() {
		msg, commit, err := q.Claim(ctx, "rag")
		if err == nil {
			commit()
			claimed <- msg
		}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Enqueue("rag", broker.Message{TaskID: "t2", Name: "rag.ingest_file"}))

	select {
	case msg := <-claimed:
		assert.Equal(t, "t2", msg.TaskID)
	case <-time.After(2 * time.Second):
		t.Fatal("claim did not observe enqueued message in time")
	}
}

func TestClaim_ContextCancel(t *testing.T) {
	q := New(t.TempDir())
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := q.Claim(ctx, "rag")
	assert.Error(t, err)
}

func TestClaim_NoDoubleDelivery(t *testing.T) {
	q := New(t.TempDir())
	defer q.Close()

	require.NoError(t, q.Enqueue("rag", broker.Message{TaskID: "t3", Name: "rag.ingest_file"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg1, commit1, err := q.Claim(ctx, "rag")
	require.NoError(t, err)
	assert.Equal(t, "t3", msg1.TaskID)
	require.NoError(t, commit1())

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	_, _, err = q.Claim(ctx2, "rag")
	assert.Error(t, err, "queue should be empty after the single message was claimed and committed")
}

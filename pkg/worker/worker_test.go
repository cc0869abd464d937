package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/cuemby/llamafarm/pkg/broker/fsqueue"
	"github.com/cuemby/llamafarm/pkg/projectdir"
	"github.com/cuemby/llamafarm/pkg/resultstore"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a fixed-dimension zero vector offset by the
// text's length, just distinct enough for Search to rank deterministically.
type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

func newTestWorker(t *testing.T) (*Worker, *broker.Broker, string) {
	t.Helper()
	root := t.TempDir()
	layout := projectdir.New(root)
	require.NoError(t, layout.Ensure([]string{"default"}))

	store, err := resultstore.NewFileStore(layout.ResultStoreDir())
	require.NoError(t, err)
	queue := fsqueue.New(layout.QueueDir())
	b := broker.New(store, queue, map[string]string{"rag.": "rag", "orchestration.": "server"})

	manifest := &types.ProjectManifest{
		Namespace: "default",
		Name:      "test-project",
		Databases: []types.DatabaseSpec{{Name: "default", VectorStoreType: "memory"}},
	}

	w, err := New(Config{
		Layout:   layout,
		Manifest: manifest,
		Broker:   b,
		Runtime:  &fakeEmbedder{dim: 4},
		PoolSize: 2,
	})
	require.NoError(t, err)
	return w, b, root
}

func runPool(t *testing.T, w *Worker, b *broker.Broker) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	return cancel
}

func waitTerminal(t *testing.T, b *broker.Broker, taskID string) *types.TaskRecord {
	t.Helper()
	rec, err := broker.AwaitCompletionParallel(b.Poll, taskID, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, err)
	return rec
}

func TestIngestFile_SeedScenarioS1(t *testing.T) {
	w, b, root := newTestWorker(t)
	cancel := runPool(t, w, b)
	defer cancel()
	defer w.Close()

	srcDir := filepath.Join(root, "source")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	content := "first paragraph of the document\n\nsecond paragraph here\n\nthird one\n\nfourth and final paragraph"
	path := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	handle, err := b.Dispatch(broker.BuildSignature("rag.ingest_file", IngestFileArgs{
		ProjectDir:   root,
		DatabaseName: "default",
		SourcePath:   path,
	}))
	require.NoError(t, err)

	rec := waitTerminal(t, b, handle.TaskID)
	require.Equal(t, types.TaskStateSuccess, rec.State)

	data, err := json.Marshal(rec.Result)
	require.NoError(t, err)
	var result types.IngestResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Equal(t, 1, result.ProcessedFiles)
	require.Equal(t, 4, result.StoredChunks)
	require.Empty(t, result.Skipped)
}

func TestIngestFile_SeedScenarioS2_SecondRunStoresNothing(t *testing.T) {
	w, b, root := newTestWorker(t)
	cancel := runPool(t, w, b)
	defer cancel()
	defer w.Close()

	srcDir := filepath.Join(root, "source")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	path := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\n\ntwo"), 0o644))

	args := IngestFileArgs{ProjectDir: root, DatabaseName: "default", SourcePath: path}

	h1, err := b.Dispatch(broker.BuildSignature("rag.ingest_file", args))
	require.NoError(t, err)
	rec1 := waitTerminal(t, b, h1.TaskID)
	require.Equal(t, types.TaskStateSuccess, rec1.State)

	h2, err := b.Dispatch(broker.BuildSignature("rag.ingest_file", args))
	require.NoError(t, err)
	rec2 := waitTerminal(t, b, h2.TaskID)
	require.Equal(t, types.TaskStateSuccess, rec2.State)

	data, err := json.Marshal(rec2.Result)
	require.NoError(t, err)
	var result types.IngestResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Equal(t, 0, result.StoredChunks)
}

func TestQuery_ReturnsHitsAfterIngest(t *testing.T) {
	w, b, root := newTestWorker(t)
	cancel := runPool(t, w, b)
	defer cancel()
	defer w.Close()

	srcDir := filepath.Join(root, "source")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	path := filepath.Join(srcDir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("alpha beta"), 0o644))

	h1, err := b.Dispatch(broker.BuildSignature("rag.ingest_file", IngestFileArgs{
		ProjectDir: root, DatabaseName: "default", SourcePath: path,
	}))
	require.NoError(t, err)
	require.Equal(t, types.TaskStateSuccess, waitTerminal(t, b, h1.TaskID).State)

	h2, err := b.Dispatch(broker.BuildSignature("rag.query", QueryArgs{
		DatabaseName: "default", Query: "alpha beta", K: 5,
	}))
	require.NoError(t, err)
	rec := waitTerminal(t, b, h2.TaskID)
	require.Equal(t, types.TaskStateSuccess, rec.State)
	require.NotNil(t, rec.Result)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/cuemby/llamafarm/pkg/broker/fsqueue"
	"github.com/cuemby/llamafarm/pkg/projectdir"
	"github.com/cuemby/llamafarm/pkg/resultstore"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *broker.Broker) {
	t.Helper()
	root := t.TempDir()
	layout := projectdir.New(root)
	require.NoError(t, layout.Ensure([]string{"default"}))

	store, err := resultstore.NewFileStore(layout.ResultStoreDir())
	require.NoError(t, err)
	queue := fsqueue.New(layout.QueueDir())
	b := broker.New(store, queue, map[string]string{"rag.": "rag", "orchestration.": "server"})

	b.Register("rag.query", func(ctx context.Context, hctx broker.HandlerContext) (interface{}, error) {
		return map[string]int{"hits": 1}, nil
	})
	b.Register("rag.stats", func(ctx context.Context, hctx broker.HandlerContext) (interface{}, error) {
		return map[string]int{"chunk_count": 0}, nil
	})
	b.Register("orchestration.health", func(ctx context.Context, hctx broker.HandlerContext) (interface{}, error) {
		return types.HealthReport{Status: types.ComponentHealthy}, nil
	})
	b.Register("rag.ingest_file", func(ctx context.Context, hctx broker.HandlerContext) (interface{}, error) {
		return types.IngestResult{ProcessedFiles: 1, StoredChunks: 4}, nil
	})

	manifest := &types.ProjectManifest{Name: "test", Databases: []types.DatabaseSpec{{Name: "default"}}}
	s, err := New(Config{Layout: layout, Manifest: manifest, Broker: b})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = b.Serve(ctx, "rag") }()
	go func() { _ = b.Serve(ctx, "server") }()

	return s, b
}

func TestDatasets_CreateListDelete(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(createDatasetRequest{Name: "docs", DatabaseName: "default"})
	resp, err := http.Post(srv.URL+"/datasets", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/datasets")
	require.NoError(t, err)
	var list []Dataset
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	require.Equal(t, "docs", list[0].Name)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/datasets/docs", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/datasets/docs")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestDatasets_ProcessDispatchesTaskPollableByTaskEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(createDatasetRequest{Name: "docs", DatabaseName: "default", SourcePath: t.TempDir()})
	resp, err := http.Post(srv.URL+"/datasets", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Post(srv.URL+"/datasets/docs/process", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	resp.Body.Close()
	require.NotEmpty(t, accepted["task_id"])

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/tasks/" + accepted["task_id"])
		require.NoError(t, err)
		defer resp.Body.Close()
		var rec taskRecordResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
		return rec.State == string(types.TaskStateSuccess)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRAGQuery_ReturnsResultSynchronously(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body, _ := json.Marshal(ragQueryRequest{DatabaseName: "default", Query: "hello", K: 3})
	resp, err := http.Post(srv.URL+"/rag/query", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec taskRecordResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	resp.Body.Close()
	require.Equal(t, string(types.TaskStateSuccess), rec.State)
}

func TestRAGHealth_ReturnsHealthReport(t *testing.T) {
	s, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/rag/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

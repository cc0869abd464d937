package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mux *http.ServeMux) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateListDeleteDataset(t *testing.T) {
	datasets := map[string]Dataset{}

	mux := http.NewServeMux()
	mux.HandleFunc("/datasets", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var d Dataset
			require.NoError(t, json.NewDecoder(r.Body).Decode(&d))
			datasets[d.Name] = d
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(d)
		case http.MethodGet:
			list := make([]Dataset, 0, len(datasets))
			for _, d := range datasets {
				list = append(list, d)
			}
			_ = json.NewEncoder(w).Encode(list)
		}
	})
	mux.HandleFunc("/datasets/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/datasets/")
		if r.Method == http.MethodDelete {
			delete(datasets, name)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.NotFound(w, r)
	})

	srv := newTestServer(t, mux)
	c := New(srv.URL)
	ctx := context.Background()

	d, err := c.CreateDataset(ctx, "docs", "/tmp/docs", "default")
	require.NoError(t, err)
	require.Equal(t, "docs", d.Name)

	list, err := c.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.DeleteDataset(ctx, "docs"))
	require.Empty(t, datasets)
}

func TestQueryDispatchesAndDecodesTaskResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rag/query", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			DatabaseName string `json:"database_name"`
			Query        string `json:"query"`
			K            int    `json:"k"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "default", req.DatabaseName)
		require.Equal(t, 3, req.K)
		_ = json.NewEncoder(w).Encode(TaskResult{TaskID: "t1", State: "SUCCESS", Result: map[string]int{"hits": 1}})
	})

	srv := newTestServer(t, mux)
	c := New(srv.URL)

	result, err := c.Query(context.Background(), "default", "hello", 3)
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", result.State)
}

func TestAwaitTaskPollsUntilTerminal(t *testing.T) {
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/t1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		state := "STARTED"
		if polls >= 3 {
			state = "SUCCESS"
		}
		_ = json.NewEncoder(w).Encode(TaskResult{TaskID: "t1", State: state})
	})

	srv := newTestServer(t, mux)
	c := New(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := c.AwaitTask(ctx, "t1", 5*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "SUCCESS", result.State)
	require.GreaterOrEqual(t, polls, 3)
}

func TestErrorResponseSurfacesAsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/datasets/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(apiError{Code: "not_found", Message: "not found"})
	})

	srv := newTestServer(t, mux)
	c := New(srv.URL)

	_, err := c.GetDataset(context.Background(), "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not_found")
}

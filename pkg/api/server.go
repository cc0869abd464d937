package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/cuemby/llamafarm/pkg/log"
	"github.com/cuemby/llamafarm/pkg/metrics"
	"github.com/cuemby/llamafarm/pkg/orchestrator"
	"github.com/cuemby/llamafarm/pkg/projectdir"
	"github.com/cuemby/llamafarm/pkg/runtimeclient"
	"github.com/cuemby/llamafarm/pkg/types"
)

// taskPollTimeout bounds how long a request handler blocks awaiting a
// dispatched task, using broker.AwaitCompletionParallel: this server's
// handlers run one per goroutine per request, free to block (spec.md
// §4.2).
const taskPollTimeout = 2 * time.Minute

// ModelFetcher is the narrow interface the download proxy needs; the
// concrete implementation is *runtimeclient.Client (download.go's
// own ModelFetcher contract, reused verbatim so this package does not
// need to re-declare the same shape).
type ModelFetcher = orchestrator.ModelFetcher

// ChatMessage is runtimeclient's chat message shape, reused directly so
// a *runtimeclient.Client satisfies ChatClient without an adapter.
type ChatMessage = runtimeclient.ChatMessage

// ChatClient is the narrow interface the chat proxy needs; the concrete
// implementation is *runtimeclient.Client.
type ChatClient interface {
	ChatStream(ctx context.Context, model string, messages []ChatMessage, onToken func(string)) error
}

// Config wires a Server to its project, broker, and Universal Runtime
// collaborators.
type Config struct {
	Layout   *projectdir.Layout
	Manifest *types.ProjectManifest
	Broker   *broker.Broker
	Fetcher  ModelFetcher
	Chat     ChatClient
}

// Server is the api-server process's HTTP surface: dataset management,
// the rag.* task facade, and SSE proxies for chat and model download.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	datasets *datasetRegistry
}

// New builds a Server and registers its routes. It does not start
// listening; call ListenAndServe or use Handler with your own
// http.Server.
func New(cfg Config) (*Server, error) {
	registry, err := openDatasetRegistry(filepath.Join(cfg.Layout.Root, "datasets.json"))
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, mux: http.NewServeMux(), datasets: registry}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/datasets", s.withMetrics("datasets", s.handleDatasetsCollection))
	s.mux.HandleFunc("/datasets/", s.withMetrics("dataset_item", s.handleDatasetItem))
	s.mux.HandleFunc("/rag/query", s.withMetrics("rag_query", s.handleRAGQuery))
	s.mux.HandleFunc("/rag/stats", s.withMetrics("rag_stats", s.handleRAGStats))
	s.mux.HandleFunc("/rag/health", s.withMetrics("rag_health", s.handleRAGHealth))
	s.mux.HandleFunc("/tasks/", s.withMetrics("task_poll", s.handleTaskPoll))
	s.mux.HandleFunc("/chat", s.withMetrics("chat", s.handleChat))
	if s.cfg.Fetcher != nil {
		s.mux.Handle("/models/download", orchestrator.DownloadHandler(s.cfg.Fetcher))
	}
	s.mux.Handle("/metrics", metrics.Handler())
}

// Handler returns the server's http.Handler for embedding in your own
// http.Server (or httptest.Server in tests).
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving addr until ctx is done or an
// unrecoverable listener error occurs, grounded on the teacher's
// pkg/api/health.go Start method.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE endpoints hold the connection open
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) withMetrics(label string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rw, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, label)
		metrics.APIRequestsTotal.WithLabelValues(label, http.StatusText(rw.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// writeJSON encodes v as the response body with status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the user-visible failure shape of spec.md §7: a
// short code, a human-readable message, and an optional recovery list.
type errorResponse struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Recovery []string `json:"recovery,omitempty"`
}

// writeError maps an apperr.Error to the 4xx/5xx status its Code
// implies (spec.md §7 "API layer distinguishes user-facing errors from
// task failures"); an unrecognized error is a 500.
func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		log.WithComponent("api").Error().Err(err).Msg("unclassified error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperr.CodeConfig, apperr.CodeNotFound, apperr.CodeAlreadyExists, apperr.CodeBadTransition:
		status = http.StatusBadRequest
	case apperr.CodeDependency, apperr.CodeTransport, apperr.CodeTimeout:
		status = http.StatusServiceUnavailable
	case apperr.CodeHandler:
		status = http.StatusInternalServerError
	}
	if appErr.Code == apperr.CodeNotFound {
		status = http.StatusNotFound
	}
	writeJSON(w, status, errorResponse{Code: string(appErr.Code), Message: appErr.Message, Recovery: appErr.Recovery})
}

// taskRecordResponse is the wire shape returned from a task-poll
// endpoint: enough of a types.TaskRecord for the CLI/UI to render
// state, result, or traceback.
type taskRecordResponse struct {
	TaskID    string      `json:"task_id"`
	State     string      `json:"state"`
	Result    interface{} `json:"result,omitempty"`
	Traceback string      `json:"traceback,omitempty"`
}

func recordResponse(rec *types.TaskRecord) taskRecordResponse {
	return taskRecordResponse{
		TaskID:    rec.TaskID,
		State:     string(rec.State),
		Result:    rec.Result,
		Traceback: rec.Traceback,
	}
}

// dispatchAndAwait dispatches sig and blocks until it reaches a
// terminal state or taskPollTimeout elapses, the pattern every
// synchronous rag.* facade endpoint shares.
func (s *Server) dispatchAndAwait(sig broker.Signature) (*types.TaskRecord, error) {
	handle, err := s.cfg.Broker.Dispatch(sig)
	if err != nil {
		return nil, err
	}
	return broker.AwaitCompletionParallel(s.cfg.Broker.Poll, handle.TaskID, taskPollTimeout, 50*time.Millisecond)
}

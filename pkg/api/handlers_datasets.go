package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/cuemby/llamafarm/pkg/worker"
)

// createDatasetRequest is the body of POST /datasets.
type createDatasetRequest struct {
	Name         string `json:"name"`
	SourcePath   string `json:"source_path"`
	DatabaseName string `json:"database_name"`
}

func (s *Server) handleDatasetsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.datasets.list())
	case http.MethodPost:
		s.handleCreateDataset(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req createDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.ConfigError("decoding create-dataset request", err))
		return
	}
	if req.Name == "" || req.DatabaseName == "" {
		writeError(w, apperr.ConfigError("name and database_name are required", nil))
		return
	}

	sourcePath := req.SourcePath
	if sourcePath == "" {
		sourcePath = filepath.Join(s.cfg.Layout.Root, "datasets", req.Name)
		if err := os.MkdirAll(sourcePath, 0o755); err != nil {
			writeError(w, apperr.TransportError("creating dataset source directory", err))
			return
		}
	}

	d := Dataset{Name: req.Name, SourcePath: sourcePath, DatabaseName: req.DatabaseName}
	if err := s.datasets.create(d); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleDatasetItem routes /datasets/{name}[/upload|/process].
func (s *Server) handleDatasetItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/datasets/")
	parts := strings.SplitN(rest, "/", 2)
	name := parts[0]
	if name == "" {
		http.NotFound(w, r)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getDataset(w, name)
	case action == "" && r.Method == http.MethodDelete:
		s.deleteDataset(w, name)
	case action == "upload" && r.Method == http.MethodPost:
		s.uploadDataset(w, r, name)
	case action == "process" && r.Method == http.MethodPost:
		s.processDataset(w, r, name)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) getDataset(w http.ResponseWriter, name string) {
	d, ok := s.datasets.get(name)
	if !ok {
		writeError(w, apperr.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deleteDataset(w http.ResponseWriter, name string) {
	if err := s.datasets.delete(name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadDataset streams the request body into <source_path>/<filename>,
// the filename taken from a required query parameter to avoid trusting
// client-controlled Content-Disposition parsing for a path component.
func (s *Server) uploadDataset(w http.ResponseWriter, r *http.Request, name string) {
	d, ok := s.datasets.get(name)
	if !ok {
		writeError(w, apperr.ErrNotFound)
		return
	}
	filename := filepath.Base(r.URL.Query().Get("filename"))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		writeError(w, apperr.ConfigError("filename query parameter is required", nil))
		return
	}

	if err := os.MkdirAll(d.SourcePath, 0o755); err != nil {
		writeError(w, apperr.TransportError("creating dataset directory", err))
		return
	}
	dest, err := os.Create(filepath.Join(d.SourcePath, filename))
	if err != nil {
		writeError(w, apperr.TransportError("creating uploaded file", err))
		return
	}
	defer dest.Close()

	if _, err := io.Copy(dest, r.Body); err != nil {
		writeError(w, apperr.TransportError("writing uploaded file", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"path": dest.Name()})
}

// processDataset dispatches a rag.ingest_file task for the dataset's
// registered source path and returns the task_id for polling, rather
// than blocking the request for the job's full duration (ingestion is
// "tens of seconds to minutes", spec.md §1 Non-goals).
func (s *Server) processDataset(w http.ResponseWriter, r *http.Request, name string) {
	d, ok := s.datasets.get(name)
	if !ok {
		writeError(w, apperr.ErrNotFound)
		return
	}

	handle, err := s.cfg.Broker.Dispatch(broker.BuildSignature("rag.ingest_file", worker.IngestFileArgs{
		ProjectDir:   s.cfg.Layout.Root,
		DatabaseName: d.DatabaseName,
		SourcePath:   d.SourcePath,
	}))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": handle.TaskID})
}

func (s *Server) handleTaskPoll(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if taskID == "" {
		http.NotFound(w, r)
		return
	}
	rec, err := s.cfg.Broker.Poll(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}

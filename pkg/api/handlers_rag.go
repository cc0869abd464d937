package api

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/llamafarm/pkg/apperr"
	"github.com/cuemby/llamafarm/pkg/broker"
	"github.com/cuemby/llamafarm/pkg/types"
	"github.com/cuemby/llamafarm/pkg/worker"
)

// ragQueryRequest is the body of POST /rag/query.
type ragQueryRequest struct {
	DatabaseName string `json:"database_name"`
	Query        string `json:"query"`
	K            int    `json:"k"`
}

// handleRAGQuery dispatches rag.query and blocks for its result: the
// CLI's `rag query` subcommand wants one round trip, not a poll loop
// (spec.md §6 CLI table).
func (s *Server) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ragQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.ConfigError("decoding rag query request", err))
		return
	}

	rec, err := s.dispatchAndAwait(broker.BuildSignature("rag.query", worker.QueryArgs{
		DatabaseName: req.DatabaseName, Query: req.Query, K: req.K,
	}))
	s.writeTaskOutcome(w, rec, err)
}

func (s *Server) handleRAGStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dbName := r.URL.Query().Get("database_name")
	if dbName == "" {
		writeError(w, apperr.ConfigError("database_name query parameter is required", nil))
		return
	}

	rec, err := s.dispatchAndAwait(broker.BuildSignature("rag.stats", worker.StatsArgs{DatabaseName: dbName}))
	s.writeTaskOutcome(w, rec, err)
}

func (s *Server) handleRAGHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rec, err := s.dispatchAndAwait(broker.BuildSignature("orchestration.health", nil))
	s.writeTaskOutcome(w, rec, err)
}

// writeTaskOutcome implements spec.md §7's propagation policy: a
// dispatch/poll-transport error is a 4xx/5xx, but a task that reached
// FAILURE is a 200 carrying the error payload in the result, never a 5xx.
func (s *Server) writeTaskOutcome(w http.ResponseWriter, rec *types.TaskRecord, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse(rec))
}
